// Package telemetry wires OpenTelemetry tracing and metrics for the gatekeeper.
//
// It centralises trace provider setup, owns the evaluation metric instruments, and
// offers enrichment helpers that attach policy resolutions and decision cards to
// spans so operators can correlate verdicts with reasoning engine behaviour.
// Request text is sensitive and is redacted from span attributes by default.
package telemetry
