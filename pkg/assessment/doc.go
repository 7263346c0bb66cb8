// Package assessment obtains the secondary, context-informed assessment of a request
// from a reasoning engine.
//
// The engine's output is untrusted. It is decoded defensively and any failure to
// call the engine or to understand its answer degrades to a fallback assessment that
// repeats the policy resolution. Assess never returns an error.
package assessment
