package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce         sync.Once
	metricsInitErr      error
	evaluationCounter   metric.Int64Counter
	fallbackCounter     metric.Int64Counter
	matchedRuleCounter  metric.Int64Counter
	evaluationHistogram metric.Float64Histogram
)

// EvaluationMetrics captures the fields needed to record one evaluation.
type EvaluationMetrics struct {
	Decision  string
	RiskLevel string
	// Path is "fast_path" when the reasoning engine was skipped, "assessed" otherwise.
	Path string
	// FallbackCause is empty unless the assessment fell back to the policy resolution.
	FallbackCause string
	MatchedRules  []string
	Duration      time.Duration
}

// RecordEvaluation emits counters and histograms describing a completed evaluation.
func RecordEvaluation(ctx context.Context, m EvaluationMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("decision", m.Decision),
		attribute.String("risk_level", m.RiskLevel),
		attribute.String("path", m.Path),
	)

	evaluationCounter.Add(ctx, 1, attrs)

	if m.Duration > 0 {
		evaluationHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), attrs)
	}

	if m.FallbackCause != "" {
		fallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", m.FallbackCause)))
	}

	for _, id := range m.MatchedRules {
		matchedRuleCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("rule_id", id)))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(InstrumentationName)

		evaluationCounter, metricsInitErr = meter.Int64Counter(
			"gatekeeper.evaluations_total",
			metric.WithDescription("Completed evaluations partitioned by verdict and path"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		fallbackCounter, metricsInitErr = meter.Int64Counter(
			"gatekeeper.assessment.fallbacks_total",
			metric.WithDescription("Assessments that fell back to the policy resolution"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		matchedRuleCounter, metricsInitErr = meter.Int64Counter(
			"gatekeeper.policy.matches_total",
			metric.WithDescription("Policy rule matches partitioned by rule id"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		evaluationHistogram, metricsInitErr = meter.Float64Histogram(
			"gatekeeper.evaluation.duration_ms",
			metric.WithDescription("Observed evaluation latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
