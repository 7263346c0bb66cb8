package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/polisai/gatekeeper/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRecordEvaluation(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetMetricsForTest()
	})

	ResetMetricsForTest()

	RecordEvaluation(ctx, EvaluationMetrics{
		Decision:      "HOLD",
		RiskLevel:     "high",
		Path:          "assessed",
		FallbackCause: "timeout",
		MatchedRules:  []string{"ACCESS_CHANGE"},
		Duration:      150 * time.Millisecond,
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}

	evals, ok := metrics["gatekeeper.evaluations_total"]
	if !ok {
		t.Fatalf("missing gatekeeper.evaluations_total metric")
	}
	evalData, ok := evals.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type for evaluations metric")
	}
	if len(evalData.DataPoints) != 1 || evalData.DataPoints[0].Value != 1 {
		t.Fatalf("expected one evaluation datapoint with value 1, got %+v", evalData.DataPoints)
	}
	if value, ok := evalData.DataPoints[0].Attributes.Value(attribute.Key("decision")); !ok || value.AsString() != "HOLD" {
		t.Fatalf("expected decision attribute HOLD, got %v", value)
	}

	fallbacks := metrics["gatekeeper.assessment.fallbacks_total"].Data.(metricdata.Sum[int64])
	if value, ok := fallbacks.DataPoints[0].Attributes.Value(attribute.Key("cause")); !ok || value.AsString() != "timeout" {
		t.Fatalf("expected fallback cause timeout, got %v", value)
	}

	matches := metrics["gatekeeper.policy.matches_total"].Data.(metricdata.Sum[int64])
	if matches.DataPoints[0].Value != 1 {
		t.Fatalf("expected one rule match, got %d", matches.DataPoints[0].Value)
	}

	hist, ok := metrics["gatekeeper.evaluation.duration_ms"]
	if !ok {
		t.Fatalf("missing gatekeeper.evaluation.duration_ms metric")
	}
	histData := hist.Data.(metricdata.Histogram[float64])
	if histData.DataPoints[0].Count != 1 {
		t.Fatalf("expected histogram count 1, got %d", histData.DataPoints[0].Count)
	}
	if histData.DataPoints[0].Sum != 150 {
		t.Fatalf("expected histogram sum 150, got %v", histData.DataPoints[0].Sum)
	}
}

func TestRecordDecisionCard(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "build_decision")
	RecordPolicyResolution(span, domain.DecisionEscalate, domain.RiskCritical, []domain.MatchedPolicy{{RuleID: "PROD_DEPLOY"}})
	RecordDecisionCard(span, domain.DecisionCard{Decision: domain.DecisionEscalate, RiskLevel: domain.RiskCritical})
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	attrs := attribute.NewSet(spans[0].Attributes()...)
	if value, ok := attrs.Value(attribute.Key("decision.value")); !ok || value.AsString() != "ESCALATE" {
		t.Fatalf("expected decision.value ESCALATE, got %v", value)
	}
	if value, ok := attrs.Value(attribute.Key("policy.matched.ids")); !ok || value.AsStringSlice()[0] != "PROD_DEPLOY" {
		t.Fatalf("expected matched ids, got %v", value)
	}

	events := spans[0].Events()
	if len(events) != 1 || events[0].Name != "decision.escalated" {
		t.Fatalf("expected decision.escalated event, got %+v", events)
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown tracer provider: %v", err)
	}
}

func TestSetupProviderWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupProvider(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}
