package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/gatekeeper/pkg/domain"
)

// RecordPolicyResolution annotates span with the rule engine's outcome.
func RecordPolicyResolution(span trace.Span, decision domain.Decision, risk domain.RiskLevel, matched []domain.MatchedPolicy) {
	if !span.IsRecording() {
		return
	}

	ids := make([]string, len(matched))
	for i, m := range matched {
		ids[i] = m.RuleID
	}

	span.SetAttributes(
		attribute.String("policy.decision", string(decision)),
		attribute.String("policy.risk_level", string(risk)),
		attribute.Int("policy.matched.count", len(matched)),
		attribute.StringSlice("policy.matched.ids", ids),
	)
}

// RecordAssessment annotates span with the secondary assessment.
func RecordAssessment(span trace.Span, result domain.AssessmentResult, cause string) {
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(
		attribute.String("assessment.decision", result.Decision),
		attribute.String("assessment.risk_level", result.RiskLevel),
		attribute.Bool("assessment.fallback", result.Fallback),
	)
	if cause != "" {
		span.AddEvent("assessment.fallback", trace.WithAttributes(attribute.String("cause", cause)))
	}
}

// RecordDecisionCard annotates span with the final verdict.
func RecordDecisionCard(span trace.Span, card domain.DecisionCard) {
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(
		attribute.String("decision.value", string(card.Decision)),
		attribute.String("decision.risk_level", string(card.RiskLevel)),
	)

	if card.Decision == domain.DecisionEscalate {
		span.AddEvent("decision.escalated")
	}
}
