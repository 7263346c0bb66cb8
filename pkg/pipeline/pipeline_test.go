package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/polisai/gatekeeper/pkg/assessment"
	"github.com/polisai/gatekeeper/pkg/domain"
	"github.com/polisai/gatekeeper/pkg/llm"
	"github.com/polisai/gatekeeper/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"pgregory.net/rapid"
)

var fixedNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.FixedZone("CEST", 2*60*60))

// countingAssessor echoes the policy resolution and counts invocations.
type countingAssessor struct {
	calls atomic.Int32
	reply func(in assessment.Input) assessment.Outcome
}

func (c *countingAssessor) AssessOutcome(_ context.Context, in assessment.Input) assessment.Outcome {
	c.calls.Add(1)
	if c.reply != nil {
		return c.reply(in)
	}
	return assessment.Outcome{Result: domain.AssessmentResult{
		Decision:          string(in.PolicyDecision),
		RiskLevel:         string(in.PolicyRisk),
		Reasoning:         "engine agrees",
		RecommendedAction: "carry on",
	}}
}

func newCanonicalEvaluator(assessor Assessor) *Evaluator {
	return NewEvaluator(storage.NewMemoryRuleStore(storage.DefaultRules()), assessor, WithClock(func() time.Time { return fixedNow }))
}

func TestRoute(t *testing.T) {
	for _, d := range domain.Decisions() {
		for _, r := range domain.RiskLevels() {
			want := NodeAssess
			if d == domain.DecisionEscalate && r == domain.RiskCritical {
				want = NodeBuildDecision
			}
			assert.Equal(t, want, Route(d, r), "%s/%s", d, r)
		}
	}
}

func TestEvaluateScenarios(t *testing.T) {
	tests := []struct {
		request  string
		decision domain.Decision
		risk     domain.RiskLevel
		matched  int
		assessed bool
	}{
		{"Deploy model v2.3 to production", domain.DecisionEscalate, domain.RiskCritical, 1, false},
		{"Grant admin access to the new team member", domain.DecisionHold, domain.RiskHigh, 1, true},
		{"List all running services and their status", domain.DecisionAct, domain.RiskLow, 0, true},
		{"Summarize the quarterly report", domain.DecisionAct, domain.RiskLow, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			assessor := &countingAssessor{}
			card, err := newCanonicalEvaluator(assessor).Evaluate(context.Background(), tt.request)
			require.NoError(t, err)

			assert.Equal(t, tt.request, card.Request)
			assert.Equal(t, tt.decision, card.Decision)
			assert.Equal(t, tt.risk, card.RiskLevel)
			assert.Len(t, card.MatchedPolicies, tt.matched)
			assert.Equal(t, fixedNow.UTC(), card.Timestamp)
			assert.Equal(t, time.UTC, card.Timestamp.Location())

			if tt.assessed {
				assert.Equal(t, int32(1), assessor.calls.Load())
				assert.Equal(t, "engine agrees", card.Reasoning)
			} else {
				assert.Equal(t, int32(0), assessor.calls.Load())
			}
		})
	}
}

func TestEvaluateFastPathCard(t *testing.T) {
	assessor := &countingAssessor{}
	card, err := newCanonicalEvaluator(assessor).Evaluate(context.Background(), "Deploy model v2.3 to production")
	require.NoError(t, err)

	assert.Equal(t, int32(0), assessor.calls.Load())
	assert.Equal(t, "Resolved by policy rules: PROD_DEPLOY.", card.Reasoning)
	assert.Equal(t, "Obtain explicit human approval before proceeding.", card.RecommendedAction)
	assert.Equal(t, []domain.MatchedPolicy{{
		RuleID:      "PROD_DEPLOY",
		Description: storage.DefaultRules()[0].Description,
		Matched:     true,
	}}, card.MatchedPolicies)
}

func TestEvaluateAssessmentOverridesPolicy(t *testing.T) {
	assessor := &countingAssessor{reply: func(assessment.Input) assessment.Outcome {
		return assessment.Outcome{Result: domain.AssessmentResult{
			Decision:          "escalate",
			RiskLevel:         "CRITICAL",
			Reasoning:         "admin rights are sensitive",
			RecommendedAction: "get sign-off",
		}}
	}}

	card, err := newCanonicalEvaluator(assessor).Evaluate(context.Background(), "Grant admin access to the new team member")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionEscalate, card.Decision)
	assert.Equal(t, domain.RiskCritical, card.RiskLevel)
	assert.Equal(t, "admin rights are sensitive", card.Reasoning)
	assert.Equal(t, "get sign-off", card.RecommendedAction)
}

func TestEvaluateWithFallbackAdapter(t *testing.T) {
	adapter := assessment.NewAdapter(llm.EngineFunc(func(context.Context, llm.Prompt) (string, error) {
		return "not json at all", nil
	}))

	card, err := newCanonicalEvaluator(adapter).Evaluate(context.Background(), "Grant admin access to the new team member")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionHold, card.Decision)
	assert.Equal(t, domain.RiskHigh, card.RiskLevel)
	assert.Equal(t, assessment.FallbackReasoning, card.Reasoning)
	assert.Equal(t, assessment.FallbackAction, card.RecommendedAction)
}

func TestEvaluateEmptyRuleSetUsesDefaults(t *testing.T) {
	evaluator := NewEvaluator(nil, &countingAssessor{})

	card, err := evaluator.Evaluate(context.Background(), "Deploy model v2.3 to production")
	require.NoError(t, err)
	assert.Empty(t, card.MatchedPolicies)
	assert.Equal(t, domain.DecisionAct, card.Decision)
	assert.Equal(t, domain.RiskLow, card.RiskLevel)
}

func TestEvaluateNilAssessorFallsBack(t *testing.T) {
	card, err := NewEvaluator(storage.NewMemoryRuleStore(storage.DefaultRules()), nil).
		Evaluate(context.Background(), "Restart the payment service")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionHold, card.Decision)
	assert.Equal(t, domain.RiskMedium, card.RiskLevel)
	assert.Equal(t, assessment.FallbackReasoning, card.Reasoning)
}

func TestEvaluateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assessor := &countingAssessor{}
	_, err := newCanonicalEvaluator(assessor).Evaluate(ctx, "anything")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), assessor.calls.Load())
}

func TestEvaluateEmitsStageSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, err := newCanonicalEvaluator(&countingAssessor{}).Evaluate(context.Background(), "Grant admin access to the new team member")
	require.NoError(t, err)

	names := map[string]bool{}
	for _, s := range recorder.Ended() {
		names[s.Name()] = true
		for _, attr := range s.Attributes() {
			assert.NotEqual(t, "gatekeeper.request.text", string(attr.Key), "request text is redacted by default")
		}
	}
	for _, want := range []string{"gatekeeper.evaluate", "evaluate_policy", "llm_assess", "build_decision"} {
		assert.True(t, names[want], "missing span %s", want)
	}
}

func TestBuildDecisionCardDefaultSafety(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rawDecision := rapid.OneOf(
			rapid.SampledFrom([]string{"ACT", "hold", "Escalate"}),
			rapid.String(),
		).Draw(t, "decision")
		rawRisk := rapid.OneOf(
			rapid.SampledFrom([]string{"low", "MEDIUM", "High", "critical"}),
			rapid.String(),
		).Draw(t, "risk")

		ec := domain.NewEvaluationContext("request")
		ec.PolicyDecision = rapid.SampledFrom(domain.Decisions()).Draw(t, "policy_decision")
		ec.PolicyRisk = rapid.SampledFrom(domain.RiskLevels()).Draw(t, "policy_risk")
		ec.Assessment = &domain.AssessmentResult{Decision: rawDecision, RiskLevel: rawRisk, Reasoning: "r"}

		card := BuildDecisionCard(ec, fixedNow)

		require.True(t, card.Decision.IsValid())
		require.True(t, card.RiskLevel.IsValid())
		if d, ok := domain.ParseDecision(rawDecision); ok {
			require.Equal(t, d, card.Decision)
		} else {
			require.Equal(t, domain.DecisionHold, card.Decision)
		}
		if r, ok := domain.ParseRiskLevel(rawRisk); ok {
			require.Equal(t, r, card.RiskLevel)
		} else {
			require.Equal(t, domain.RiskMedium, card.RiskLevel)
		}
	})
}

func TestBuildDecisionCardWithoutAssessment(t *testing.T) {
	for decision, action := range map[domain.Decision]string{
		domain.DecisionAct:      "Proceed autonomously.",
		domain.DecisionHold:     "Ask the requester for clarification before proceeding.",
		domain.DecisionEscalate: "Obtain explicit human approval before proceeding.",
	} {
		ec := domain.NewEvaluationContext("request")
		ec.PolicyDecision = decision
		card := BuildDecisionCard(ec, fixedNow)
		assert.Equal(t, action, card.RecommendedAction)
		assert.Equal(t, "No policy rules matched; policy defaults apply.", card.Reasoning)
	}

	ec := domain.NewEvaluationContext("request")
	ec.MatchedPolicies = []domain.MatchedPolicy{{RuleID: "A", Matched: true}, {RuleID: "B", Matched: true}}
	ec.PolicyDecision = domain.DecisionEscalate
	ec.PolicyRisk = domain.RiskCritical
	card := BuildDecisionCard(ec, fixedNow)
	assert.Equal(t, "Resolved by policy rules: A, B.", card.Reasoning)

	ec.MatchedPolicies[0].RuleID = "changed"
	assert.Equal(t, "A", card.MatchedPolicies[0].RuleID, "card owns its policy list")
}
