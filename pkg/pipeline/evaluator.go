package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/gatekeeper/pkg/assessment"
	"github.com/polisai/gatekeeper/pkg/domain"
	"github.com/polisai/gatekeeper/pkg/policy"
	"github.com/polisai/gatekeeper/pkg/storage"
	"github.com/polisai/gatekeeper/pkg/telemetry"
)

// Assessor provides the secondary assessment of a request.
type Assessor interface {
	AssessOutcome(ctx context.Context, in assessment.Input) assessment.Outcome
}

// AssessorFunc adapts a function to the Assessor interface.
type AssessorFunc func(ctx context.Context, in assessment.Input) assessment.Outcome

// AssessOutcome calls f.
func (f AssessorFunc) AssessOutcome(ctx context.Context, in assessment.Input) assessment.Outcome {
	return f(ctx, in)
}

// Evaluator runs the decision pipeline. It holds no per-request state and is safe
// for concurrent use.
type Evaluator struct {
	rules      storage.RuleSource
	assessor   Assessor
	defaults   policy.Resolution
	now        func() time.Time
	logger     *slog.Logger
	redactions map[string]string
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger for stage logs.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the clock used to stamp decision cards.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDefaults overrides the resolution used when no rule matches.
func WithDefaults(defaults policy.Resolution) Option {
	return func(e *Evaluator) {
		e.defaults = defaults
	}
}

// WithRedactions sets span attribute redaction strategies, see telemetry.RedactAttributes.
func WithRedactions(strategies map[string]string) Option {
	return func(e *Evaluator) {
		e.redactions = strategies
	}
}

// NewEvaluator creates an evaluator. A nil rule source means no rules; a nil
// assessor means every assessment falls back to the policy resolution.
func NewEvaluator(rules storage.RuleSource, assessor Assessor, opts ...Option) *Evaluator {
	if rules == nil {
		rules = storage.NewMemoryRuleStore(nil)
	}
	if assessor == nil {
		assessor = assessment.NewAdapter(nil)
	}

	e := &Evaluator{
		rules:    rules,
		assessor: assessor,
		defaults: policy.DefaultResolution(),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate produces the decision card for request. It fails only when ctx is
// already done before evaluation starts.
func (e *Evaluator) Evaluate(ctx context.Context, request string) (domain.DecisionCard, error) {
	if err := ctx.Err(); err != nil {
		return domain.DecisionCard{}, fmt.Errorf("evaluation not started: %w", err)
	}

	start := time.Now()
	evaluationID := uuid.NewString()
	logger := e.logger.With("evaluation_id", evaluationID)

	ctx, span := telemetry.Tracer().Start(ctx, "gatekeeper.evaluate",
		trace.WithAttributes(telemetry.RedactAttributes([]attribute.KeyValue{
			attribute.String("gatekeeper.evaluation.id", evaluationID),
			attribute.String(telemetry.AttrRequestText, request),
			attribute.Int("gatekeeper.request.length", len(request)),
		}, e.redactions)...),
	)
	defer span.End()

	ec := domain.NewEvaluationContext(request)

	// The snapshot is taken once so a concurrent reload cannot change rules mid-run.
	e.evaluatePolicy(ctx, logger, ec, e.rules.Rules())

	next := Route(ec.PolicyDecision, ec.PolicyRisk)
	path := "assessed"
	var cause assessment.FallbackCause
	if next == NodeAssess {
		cause = e.assess(ctx, logger, ec)
	} else {
		path = "fast_path"
		logger.Info("reasoning engine skipped", "node", string(NodeBuildDecision), "reason", "policy escalation at critical risk")
	}

	card := e.buildDecision(ctx, logger, ec)
	telemetry.RecordDecisionCard(span, card)

	ids := make([]string, len(card.MatchedPolicies))
	for i, m := range card.MatchedPolicies {
		ids[i] = m.RuleID
	}
	telemetry.RecordEvaluation(ctx, telemetry.EvaluationMetrics{
		Decision:      string(card.Decision),
		RiskLevel:     string(card.RiskLevel),
		Path:          path,
		FallbackCause: string(cause),
		MatchedRules:  ids,
		Duration:      time.Since(start),
	})

	return card, nil
}

func (e *Evaluator) evaluatePolicy(ctx context.Context, logger *slog.Logger, ec *domain.EvaluationContext, rules []domain.PolicyRule) {
	_, span := telemetry.Tracer().Start(ctx, string(NodeEvaluatePolicy))
	defer span.End()

	result := policy.Evaluate(ec.Request, rules, e.defaults)
	ec.MatchedPolicies = result.Matched
	ec.PolicyDecision = result.Decision
	ec.PolicyRisk = result.RiskLevel

	telemetry.RecordPolicyResolution(span, result.Decision, result.RiskLevel, result.Matched)
	logger.Info("policy evaluation complete",
		"node", string(NodeEvaluatePolicy),
		"rules", len(rules),
		"matched", len(result.Matched),
		"decision", string(result.Decision),
		"risk_level", string(result.RiskLevel),
	)
}

func (e *Evaluator) assess(ctx context.Context, logger *slog.Logger, ec *domain.EvaluationContext) assessment.FallbackCause {
	ctx, span := telemetry.Tracer().Start(ctx, string(NodeAssess))
	defer span.End()

	outcome := e.assessor.AssessOutcome(ctx, assessment.Input{
		Request:         ec.Request,
		MatchedPolicies: ec.MatchedPolicies,
		PolicyDecision:  ec.PolicyDecision,
		PolicyRisk:      ec.PolicyRisk,
	})
	result := outcome.Result
	ec.Assessment = &result

	telemetry.RecordAssessment(span, result, string(outcome.Cause))
	logger.Info("assessment complete",
		"node", string(NodeAssess),
		"decision", result.Decision,
		"risk_level", result.RiskLevel,
		"fallback", result.Fallback,
	)
	return outcome.Cause
}

func (e *Evaluator) buildDecision(ctx context.Context, logger *slog.Logger, ec *domain.EvaluationContext) domain.DecisionCard {
	_, span := telemetry.Tracer().Start(ctx, string(NodeBuildDecision))
	defer span.End()

	card := BuildDecisionCard(ec, e.now())
	ec.Card = &card

	telemetry.RecordDecisionCard(span, card)
	logger.Info("decision card built",
		"node", string(NodeBuildDecision),
		"decision", string(card.Decision),
		"risk_level", string(card.RiskLevel),
	)
	return card
}
