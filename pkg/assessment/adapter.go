package assessment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/polisai/gatekeeper/internal/governance"
	"github.com/polisai/gatekeeper/pkg/domain"
	"github.com/polisai/gatekeeper/pkg/llm"
)

const (
	// FallbackReasoning explains a fallback assessment.
	FallbackReasoning = "Reasoning engine gave no usable answer. Falling back to policy-based decision."
	// FallbackAction is the next step recommended by a fallback assessment.
	FallbackAction = "Review the request manually."

	noReasoning = "No reasoning provided."
)

// FallbackCause classifies why an assessment fell back to the policy resolution.
type FallbackCause string

// Fallback causes.
const (
	CauseNone      FallbackCause = ""
	CauseDisabled  FallbackCause = "disabled"
	CauseTimeout   FallbackCause = "timeout"
	CauseTransport FallbackCause = "transport"
	CauseParse     FallbackCause = "parse"
)

// Input carries everything the adapter needs to assess one request.
type Input struct {
	Request         string
	MatchedPolicies []domain.MatchedPolicy
	PolicyDecision  domain.Decision
	PolicyRisk      domain.RiskLevel
}

// Outcome is an assessment with the reason it fell back, if it did.
type Outcome struct {
	Result domain.AssessmentResult
	Cause  FallbackCause
}

// Adapter invokes a reasoning engine and turns its output into an AssessmentResult.
type Adapter struct {
	engine   llm.Engine
	timeouts *governance.TimeoutManager
	logger   *slog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout bounds each engine call. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeouts = governance.NewTimeoutManager(governance.TimeoutConfig{RequestTimeout: d})
	}
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdapter creates an adapter over engine. A nil engine behaves as llm.Disabled.
func NewAdapter(engine llm.Engine, opts ...Option) *Adapter {
	if engine == nil {
		engine = llm.Disabled{}
	}
	a := &Adapter{
		engine:   engine,
		timeouts: governance.NewTimeoutManager(governance.DefaultTimeoutConfig()),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fallback is the assessment used whenever the engine cannot provide one.
func Fallback(policyDecision domain.Decision, policyRisk domain.RiskLevel) domain.AssessmentResult {
	return domain.AssessmentResult{
		Decision:          string(policyDecision),
		RiskLevel:         string(policyRisk),
		Reasoning:         FallbackReasoning,
		RecommendedAction: FallbackAction,
		Fallback:          true,
	}
}

// Assess returns the engine's assessment of in, or the fallback. It never fails.
func (a *Adapter) Assess(ctx context.Context, in Input) domain.AssessmentResult {
	return a.AssessOutcome(ctx, in).Result
}

// AssessOutcome is Assess with the fallback cause exposed for telemetry.
func (a *Adapter) AssessOutcome(ctx context.Context, in Input) Outcome {
	prompt := BuildPrompt(in.Request, RenderPolicySummary(in.MatchedPolicies))

	callCtx, cancel := a.timeouts.WithRequestTimeout(ctx)
	defer cancel()

	raw, err := a.engine.Complete(callCtx, prompt)
	if err != nil {
		cause := CauseTransport
		switch {
		case errors.Is(err, domain.ErrEngineDisabled):
			cause = CauseDisabled
		case governance.TimedOut(callCtx, err):
			cause = CauseTimeout
		}
		return a.fallback(in, cause, err)
	}

	resp, err := ParseResponse(raw)
	if err != nil {
		return a.fallback(in, CauseParse, err)
	}

	return Outcome{Result: resp.Result(in.PolicyDecision, in.PolicyRisk)}
}

func (a *Adapter) fallback(in Input, cause FallbackCause, err error) Outcome {
	a.logger.Warn("reasoning engine unavailable, falling back to policy decision",
		"cause", string(cause),
		"policy_decision", string(in.PolicyDecision),
		"policy_risk", string(in.PolicyRisk),
		"error", err,
	)
	return Outcome{Result: Fallback(in.PolicyDecision, in.PolicyRisk), Cause: cause}
}
