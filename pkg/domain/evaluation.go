package domain

// EvaluationContext accumulates the state of a single pipeline run. It is owned by
// exactly one evaluation and must never be shared or reused across requests.
type EvaluationContext struct {
	Request         string
	MatchedPolicies []MatchedPolicy
	PolicyDecision  Decision
	PolicyRisk      RiskLevel
	// Assessment is nil when the secondary assessment was skipped.
	Assessment *AssessmentResult
	Card       *DecisionCard
}

// NewEvaluationContext starts a run for the request.
func NewEvaluationContext(request string) *EvaluationContext {
	return &EvaluationContext{
		Request:         request,
		MatchedPolicies: []MatchedPolicy{},
		PolicyDecision:  DecisionAct,
		PolicyRisk:      RiskLow,
	}
}
