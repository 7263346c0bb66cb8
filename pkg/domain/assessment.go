package domain

// AssessmentResult is the secondary assessment of a request.
//
// Decision and RiskLevel are kept as raw strings: they come from an untrusted
// reasoning engine and only become enum values when a DecisionCard is assembled.
type AssessmentResult struct {
	Decision          string `json:"decision"`
	RiskLevel         string `json:"risk_level"`
	Reasoning         string `json:"reasoning"`
	RecommendedAction string `json:"recommended_action"`
	// Fallback is set when the result was synthesised from the policy resolution.
	Fallback bool `json:"-"`
}
