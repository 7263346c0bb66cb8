package domain

// PolicyRule is a declarative keyword-triggered rule mapping to a decision and risk pair.
// Rules are immutable once loaded; callers must not modify Keywords.
type PolicyRule struct {
	ID          string    `json:"id" yaml:"id"`
	Description string    `json:"description" yaml:"description"`
	Keywords    []string  `json:"keywords" yaml:"keywords"`
	Decision    Decision  `json:"decision" yaml:"decision"`
	RiskLevel   RiskLevel `json:"risk_level" yaml:"risk_level"`
}

// MatchedPolicy records a rule that matched the request text.
type MatchedPolicy struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Matched     bool   `json:"matched"`
}

// NewMatchedPolicy builds the match record for a rule.
func NewMatchedPolicy(rule PolicyRule) MatchedPolicy {
	return MatchedPolicy{RuleID: rule.ID, Description: rule.Description, Matched: true}
}

// CloneMatches copies a match list so the copy can outlive the evaluation that built it.
func CloneMatches(in []MatchedPolicy) []MatchedPolicy {
	if len(in) == 0 {
		return []MatchedPolicy{}
	}
	return append([]MatchedPolicy(nil), in...)
}
