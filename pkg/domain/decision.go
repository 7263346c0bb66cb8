package domain

import "strings"

// Decision is the governance verdict for a request.
type Decision string

const (
	// DecisionAct lets the request proceed without human intervention.
	DecisionAct Decision = "ACT"
	// DecisionHold pauses the request until it is clarified.
	DecisionHold Decision = "HOLD"
	// DecisionEscalate requires explicit human approval.
	DecisionEscalate Decision = "ESCALATE"
)

// RiskLevel classifies the severity assessed for a request.
type RiskLevel string

const (
	// RiskLow marks safe, read-only or reversible work.
	RiskLow RiskLevel = "low"
	// RiskMedium marks ambiguous or moderately impactful work.
	RiskMedium RiskLevel = "medium"
	// RiskHigh marks impactful work that is hard to undo.
	RiskHigh RiskLevel = "high"
	// RiskCritical marks irreversible or production-impacting work.
	RiskCritical RiskLevel = "critical"
)

var (
	decisionRanks = map[Decision]int{
		DecisionAct:      0,
		DecisionHold:     1,
		DecisionEscalate: 2,
	}

	riskRanks = map[RiskLevel]int{
		RiskLow:      0,
		RiskMedium:   1,
		RiskHigh:     2,
		RiskCritical: 3,
	}
)

// Decisions returns every decision in ascending rank order.
func Decisions() []Decision {
	return []Decision{DecisionAct, DecisionHold, DecisionEscalate}
}

// RiskLevels returns every risk level in ascending rank order.
func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
}

// ParseDecision converts untrusted text into a Decision. The comparison is
// case-insensitive; ok is false when the value is not a member of the enum.
func ParseDecision(value string) (Decision, bool) {
	d := Decision(strings.ToUpper(strings.TrimSpace(value)))
	return d, d.IsValid()
}

// IsValid reports whether the decision is recognised.
func (d Decision) IsValid() bool {
	_, ok := decisionRanks[d]
	return ok
}

// Rank orders decisions ACT < HOLD < ESCALATE. Unknown values rank below ACT.
func (d Decision) Rank() int {
	if rank, ok := decisionRanks[d]; ok {
		return rank
	}
	return -1
}

// ParseRiskLevel converts untrusted text into a RiskLevel. The comparison is
// case-insensitive; ok is false when the value is not a member of the enum.
func ParseRiskLevel(value string) (RiskLevel, bool) {
	r := RiskLevel(strings.ToLower(strings.TrimSpace(value)))
	return r, r.IsValid()
}

// IsValid reports whether the risk level is recognised.
func (r RiskLevel) IsValid() bool {
	_, ok := riskRanks[r]
	return ok
}

// Rank orders risk levels low < medium < high < critical. Unknown values rank below low.
func (r RiskLevel) Rank() int {
	if rank, ok := riskRanks[r]; ok {
		return rank
	}
	return -1
}
