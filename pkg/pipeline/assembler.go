package pipeline

import (
	"strings"
	"time"

	"github.com/polisai/gatekeeper/pkg/domain"
)

// Conservative substitutes for values the assessment got wrong.
const (
	SafeDecision  = domain.DecisionHold
	SafeRiskLevel = domain.RiskMedium

	noMatchesReasoning = "No policy rules matched; policy defaults apply."
)

var policyActions = map[domain.Decision]string{
	domain.DecisionAct:      "Proceed autonomously.",
	domain.DecisionHold:     "Ask the requester for clarification before proceeding.",
	domain.DecisionEscalate: "Obtain explicit human approval before proceeding.",
}

// BuildDecisionCard assembles the final card from ec.
//
// The assessment wins when present, otherwise the policy resolution is used and the
// reasoning and action are derived from it. Decision and risk values outside their
// enums become HOLD and medium. The card is stamped with now in UTC.
func BuildDecisionCard(ec *domain.EvaluationContext, now time.Time) domain.DecisionCard {
	rawDecision := string(ec.PolicyDecision)
	rawRisk := string(ec.PolicyRisk)
	var reasoning, action string

	if a := ec.Assessment; a != nil {
		rawDecision, rawRisk = a.Decision, a.RiskLevel
		reasoning, action = a.Reasoning, a.RecommendedAction
	}

	decision, ok := domain.ParseDecision(rawDecision)
	if !ok {
		decision = SafeDecision
	}
	risk, ok := domain.ParseRiskLevel(rawRisk)
	if !ok {
		risk = SafeRiskLevel
	}

	if ec.Assessment == nil {
		reasoning = policyReasoning(ec.MatchedPolicies)
		action = policyActions[decision]
	}

	return domain.DecisionCard{
		Request:           ec.Request,
		Decision:          decision,
		RiskLevel:         risk,
		Reasoning:         reasoning,
		MatchedPolicies:   domain.CloneMatches(ec.MatchedPolicies),
		RecommendedAction: action,
		Timestamp:         now.UTC(),
	}
}

func policyReasoning(matched []domain.MatchedPolicy) string {
	if len(matched) == 0 {
		return noMatchesReasoning
	}
	ids := make([]string, len(matched))
	for i, m := range matched {
		ids[i] = m.RuleID
	}
	return "Resolved by policy rules: " + strings.Join(ids, ", ") + "."
}
