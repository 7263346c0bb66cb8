package pipeline

import "github.com/polisai/gatekeeper/pkg/domain"

// Node names a pipeline stage.
type Node string

const (
	// NodeEvaluatePolicy is the entry stage.
	NodeEvaluatePolicy Node = "evaluate_policy"
	// NodeAssess consults the reasoning engine.
	NodeAssess Node = "llm_assess"
	// NodeBuildDecision is the terminal stage.
	NodeBuildDecision Node = "build_decision"
)

// Route picks the stage after policy evaluation. ESCALATE at critical risk is
// final and goes straight to the decision card; everything else is assessed.
func Route(decision domain.Decision, risk domain.RiskLevel) Node {
	if decision == domain.DecisionEscalate && risk == domain.RiskCritical {
		return NodeBuildDecision
	}
	return NodeAssess
}
