package assessment

import (
	"strings"

	"github.com/polisai/gatekeeper/pkg/domain"
	"github.com/polisai/gatekeeper/pkg/llm"
)

const noMatchedPolicies = "(no policy rules matched)"

const systemTemplate = `You are an AI governance evaluator. Your role is to assess incoming requests
and determine the appropriate level of autonomy.

You must return a JSON object with these fields:
- decision: one of "ACT", "HOLD", or "ESCALATE"
- risk_level: one of "low", "medium", "high", or "critical"
- reasoning: a concise explanation of your assessment
- recommended_action: a short suggested next step

Decision guidelines:
- ACT: The request is safe, low-risk, and can proceed without human intervention.
- HOLD: The request is ambiguous or medium-risk. Ask for clarification before proceeding.
- ESCALATE: The request is high-risk or irreversible. Require explicit human approval.

Policy rules that matched this request:
{matched_policies}

Evaluate the following request strictly. When in doubt, choose the more
cautious option. Never default to ACT for ambiguous requests.`

const userTemplate = `Request: {request}

Provide your governance evaluation as JSON.`

// RenderPolicySummary lists matched rules one per line as "- [rule_id] description".
func RenderPolicySummary(matched []domain.MatchedPolicy) string {
	if len(matched) == 0 {
		return noMatchedPolicies
	}

	lines := make([]string, len(matched))
	for i, m := range matched {
		lines[i] = "- [" + m.RuleID + "] " + m.Description
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt renders the governance prompt for a request and its policy summary.
func BuildPrompt(request, summary string) llm.Prompt {
	// Single pass replacement so placeholder text inside the inputs is left alone.
	return llm.Prompt{
		System: strings.NewReplacer("{matched_policies}", summary).Replace(systemTemplate),
		User:   strings.NewReplacer("{request}", request).Replace(userTemplate),
	}
}
