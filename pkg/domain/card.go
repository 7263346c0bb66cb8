package domain

import (
	"fmt"
	"strings"
	"time"
)

const cardRuleWidth = 60

// DecisionCard is the final, immutable verdict returned to the caller.
type DecisionCard struct {
	Request           string          `json:"request"`
	Decision          Decision        `json:"decision"`
	RiskLevel         RiskLevel       `json:"risk_level"`
	Reasoning         string          `json:"reasoning"`
	MatchedPolicies   []MatchedPolicy `json:"matched_policies"`
	RecommendedAction string          `json:"recommended_action"`
	Timestamp         time.Time       `json:"timestamp"`
}

// HumanReadable renders the card as a fixed-width text report.
func (c DecisionCard) HumanReadable() string {
	return c.Render(func(d Decision) string { return string(d) })
}

// Render is HumanReadable with a caller-supplied decorator for the decision value,
// used by terminals that highlight the verdict.
func (c DecisionCard) Render(decorate func(Decision) string) string {
	rule := strings.Repeat("=", cardRuleWidth)

	var policies strings.Builder
	for i, p := range c.MatchedPolicies {
		if i > 0 {
			policies.WriteString("\n")
		}
		fmt.Fprintf(&policies, "    - [%s] %s", p.RuleID, p.Description)
	}
	if policies.Len() == 0 {
		policies.WriteString("    (none)")
	}

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("  DECISION CARD\n")
	b.WriteString(rule + "\n")
	writeField(&b, "Request:", c.Request)
	writeField(&b, "Decision:", decorate(c.Decision))
	writeField(&b, "Risk Level:", string(c.RiskLevel))
	writeField(&b, "Reasoning:", c.Reasoning)
	b.WriteString("  Policies:\n")
	b.WriteString(policies.String() + "\n")
	writeField(&b, "Action:", c.RecommendedAction)
	writeField(&b, "Timestamp:", c.Timestamp.UTC().Format(time.RFC3339Nano))
	b.WriteString(rule)
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "  %-14s%s\n", label, value)
}
