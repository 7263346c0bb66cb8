package gatekeeper

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"

	"github.com/polisai/gatekeeper/pkg/domain"
)

var decisionColors = map[domain.Decision]*color.Color{
	domain.DecisionAct:      color.New(color.FgGreen, color.Bold),
	domain.DecisionHold:     color.New(color.FgYellow, color.Bold),
	domain.DecisionEscalate: color.New(color.FgRed, color.Bold),
}

// FormatOutput renders card as indented JSON or as the human-readable report.
// The report highlights the decision when color output is enabled.
func FormatOutput(card domain.DecisionCard, asJSON bool) (string, error) {
	if !asJSON {
		return card.Render(colorDecision), nil
	}
	data, err := json.MarshalIndent(card, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode decision card: %w", err)
	}
	return string(data), nil
}

func colorDecision(d domain.Decision) string {
	if c, ok := decisionColors[d]; ok {
		return c.Sprint(string(d))
	}
	return string(d)
}
