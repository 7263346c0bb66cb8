package policy

import (
	"strings"

	"github.com/polisai/gatekeeper/pkg/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Resolution is a decision and risk level pair.
type Resolution struct {
	Decision  domain.Decision
	RiskLevel domain.RiskLevel
}

// Result is the outcome of evaluating a request against a rule set.
type Result struct {
	Matched   []domain.MatchedPolicy
	Decision  domain.Decision
	RiskLevel domain.RiskLevel
}

// DefaultResolution is the starting point of every evaluation: ACT at low risk.
func DefaultResolution() Resolution {
	return Resolution{Decision: domain.DecisionAct, RiskLevel: domain.RiskLow}
}

// Resolution returns the resolved decision and risk level of the result.
func (r Result) Resolution() Resolution {
	return Resolution{Decision: r.Decision, RiskLevel: r.RiskLevel}
}

// Evaluate matches text against rules and resolves the strongest decision and risk.
// It is pure and safe for concurrent use.
func Evaluate(text string, rules []domain.PolicyRule, defaults Resolution) Result {
	// A Caser carries state, so each evaluation gets its own.
	folder := cases.Fold()
	folded := normalize(folder, text)

	result := Result{
		Matched:   []domain.MatchedPolicy{},
		Decision:  defaults.Decision,
		RiskLevel: defaults.RiskLevel,
	}

	for _, rule := range rules {
		if !matchesAny(folder, folded, rule.Keywords) {
			continue
		}
		result.Matched = append(result.Matched, domain.NewMatchedPolicy(rule))
		if rule.Decision.Rank() > result.Decision.Rank() {
			result.Decision = rule.Decision
		}
		if rule.RiskLevel.Rank() > result.RiskLevel.Rank() {
			result.RiskLevel = rule.RiskLevel
		}
	}

	return result
}

// Matches reports whether keyword occurs in text, ignoring case and Unicode
// composition differences. A blank keyword never matches.
func Matches(text, keyword string) bool {
	folder := cases.Fold()
	return matchesAny(folder, normalize(folder, text), []string{keyword})
}

func normalize(folder cases.Caser, s string) string {
	return norm.NFC.String(folder.String(s))
}

func matchesAny(folder cases.Caser, foldedText string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		if strings.Contains(foldedText, normalize(folder, kw)) {
			return true
		}
	}
	return false
}
