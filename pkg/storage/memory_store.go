package storage

import "github.com/polisai/gatekeeper/pkg/domain"

// RuleSource exposes the current immutable rule snapshot.
// Callers must treat the returned slice as read-only.
type RuleSource interface {
	Rules() []domain.PolicyRule
}

// MemoryRuleStore serves a fixed rule snapshot.
type MemoryRuleStore struct {
	rules []domain.PolicyRule
}

// NewMemoryRuleStore creates a store over a private copy of rules.
func NewMemoryRuleStore(rules []domain.PolicyRule) *MemoryRuleStore {
	return &MemoryRuleStore{rules: cloneRules(rules)}
}

// Rules returns the snapshot.
func (s *MemoryRuleStore) Rules() []domain.PolicyRule {
	return s.rules
}

func cloneRules(in []domain.PolicyRule) []domain.PolicyRule {
	out := make([]domain.PolicyRule, len(in))
	for i, r := range in {
		r.Keywords = append([]string(nil), r.Keywords...)
		out[i] = r
	}
	return out
}
