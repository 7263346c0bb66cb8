package storage

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/polisai/gatekeeper/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DefaultRulesName identifies the embedded canonical rule set in logs and errors.
const DefaultRulesName = "embedded:rules/default.yaml"

//go:embed rules/default.yaml
var defaultRulesYAML []byte

// LoadOptions controls how a rule file is read.
type LoadOptions struct {
	// Required turns a missing file into an error instead of an empty rule set.
	Required bool
	Logger   *slog.Logger
}

type ruleDocument struct {
	Rules []ruleRecord `yaml:"rules"`
}

type ruleRecord struct {
	ID          *string   `yaml:"id"`
	Description *string   `yaml:"description"`
	Keywords    *[]string `yaml:"keywords"`
	Decision    *string   `yaml:"decision"`
	RiskLevel   *string   `yaml:"risk_level"`
}

// LoadRules reads and validates the rule document at path.
//
// A missing file yields an empty rule set and a warning unless opts.Required is set.
// An empty document, or one without a rules list, also yields an empty rule set.
func LoadRules(path string, opts LoadOptions) ([]domain.PolicyRule, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// #nosec G304 -- Rule file path is configured by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if opts.Required {
				return nil, fmt.Errorf("%w: %s", domain.ErrRulesNotFound, path)
			}
			logger.Warn("policy rule file not found, continuing with no rules", "path", path)
			return []domain.PolicyRule{}, nil
		}
		return nil, fmt.Errorf("read policy rules %s: %w", path, err)
	}

	rules, err := ParseRules(data, path)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		logger.Warn("policy rule file contains no rules", "path", path)
	}
	return rules, nil
}

// DefaultRules returns the canonical rule set compiled into the binary.
func DefaultRules() []domain.PolicyRule {
	rules, err := ParseRules(defaultRulesYAML, DefaultRulesName)
	if err != nil {
		panic(fmt.Sprintf("embedded policy rules are invalid: %v", err))
	}
	return rules
}

// ParseRules validates an in-memory rule document. name is used in error messages.
func ParseRules(data []byte, name string) ([]domain.PolicyRule, error) {
	if strings.TrimSpace(string(data)) == "" {
		return []domain.PolicyRule{}, nil
	}

	var doc ruleDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrRulesInvalid, name, err)
	}

	rules := make([]domain.PolicyRule, 0, len(doc.Rules))
	seen := make(map[string]int, len(doc.Rules))
	for i, rec := range doc.Rules {
		rule, err := rec.toDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: rule %d (%s): %v", domain.ErrRulesInvalid, name, i, rec.label(), err)
		}
		if prev, dup := seen[rule.ID]; dup {
			return nil, fmt.Errorf("%w: %s: rule %d (%s): duplicate id, first defined at rule %d",
				domain.ErrRulesInvalid, name, i, rule.ID, prev)
		}
		seen[rule.ID] = i
		rules = append(rules, rule)
	}
	return rules, nil
}

func (r ruleRecord) label() string {
	if r.ID == nil || strings.TrimSpace(*r.ID) == "" {
		return "?"
	}
	return strings.TrimSpace(*r.ID)
}

func (r ruleRecord) toDomain() (domain.PolicyRule, error) {
	switch {
	case r.ID == nil:
		return domain.PolicyRule{}, errors.New(`missing field "id"`)
	case r.Description == nil:
		return domain.PolicyRule{}, errors.New(`missing field "description"`)
	case r.Keywords == nil:
		return domain.PolicyRule{}, errors.New(`missing field "keywords"`)
	case r.Decision == nil:
		return domain.PolicyRule{}, errors.New(`missing field "decision"`)
	case r.RiskLevel == nil:
		return domain.PolicyRule{}, errors.New(`missing field "risk_level"`)
	}

	id := strings.TrimSpace(*r.ID)
	if id == "" {
		return domain.PolicyRule{}, errors.New("id must not be blank")
	}

	if len(*r.Keywords) == 0 {
		return domain.PolicyRule{}, errors.New("keywords must not be empty")
	}
	keywords := make([]string, len(*r.Keywords))
	for i, kw := range *r.Keywords {
		if strings.TrimSpace(kw) == "" {
			return domain.PolicyRule{}, fmt.Errorf("keyword %d is blank", i)
		}
		keywords[i] = kw
	}

	decision, ok := domain.ParseDecision(*r.Decision)
	if !ok {
		return domain.PolicyRule{}, fmt.Errorf("invalid decision %q (must be ACT, HOLD or ESCALATE)", *r.Decision)
	}
	risk, ok := domain.ParseRiskLevel(*r.RiskLevel)
	if !ok {
		return domain.PolicyRule{}, fmt.Errorf("invalid risk_level %q (must be low, medium, high or critical)", *r.RiskLevel)
	}

	return domain.PolicyRule{
		ID:          id,
		Description: *r.Description,
		Keywords:    keywords,
		Decision:    decision,
		RiskLevel:   risk,
	}, nil
}
