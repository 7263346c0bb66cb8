package gatekeeper

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/gatekeeper/pkg/assessment"
	"github.com/polisai/gatekeeper/pkg/config"
	"github.com/polisai/gatekeeper/pkg/domain"
	"github.com/polisai/gatekeeper/pkg/llm"
	"github.com/polisai/gatekeeper/pkg/llm/llmtest"
)

const escalateReply = `{"decision":"ESCALATE","risk_level":"high","reasoning":"admin grants need review","recommended_action":"ask the security team"}`

func openAIConfig(mock *llmtest.MockServer) *config.Config {
	cfg := config.Default()
	cfg.Reasoning.APIKey = "sk-test"
	cfg.Reasoning.BaseURL = mock.URL()
	cfg.Reasoning.MaxRetries = 0
	cfg.Reasoning.Timeout = 5 * time.Second
	return cfg
}

func writeRules(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEvaluateWithReasoningEngine(t *testing.T) {
	mock := llmtest.NewMockServer(t, escalateReply)

	card, err := Evaluate(context.Background(), "Grant admin access to the new team member", openAIConfig(mock))
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionEscalate, card.Decision)
	assert.Equal(t, domain.RiskHigh, card.RiskLevel)
	assert.Equal(t, "admin grants need review", card.Reasoning)
	assert.Equal(t, "ask the security team", card.RecommendedAction)
	require.Len(t, card.MatchedPolicies, 1)
	assert.Equal(t, "ACCESS_CHANGE", card.MatchedPolicies[0].RuleID)

	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, "Bearer sk-test", mock.LastAuthorization())
	assert.Equal(t, "gpt-4o", mock.LastBody()["model"])
}

func TestEvaluateFencedReply(t *testing.T) {
	mock := llmtest.NewMockServer(t, "```json\n"+escalateReply+"\n```")

	card, err := Evaluate(context.Background(), "Grant admin access to the new team member", openAIConfig(mock))
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionEscalate, card.Decision)
	assert.Equal(t, "admin grants need review", card.Reasoning)
}

func TestEvaluateFastPathSkipsEngine(t *testing.T) {
	mock := llmtest.NewMockServer(t, escalateReply)

	card, err := Evaluate(context.Background(), "Deploy model v2.3 to production", openAIConfig(mock))
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionEscalate, card.Decision)
	assert.Equal(t, domain.RiskCritical, card.RiskLevel)
	assert.Equal(t, 0, mock.Calls())
}

func TestEvaluateEngineFailureFallsBack(t *testing.T) {
	mock := llmtest.NewMockServer(t, "not json at all")
	mock.Script(llmtest.Reply{Status: 500})

	cfg := openAIConfig(mock)
	for _, tc := range []string{"server error", "unparseable"} {
		t.Run(tc, func(t *testing.T) {
			card, err := Evaluate(context.Background(), "Grant admin access to the new team member", cfg)
			require.NoError(t, err)
			assert.Equal(t, domain.DecisionHold, card.Decision)
			assert.Equal(t, domain.RiskHigh, card.RiskLevel)
			assert.Equal(t, assessment.FallbackReasoning, card.Reasoning)
			assert.Equal(t, assessment.FallbackAction, card.RecommendedAction)
		})
	}
	assert.Equal(t, 2, mock.Calls())
}

func TestEvaluateProviderNone(t *testing.T) {
	cfg := config.Default()
	cfg.Reasoning.Provider = config.ProviderNone

	card, err := Evaluate(context.Background(), "Summarize the quarterly report", cfg)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAct, card.Decision)
	assert.Equal(t, domain.RiskLow, card.RiskLevel)
	assert.Empty(t, card.MatchedPolicies)
	assert.Equal(t, assessment.FallbackReasoning, card.Reasoning)
}

func TestEvaluateNilConfigReadsEnvironment(t *testing.T) {
	t.Setenv("GATEKEEPER_PROVIDER", "none")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("POLICY_PATH", "")
	t.Setenv("LOG_LEVEL", "")

	card, err := Evaluate(context.Background(), "List all running services and their status", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAct, card.Decision)
	assert.Empty(t, card.MatchedPolicies)
}

func TestEvaluateConfigurationErrors(t *testing.T) {
	dir := t.TempDir()
	invalidRules := writeRules(t, dir, "rules:\n  - id: BROKEN\n    keywords: [x]\n")

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{
			name:    "invalid config",
			mutate:  func(c *config.Config) { c.Reasoning.Provider = "mystery" },
			wantErr: domain.ErrConfigInvalid,
		},
		{
			name: "required rule file missing",
			mutate: func(c *config.Config) {
				c.Reasoning.Provider = config.ProviderNone
				c.Policy = config.PolicyConfig{Path: filepath.Join(dir, "absent.yaml"), Required: true}
			},
			wantErr: domain.ErrRulesNotFound,
		},
		{
			name: "invalid rule document",
			mutate: func(c *config.Config) {
				c.Reasoning.Provider = config.ProviderNone
				c.Policy.Path = invalidRules
			},
			wantErr: domain.ErrRulesInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			_, err := Evaluate(context.Background(), "anything", cfg)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEvaluateWithoutAPIKey(t *testing.T) {
	cfg := config.Default()
	require.Empty(t, cfg.Reasoning.APIKey)

	t.Run("fast path", func(t *testing.T) {
		card, err := Evaluate(context.Background(), "Deploy model v2.3 to production", cfg)
		require.NoError(t, err)
		assert.Equal(t, domain.DecisionEscalate, card.Decision)
		assert.Equal(t, domain.RiskCritical, card.RiskLevel)
	})

	t.Run("needs assessment", func(t *testing.T) {
		card, err := Evaluate(context.Background(), "Grant admin access to the new team member", cfg)
		require.NoError(t, err)
		assert.Equal(t, domain.DecisionHold, card.Decision)
		assert.Equal(t, assessment.FallbackReasoning, card.Reasoning)
	})
}

func TestNewEngineWithoutAPIKey(t *testing.T) {
	engine, err := NewEngine(config.Default().Reasoning, nil)
	require.NoError(t, err)

	_, err = engine.Complete(context.Background(), llm.Prompt{User: "anything"})
	assert.ErrorIs(t, err, domain.ErrMissingAPIKey)
	assert.ErrorIs(t, err, domain.ErrEngineDisabled)
}

func TestEvaluateOptionalRuleFileMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Reasoning.Provider = config.ProviderNone
	cfg.Policy.Path = filepath.Join(t.TempDir(), "absent.yaml")

	card, err := Evaluate(context.Background(), "Deploy model v2.3 to production", cfg)
	require.NoError(t, err)
	assert.Empty(t, card.MatchedPolicies)
	assert.Equal(t, domain.DecisionAct, card.Decision)
}

func TestNewEvaluatorWatchesRuleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, `
rules:
  - id: ONE
    description: first
    keywords: [alpha]
    decision: HOLD
    risk_level: medium
`)

	cfg := config.Default()
	cfg.Reasoning.Provider = config.ProviderNone
	cfg.Policy = config.PolicyConfig{Path: path, Required: true, Watch: true}

	reloaded := make(chan int, 8)
	e, err := NewEvaluator(cfg, nil, WithReloadHook(func(n int, err error) {
		if err == nil {
			reloaded <- n
		}
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.Len(t, e.Rules(), 1)

	writeRules(t, dir, `
rules:
  - id: ONE
    description: first
    keywords: [alpha]
    decision: HOLD
    risk_level: medium
  - id: TWO
    description: second
    keywords: [beta]
    decision: ESCALATE
    risk_level: high
`)

	require.Eventually(t, func() bool { return len(e.Rules()) == 2 }, 5*time.Second, 20*time.Millisecond)

	card, err := e.Evaluate(context.Background(), "run beta")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionEscalate, card.Decision)
	assert.Equal(t, domain.RiskHigh, card.RiskLevel)
}

func TestFormatOutput(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	card := domain.DecisionCard{
		Request:           "Grant admin access",
		Decision:          domain.DecisionHold,
		RiskLevel:         domain.RiskHigh,
		Reasoning:         "needs review",
		MatchedPolicies:   []domain.MatchedPolicy{{RuleID: "ACCESS_CHANGE", Description: "access", Matched: true}},
		RecommendedAction: "ask",
		Timestamp:         time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	human, err := FormatOutput(card, false)
	require.NoError(t, err)
	assert.Equal(t, card.HumanReadable(), human)

	out, err := FormatOutput(card, true)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "HOLD", decoded["decision"])
	assert.Equal(t, "high", decoded["risk_level"])
	assert.Equal(t, "2025-01-02T03:04:05Z", decoded["timestamp"])
	assert.Contains(t, out, "\n  \"request\"")
}

func TestColorDecision(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = prev })

	assert.Contains(t, colorDecision(domain.DecisionEscalate), "ESCALATE")
	assert.Contains(t, colorDecision(domain.DecisionEscalate), "\x1b[")
	assert.Equal(t, "WHATEVER", colorDecision(domain.Decision("WHATEVER")))
}
