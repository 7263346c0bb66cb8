// Package gatekeeper wires configuration, rules and the reasoning engine into a
// ready-to-use evaluator.
package gatekeeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/polisai/gatekeeper/internal/governance"
	"github.com/polisai/gatekeeper/pkg/assessment"
	"github.com/polisai/gatekeeper/pkg/config"
	"github.com/polisai/gatekeeper/pkg/domain"
	"github.com/polisai/gatekeeper/pkg/llm"
	"github.com/polisai/gatekeeper/pkg/pipeline"
	"github.com/polisai/gatekeeper/pkg/storage"
)

// Evaluator is a configured pipeline together with the rule source it reads.
type Evaluator struct {
	*pipeline.Evaluator

	rules storage.RuleSource
	store *storage.FileRuleStore
}

// Option customises NewEvaluator.
type Option func(*options)

type options struct {
	engine   llm.Engine
	pipeline []pipeline.Option
	onReload func(int, error)
}

// WithEngine replaces the engine built from configuration.
func WithEngine(engine llm.Engine) Option {
	return func(o *options) { o.engine = engine }
}

// WithPipelineOptions passes options through to the pipeline evaluator.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(o *options) { o.pipeline = append(o.pipeline, opts...) }
}

// WithReloadHook is called after every rule file reload when watching is enabled.
func WithReloadHook(fn func(rules int, err error)) Option {
	return func(o *options) { o.onReload = fn }
}

// NewEvaluator builds the rule source and reasoning engine described by cfg.
func NewEvaluator(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Evaluator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil configuration", domain.ErrConfigInvalid)
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	engine := o.engine
	if engine == nil {
		var err error
		if engine, err = NewEngine(cfg.Reasoning, logger); err != nil {
			return nil, err
		}
	}

	e := &Evaluator{}
	switch {
	case cfg.Policy.Path == "":
		e.rules = storage.NewMemoryRuleStore(storage.DefaultRules())
	case cfg.Policy.Watch:
		store, err := storage.NewFileRuleStore(cfg.Policy.Path, storage.FileStoreOptions{
			Required: cfg.Policy.Required,
			Watch:    true,
			OnReload: o.onReload,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		e.rules, e.store = store, store
	default:
		rules, err := storage.LoadRules(cfg.Policy.Path, storage.LoadOptions{Required: cfg.Policy.Required, Logger: logger})
		if err != nil {
			return nil, err
		}
		e.rules = storage.NewMemoryRuleStore(rules)
	}

	adapter := assessment.NewAdapter(engine,
		assessment.WithTimeout(cfg.Reasoning.Timeout),
		assessment.WithLogger(logger),
	)

	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithRedactions(cfg.Telemetry.Redaction),
	}
	e.Evaluator = pipeline.NewEvaluator(e.rules, adapter, append(pipelineOpts, o.pipeline...)...)

	logger.Info("gatekeeper ready",
		"rules", len(e.rules.Rules()),
		"policy_path", cfg.Policy.Path,
		"provider", cfg.Reasoning.Provider,
		"model", cfg.Reasoning.Model,
	)
	return e, nil
}

// NewEngine returns the reasoning engine for cfg.
func NewEngine(cfg config.ReasoningConfig, logger *slog.Logger) (llm.Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case config.ProviderNone:
		return llm.Disabled{}, nil
	case config.ProviderOpenAI, "":
		if cfg.APIKey == "" {
			// Fast-path requests never reach the engine, so they still evaluate normally.
			logger.Warn("reasoning engine api key is not configured, assessments will fall back to policy decisions",
				"provider", config.ProviderOpenAI,
				"hint", "set OPENAI_API_KEY or reasoning.api_key, or use provider none",
			)
			return llm.Unconfigured{Err: domain.ErrMissingAPIKey}, nil
		}
		retry := governance.DefaultRetryConfig()
		retry.MaxRetries = cfg.MaxRetries
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			JSONMode:    cfg.JSONMode,
			Retry:       retry,
		}, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, cfg.Provider)
	}
}

// Rules returns the current rule snapshot.
func (e *Evaluator) Rules() []domain.PolicyRule {
	return e.rules.Rules()
}

// Close stops following the rule file, if any.
func (e *Evaluator) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Evaluate runs a single evaluation. A nil cfg loads configuration from the
// environment. Errors are configuration faults only; every well-formed run yields a card.
func Evaluate(ctx context.Context, request string, cfg *config.Config) (domain.DecisionCard, error) {
	if cfg == nil {
		loaded, err := config.Load("")
		if err != nil {
			return domain.DecisionCard{}, err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return domain.DecisionCard{}, err
	}

	e, err := NewEvaluator(cfg, slog.Default())
	if err != nil {
		return domain.DecisionCard{}, err
	}
	defer e.Close()

	return e.Evaluate(ctx, request)
}
