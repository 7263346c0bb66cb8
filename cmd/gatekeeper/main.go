// Package main is the entry point for the gatekeeper binary.
// It evaluates requests from the command line or serves the evaluation API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/polisai/gatekeeper/internal/governance"
	"github.com/polisai/gatekeeper/internal/server"
	"github.com/polisai/gatekeeper/pkg/config"
	"github.com/polisai/gatekeeper/pkg/gatekeeper"
	"github.com/polisai/gatekeeper/pkg/logging"
	"github.com/polisai/gatekeeper/pkg/storage"
	"github.com/polisai/gatekeeper/pkg/telemetry"
)

const telemetryShutdownTimeout = 5 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for gatekeeper
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Autonomy gatekeeper for AI agent requests",
		Long: `Decides whether an agent may act on a request autonomously (ACT), must ask
for clarification (HOLD) or needs explicit human approval (ESCALATE).

Example:
  gatekeeper evaluate -r "Deploy model v2.3 to production"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "Human-readable log output")

	rootCmd.AddCommand(newEvaluateCmd(), newServeCmd(), newRulesCmd(), newVersionCmd())
	return rootCmd
}

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a single request and print its decision card",
		Args:  cobra.NoArgs,
		RunE:  runEvaluate,
	}
	cmd.Flags().StringP("request", "r", "", "Request text to evaluate")
	cmd.Flags().Bool("json-output", false, "Print the decision card as JSON")
	addPolicyFlag(cmd)
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation API over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "HTTP listen address (default :8080)")
	cmd.Flags().Bool("watch", false, "Reload the policy rules file when it changes")
	addPolicyFlag(cmd)
	return cmd
}

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect policy rule files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a policy rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := storage.LoadRules(args[0], storage.LoadOptions{Required: true, Logger: slog.New(slog.DiscardHandler)})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules OK\n", args[0], len(rules))
			return nil
		},
	})
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gatekeeper version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gatekeeper %s\n", version)
		},
	}
}

// addPolicyFlag registers --policy/-p and the older --policy-path spelling.
func addPolicyFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("policy", "p", "", "Path to the policy rules file")
	cmd.Flags().String("policy-path", "", "Path to the policy rules file")
	_ = cmd.Flags().MarkDeprecated("policy-path", "use --policy instead")
}

func policyFlag(cmd *cobra.Command) string {
	for _, name := range []string{"policy", "policy-path"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Value.String() != "" {
			return f.Value.String()
		}
	}
	return ""
}

// loadConfig loads the config file named by --config and applies CLI overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if pretty, _ := cmd.Flags().GetBool("log-pretty"); pretty {
		cfg.Logging.Pretty = true
	}
	if path := policyFlag(cmd); path != "" {
		cfg.Policy.Path = path
		// An explicitly named file must exist.
		cfg.Policy.Required = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger)

	shutdown, err := telemetry.SetupProvider(cmd.Context(), telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		Endpoint:     cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
		ResourceTags: map[string]string{"service.version": version},
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("telemetry initialization failed: %w", err)
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown error", "error", err)
		}
	}
	return cfg, logger, cleanup, nil
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	request, _ := cmd.Flags().GetString("request")
	asJSON, _ := cmd.Flags().GetBool("json-output")

	cfg, logger, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	evaluator, err := gatekeeper.NewEvaluator(cfg, logger)
	if err != nil {
		return err
	}
	defer evaluator.Close()

	card, err := evaluator.Evaluate(cmd.Context(), request)
	if err != nil {
		return err
	}

	out, err := gatekeeper.FormatOutput(card, asJSON)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, cleanup, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Address = addr
	}
	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		cfg.Policy.Watch = true
	}
	if cfg.Policy.Watch && cfg.Policy.Path == "" {
		logger.Warn("--watch has no effect without a policy rules file")
	}

	metrics := server.NewMetrics()
	evaluator, err := gatekeeper.NewEvaluator(cfg, logger, gatekeeper.WithReloadHook(metrics.RecordRuleReload))
	if err != nil {
		return err
	}
	defer evaluator.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Address:         cfg.Server.Address,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit: governance.RateLimiterConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.Server.RateLimit.BurstSize,
		},
	}, evaluator, metrics, logger)

	return srv.Run(ctx)
}
