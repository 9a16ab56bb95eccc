package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/feiskyer/toolagent"
	"github.com/feiskyer/toolagent/internal/config"
	"github.com/feiskyer/toolagent/internal/logging"
	"github.com/feiskyer/toolagent/internal/telemetry"
	"github.com/feiskyer/toolagent/tools"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [query...]",
		Short: "Send queries to the agent one after another",
		Long: `Send queries to the agent one after another.

Queries come from the arguments, from a YAML or TOML batch file given with
--file, or, when neither is set, from the built-in demonstration batch.
A failed query is reported and the run continues with the next one.`,
		RunE: runAgent,
	}

	cmd.Flags().StringP("file", "f", "", "Batch file with the queries (.yaml, .yml or .toml).")
	cmd.Flags().String("provider", config.ProviderOpenAI, "Model provider: openai or azure.")
	cmd.Flags().String("model", toolagent.DefaultModel, "Model name.")
	cmd.Flags().String("base-url", "", "OpenAI compatible API base URL (default GitHub Models, or the OpenAI API for a key from OPENAI_API_KEY).")
	cmd.Flags().Float64("temperature", 0, "Sampling temperature.")
	cmd.Flags().Int("max-turns", toolagent.DefaultMaxTurns, "Maximum model calls per query.")
	cmd.Flags().Duration("delay", toolagent.DefaultDelay, "Pause between two queries.")
	cmd.Flags().String("env-file", ".env", "File with KEY=VALUE settings used when neither the environment nor the config file sets them.")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file when the run ends.")
	cmd.Flags().Bool("no-tools", false, "Do not offer any tool to the model.")

	_ = viper.BindPFlag(config.KeyProvider, cmd.Flags().Lookup("provider"))
	_ = viper.BindPFlag(config.KeyModel, cmd.Flags().Lookup("model"))
	_ = viper.BindPFlag(config.KeyBaseURL, cmd.Flags().Lookup("base-url"))
	_ = viper.BindPFlag(config.KeyTemperature, cmd.Flags().Lookup("temperature"))
	_ = viper.BindPFlag(config.KeyMaxTurns, cmd.Flags().Lookup("max-turns"))
	_ = viper.BindPFlag(config.KeyDelay, cmd.Flags().Lookup("delay"))
	_ = viper.BindPFlag(config.KeyEnvFile, cmd.Flags().Lookup("env-file"))
	_ = viper.BindPFlag(config.KeyMetricsFile, cmd.Flags().Lookup("metrics-file"))

	return cmd
}

func runAgent(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(viper.GetViper(), viper.GetString(config.KeyEnvFile)); err != nil {
		return err
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	batch, err := batchFromFlags(cmd, args, cfg)
	if err != nil {
		return err
	}

	client, err := cfg.NewClient()
	if err != nil {
		return err
	}
	logger.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("chat client created")

	noTools, _ := cmd.Flags().GetBool("no-tools")
	agent := newAgent(cfg, noTools)

	metrics := telemetry.NewMetrics()
	runner := toolagent.NewRunner(client).WithLogger(logger).WithObserver(metrics)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	failed := 0
	results, runErr := batch.Run(ctx, runner, agent, func(r toolagent.QueryResult) {
		metrics.ObserveQuery(r.Err)
		if r.Err != nil {
			failed++
		}
		printResult(out, r)
	})

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error().Err(err).Msg("failed to write metrics")
		}
	}
	if runErr != nil {
		return runErr
	}

	logger.Info().Int("queries", len(results)).Int("failed", failed).Msg("batch finished")
	return nil
}

func batchFromFlags(cmd *cobra.Command, args []string, cfg *config.Config) (*toolagent.Batch, error) {
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		batch := toolagent.DefaultBatch()
		if len(args) > 0 {
			batch = toolagent.NewBatch("cli", args...)
		}
		batch.MaxTurns = cfg.MaxTurns
		batch.Delay = cfg.Delay
		return batch, nil
	}

	if len(args) > 0 {
		return nil, errors.New("queries cannot be combined with --file")
	}
	batch, err := toolagent.LoadBatch(file)
	if err != nil {
		return nil, err
	}
	// Explicit flags win over the batch file.
	if cmd.Flags().Changed("max-turns") {
		batch.MaxTurns = cfg.MaxTurns
	}
	if cmd.Flags().Changed("delay") {
		batch.Delay = cfg.Delay
	}
	if cmd.Flags().Changed("model") {
		batch.Model = cfg.Model
	}
	return batch, nil
}

func newAgent(cfg *config.Config, noTools bool) *toolagent.Agent {
	agent := toolagent.NewAgent("Assistant").
		WithModel(cfg.Model).
		WithInstructions(instructions).
		WithTemperature(cfg.Temperature)
	if !noTools {
		agent.AddTool(tools.NewDefaultRegistry(time.Now).List()...)
	}
	return agent
}

func instructions() string {
	return "You are a helpful assistant. Use the available tools whenever they can answer " +
		"part of the question, and answer directly otherwise. Today is " +
		time.Now().Format("Monday, January 2, 2006") + "."
}

func printResult(w io.Writer, r toolagent.QueryResult) {
	_, _ = fmt.Fprintf(w, "Query: %s\n", r.Query)
	if r.Err != nil {
		_, _ = fmt.Fprintf(w, "Error: %v\n\n", r.Err)
		return
	}
	_, _ = fmt.Fprintf(w, "Answer: %s\n\n", r.Answer)
}
