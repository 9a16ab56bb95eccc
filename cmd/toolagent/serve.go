package main

import (
	"context"
	"net/http"
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
	"github.com/feiskyer/toolagent/internal/server"
	"github.com/feiskyer/toolagent/internal/telemetry"
	"github.com/feiskyer/toolagent/tools"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer queries over HTTP",
		Long: `Answer queries over HTTP.

Endpoints:
  POST /v1/query         {"query": "..."} answered by the agent
  GET  /v1/tools         registered tools
  POST /v1/tools/{name}  {"input": "..."} invokes a tool without the model
  GET  /metrics          Prometheus metrics
  GET  /health           liveness`,
		Args: cobra.NoArgs,
		RunE: serveAgent,
	}

	cmd.Flags().String("addr", ":8080", "Listen address.")
	cmd.Flags().String("env-file", ".env", "File with KEY=VALUE settings used when neither the environment nor the config file sets them.")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func serveAgent(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(viper.GetViper(), envFile); err != nil {
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
	client, err := cfg.NewClient()
	if err != nil {
		return err
	}

	metrics := telemetry.NewMetrics()
	handler, err := server.New(server.Config{
		Runner:   toolagent.NewRunner(client).WithLogger(logger).WithObserver(metrics),
		Agent:    newAgent(cfg, false),
		Registry: tools.NewDefaultRegistry(time.Now),
		Metrics:  metrics,
		Logger:   logger,
		MaxTurns: cfg.MaxTurns,
	})
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := viper.GetString("server.addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("model", cfg.Model).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
