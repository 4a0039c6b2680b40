// Package main provides the CLI entry point for the flyserve protocol
// server.
//
// Flyserve exposes Flutter workspace tools, resources, and prompts to
// assistant clients over newline-framed JSON-RPC on stdio. Tool calls
// run through a middleware pipeline that enforces confirmation,
// concurrency caps, timeouts, and payload limits.
//
// # Basic Usage
//
// Start the server over stdio:
//
//	flyserve serve --config flyserve.yaml
//
// Run against the current directory with defaults:
//
//	flyserve serve
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/flydevtools/flyserve/internal/config"
	"github.com/flydevtools/flyserve/internal/limits"
	"github.com/flydevtools/flyserve/internal/logstore"
	"github.com/flydevtools/flyserve/internal/observability"
	"github.com/flydevtools/flyserve/internal/pipeline"
	"github.com/flydevtools/flyserve/internal/prompts"
	"github.com/flydevtools/flyserve/internal/protocol"
	"github.com/flydevtools/flyserve/internal/resources"
	"github.com/flydevtools/flyserve/internal/server"
	"github.com/flydevtools/flyserve/internal/tools"
	"github.com/flydevtools/flyserve/internal/tools/fly"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "flyserve",
		Short:        "Flyserve - assistant-facing protocol server for Fly workspaces",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		workspace  string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the protocol server on stdio",
		Long: `Start the protocol server, reading requests from stdin and writing
responses to stdout. Logs go to stderr so they never corrupt the
protocol stream.

Without --config the server runs with built-in defaults, exposing the
workspace given by --workspace (default: current directory).`,
		Example: `  # Serve the current directory with defaults
  flyserve serve

  # Serve a specific workspace with a config file
  flyserve serve --config flyserve.yaml --workspace ~/projects/app`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, workspace, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML or JSON5 configuration file")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "",
		"Workspace root exposed as resources (overrides config)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath, workspace string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if workspace != "" {
		cfg.Workspace.Root = workspace
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if cfg.Server.Version == "dev" {
		cfg.Server.Version = version
	}

	logger := observability.NewLogger(cfg.Logging)
	metrics := observability.NewMetrics()

	sandbox, err := resources.NewSandbox(cfg.Workspace.Root, cfg.Workspace.Sandbox)
	if err != nil {
		return fmt.Errorf("workspace sandbox: %w", err)
	}
	workspaceStrategy, err := resources.NewWorkspaceStrategy(sandbox)
	if err != nil {
		return err
	}
	runLogs := logstore.NewStore()
	buildLogs := logstore.NewStore()
	runStrategy, err := resources.NewRunLogStrategy(runLogs)
	if err != nil {
		return err
	}
	buildStrategy, err := resources.NewBuildLogStrategy(buildLogs)
	if err != nil {
		return err
	}

	resourceReg := resources.NewRegistry()
	for _, strategy := range []resources.Strategy{workspaceStrategy, runStrategy, buildStrategy} {
		if err := resourceReg.Register(strategy); err != nil {
			return fmt.Errorf("register resource strategy: %w", err)
		}
	}

	toolReg := tools.NewRegistry()
	builtins := []*tools.Definition{
		fly.Version(cfg.Server.Name, cfg.Server.Version),
		fly.Doctor(),
		fly.SchemaExport(toolReg),
		fly.CleanWorkspace(cfg.Workspace.Root),
		fly.Run(cfg.Workspace.Root, runLogs),
		fly.Build(cfg.Workspace.Root, buildLogs),
	}
	for _, def := range builtins {
		if err := toolReg.Register(def); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}

	promptReg := prompts.NewRegistry()
	for _, def := range prompts.BuiltinDefinitions() {
		if err := promptReg.Register(def); err != nil {
			return fmt.Errorf("register prompt: %w", err)
		}
	}

	transport := protocol.NewStdioTransport(os.Stdin, os.Stdout, nil)
	pipe := pipeline.New(pipeline.Options{
		Registry: toolReg,
		Logger:   logger,
		Metrics:  metrics,
		Limiter:  limits.NewLimiter(cfg.Limits),
		Sink:     server.ProgressSink(transport, logger),
		Config:   cfg.Pipeline,
	})

	srv, err := server.New(server.Options{
		Transport: transport,
		Logger:    logger,
		Metrics:   metrics,
		Info: protocol.ServerInfo{
			Name:    cfg.Server.Name,
			Version: cfg.Server.Version,
		},
		Tools:     toolReg,
		Resources: resourceReg,
		Prompts:   promptReg,
		Pipeline:  pipe,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.MetricsAddr != "" {
		metricsSrv := startMetricsServer(cfg.Server.MetricsAddr, metrics, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	return srv.Serve(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func startMetricsServer(addr string, metrics *observability.Metrics, logger *observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "metrics server failed", "error", err.Error())
		}
	}()
	return srv
}
