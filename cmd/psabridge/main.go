// Package main implements the psabridge daemon: an MCP server that
// mediates AI-assistant writes to the Autotask PSA REST API.
//
// By default the bridge speaks MCP over stdio, which is how assistant
// clients launch it. With --http it runs as a daemon exposing the MCP
// streamable endpoint plus health and metrics routes.
//
// Usage:
//
//	# stdio mode (launched by an MCP client)
//	psabridge
//
//	# daemon mode
//	psabridge --http --config /etc/psabridge/config.yaml
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/psabridge/internal/autotask"
	"github.com/fyrsmithlabs/psabridge/internal/config"
	"github.com/fyrsmithlabs/psabridge/internal/httpserver"
	"github.com/fyrsmithlabs/psabridge/internal/logging"
	mcpserver "github.com/fyrsmithlabs/psabridge/internal/mcp"
	"github.com/fyrsmithlabs/psabridge/internal/metadata"
	"github.com/fyrsmithlabs/psabridge/internal/orchestrator"
	"github.com/fyrsmithlabs/psabridge/internal/psaerr"
	"github.com/fyrsmithlabs/psabridge/internal/validate"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	httpMode   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "psabridge",
	Short: "MCP bridge for the Autotask PSA REST API",
	Long: `psabridge sits between an AI assistant and the Autotask PSA REST API.
It validates every write against cached reference data before it leaves
the process, translates upstream failures into a closed error vocabulary,
and exposes ticket operations as MCP tools.

By default it speaks MCP over stdio. Pass --http to run as a daemon with
the MCP streamable endpoint at /mcp plus /healthz, /readyz and /metrics.`,
	SilenceUsage: true,
	RunE:         runBridge,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge (stdio by default, --http for daemon mode)",
	RunE:  runBridge,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("psabridge\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: psabridge.yaml if present)")
	rootCmd.Flags().BoolVar(&httpMode, "http", false, "serve MCP over HTTP instead of stdio")
	serveCmd.Flags().BoolVar(&httpMode, "http", false, "serve MCP over HTTP instead of stdio")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return run(ctx)
}

// run wires the full bridge and blocks until the context is cancelled:
// config, logger, Autotask client factory behind the connection gate,
// reference cache, validator, orchestrator, MCP server, then the chosen
// transport.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logging.Sync(logger)

	logger.Info("starting psabridge",
		zap.String("version", version),
		zap.Bool("http_mode", httpMode),
		zap.String("autotask_base_url", cfg.Autotask.BaseURL))

	gate, err := autotask.NewGate(func(ctx context.Context) (autotask.Client, error) {
		return autotask.NewRESTClient(cfg.Autotask, logger)
	}, logger)
	if err != nil {
		return fmt.Errorf("create connection gate: %w", err)
	}

	cache, err := metadata.NewCache(gate, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("create metadata cache: %w", err)
	}
	if err := cache.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize metadata cache: %w", err)
	}
	defer cache.Stop()

	validator, err := validate.NewValidator(cache, logger)
	if err != nil {
		return fmt.Errorf("create validator: %w", err)
	}

	orch, err := orchestrator.New(gate, validator, psaerr.NewTranslator(logger), logger)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	srv, err := mcpserver.NewServer(&mcpserver.Config{
		Name:    "psabridge",
		Version: version,
		Logger:  logger,
	}, orch, cache)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}

	if !httpMode {
		return srv.Run(ctx)
	}

	httpSrv, err := httpserver.NewServer(cfg.Server, srv.Handler(), cache, logger)
	if err != nil {
		return fmt.Errorf("create HTTP server: %w", err)
	}

	logger.Info("daemon mode configured",
		zap.Int("port", cfg.Server.HTTPPort),
		zap.String("mcp_endpoint", "/mcp"),
		zap.String("metrics_endpoint", "/metrics"))

	if err := httpSrv.Start(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
