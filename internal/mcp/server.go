// Package mcp exposes the Autotask bridge as MCP tools.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the orchestrator and metadata cache directly.
package mcp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/psabridge/internal/metadata"
	"github.com/fyrsmithlabs/psabridge/internal/orchestrator"
)

// Server is the MCP server fronting the Autotask bridge.
type Server struct {
	mcp     *mcp.Server
	orch    *orchestrator.Orchestrator
	cache   *metadata.Cache
	metrics *Metrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "psabridge")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "psabridge",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server wired to the given services.
func NewServer(cfg *Config, orch *orchestrator.Orchestrator, cache *metadata.Cache) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("metadata cache is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		orch:    orch,
		cache:   cache,
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger,
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport and blocks until the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Handler returns an http.Handler serving the MCP streamable HTTP
// transport, for daemon mode.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}
