// Package httpserver is the HTTP front door for daemon mode: the MCP
// streamable endpoint plus health, readiness, and Prometheus metrics.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/psabridge/internal/config"
)

// Readiness reports reference cache freshness for the readiness probe.
// *metadata.Cache satisfies this.
type Readiness interface {
	LastRefresh() (time.Time, error)
}

// Server is the daemon-mode HTTP server.
type Server struct {
	cfg       config.ServerConfig
	echo      *echo.Echo
	readiness Readiness
	logger    *zap.Logger
}

// HealthResponse is the JSON body for GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ReadyResponse is the JSON body for GET /readyz.
type ReadyResponse struct {
	Status      string `json:"status"`
	LastRefresh string `json:"lastRefresh,omitempty"`
	CacheError  string `json:"cacheError,omitempty"`
}

// NewServer creates the HTTP server and mounts the MCP handler at /mcp.
func NewServer(cfg config.ServerConfig, mcpHandler http.Handler, readiness Readiness, logger *zap.Logger) (*Server, error) {
	if mcpHandler == nil {
		return nil, fmt.Errorf("mcp handler is required")
	}
	if readiness == nil {
		return nil, fmt.Errorf("readiness source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	s := &Server{
		cfg:       cfg,
		echo:      e,
		readiness: readiness,
		logger:    logger.Named("http"),
	}

	s.registerRoutes(mcpHandler)

	return s, nil
}

func (s *Server) registerRoutes(mcpHandler http.Handler) {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/readyz", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.Any("/mcp", echo.WrapHandler(mcpHandler))
	s.echo.Any("/mcp/*", echo.WrapHandler(mcpHandler))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "psabridge",
	})
}

// handleReady reports ready once the reference cache has completed at least
// one successful refresh. A stale cache still serves (validation fails
// closed), so it degrades the response body, not the status code.
func (s *Server) handleReady(c echo.Context) error {
	lastRefresh, lastErr := s.readiness.LastRefresh()
	if lastRefresh.IsZero() {
		resp := ReadyResponse{Status: "initializing"}
		if lastErr != nil {
			resp.CacheError = lastErr.Error()
		}
		return c.JSON(http.StatusServiceUnavailable, resp)
	}

	resp := ReadyResponse{
		Status:      "ok",
		LastRefresh: lastRefresh.UTC().Format(time.RFC3339),
	}
	if lastErr != nil {
		resp.Status = "degraded"
		resp.CacheError = lastErr.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// Start runs the server and blocks until the context is cancelled, then
// shuts down gracefully. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.HTTPPort)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.cfg.ShutdownTimeout.Duration(),
		)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance for registering extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
