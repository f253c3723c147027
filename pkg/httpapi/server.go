// Package httpapi serves the tool registry over HTTP alongside health and
// Prometheus endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jdgilhuly/go_second_opinion/pkg/provider"
	"github.com/jdgilhuly/go_second_opinion/pkg/tools"
)

// maxBodyBytes caps a tool call's JSON arguments.
const maxBodyBytes = 1 << 20

// Server is the HTTP API server.
type Server struct {
	router    *gin.Engine
	server    *http.Server
	registry  *tools.Registry
	providers []provider.Provider
	logger    *zap.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Addr      string
	Registry  *tools.Registry
	Providers []provider.Provider
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
}

// NewServer creates a new HTTP server.
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	s := &Server{
		router:    router,
		registry:  cfg.Registry,
		providers: cfg.Providers,
		logger:    logger,
	}
	s.setupRoutes(cfg.Metrics)

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(metrics http.Handler) {
	s.router.GET("/health", s.handleHealth)

	if metrics != nil {
		s.router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/tools", s.handleListTools)
		v1.POST("/tools/:name", s.handleCallTool)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	ready := make(map[string]bool, len(s.providers))
	for _, p := range s.providers {
		ready[p.Name()] = p.Ready()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": ready,
	})
}

func (s *Server) handleListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": s.registry.Specs()})
}

func (s *Server) handleCallTool(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.registry.Lookup(name); !ok {
		c.JSON(http.StatusNotFound, tools.Result{Text: "Error: Unknown tool: " + name, IsError: true})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, tools.Result{Text: "Error: " + err.Error(), IsError: true})
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		c.JSON(http.StatusBadRequest, tools.Result{Text: "Error: request body is not valid JSON", IsError: true})
		return
	}

	// Tool-level failures are still 200: the call itself was handled.
	c.JSON(http.StatusOK, s.registry.CallJSON(c.Request.Context(), name, body))
}

// requestLogger is a middleware for request logging.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
