// Package api exposes the research engine over HTTP: an NDJSON
// streaming research endpoint plus health and usage endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deepresearch/deepresearch/pkg/config"
	"github.com/deepresearch/deepresearch/pkg/engine"
	"github.com/deepresearch/deepresearch/pkg/llm"
)

// Server hosts the HTTP API.
type Server struct {
	engine *engine.Engine
	cfg    *config.Config
	usage  *llm.UsageTracker
	log    *slog.Logger
	http   *http.Server
}

// NewServer creates the API server. usage may be nil; the usage
// endpoint then reports no data.
func NewServer(eng *engine.Engine, cfg *config.Config, usage *llm.UsageTracker) *Server {
	return &Server{
		engine: eng,
		cfg:    cfg,
		usage:  usage,
		log:    slog.With("component", "api"),
	}
}

// Router builds the gin engine with the full middleware chain.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestID(), requestLogger(s.log), gin.Recovery(), securityHeaders())

	r.POST("/api/research", s.handleResearch)
	r.GET("/api/healthz", s.handleHealthz)
	r.GET("/api/usage", s.handleUsage)
	return r
}

// Start begins serving on addr. Blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("API server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
