package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleHealthz reports liveness and a redacted config summary.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"config": gin.H{
			"search_base_url": s.cfg.Search.BaseURL,
			"llm_base_url":    s.cfg.LLM.BaseURL,
			"default_model":   s.cfg.LLM.DefaultModel,
			"max_concurrency": s.cfg.Engine.MaxConcurrency,
			"max_depth":       s.cfg.Engine.MaxDepth,
			"max_breadth":     s.cfg.Engine.MaxBreadth,
		},
	})
}

// handleUsage reports accumulated LLM token usage per model.
func (s *Server) handleUsage(c *gin.Context) {
	if s.usage == nil {
		c.JSON(http.StatusOK, gin.H{"requests": 0, "models": gin.H{}})
		return
	}
	perModel, requests := s.usage.Snapshot()
	c.JSON(http.StatusOK, gin.H{"requests": requests, "models": perModel})
}
