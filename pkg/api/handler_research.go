package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepresearch/deepresearch/pkg/events"
	"github.com/deepresearch/deepresearch/pkg/models"
)

// researchRequest is the POST /api/research body.
type researchRequest struct {
	Query          string `json:"query"`
	IsDeep         bool   `json:"isDeep"`
	Depth          int    `json:"depth"`
	Breadth        int    `json:"breadth"`
	ModelID        string `json:"modelId"`
	MaxConcurrency int    `json:"maxConcurrency"`
}

// handleResearch runs a research session and streams its events as
// newline-delimited JSON, one event per line, flushed per event. The
// request context doubles as the session context: a client disconnect
// cancels the session.
func (s *Server) handleResearch(c *gin.Context) {
	var req researchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	opts := models.ResearchOptions{
		IsDeep:         req.IsDeep,
		Depth:          req.Depth,
		Breadth:        req.Breadth,
		ModelID:        req.ModelID,
		MaxConcurrency: req.MaxConcurrency,
	}

	bufSize := s.cfg.Engine.EventBufferSize
	if bufSize < 1 {
		bufSize = events.DefaultBufferSize
	}
	stream := events.NewStream(bufSize)

	ctx := c.Request.Context()
	// The goroutine can outlive the handler on disconnect, and gin
	// recycles the context after the handler returns; copy what it needs.
	reqID := c.GetString("request_id")
	go func() {
		if err := s.engine.Run(ctx, req.Query, opts, stream); err != nil {
			s.log.Warn("Research session ended with error",
				"query", req.Query, "request_id", reqID, "error", err)
		}
	}()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	if err := events.WriteNDJSON(ctx, c.Writer, c.Writer, stream); err != nil {
		s.log.Debug("Event stream writer stopped", "request_id", reqID, "error", err)
	}
}
