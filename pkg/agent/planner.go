// Package agent implements the three LLM-mediated research stages:
// query planning, result extraction, and report writing. Each stage is
// stateless; session state stays with the engine.
package agent

import (
	"context"
	"log/slog"

	"github.com/deepresearch/deepresearch/pkg/agent/prompt"
	"github.com/deepresearch/deepresearch/pkg/jsonx"
	"github.com/deepresearch/deepresearch/pkg/llm"
	"github.com/deepresearch/deepresearch/pkg/models"
)

// Planner expands a research topic into SERP queries.
type Planner struct {
	client  llm.Client
	builder *prompt.Builder
	log     *slog.Logger
}

// NewPlanner creates a Planner on the given LLM client.
func NewPlanner(client llm.Client) *Planner {
	return &Planner{
		client:  client,
		builder: prompt.NewBuilder(),
		log:     slog.With("component", "planner"),
	}
}

// planResponse mirrors the JSON contract in the plan prompt.
type planResponse struct {
	Queries []models.SerpQuery `json:"queries"`
}

// Plan asks the model for up to n distinct SERP queries. Prior learnings,
// when present, steer the queries away from settled ground. Parse failures
// and empty plans degrade to a single direct query, never an error.
func (p *Planner) Plan(ctx context.Context, modelID, userQuery string, n int, priorLearnings []models.Learning) []models.SerpQuery {
	messages := p.builder.BuildPlanMessages(userQuery, n, priorLearnings)

	text, err := p.client.Chat(ctx, modelID, messages, llm.Params{JSONResponse: true})
	if err != nil {
		p.log.Warn("Query planning failed, falling back to direct query",
			"query", userQuery, "error", err)
		return fallbackPlan(userQuery)
	}

	var parsed planResponse
	if !jsonx.Unmarshal(text, "queries", &parsed) || len(parsed.Queries) == 0 {
		p.log.Warn("Query plan unparseable or empty, falling back to direct query",
			"query", userQuery)
		return fallbackPlan(userQuery)
	}

	return dedupQueries(parsed.Queries, n)
}

func fallbackPlan(userQuery string) []models.SerpQuery {
	return []models.SerpQuery{{Query: userQuery, ResearchGoal: "direct answer"}}
}

// dedupQueries drops empty and duplicate queries (by normalized string)
// and slices the result to n, preserving model order.
func dedupQueries(queries []models.SerpQuery, n int) []models.SerpQuery {
	seen := make(map[string]struct{}, len(queries))
	out := make([]models.SerpQuery, 0, len(queries))
	for _, q := range queries {
		key := models.NormalizeQuery(q.Query)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if len(out) == n {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
