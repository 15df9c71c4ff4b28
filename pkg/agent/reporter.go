package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/deepresearch/deepresearch/pkg/agent/prompt"
	"github.com/deepresearch/deepresearch/pkg/llm"
	"github.com/deepresearch/deepresearch/pkg/models"
)

// Reporter synthesizes the final Markdown report from a session's
// accumulated learnings and sources.
type Reporter struct {
	client  llm.Client
	builder *prompt.Builder
	log     *slog.Logger
}

// NewReporter creates a Reporter on the given LLM client.
func NewReporter(client llm.Client) *Reporter {
	return &Reporter{
		client:  client,
		builder: prompt.NewBuilder(),
		log:     slog.With("component", "reporter"),
	}
}

// Write produces the final report. The model writes the narrative
// sections; the source list is appended mechanically so every collected
// source appears regardless of what the model cites. On LLM failure a
// deterministic learnings-only report is produced instead.
func (r *Reporter) Write(ctx context.Context, modelID, userQuery string, learnings []models.Learning, sources []models.Source) string {
	messages := r.builder.BuildReportMessages(userQuery, learnings)

	// Reports are long; give the model extra room.
	text, err := r.client.Chat(ctx, modelID, messages, llm.Params{MaxTokens: 8000})
	if err != nil {
		r.log.Warn("Report synthesis failed, using fallback report",
			"query", userQuery, "error", err)
		return fallbackReport(userQuery, learnings) + sourcesSection(sources)
	}

	return strings.TrimSpace(text) + sourcesSection(sources)
}

// fallbackReport is the deterministic no-LLM report body.
func fallbackReport(userQuery string, learnings []models.Learning) string {
	var sb strings.Builder
	sb.WriteString("# Research Report: ")
	sb.WriteString(userQuery)
	sb.WriteString("\n\n## Learnings\n\n")
	for _, l := range learnings {
		sb.WriteString("- ")
		sb.WriteString(l.Content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// sourcesSection renders the mechanical source list. The heading is
// always present, even for a session that found nothing, so consumers
// can rely on the report shape.
func sourcesSection(sources []models.Source) string {
	if len(sources) == 0 {
		return "\n\n## Sources"
	}
	var sb strings.Builder
	sb.WriteString("\n\n## Sources\n\n")
	for _, s := range sources {
		sb.WriteString("- ")
		if s.Title != "" {
			sb.WriteString("[")
			sb.WriteString(s.Title)
			sb.WriteString("](")
			sb.WriteString(s.URL)
			sb.WriteString(")")
		} else {
			sb.WriteString(s.URL)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
