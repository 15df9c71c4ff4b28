// Package prompt centralizes all prompt text for the research stages.
// Templates are constants; the builder only assembles them with the
// per-call data. Stateless and thread-safe.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/deepresearch/deepresearch/pkg/llm"
	"github.com/deepresearch/deepresearch/pkg/models"
)

// Builder assembles the message sequences for the planning, extraction,
// and reporting stages. All state comes from parameters.
type Builder struct {
	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewBuilder creates a Builder using the wall clock.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// systemMessage renders the shared researcher directive with today's date.
func (b *Builder) systemMessage() llm.Message {
	return llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(researcherSystem, b.now().UTC().Format("2006-01-02")),
	}
}

// BuildPlanMessages builds the conversation that turns a research topic
// (plus any prior learnings) into up to n SERP queries.
func (b *Builder) BuildPlanMessages(userQuery string, n int, priorLearnings []models.Learning) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, planInstructions, n)
	sb.WriteString("\n\n<topic>\n")
	sb.WriteString(userQuery)
	sb.WriteString("\n</topic>")

	if len(priorLearnings) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(planPriorLearnings)
		sb.WriteString("\n")
		for _, l := range priorLearnings {
			sb.WriteString("- ")
			sb.WriteString(l.Content)
			sb.WriteString("\n")
		}
	}

	return []llm.Message{
		b.systemMessage(),
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// BuildExtractMessages builds the conversation that extracts learnings and
// follow-up questions from one query's content block.
func (b *Builder) BuildExtractMessages(query, contents string, nLearnings, nFollowUps int) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, extractInstructions, nLearnings, nFollowUps)
	sb.WriteString("\n\n<query>\n")
	sb.WriteString(query)
	sb.WriteString("\n</query>\n\n<contents>\n")
	sb.WriteString(contents)
	sb.WriteString("\n</contents>")

	return []llm.Message{
		b.systemMessage(),
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// BuildReportMessages builds the conversation that synthesizes the final
// report from the session's accumulated learnings.
func (b *Builder) BuildReportMessages(userQuery string, learnings []models.Learning) []llm.Message {
	var sb strings.Builder
	sb.WriteString(reportInstructions)
	sb.WriteString("\n\n<topic>\n")
	sb.WriteString(userQuery)
	sb.WriteString("\n</topic>\n\n<learnings>\n")
	for _, l := range learnings {
		sb.WriteString("- ")
		sb.WriteString(l.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("</learnings>")

	return []llm.Message{
		b.systemMessage(),
		{Role: llm.RoleUser, Content: sb.String()},
	}
}
