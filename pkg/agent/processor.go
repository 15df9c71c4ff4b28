package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/deepresearch/deepresearch/pkg/agent/prompt"
	"github.com/deepresearch/deepresearch/pkg/jsonx"
	"github.com/deepresearch/deepresearch/pkg/llm"
	"github.com/deepresearch/deepresearch/pkg/models"
)

// Content budgets for the extraction prompt. Scraped pages can be huge;
// everything past these caps adds cost without adding signal.
const (
	maxCharsPerDoc   = 25_000
	maxTotalContents = 150_000
)

// Extraction is the output of one Process call.
type Extraction struct {
	Learnings []models.Learning
	FollowUps []models.SerpQuery
}

// Processor extracts learnings and follow-up questions from one query's
// search results.
type Processor struct {
	client  llm.Client
	builder *prompt.Builder
	log     *slog.Logger
}

// NewProcessor creates a Processor on the given LLM client.
func NewProcessor(client llm.Client) *Processor {
	return &Processor{
		client:  client,
		builder: prompt.NewBuilder(),
		log:     slog.With("component", "processor"),
	}
}

// extractResponse mirrors the JSON contract in the extract prompt.
type extractResponse struct {
	Learnings []string `json:"learnings"`
	FollowUps []struct {
		Query string `json:"query"`
		Goal  string `json:"goal"`
	} `json:"followUpQuestions"`
}

// Process extracts up to nLearnings learnings and nFollowUps follow-up
// queries from docs. Empty content and parse failures yield an empty
// extraction, never an error: a dry sub-query should not sink a session.
func (p *Processor) Process(ctx context.Context, modelID, query string, docs []models.SearchDoc, nLearnings, nFollowUps int) Extraction {
	contents := contentBlock(docs)
	if contents == "" {
		p.log.Info("No usable content to extract from", "query", query)
		return Extraction{}
	}

	messages := p.builder.BuildExtractMessages(query, contents, nLearnings, nFollowUps)
	text, err := p.client.Chat(ctx, modelID, messages, llm.Params{JSONResponse: true})
	if err != nil {
		p.log.Warn("Extraction failed", "query", query, "error", err)
		return Extraction{}
	}

	var parsed extractResponse
	if !jsonx.Unmarshal(text, "learnings", &parsed) {
		p.log.Warn("Extraction output unparseable", "query", query)
		return Extraction{}
	}

	var out Extraction
	seen := make(map[string]struct{}, len(parsed.Learnings))
	for _, raw := range parsed.Learnings {
		content := models.TruncateLearning(raw)
		if content == "" {
			continue
		}
		key := strings.ToLower(content)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Learnings = append(out.Learnings, models.Learning{Content: content})
		if len(out.Learnings) == nLearnings {
			break
		}
	}

	for _, fu := range parsed.FollowUps {
		if strings.TrimSpace(fu.Query) == "" {
			continue
		}
		out.FollowUps = append(out.FollowUps, models.SerpQuery{
			Query:        fu.Query,
			ResearchGoal: fu.Goal,
		})
		if len(out.FollowUps) == nFollowUps {
			break
		}
	}
	return out
}

// contentBlock concatenates the documents' main text (or snippet when no
// scrape is available) under the per-doc and total character budgets.
func contentBlock(docs []models.SearchDoc) string {
	var sb strings.Builder
	for _, doc := range docs {
		text := doc.MainText
		if text == "" {
			text = doc.Snippet
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if len(text) > maxCharsPerDoc {
			text = strings.ToValidUTF8(text[:maxCharsPerDoc], "")
		}
		if sb.Len()+len(text) > maxTotalContents {
			break
		}
		sb.WriteString("<content url=\"")
		sb.WriteString(doc.URL)
		sb.WriteString("\">\n")
		sb.WriteString(text)
		sb.WriteString("\n</content>\n")
	}
	return strings.TrimSpace(sb.String())
}
