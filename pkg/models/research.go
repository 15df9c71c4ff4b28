// Package models defines the core data types shared across the research
// pipeline: session options, planned queries, search documents, sources,
// learnings, and progress snapshots.
package models

import "strings"

// Depth/breadth safety caps. Requested values outside [1, Max*] are
// clamped before a session starts.
const (
	MaxDepth   = 5
	MaxBreadth = 5

	// MaxQueryLength caps the length of a single SERP query string.
	MaxQueryLength = 512

	// MaxLearningLength caps a single learning; longer extractions are
	// truncated with an ellipsis.
	MaxLearningLength = 500
)

// ResearchOptions holds the per-session parameters. Built once from the
// request and immutable afterwards.
type ResearchOptions struct {
	IsDeep         bool   `json:"isDeep"`
	Depth          int    `json:"depth"`
	Breadth        int    `json:"breadth"`
	ModelID        string `json:"modelId"`
	MaxConcurrency int    `json:"-"`
}

// Clamp bounds depth, breadth, and concurrency to their valid ranges.
func (o ResearchOptions) Clamp() ResearchOptions {
	if o.Depth < 1 {
		o.Depth = 1
	}
	if o.Depth > MaxDepth {
		o.Depth = MaxDepth
	}
	if o.Breadth < 1 {
		o.Breadth = 1
	}
	if o.Breadth > MaxBreadth {
		o.Breadth = MaxBreadth
	}
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = 1
	}
	return o
}

// SerpQuery is a single search-engine query produced by the planner,
// paired with the goal it is meant to serve.
type SerpQuery struct {
	Query        string `json:"query"`
	ResearchGoal string `json:"researchGoal"`
}

// SearchDoc is one result document returned by the search provider.
// Rank preserves provider order, zero-based.
type SearchDoc struct {
	URL      string
	Title    string
	Snippet  string
	MainText string
	Rank     int
}

// Learning is a single information-dense finding extracted from search
// content. Append-only within a session.
type Learning struct {
	Content string `json:"content"`
}

// Progress is a point-in-time snapshot of session progress. Events carry
// copies of this struct, never shared references.
type Progress struct {
	Percent          float64
	Status           string
	CurrentDepth     int
	TotalDepth       int
	CurrentBreadth   int
	TotalBreadth     int
	CompletedQueries int
	TotalQueries     int
	CurrentQuery     string
}

// NormalizeQuery canonicalizes a query string for dedup: lowercase,
// trimmed, inner whitespace collapsed.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// TruncateLearning enforces the learning length cap.
func TruncateLearning(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= MaxLearningLength {
		return s
	}
	// Cut on a byte boundary, then drop any trailing partial rune.
	cut := strings.ToValidUTF8(s[:MaxLearningLength-3], "")
	return cut + "..."
}
