// Package events defines the consumer-facing research event protocol:
// a tagged union serialized as newline-delimited JSON, and a bounded
// stream that carries events from the engine to the transport.
//
// Ordering contract (per session):
//
//	start                      first event, exactly once
//	sources / learning         a sub-query's sources precede its learnings
//	content                    final report, before complete
//	complete                   last event, exactly once
//
// Consumers must skip unknown event types rather than fail.
package events

import (
	"time"

	"github.com/deepresearch/deepresearch/pkg/models"
)

// Type discriminates the event union.
type Type string

// Recognized event types.
const (
	TypeStart         Type = "start"
	TypeProgress      Type = "progress"
	TypeSearchResults Type = "search_results"
	TypeSources       Type = "sources"
	TypeLearning      Type = "learning"
	TypeContent       Type = "content"
	TypeError         Type = "error"
	TypeComplete      Type = "complete"
)

// Error kinds carried on error events.
const (
	KindCancelled    = "cancelled"
	KindTransient    = "transient"
	KindFatal        = "fatal"
	KindInvalidInput = "invalid_input"
)

// Event is one protocol record. Fields not used by a given type are
// omitted from the JSON encoding.
type Event struct {
	Type      Type                    `json:"type"`
	Query     string                  `json:"query,omitempty"`
	Options   *models.ResearchOptions `json:"options,omitempty"`
	Timestamp string                  `json:"timestamp,omitempty"`
	Progress  *float64                `json:"progress,omitempty"`
	Status    string                  `json:"status,omitempty"`
	Details   *ProgressDetails        `json:"details,omitempty"`
	Content   string                  `json:"content,omitempty"`
	Sources   []models.Source         `json:"sources,omitempty"`
	Kind      string                  `json:"kind,omitempty"`
	Metrics   *CompleteMetrics        `json:"metrics,omitempty"`
}

// ProgressDetails breaks a progress event down by depth, breadth, and
// query counts.
type ProgressDetails struct {
	Depth   Counter      `json:"depth"`
	Breadth Counter      `json:"breadth"`
	Queries QueryCounter `json:"queries"`
}

// Counter is a current/total pair.
type Counter struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// QueryCounter extends Counter with the query currently in flight.
type QueryCounter struct {
	Current      int    `json:"current"`
	Total        int    `json:"total"`
	CurrentQuery string `json:"currentQuery,omitempty"`
}

// CompleteMetrics summarizes a finished session.
type CompleteMetrics struct {
	TotalTimeSeconds float64 `json:"totalTimeSeconds"`
	ModelID          string  `json:"modelId"`
}

// NewStart builds the session-opening event.
func NewStart(query string, opts models.ResearchOptions) Event {
	return Event{
		Type:      TypeStart,
		Query:     query,
		Options:   &opts,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewProgress builds a progress event from a snapshot copy.
func NewProgress(p models.Progress) Event {
	pct := p.Percent
	return Event{
		Type:     TypeProgress,
		Progress: &pct,
		Status:   p.Status,
		Details: &ProgressDetails{
			Depth:   Counter{Current: p.CurrentDepth, Total: p.TotalDepth},
			Breadth: Counter{Current: p.CurrentBreadth, Total: p.TotalBreadth},
			Queries: QueryCounter{
				Current:      p.CompletedQueries,
				Total:        p.TotalQueries,
				CurrentQuery: p.CurrentQuery,
			},
		},
	}
}

// NewSearchResults wraps a Markdown summary of one query's top results.
func NewSearchResults(markdown string) Event {
	return Event{Type: TypeSearchResults, Content: markdown}
}

// NewSources announces newly discovered sources. URLs are unique across
// the whole session; the engine enforces dedup before emission.
func NewSources(sources []models.Source) Event {
	return Event{Type: TypeSources, Sources: sources}
}

// NewLearning announces one extracted learning.
func NewLearning(content string) Event {
	return Event{Type: TypeLearning, Content: content}
}

// NewContent carries the final Markdown report.
func NewContent(report string) Event {
	return Event{Type: TypeContent, Content: report}
}

// NewError reports a session-level failure.
func NewError(message, kind string) Event {
	return Event{Type: TypeError, Content: message, Kind: kind}
}

// NewComplete closes the session.
func NewComplete(metrics CompleteMetrics) Event {
	return Event{Type: TypeComplete, Metrics: &metrics}
}
