package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepresearch/deepresearch/pkg/config"
	"github.com/deepresearch/deepresearch/pkg/events"
	"github.com/deepresearch/deepresearch/pkg/llm"
	"github.com/deepresearch/deepresearch/pkg/models"
	"github.com/deepresearch/deepresearch/pkg/ratelimit"
	"github.com/deepresearch/deepresearch/pkg/search"
)

// mockSearch returns scripted docs per query.
type mockSearch struct {
	docs    map[string][]models.SearchDoc
	errs    map[string]error
	queries []string
}

func (m *mockSearch) Search(_ context.Context, query string) ([]models.SearchDoc, error) {
	m.queries = append(m.queries, query)
	if err, ok := m.errs[query]; ok {
		return nil, err
	}
	return m.docs[query], nil
}

// routeLLM dispatches on the stage-identifying phrases in the user
// prompt so one mock serves planning, extraction, and reporting.
type routeLLM struct {
	plan    func(prompt string) string
	extract func(prompt string) string
	report  string
}

func (m *routeLLM) Chat(_ context.Context, _ string, messages []llm.Message, _ llm.Params) (string, error) {
	prompt := messages[len(messages)-1].Content
	switch {
	case strings.Contains(prompt, "SERP queries to research"):
		if m.plan == nil {
			return `{"queries": []}`, nil
		}
		return m.plan(prompt), nil
	case strings.Contains(prompt, "extract a list of learnings"):
		if m.extract == nil {
			return `{"learnings": [], "followUpQuestions": []}`, nil
		}
		return m.extract(prompt), nil
	default:
		return m.report, nil
	}
}

func planJSON(queries ...string) string {
	type q struct {
		Query        string `json:"query"`
		ResearchGoal string `json:"researchGoal"`
	}
	qs := make([]q, len(queries))
	for i, s := range queries {
		qs[i] = q{Query: s, ResearchGoal: "goal for " + s}
	}
	b, _ := json.Marshal(map[string]any{"queries": qs})
	return string(b)
}

func extractJSON(learnings []string, followUps ...string) string {
	type fu struct {
		Query string `json:"query"`
		Goal  string `json:"goal"`
	}
	fus := make([]fu, len(followUps))
	for i, s := range followUps {
		fus[i] = fu{Query: s, Goal: "follow " + s}
	}
	b, _ := json.Marshal(map[string]any{"learnings": learnings, "followUpQuestions": fus})
	return string(b)
}

func doc(url string) models.SearchDoc {
	return models.SearchDoc{URL: url, Title: "Title " + url, Snippet: "snippet", MainText: "body text"}
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{MaxConcurrency: 2, MaxDepth: 5, MaxBreadth: 5, EventBufferSize: 64}
}

// run drives a session to completion while draining the stream,
// invoking onEvent (when set) for each event as it arrives.
func run(t *testing.T, e *Engine, ctx context.Context, query string, opts models.ResearchOptions, onEvent func(events.Event)) ([]events.Event, error) {
	t.Helper()
	stream := events.NewStream(events.DefaultBufferSize)

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx, query, opts, stream) }()

	var got []events.Event
	for {
		ev, ok := stream.Recv(context.Background())
		if !ok {
			break
		}
		got = append(got, ev)
		if onEvent != nil {
			onEvent(ev)
		}
	}

	select {
	case err := <-errCh:
		return got, err
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not finish")
		return nil, nil
	}
}

func types(evs []events.Event) []events.Type {
	out := make([]events.Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func count(evs []events.Event, typ events.Type) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestShallowHappyPath(t *testing.T) {
	searcher := &mockSearch{docs: map[string][]models.SearchDoc{
		"who invented the transistor?": {
			doc("https://www.bell-labs.com/history/transistor"),
			doc("https://en.wikipedia.org/wiki/Transistor"),
		},
	}}
	model := &routeLLM{
		extract: func(string) string { return extractJSON([]string{"invented at Bell Labs in 1947"}) },
		report:  "## Introduction\nThe transistor was invented by Bardeen, Brattain, and Shockley.",
	}
	e := New(searcher, model, testEngineConfig())

	got, err := run(t, e, context.Background(), "who invented the transistor?",
		models.ResearchOptions{IsDeep: false, ModelID: "m"}, nil)
	require.NoError(t, err)

	require.Equal(t, []events.Type{
		events.TypeStart, events.TypeSearchResults, events.TypeSources,
		events.TypeContent, events.TypeComplete,
	}, types(got))

	sources := got[2].Sources
	require.Len(t, sources, 2)
	assert.Equal(t, "bell-labs.com", sources[0].Domain)
	assert.Equal(t, "wikipedia.org", sources[1].Domain)

	assert.Contains(t, got[3].Content, "Bardeen")
	assert.Contains(t, got[3].Content, "## Sources")
	require.NotNil(t, got[4].Metrics)
	assert.Equal(t, "m", got[4].Metrics.ModelID)
}

func TestDeepSingleLevel(t *testing.T) {
	searcher := &mockSearch{docs: map[string][]models.SearchDoc{
		"qec codes":      {doc("https://a.example.com/codes")},
		"qec thresholds": {doc("https://b.example.com/thresholds")},
	}}
	model := &routeLLM{
		plan: func(string) string { return planJSON("qec codes", "qec thresholds") },
		extract: func(prompt string) string {
			// Follow-ups returned but never enqueued at the depth cap.
			if strings.Contains(prompt, "qec codes") {
				return extractJSON([]string{"surface codes dominate"}, "lattice surgery")
			}
			return extractJSON([]string{"threshold near 1%"}, "magic state distillation")
		},
		report: "report body",
	}
	e := New(searcher, model, testEngineConfig())

	got, err := run(t, e, context.Background(), "quantum error correction basics",
		models.ResearchOptions{IsDeep: true, Depth: 1, Breadth: 2, ModelID: "m"}, nil)
	require.NoError(t, err)

	assert.Equal(t, events.TypeStart, got[0].Type)
	assert.GreaterOrEqual(t, count(got, events.TypeProgress), 2)
	assert.Equal(t, 2, count(got, events.TypeSources))
	assert.Equal(t, 2, count(got, events.TypeLearning))
	assert.Equal(t, 1, count(got, events.TypeContent))
	assert.Equal(t, events.TypeComplete, got[len(got)-1].Type)

	// Depth 1: the follow-ups were never searched.
	assert.NotContains(t, searcher.queries, "lattice surgery")
	assert.NotContains(t, searcher.queries, "magic state distillation")
}

func TestDeepDuplicateSubQueryPruned(t *testing.T) {
	var planCalls atomic.Int32
	searcher := &mockSearch{docs: map[string][]models.SearchDoc{
		"shared query": {doc("https://a.example.com")},
		"other query":  {doc("https://b.example.com")},
	}}
	model := &routeLLM{
		plan: func(string) string {
			// Every level-2 node plans the same query; only the first
			// claim runs it.
			if planCalls.Add(1) == 1 {
				return planJSON("shared query", "other query")
			}
			return planJSON("shared query")
		},
		extract: func(prompt string) string {
			return extractJSON([]string{"a finding"}, "next question")
		},
		report: "report",
	}
	e := New(searcher, model, testEngineConfig())

	got, err := run(t, e, context.Background(), "root topic",
		models.ResearchOptions{IsDeep: true, Depth: 2, Breadth: 2, ModelID: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, events.TypeComplete, got[len(got)-1].Type)

	seen := map[string]int{}
	for _, q := range searcher.queries {
		seen[q]++
	}
	assert.Equal(t, 1, seen["shared query"], "duplicate plans must search once")

	// Completed count matches the number of unique searches.
	var last *events.Event
	for i := range got {
		if got[i].Type == events.TypeProgress {
			last = &got[i]
		}
	}
	require.NotNil(t, last)
	assert.Equal(t, len(searcher.queries), last.Details.Queries.Current)
}

func TestSourceURLsUniqueAcrossSubQueries(t *testing.T) {
	shared := doc("https://shared.example.com/page")
	searcher := &mockSearch{docs: map[string][]models.SearchDoc{
		"q1": {shared, doc("https://only-q1.example.com")},
		"q2": {shared, doc("https://only-q2.example.com")},
	}}
	model := &routeLLM{
		plan:    func(string) string { return planJSON("q1", "q2") },
		extract: func(string) string { return extractJSON([]string{"a finding"}) },
		report:  "report",
	}
	e := New(searcher, model, testEngineConfig())

	got, err := run(t, e, context.Background(), "topic",
		models.ResearchOptions{IsDeep: true, Depth: 1, Breadth: 2, ModelID: "m"}, nil)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, ev := range got {
		if ev.Type != events.TypeSources {
			continue
		}
		for _, src := range ev.Sources {
			seen[src.URL]++
		}
	}
	assert.Len(t, seen, 3)
	for url, n := range seen {
		assert.Equal(t, 1, n, "url %s emitted more than once", url)
	}
}

func TestPerQueryFailureIsolated(t *testing.T) {
	searcher := &mockSearch{
		docs: map[string][]models.SearchDoc{"query a": {doc("https://a.example.com")}},
		errs: map[string]error{"query b": errors.New("provider_error")},
	}
	model := &routeLLM{
		plan:    func(string) string { return planJSON("query a", "query b") },
		extract: func(string) string { return extractJSON([]string{"only finding"}) },
		report:  "report",
	}
	e := New(searcher, model, testEngineConfig())

	got, err := run(t, e, context.Background(), "topic",
		models.ResearchOptions{IsDeep: true, Depth: 1, Breadth: 2, ModelID: "m"}, nil)
	require.NoError(t, err)

	assert.Zero(t, count(got, events.TypeError), "per-query failures stay off the stream")
	assert.Equal(t, 1, count(got, events.TypeSources))
	assert.Equal(t, 1, count(got, events.TypeLearning))
	assert.Equal(t, 1, count(got, events.TypeContent))
	assert.Equal(t, events.TypeComplete, got[len(got)-1].Type)
}

func TestCancellationMidFlight(t *testing.T) {
	block := make(chan struct{})
	searcher := &mockSearch{docs: map[string][]models.SearchDoc{
		"q1": {doc("https://a.example.com")},
		"q2": {doc("https://b.example.com")},
	}}
	model := &routeLLM{
		plan: func(string) string { return planJSON("q1", "q2") },
		extract: func(prompt string) string {
			if strings.Contains(prompt, "q2") {
				<-block // hold the second worker until cancel lands
			}
			return extractJSON([]string{"finding from " + prompt[:2]})
		},
		report: "report",
	}
	e := New(searcher, model, config.EngineConfig{MaxConcurrency: 1, MaxDepth: 5, MaxBreadth: 5})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got, err := run(t, e, ctx, "topic",
		models.ResearchOptions{IsDeep: true, Depth: 1, Breadth: 2, ModelID: "m"},
		func(ev events.Event) {
			if ev.Type == events.TypeLearning {
				cancel()
				close(block)
			}
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, count(got, events.TypeError), "exactly one cancel event")
	last := got[len(got)-1]
	assert.Equal(t, events.TypeError, last.Type)
	assert.Equal(t, events.KindCancelled, last.Kind)
	assert.Zero(t, count(got, events.TypeContent))
}

func TestInvalidInputRejectedBeforeStart(t *testing.T) {
	e := New(&mockSearch{}, &routeLLM{}, testEngineConfig())

	got, err := run(t, e, context.Background(), "   ", models.ResearchOptions{}, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	require.Len(t, got, 1)
	assert.Equal(t, events.TypeError, got[0].Type)
	assert.Equal(t, events.KindInvalidInput, got[0].Kind)
}

func TestRateLimitedProviderRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data": [{"url": "https://example.com", "title": "ok", "markdown": "body"}]}`)
	}))
	defer srv.Close()

	limiter := ratelimit.New(ratelimit.Config{RPM: 600})
	searcher := search.NewHTTPClient(config.SearchProviderConfig{
		APIKey: "k", BaseURL: srv.URL, TimeoutMs: 5000, Limit: 5,
	}, limiter)
	model := &routeLLM{
		extract: func(string) string { return extractJSON([]string{"finding"}) },
		report:  "report",
	}
	e := New(searcher, model, testEngineConfig())

	started := time.Now()
	got, err := run(t, e, context.Background(), "rate limited topic",
		models.ResearchOptions{IsDeep: false, ModelID: "m"}, nil)
	require.NoError(t, err)

	assert.Zero(t, count(got, events.TypeError))
	assert.Equal(t, events.TypeComplete, got[len(got)-1].Type)
	assert.GreaterOrEqual(t, time.Since(started), time.Second,
		"the Retry-After hold is served before the retry")
}

func TestEmptyResultsStillComplete(t *testing.T) {
	searcher := &mockSearch{docs: map[string][]models.SearchDoc{}}
	model := &routeLLM{
		plan:   func(string) string { return planJSON("dry query") },
		report: "nothing found",
	}
	e := New(searcher, model, testEngineConfig())

	got, err := run(t, e, context.Background(), "obscure topic",
		models.ResearchOptions{IsDeep: true, Depth: 2, Breadth: 2, ModelID: "m"}, nil)
	require.NoError(t, err)

	assert.Zero(t, count(got, events.TypeSources))
	assert.Zero(t, count(got, events.TypeLearning))
	assert.Equal(t, 1, count(got, events.TypeContent))
	assert.Equal(t, events.TypeComplete, got[len(got)-1].Type)

	for _, ev := range got {
		if ev.Type == events.TypeContent {
			assert.Contains(t, ev.Content, "## Sources",
				"the heading survives a session with no sources")
		}
	}
}

func TestOptionsClampedOnStart(t *testing.T) {
	searcher := &mockSearch{docs: map[string][]models.SearchDoc{}}
	model := &routeLLM{report: "r"}
	e := New(searcher, model, config.EngineConfig{MaxConcurrency: 2, MaxDepth: 3, MaxBreadth: 3})

	got, err := run(t, e, context.Background(), "topic",
		models.ResearchOptions{IsDeep: true, Depth: 99, Breadth: 99, ModelID: "m"}, nil)
	require.NoError(t, err)

	require.NotNil(t, got[0].Options)
	assert.Equal(t, 3, got[0].Options.Depth)
	assert.Equal(t, 3, got[0].Options.Breadth)
}
