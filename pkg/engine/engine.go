// Package engine drives a research session end-to-end: it schedules
// planning, searching, and extraction across a bounded worker pool and
// emits the consumer event stream.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deepresearch/deepresearch/pkg/agent"
	"github.com/deepresearch/deepresearch/pkg/config"
	"github.com/deepresearch/deepresearch/pkg/events"
	"github.com/deepresearch/deepresearch/pkg/llm"
	"github.com/deepresearch/deepresearch/pkg/models"
	"github.com/deepresearch/deepresearch/pkg/search"
)

// ErrInvalidInput reports a request rejected before the session started.
var ErrInvalidInput = errors.New("engine: invalid research request")

// Engine wires the research stages together. Stateless across runs;
// all per-session state lives in a session value.
type Engine struct {
	search    search.Client
	planner   *agent.Planner
	processor *agent.Processor
	reporter  *agent.Reporter
	cfg       config.EngineConfig
	log       *slog.Logger
}

// New builds an Engine on the given collaborators.
func New(searchClient search.Client, llmClient llm.Client, cfg config.EngineConfig) *Engine {
	return &Engine{
		search:    searchClient,
		planner:   agent.NewPlanner(llmClient),
		processor: agent.NewProcessor(llmClient),
		reporter:  agent.NewReporter(llmClient),
		cfg:       cfg,
		log:       slog.With("component", "engine"),
	}
}

// Run executes one research session and closes the stream on exit. The
// request is validated before any event is emitted; violations produce
// a single invalid_input error event and no start. Cancellation yields
// a single cancelled error event.
func (e *Engine) Run(ctx context.Context, userQuery string, opts models.ResearchOptions, stream *events.Stream) error {
	defer stream.Close()

	userQuery = strings.TrimSpace(userQuery)
	if userQuery == "" {
		e.emitDetached(stream, events.NewError("query must not be empty", events.KindInvalidInput))
		return fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = e.cfg.MaxConcurrency
	}
	opts = opts.Clamp()
	if opts.Depth > e.cfg.MaxDepth {
		opts.Depth = e.cfg.MaxDepth
	}
	if opts.Breadth > e.cfg.MaxBreadth {
		opts.Breadth = e.cfg.MaxBreadth
	}

	started := time.Now()
	if err := stream.Send(ctx, events.NewStart(userQuery, opts)); err != nil {
		return e.finishErr(stream, err)
	}

	sess := newSession(opts, opts.Depth, opts.Breadth)

	var err error
	if opts.IsDeep {
		err = e.runDeep(ctx, userQuery, sess, stream)
	} else {
		err = e.runShallow(ctx, userQuery, sess, stream)
	}
	if err != nil {
		return e.finishErr(stream, err)
	}

	report := e.reporter.Write(ctx, opts.ModelID, userQuery,
		sess.snapshotLearnings(), sess.snapshotSources())
	if err := stream.Send(ctx, events.NewContent(report)); err != nil {
		return e.finishErr(stream, err)
	}

	metrics := events.CompleteMetrics{
		TotalTimeSeconds: time.Since(started).Seconds(),
		ModelID:          opts.ModelID,
	}
	if err := stream.Send(ctx, events.NewComplete(metrics)); err != nil {
		return e.finishErr(stream, err)
	}

	e.log.Info("Research session complete",
		"query", userQuery, "deep", opts.IsDeep,
		"learnings", len(sess.snapshotLearnings()),
		"sources", len(sess.snapshotSources()),
		"duration", time.Since(started))
	return nil
}

// runShallow performs the single-search fast path: one search, one
// extraction pass, one report. No learning events are emitted.
func (e *Engine) runShallow(ctx context.Context, userQuery string, sess *session, stream *events.Stream) error {
	docs, err := e.search.Search(ctx, userQuery)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A failed shallow search leaves nothing to report on.
		e.log.Error("Shallow search failed", "query", userQuery, "error", err)
		return err
	}

	if err := stream.Send(ctx, events.NewSearchResults(formatResults(docs))); err != nil {
		return err
	}
	if fresh := sess.addSources(docs); len(fresh) > 0 {
		if err := stream.Send(ctx, events.NewSources(fresh)); err != nil {
			return err
		}
	}

	extraction := e.processor.Process(ctx, sess.opts.ModelID, userQuery, docs, shallowLearningCap, 0)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	for _, l := range extraction.Learnings {
		sess.addLearning(l)
	}
	return nil
}

const shallowLearningCap = 5

// runDeep walks the level-ordered frontier. Sub-queries within a level
// run concurrently under the session's worker bound; levels are strict
// barriers so follow-ups never run before their parents finish.
func (e *Engine) runDeep(ctx context.Context, userQuery string, sess *session, stream *events.Stream) error {
	depth := sess.opts.Depth
	nLearnings := max(2, 5/depth)
	nFollowUps := max(1, 3/depth)

	frontier := []node{{query: userQuery, level: 1}}

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var next []node
		var nextMu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(sess.opts.MaxConcurrency)

		for _, nd := range frontier {
			if nd.level != level {
				continue
			}
			if !sess.visit(nd.query) {
				e.log.Debug("Skipping already-visited query", "query", nd.query, "level", level)
				continue
			}

			planned := e.planner.Plan(gctx, sess.opts.ModelID, nd.query, sess.opts.Breadth,
				sess.snapshotLearnings())
			if gctx.Err() != nil {
				return gctx.Err()
			}

			// Planner dedup is per-plan; the searched set spans the session.
			unique := planned[:0]
			for _, sq := range planned {
				if sess.claimSearch(sq.Query) {
					unique = append(unique, sq)
				}
			}
			sess.addPlanned(len(unique))

			for i, sq := range unique {
				sq, pos := sq, i+1
				g.Go(func() error {
					followUps, err := e.runSubQuery(gctx, sess, stream, sq, level, pos, nLearnings, nFollowUps)
					if err != nil {
						return err
					}
					if level < depth && len(followUps) > 0 {
						nextMu.Lock()
						for _, fu := range followUps {
							next = append(next, node{query: fu.Query, level: level + 1})
						}
						nextMu.Unlock()
					}
					return nil
				})
			}
		}

		if err := g.Wait(); err != nil {
			return err
		}
		frontier = next
	}
	return nil
}

// runSubQuery performs one planned query: progress, search, sources,
// extraction, learnings, progress bump. Provider failures are logged
// and swallowed so one dry sub-query cannot sink the session; only
// stream and cancellation errors propagate.
func (e *Engine) runSubQuery(ctx context.Context, sess *session, stream *events.Stream, sq models.SerpQuery, level, pos, nLearnings, nFollowUps int) ([]models.SerpQuery, error) {
	if err := stream.Send(ctx, events.NewProgress(sess.setCurrent(sq.Query, level, pos))); err != nil {
		return nil, err
	}

	docs, err := e.search.Search(ctx, sq.Query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.log.Warn("Sub-query search failed, skipping",
			"query", sq.Query, "level", level, "error", err)
		return nil, stream.Send(ctx, events.NewProgress(sess.completeQuery()))
	}

	if fresh := sess.addSources(docs); len(fresh) > 0 {
		if err := stream.Send(ctx, events.NewSources(fresh)); err != nil {
			return nil, err
		}
	}

	extraction := e.processor.Process(ctx, sess.opts.ModelID, sq.Query, docs, nLearnings, nFollowUps)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	for _, l := range extraction.Learnings {
		sess.addLearning(l)
		if err := stream.Send(ctx, events.NewLearning(l.Content)); err != nil {
			return nil, err
		}
	}

	if err := stream.Send(ctx, events.NewProgress(sess.completeQuery())); err != nil {
		return nil, err
	}
	return extraction.FollowUps, nil
}

// finishErr translates a run-ending error into the terminal error
// event. Emission uses a detached context: the session context is
// usually already dead here.
func (e *Engine) finishErr(stream *events.Stream, err error) error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		e.emitDetached(stream, events.NewError("research cancelled", events.KindCancelled))
	case errors.Is(err, events.ErrStreamClosed):
		// Consumer went away; nobody is listening for an error event.
	default:
		e.emitDetached(stream, events.NewError(err.Error(), events.KindFatal))
	}
	return err
}

// emitDetached sends with a bounded deadline independent of the session
// context so terminal events still go out after cancellation.
func (e *Engine) emitDetached(stream *events.Stream, ev events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := stream.Send(ctx, ev); err != nil {
		e.log.Debug("Dropping terminal event", "type", ev.Type, "error", err)
	}
}

// formatResults renders the top documents of a search as Markdown.
func formatResults(docs []models.SearchDoc) string {
	if len(docs) == 0 {
		return "_No results found._"
	}
	var sb strings.Builder
	sb.WriteString("### Search Results\n\n")
	for _, doc := range docs {
		title := doc.Title
		if title == "" {
			title = doc.URL
		}
		fmt.Fprintf(&sb, "- [%s](%s)", title, doc.URL)
		if doc.Snippet != "" {
			sb.WriteString(" — ")
			sb.WriteString(doc.Snippet)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
