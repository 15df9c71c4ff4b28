package engine

import (
	"sync"

	"github.com/deepresearch/deepresearch/pkg/models"
)

// node is one frontier entry: a query to plan at a given level.
type node struct {
	query string
	level int
}

// session holds all mutable per-run state. Every field below the mutex
// is touched by multiple workers; reads and writes go through the
// methods, which copy on the way out.
type session struct {
	opts models.ResearchOptions

	mu        sync.Mutex
	sourceSet map[string]struct{}
	sources   []models.Source
	learnings []models.Learning
	visited   map[string]struct{}
	searched  map[string]struct{}
	progress  models.Progress
}

func newSession(opts models.ResearchOptions, totalDepth, totalBreadth int) *session {
	return &session{
		opts:      opts,
		sourceSet: make(map[string]struct{}),
		visited:   make(map[string]struct{}),
		searched:  make(map[string]struct{}),
		progress: models.Progress{
			Status:     "starting",
			TotalDepth: totalDepth, TotalBreadth: totalBreadth,
		},
	}
}

// visit atomically checks and inserts a frontier node's normalized
// query. Returns false when the node was already expanded; duplicate
// follow-ups are discarded here, at dequeue time.
func (s *session) visit(query string) bool {
	return checkAndInsert(s, s.visited, query)
}

// claimSearch atomically checks and inserts a planned sub-query so the
// same search never runs twice in one session.
func (s *session) claimSearch(query string) bool {
	return checkAndInsert(s, s.searched, query)
}

func checkAndInsert(s *session, set map[string]struct{}, query string) bool {
	key := models.NormalizeQuery(query)
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := set[key]; seen {
		return false
	}
	set[key] = struct{}{}
	return true
}

// addSources folds docs into the session source set and returns only
// the sources whose URL was not seen before, in rank order.
func (s *session) addSources(docs []models.SearchDoc) []models.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fresh []models.Source
	for _, doc := range docs {
		src, ok := models.SourceFromDoc(doc)
		if !ok {
			continue
		}
		if _, dup := s.sourceSet[src.URL]; dup {
			continue
		}
		s.sourceSet[src.URL] = struct{}{}
		s.sources = append(s.sources, src)
		fresh = append(fresh, src)
	}
	return fresh
}

// addLearning appends one learning. Session learnings are append-only.
func (s *session) addLearning(l models.Learning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learnings = append(s.learnings, l)
}

// snapshotLearnings returns a copy of the accumulated learnings.
func (s *session) snapshotLearnings() []models.Learning {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Learning, len(s.learnings))
	copy(out, s.learnings)
	return out
}

// snapshotSources returns a copy of the accumulated sources in
// discovery order.
func (s *session) snapshotSources() []models.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// addPlanned grows the progress denominator after a plan lands.
func (s *session) addPlanned(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.TotalQueries += n
}

// setCurrent updates the in-flight query and level, returning a
// snapshot for emission.
func (s *session) setCurrent(query string, level, breadthPos int) models.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.Status = "researching"
	s.progress.CurrentQuery = query
	s.progress.CurrentDepth = level
	s.progress.CurrentBreadth = breadthPos
	return s.progress
}

// completeQuery bumps the completed counter, recomputes the percentage,
// and returns a snapshot for emission. Failed sub-queries count too, so
// progress always reaches its denominator.
func (s *session) completeQuery() models.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.CompletedQueries++
	total := s.progress.TotalQueries
	if total < 1 {
		total = 1
	}
	s.progress.Percent = 100 * float64(s.progress.CompletedQueries) / float64(total)
	return s.progress
}
