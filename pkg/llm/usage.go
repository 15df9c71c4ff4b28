package llm

import "sync"

// Usage is the token accounting block providers attach to completions.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageTracker accumulates token usage per model across a process.
// Safe for concurrent use.
type UsageTracker struct {
	mu       sync.Mutex
	perModel map[string]Usage
	requests int
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{perModel: make(map[string]Usage)}
}

// Record adds one completion's usage to the model's running totals.
func (t *UsageTracker) Record(modelID string, u Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.perModel[modelID]
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
	t.perModel[modelID] = total
	t.requests++
}

// Snapshot returns a copy of the per-model totals and the request count.
func (t *UsageTracker) Snapshot() (map[string]Usage, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Usage, len(t.perModel))
	for k, v := range t.perModel {
		out[k] = v
	}
	return out, t.requests
}
