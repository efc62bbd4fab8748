package llm

import (
	"sort"
	"sync"
)

// TokenTracker tracks token usage per model.
type TokenTracker interface {
	// Add records token usage for a model.
	Add(model string, usage TokenUsage)

	// Total returns the aggregate token usage across all models.
	Total() TokenUsage

	// ByModel returns the token usage for a specific model.
	ByModel(model string) TokenUsage

	// Reset clears all tracked token usage.
	Reset()
}

// DefaultTokenTracker is a thread-safe implementation of TokenTracker.
type DefaultTokenTracker struct {
	mu       sync.RWMutex
	models   map[string]TokenUsage
	total    TokenUsage
	requests int
}

// NewTokenTracker creates a new DefaultTokenTracker.
func NewTokenTracker() *DefaultTokenTracker {
	return &DefaultTokenTracker{
		models: make(map[string]TokenUsage),
	}
}

// Add records token usage for a model.
func (t *DefaultTokenTracker) Add(model string, usage TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.models[model] = t.models[model].Add(usage)
	t.total = t.total.Add(usage)
	t.requests++
}

// Total returns the aggregate token usage across all models.
func (t *DefaultTokenTracker) Total() TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

// ByModel returns the token usage for a specific model.
// Returns an empty TokenUsage if the model has not been used.
func (t *DefaultTokenTracker) ByModel(model string) TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.models[model]
}

// Reset clears all tracked token usage.
func (t *DefaultTokenTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.models = make(map[string]TokenUsage)
	t.total = TokenUsage{}
	t.requests = 0
}

// Snapshot is a read-only copy of the tracked usage.
type Snapshot struct {
	// Models contains token usage by model name.
	Models map[string]TokenUsage

	// Total contains aggregate token usage.
	Total TokenUsage

	// Requests is the number of completions recorded.
	Requests int
}

// ModelNames returns the tracked model names in sorted order.
func (s Snapshot) ModelNames() []string {
	names := make([]string, 0, len(s.Models))
	for m := range s.Models {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a snapshot of the current token usage state.
func (t *DefaultTokenTracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	models := make(map[string]TokenUsage, len(t.models))
	for m, usage := range t.models {
		models[m] = usage
	}

	return Snapshot{
		Models:   models,
		Total:    t.total,
		Requests: t.requests,
	}
}
