// Package modelprep guards model preparation: at most one preparation
// runs per model identifier at a time, and the last successfully applied
// model is tracked so observers can suppress duplicate notifications.
package modelprep

import (
	"context"
	"sync"

	"github.com/snarg/whisperd/internal/metrics"
)

// Guard is a per-key preparation latch. A Prepare call for a model that
// is already being prepared returns immediately as a no-op success; the
// in-flight caller's result is the one that matters. Preparations for
// different models proceed concurrently.
type Guard struct {
	mu          sync.Mutex
	inProgress  map[string]bool
	prepared    map[string]bool
	lastApplied string
}

func NewGuard() *Guard {
	return &Guard{
		inProgress: make(map[string]bool),
		prepared:   make(map[string]bool),
	}
}

// Prepare runs fn under the latch for modelID. The mutex protects only
// the check-and-set, never the preparation itself. On success the model
// is recorded as prepared and becomes the last applied model.
func (g *Guard) Prepare(ctx context.Context, modelID string, fn func(context.Context) error) error {
	g.mu.Lock()
	if g.inProgress[modelID] {
		g.mu.Unlock()
		return nil
	}
	g.inProgress[modelID] = true
	g.mu.Unlock()

	metrics.ModelPreparationsTotal.Inc()
	var err error
	if fn != nil {
		err = fn(ctx)
	}

	g.mu.Lock()
	delete(g.inProgress, modelID)
	if err == nil {
		g.prepared[modelID] = true
		g.lastApplied = modelID
	}
	g.mu.Unlock()
	return err
}

// IsPrepared reports whether modelID has been prepared successfully at
// least once.
func (g *Guard) IsPrepared(modelID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prepared[modelID]
}

// LastApplied returns the most recently applied model, if any.
func (g *Guard) LastApplied() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastApplied, g.lastApplied != ""
}
