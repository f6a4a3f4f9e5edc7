package ledger

import (
	"context"
	"fmt"
	"sync"

	"gouncertain/domain/core"
	"gouncertain/domain/run"
	"gouncertain/ports"
)

var _ ports.LedgerPort = (*InMemoryLedger)(nil)

// InMemoryLedger keeps the most recent runs in process memory. Once capacity
// is reached the oldest run is evicted.
type InMemoryLedger struct {
	capacity int
	runs     map[core.RunID]*run.Result
	order    []core.RunID // oldest first
	mu       sync.RWMutex
}

// NewInMemoryLedger creates a ledger holding at most capacity runs
func NewInMemoryLedger(capacity int) *InMemoryLedger {
	if capacity <= 0 {
		capacity = 1
	}
	return &InMemoryLedger{
		capacity: capacity,
		runs:     make(map[core.RunID]*run.Result),
	}
}

func (l *InMemoryLedger) StoreRun(ctx context.Context, result *run.Result) error {
	if result == nil || result.Manifest == nil {
		return fmt.Errorf("cannot store a run without a manifest")
	}
	id := result.Manifest.RunID

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.runs[id]; exists {
		return fmt.Errorf("run %s already stored", id)
	}
	if len(l.order) == l.capacity {
		delete(l.runs, l.order[0])
		l.order = l.order[1:]
	}
	l.runs[id] = result
	l.order = append(l.order, id)
	return nil
}

func (l *InMemoryLedger) GetRun(ctx context.Context, runID core.RunID) (*run.Result, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result, ok := l.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return result, nil
}

func (l *InMemoryLedger) ListRuns(ctx context.Context, limit int) ([]*run.Manifest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.order)
	if limit > 0 && limit < n {
		n = limit
	}
	manifests := make([]*run.Manifest, 0, n)
	for i := len(l.order) - 1; i >= 0 && len(manifests) < n; i-- {
		manifests = append(manifests, l.runs[l.order[i]].Manifest)
	}
	return manifests, nil
}
