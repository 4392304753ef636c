package coach

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/breatheroute/pacekeeper/internal/pace"
	"github.com/breatheroute/pacekeeper/internal/position"
)

// ErrRunNotFound is returned when a run id is unknown to the registry or
// belongs to another runner.
var ErrRunNotFound = errors.New("run not found")

// Run is a registered runner together with the push feed its fixes arrive on.
type Run struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time
	Runner    *Runner
	Feed      *position.Feed
}

// RunFactory builds the runner and feed for a new run.
type RunFactory func(id string, cfg pace.RunConfig) (*Runner, *position.Feed)

// Registry keys runs by id. It is safe for concurrent use. Runs stay
// registered until deleted or evicted by EvictIdle.
type Registry struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	build RunFactory
	clock func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(build RunFactory) *Registry {
	return &Registry{
		runs:  make(map[string]*Run),
		build: build,
		clock: time.Now,
	}
}

// Create registers a new idle run for ownerID.
func (r *Registry) Create(ownerID string, cfg pace.RunConfig) *Run {
	id := uuid.New().String()
	runner, feed := r.build(id, cfg)

	run := &Run{
		ID:        id,
		OwnerID:   ownerID,
		CreatedAt: r.clock().UTC(),
		Runner:    runner,
		Feed:      feed,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[id] = run
	return run
}

// Get returns the run with the given id owned by ownerID.
func (r *Registry) Get(ownerID, id string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok || run.OwnerID != ownerID {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// List returns the runs owned by ownerID, oldest first.
func (r *Registry) List(ownerID string) []*Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var runs []*Run
	for _, run := range r.runs {
		if run.OwnerID == ownerID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs
}

// Delete resets and removes a run.
func (r *Registry) Delete(ownerID, id string) error {
	r.mu.Lock()
	run, ok := r.runs[id]
	if !ok || run.OwnerID != ownerID {
		r.mu.Unlock()
		return ErrRunNotFound
	}
	delete(r.runs, id)
	r.mu.Unlock()

	run.Runner.Reset()
	return nil
}

// EvictIdle removes runs that have had no active attempt for at least
// maxIdle and returns their ids. Running runs are never evicted.
func (r *Registry) EvictIdle(maxIdle time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, run := range r.runs {
		idle, ok := run.Runner.IdleFor()
		if !ok || idle < maxIdle {
			continue
		}
		delete(r.runs, id)
		evicted = append(evicted, id)
	}
	sort.Strings(evicted)
	return evicted
}

// Sweep calls EvictIdle every interval until ctx is done, passing the
// evicted ids to onEvict.
func (r *Registry) Sweep(ctx context.Context, interval, maxIdle time.Duration, onEvict func(ids []string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ids := r.EvictIdle(maxIdle); len(ids) > 0 && onEvict != nil {
				onEvict(ids)
			}
		}
	}
}

// Len returns the number of registered runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// Shutdown resets every run.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	runs := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	r.mu.RUnlock()

	for _, run := range runs {
		run.Runner.Reset()
	}
}
