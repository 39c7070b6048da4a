package cnapi

import (
	"sync"

	"github.com/google/uuid"

	"limitboard/internal/limitup"
)

// DefaultRunHistory is how many finished runs are kept for export reuse.
const DefaultRunHistory = 32

// runRegistry keeps the most recent finished runs keyed by run id, evicting
// the oldest once full.
type runRegistry struct {
	mu    sync.Mutex
	limit int
	order []string
	runs  map[string]*limitup.Result
}

func newRunRegistry(limit int) *runRegistry {
	if limit <= 0 {
		limit = DefaultRunHistory
	}
	return &runRegistry{limit: limit, runs: make(map[string]*limitup.Result, limit)}
}

func (r *runRegistry) add(res *limitup.Result) string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[id] = res
	r.order = append(r.order, id)
	for len(r.order) > r.limit {
		delete(r.runs, r.order[0])
		r.order = r.order[1:]
	}
	return id
}

func (r *runRegistry) get(id string) (*limitup.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.runs[id]
	return res, ok
}

func (r *runRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}
