package history

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps runs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]Run
	// IDs, most recent first
	order []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]Run)}
}

func (m *MemoryStore) Record(ctx context.Context, run Run) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	run = prepare(run)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.ID]; !exists {
		m.order = append(m.order, run.ID)
	}
	m.runs[run.ID] = run
	// Stable sort keeps insertion order for equal start times, newest first.
	sort.SliceStable(m.order, func(i, j int) bool {
		return m.runs[m.order[i]].StartedAt.After(m.runs[m.order[j]].StartedAt)
	})
	return run, nil
}

func (m *MemoryStore) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.normalized()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if opts.Start >= len(m.order) {
		return []Run{}, nil
	}
	end := min(opts.Start+opts.Limit, len(m.order))
	out := make([]Run, 0, end-opts.Start)
	for _, id := range m.order[opts.Start:end] {
		out = append(out, m.runs[id])
	}
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[id]; !ok {
		return ErrNotFound
	}
	delete(m.runs, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) Totals(ctx context.Context) (Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var t Totals
	for _, run := range m.runs {
		t.add(run)
	}
	return t, nil
}

func (m *MemoryStore) Close() error { return nil }
