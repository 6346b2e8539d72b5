package runs

import (
	"context"
	"sort"
	"sync"

	"github.com/mind-engage/mindengage-cohorts/internal/apperr"
)

type Store interface {
	Put(ctx context.Context, r Run) error
	Get(ctx context.Context, id string) (Run, error)
	// List returns runs newest first, without their Result payloads.
	List(ctx context.Context, opts ListOpts) ([]Run, error)
}

type memoryStore struct {
	mu   sync.RWMutex
	runs map[string]Run
}

func NewInMemoryStore() Store {
	return &memoryStore{runs: map[string]Run{}}
}

func (m *memoryStore) Put(_ context.Context, r Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, apperr.NotFound("runs.Get", id, nil)
	}
	return r, nil
}

func (m *memoryStore) List(_ context.Context, opts ListOpts) ([]Run, error) {
	m.mu.RLock()
	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.Fingerprint != "" && r.Fingerprint != opts.Fingerprint {
			continue
		}
		r.Result = nil
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	limit, offset := opts.window()
	if offset >= len(out) {
		return []Run{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
