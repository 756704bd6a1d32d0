package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/kpi-insights/internal/model"
)

// MemoryStore keeps runs in process memory. History is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*model.Run
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*model.Run)}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Ping(context.Context) error    { return nil }
func (m *MemoryStore) Close() error                  { return nil }

func (m *MemoryStore) CreateRun(_ context.Context, filename string) (*model.Run, error) {
	now := time.Now().UTC()
	r := &model.Run{
		ID:        uuid.New().String(),
		Filename:  filename,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.runs[r.ID] = r
	m.mu.Unlock()

	out := *r
	return &out, nil
}

func (m *MemoryStore) update(runID string, fn func(r *model.Run)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	fn(r)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) UpdateRunStatus(_ context.Context, runID string, status model.RunStatus) error {
	return m.update(runID, func(r *model.Run) { r.Status = status })
}

func (m *MemoryStore) CompleteRun(_ context.Context, runID string, result *model.Result) error {
	return m.update(runID, func(r *model.Run) {
		r.Status = model.RunStatusComplete
		r.Result = result
		r.Error = ""
	})
}

func (m *MemoryStore) FailRun(_ context.Context, runID string, reason string) error {
	return m.update(runID, func(r *model.Run) {
		r.Status = model.RunStatusFailed
		r.Error = reason
	})
}

func (m *MemoryStore) GetRun(_ context.Context, runID string) (*model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	out := *r
	return &out, nil
}

func (m *MemoryStore) LatestCompleted(_ context.Context) (*model.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *model.Run
	for _, r := range m.runs {
		if r.Status != model.RunStatusComplete {
			continue
		}
		if latest == nil || r.UpdatedAt.After(latest.UpdatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]model.Run, error) {
	m.mu.RLock()
	runs := make([]model.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		runs = append(runs, *r)
	}
	m.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if filter.Offset >= len(runs) {
		return []model.Run{}, nil
	}
	runs = runs[filter.Offset:]
	if n := filter.limit(); len(runs) > n {
		runs = runs[:n]
	}
	return runs, nil
}
