package cache

import (
	"context"
	"sync"

	"github.com/LeventeLantos/drama-notifier/internal/model"
)

// RunStore keeps the latest dispatch summary per trigger so every instance
// can report what the last manual and scheduled runs did.
type RunStore interface {
	SaveRun(ctx context.Context, s model.RunSummary) error
	LastRun(ctx context.Context, trigger model.Trigger) (model.RunSummary, bool, error)
}

type MemoryRunStore struct {
	mu   sync.RWMutex
	last map[model.Trigger]model.RunSummary
}

var _ RunStore = (*MemoryRunStore)(nil)

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{last: map[model.Trigger]model.RunSummary{}}
}

func (m *MemoryRunStore) SaveRun(ctx context.Context, s model.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.last[s.Trigger] = s
	return nil
}

func (m *MemoryRunStore) LastRun(ctx context.Context, trigger model.Trigger) (model.RunSummary, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.last[trigger]
	return s, ok, nil
}
