// Session-scoped persistence of filter criteria
package filter

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoState is returned by Load when nothing has been saved for the session.
var ErrNoState = errors.New("no saved filter criteria")

// Store persists the last-used criteria for one session.
type Store interface {
	Load(ctx context.Context) (Criteria, error)
	Save(ctx context.Context, c Criteria) error
	Clear(ctx context.Context) error
}

// LoadOrDefault reads the saved criteria, falling back to Default when the
// state is absent or unreadable. Loaded criteria are sanitised.
func LoadOrDefault(ctx context.Context, store Store, now time.Time, logger *zap.Logger) Criteria {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		return Default(now)
	}
	c, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoState):
		logger.Debug("no saved filter criteria, using defaults")
		return Default(now)
	case err != nil:
		logger.Warn("discarding unreadable filter criteria", zap.Error(err))
		return Default(now)
	}
	return c.Sanitize(now)
}

// MemoryStore keeps criteria in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	saved *Criteria
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (Criteria, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return Criteria{}, ErrNoState
	}
	return cloneCriteria(*m.saved), nil
}

func (m *MemoryStore) Save(_ context.Context, c Criteria) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := cloneCriteria(c)
	m.saved = &saved
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = nil
	return nil
}

func cloneCriteria(c Criteria) Criteria {
	if c.Tags != nil {
		c.Tags = append([]Condition{}, c.Tags...)
	}
	return c
}
