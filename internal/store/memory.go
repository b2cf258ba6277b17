package store

import (
	"context"
	"sync"
	"time"

	"whatbeats/internal/types"
)

type windowKey struct {
	key   string
	start int64
}

type windowCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore keeps all state in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
	tally    map[string]int64
	windows  map[windowKey]*windowCounter
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*types.Session),
		tally:    make(map[string]int64),
		windows:  make(map[windowKey]*windowCounter),
	}
}

func (m *MemoryStore) LoadSession(ctx context.Context, id string) (*types.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, s *types.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if cur, ok := m.sessions[s.ID]; ok {
		stored = cur.Version
	}
	if stored != s.Version {
		return ErrVersionConflict
	}
	s.Version = stored + 1
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) PutSession(ctx context.Context, s *types.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if cur, ok := m.sessions[s.ID]; ok {
		stored = cur.Version
	}
	s.Version = stored + 1
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) IncrementTally(ctx context.Context, word string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tally[word]++
	return m.tally[word], nil
}

func (m *MemoryStore) GetTally(ctx context.Context, word string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tally[word], nil
}

func (m *MemoryStore) IncrementWindow(ctx context.Context, key string, windowStart, expiresAt time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := windowKey{key: key, start: windowStart.UnixNano()}
	c, ok := m.windows[k]
	if !ok {
		c = &windowCounter{expiresAt: expiresAt}
		m.windows[k] = c
	}
	c.count++
	return c.count, nil
}

func (m *MemoryStore) PruneCounters(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned int64
	for k, c := range m.windows {
		if c.expiresAt.Before(now) {
			delete(m.windows, k)
			pruned++
		}
	}
	return pruned, nil
}

func (m *MemoryStore) ResetAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = make(map[string]*types.Session)
	m.tally = make(map[string]int64)
	m.windows = make(map[windowKey]*windowCounter)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
