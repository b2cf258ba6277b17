// Package store persists sessions, the global tally, and windowed counters.
//
// Two backends are provided: MemoryStore for a single process and tests, and
// SQLiteStore for durable storage shared by every process pointed at the same
// database file.
package store

import (
	"context"
	"errors"
	"time"

	"whatbeats/internal/types"
)

var (
	// ErrNotFound is returned when a session id has no stored state.
	ErrNotFound = errors.New("store: not found")

	// ErrVersionConflict is returned by SaveSession when the stored version
	// no longer matches the version the caller loaded.
	ErrVersionConflict = errors.New("store: version conflict")
)

// SessionStore holds per-session state.
type SessionStore interface {
	// LoadSession returns a private copy of the stored session or ErrNotFound.
	LoadSession(ctx context.Context, id string) (*types.Session, error)

	// SaveSession writes s only if the stored version equals s.Version
	// (zero means "must not exist yet"). On success s.Version is advanced
	// to the stored value.
	SaveSession(ctx context.Context, s *types.Session) error

	// PutSession writes s unconditionally and bumps the stored version so
	// that in-flight optimistic writers lose.
	PutSession(ctx context.Context, s *types.Session) error
}

// TallyStore holds the global per-word acceptance counts.
type TallyStore interface {
	// IncrementTally atomically adds one to word's count and returns the new value.
	IncrementTally(ctx context.Context, word string) (int64, error)

	// GetTally returns word's count, zero if it has never been accepted.
	GetTally(ctx context.Context, word string) (int64, error)
}

// CounterStore holds short-lived fixed-window counters.
type CounterStore interface {
	// IncrementWindow adds one to the counter for (key, windowStart) and
	// returns the new value. The counter may be discarded after expiresAt.
	IncrementWindow(ctx context.Context, key string, windowStart, expiresAt time.Time) (int64, error)

	// PruneCounters deletes counters that expired before now.
	PruneCounters(ctx context.Context, now time.Time) (int64, error)
}

// Store is the full persistence surface consumed by the engine and server.
type Store interface {
	SessionStore
	TallyStore
	CounterStore

	// ResetAll deletes every session, tally entry and counter.
	ResetAll(ctx context.Context) error

	Close() error
}
