// Package verdict caches judge verdicts so an identical
// (challenger, incumbent, persona) question is asked upstream at most once
// per TTL. Losing the cache only costs extra oracle calls.
package verdict

import (
	"context"
	"time"

	"whatbeats/internal/types"
)

// DefaultTTL is how long a verdict stays valid.
const DefaultTTL = time.Hour

// Cache maps a normalized key to a verdict with expiry. Implementations are
// safe for concurrent use; concurrent stores to one key are last-writer-wins
// and an expired entry is indistinguishable from an absent one.
type Cache interface {
	// Lookup returns the cached verdict and true, or false when absent or expired.
	Lookup(ctx context.Context, key types.VerdictKey) (types.Verdict, bool, error)

	// Store records v for key until ttl elapses.
	Store(ctx context.Context, key types.VerdictKey, v types.Verdict, ttl time.Duration) error
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time
