package verdict

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"whatbeats/internal/logging"
	"whatbeats/internal/types"
)

type memoryEntry struct {
	verdict   types.Verdict
	expiresAt time.Time
}

// MemoryCache is a bounded in-process cache. Least recently used entries are
// evicted once size is reached; expiry is checked on read.
type MemoryCache struct {
	entries *lru.Cache[types.VerdictKey, memoryEntry]
	now     Clock
}

// NewMemoryCache returns a cache holding at most size entries.
func NewMemoryCache(size int, now Clock) (*MemoryCache, error) {
	if now == nil {
		now = time.Now
	}
	entries, err := lru.New[types.VerdictKey, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create verdict LRU: %w", err)
	}
	return &MemoryCache{entries: entries, now: now}, nil
}

func (c *MemoryCache) Lookup(ctx context.Context, key types.VerdictKey) (types.Verdict, bool, error) {
	e, ok := c.entries.Get(key)
	if !ok {
		return types.Verdict{}, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		// Remove only if nobody refreshed the entry meanwhile.
		if cur, ok := c.entries.Peek(key); ok && cur.expiresAt.Equal(e.expiresAt) {
			c.entries.Remove(key)
		}
		logging.CacheDebug("Expired verdict for %s", key)
		return types.Verdict{}, false, nil
	}
	return e.verdict, true, nil
}

func (c *MemoryCache) Store(ctx context.Context, key types.VerdictKey, v types.Verdict, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.entries.Add(key, memoryEntry{verdict: v, expiresAt: c.now().Add(ttl)})
	return nil
}

// Len reports the number of entries, expired or not.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
