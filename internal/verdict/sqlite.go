package verdict

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"whatbeats/internal/logging"
	"whatbeats/internal/types"
)

// SQLiteCache keeps verdicts in a table of the shared store database, so all
// processes using that database share one cache.
type SQLiteCache struct {
	db  *sql.DB
	now Clock
}

// NewSQLiteCache creates the cache table if needed.
func NewSQLiteCache(db *sql.DB, now Clock) (*SQLiteCache, error) {
	if now == nil {
		now = time.Now
	}
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS verdict_cache (
		challenger TEXT NOT NULL,
		incumbent TEXT NOT NULL,
		persona TEXT NOT NULL,
		beats INTEGER NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (challenger, incumbent, persona)
	);
	CREATE INDEX IF NOT EXISTS idx_verdict_cache_expires ON verdict_cache(expires_at);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize verdict cache: %w", err)
	}
	return &SQLiteCache{db: db, now: now}, nil
}

func (c *SQLiteCache) Lookup(ctx context.Context, key types.VerdictKey) (types.Verdict, bool, error) {
	var (
		v     types.Verdict
		beats int
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT beats, explanation FROM verdict_cache
		 WHERE challenger = ? AND incumbent = ? AND persona = ? AND expires_at > ?`,
		key.Challenger, key.Incumbent, string(key.Persona), c.now().UnixNano(),
	).Scan(&beats, &v.Explanation)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Verdict{}, false, nil
	}
	if err != nil {
		return types.Verdict{}, false, fmt.Errorf("failed to look up %s: %w", key, err)
	}
	v.Beats = beats != 0
	return v, true, nil
}

func (c *SQLiteCache) Store(ctx context.Context, key types.VerdictKey, v types.Verdict, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	beats := 0
	if v.Beats {
		beats = 1
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO verdict_cache (challenger, incumbent, persona, beats, explanation, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(challenger, incumbent, persona) DO UPDATE SET
			beats = excluded.beats,
			explanation = excluded.explanation,
			expires_at = excluded.expires_at`,
		key.Challenger, key.Incumbent, string(key.Persona), beats, v.Explanation, c.now().Add(ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed. Expired rows
// are already invisible to Lookup; purging only reclaims space.
func (c *SQLiteCache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM verdict_cache WHERE expires_at <= ?`, c.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge verdict cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Cache("Purged %d expired verdicts", n)
	}
	return n, nil
}
