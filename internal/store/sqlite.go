package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"whatbeats/internal/logging"
	"whatbeats/internal/types"
)

// SQLiteStore implements Store on a SQLite database. Every mutation is a
// single atomic statement, so several processes may share one database file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (and if needed creates) the database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	logging.Store("Initializing SQLiteStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" coherent and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("Failed to apply %q: %v", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("SQLiteStore ready (sessions, global_tally, rate_windows)")
	return s, nil
}

// initialize creates the required tables.
func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		current_word TEXT NOT NULL,
		history TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		game_over INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS global_tally (
		word TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rate_windows (
		key TEXT NOT NULL,
		window_start INTEGER NOT NULL,
		count INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (key, window_start)
	);
	CREATE INDEX IF NOT EXISTS idx_rate_windows_expires ON rate_windows(expires_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle so other components (the verdict cache)
// can share the same database.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadSession(ctx context.Context, id string) (*types.Session, error) {
	var (
		sess      types.Session
		history   string
		gameOver  int
		createdAt int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, current_word, history, score, game_over, version, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.CurrentWord, &history, &sess.Score, &gameOver, &sess.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(history), &sess.History); err != nil {
		return nil, fmt.Errorf("failed to decode history for session %s: %w", id, err)
	}
	sess.GameOver = gameOver != 0
	sess.CreatedAt = time.Unix(0, createdAt).UTC()
	sess.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &sess, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *types.Session) error {
	history, err := json.Marshal(sess.History)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	var res sql.Result
	if sess.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, current_word, history, score, game_over, version, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			sess.ID, sess.CurrentWord, string(history), sess.Score, boolInt(sess.GameOver),
			sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano(),
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE sessions
			 SET current_word = ?, history = ?, score = ?, game_over = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND version = ?`,
			sess.CurrentWord, string(history), sess.Score, boolInt(sess.GameOver), sess.UpdatedAt.UnixNano(),
			sess.ID, sess.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	if n == 0 {
		logging.StoreDebug("Version conflict saving session %s at version %d", sess.ID, sess.Version)
		return ErrVersionConflict
	}
	sess.Version++
	return nil
}

func (s *SQLiteStore) PutSession(ctx context.Context, sess *types.Session) error {
	history, err := json.Marshal(sess.History)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	var version int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO sessions (id, current_word, history, score, game_over, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			current_word = excluded.current_word,
			history = excluded.history,
			score = excluded.score,
			game_over = excluded.game_over,
			version = sessions.version + 1,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
		 RETURNING version`,
		sess.ID, sess.CurrentWord, string(history), sess.Score, boolInt(sess.GameOver),
		sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano(),
	).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to put session %s: %w", sess.ID, err)
	}
	sess.Version = version
	return nil
}

func (s *SQLiteStore) IncrementTally(ctx context.Context, word string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO global_tally (word, count, updated_at) VALUES (?, 1, ?)
		 ON CONFLICT(word) DO UPDATE SET count = global_tally.count + 1, updated_at = excluded.updated_at
		 RETURNING count`,
		word, time.Now().UnixNano(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment tally for %q: %w", word, err)
	}
	return count, nil
}

func (s *SQLiteStore) GetTally(ctx context.Context, word string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT count FROM global_tally WHERE word = ?`, word).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read tally for %q: %w", word, err)
	}
	return count, nil
}

func (s *SQLiteStore) IncrementWindow(ctx context.Context, key string, windowStart, expiresAt time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO rate_windows (key, window_start, count, expires_at) VALUES (?, ?, 1, ?)
		 ON CONFLICT(key, window_start) DO UPDATE SET count = rate_windows.count + 1
		 RETURNING count`,
		key, windowStart.UnixNano(), expiresAt.UnixNano(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment window for %q: %w", key, err)
	}
	return count, nil
}

func (s *SQLiteStore) PruneCounters(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_windows WHERE expires_at < ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune rate windows: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ResetAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"sessions", "global_tally", "rate_windows"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset: %w", err)
	}
	logging.Store("All sessions, tallies and counters cleared")
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
