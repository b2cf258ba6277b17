package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"whatbeats/internal/config"
	"whatbeats/internal/game"
	"whatbeats/internal/moderation"
	"whatbeats/internal/oracle"
	"whatbeats/internal/store"
	"whatbeats/internal/types"
	"whatbeats/internal/verdict"
)

// openStore opens the configured session/tally store.
func openStore(c *config.Config) (store.Store, error) {
	switch c.Store.Backend {
	case "memory":
		logger.Warn("Using the in-memory store; state is lost on exit")
		return store.NewMemoryStore(), nil
	case "sqlite", "":
		st, err := store.NewSQLiteStore(c.Store.DatabasePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}
}

// openCache opens the configured verdict cache and returns the purgers the
// sweeper should run for it.
func openCache(c *config.Config, st store.Store) (verdict.Cache, []verdict.Purger, error) {
	switch c.Cache.Backend {
	case "memory":
		mc, err := verdict.NewMemoryCache(c.Cache.Size, nil)
		if err != nil {
			return nil, nil, err
		}
		return mc, nil, nil
	case "sqlite", "":
		sq, ok := st.(*store.SQLiteStore)
		if !ok {
			return nil, nil, fmt.Errorf("sqlite cache backend requires the sqlite store backend")
		}
		sc, err := verdict.NewSQLiteCache(sq.DB(), nil)
		if err != nil {
			return nil, nil, err
		}
		return sc, []verdict.Purger{sc}, nil
	default:
		return nil, nil, fmt.Errorf("invalid cache backend: %s", c.Cache.Backend)
	}
}

// newEngine builds the engine. judge may be nil for commands that never
// submit guesses.
func newEngine(c *config.Config, st store.Store, cache verdict.Cache, judge oracle.Oracle) *game.Engine {
	return game.New(st, cache, judge, moderation.New(), game.Config{
		DefaultSeed:    c.Game.DefaultSeed,
		MaxGuessLength: c.Game.MaxGuessLength,
		HistoryTail:    c.Game.HistoryTail,
		DefaultPersona: types.ParsePersona(c.Game.DefaultPersona),
		VerdictTTL:     c.GetCacheTTL(),
	})
}

// openAdminEngine wires an engine for the one-shot operator commands.
func openAdminEngine() (*game.Engine, func(), error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	cache, _, err := openCache(cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := st.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	return newEngine(cfg, st, cache, nil), closeFn, nil
}

// prunePurger drops expired rate-limit windows.
func prunePurger(st store.CounterStore) verdict.Purger {
	return verdict.PurgeFunc(func(ctx context.Context) (int64, error) {
		return st.PruneCounters(ctx, time.Now())
	})
}
