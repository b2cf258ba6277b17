package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"whatbeats/internal/config"
	"whatbeats/internal/logging"
	"whatbeats/internal/oracle"
	"whatbeats/internal/ratelimit"
	"whatbeats/internal/server"
	"whatbeats/internal/verdict"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the game API along with the background cache sweeper and, when the
config file exists, a watcher that applies log level changes without a restart.

Endpoints:
  POST   /api/new-game
  POST   /api/guess
  GET    /api/history/{id}
  GET    /api/stats/{word}
  DELETE /api/reset/{id}
  GET    /health`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}()

	cache, purgers, err := openCache(cfg, st)
	if err != nil {
		return fmt.Errorf("failed to open verdict cache: %w", err)
	}
	purgers = append(purgers, prunePurger(st))

	judge, err := oracle.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create oracle: %w", err)
	}

	engine := newEngine(cfg, st, cache, judge)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(st, cfg.RateLimit.Limit, cfg.GetRateLimitWindow())
	}

	srv := server.New(engine, limiter, server.Options{
		Addr:              cfg.Server.Addr,
		ReadHeaderTimeout: cfg.GetReadHeaderTimeout(),
		ShutdownTimeout:   cfg.GetShutdownTimeout(),
		MaxConnections:    cfg.Server.MaxConnections,
	})

	logger.Info("Starting whatbeats",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr),
		zap.String("oracle", cfg.Oracle.Provider),
		zap.String("store", cfg.Store.Backend),
		zap.String("cache", cfg.Cache.Backend),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		return verdict.Sweep(gctx, cfg.GetSweepInterval(), purgers...)
	})
	if _, err := os.Stat(configPath); err == nil {
		g.Go(func() error {
			return config.Watch(gctx, configPath, applyReload)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("whatbeats stopped")
	return nil
}

// applyReload applies the settings that can change without a restart.
func applyReload(next *config.Config) {
	if verbose {
		return
	}
	if err := logging.SetLevel(next.Logging.Level); err != nil {
		logger.Warn("Ignoring invalid log level", zap.String("level", next.Logging.Level), zap.Error(err))
		return
	}
	logger.Info("Log level updated", zap.String("level", logging.Level()))
}
