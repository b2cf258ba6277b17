package verdict

import (
	"context"
	"time"

	"whatbeats/internal/logging"
)

// Purger is anything that can drop expired rows.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// PurgeFunc adapts a function to Purger.
type PurgeFunc func(ctx context.Context) (int64, error)

func (f PurgeFunc) Purge(ctx context.Context) (int64, error) { return f(ctx) }

// Sweep calls every purger once per interval until ctx is done.
// Failures are logged and retried on the next tick.
func Sweep(ctx context.Context, interval time.Duration, purgers ...Purger) error {
	if len(purgers) == 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, p := range purgers {
				if _, err := p.Purge(ctx); err != nil && ctx.Err() == nil {
					logging.Get(logging.CategoryCache).Warn("Sweep failed: %v", err)
				}
			}
		}
	}
}
