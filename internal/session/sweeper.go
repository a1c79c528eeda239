package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often expired contexts are physically removed.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically removes expired contexts to bound memory for
// subjects who never return.
type Sweeper struct {
	store    *Store
	interval time.Duration
}

// NewSweeper creates a Sweeper over store. A non-positive interval falls
// back to DefaultSweepInterval.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := w.store.Sweep(); removed > 0 {
				slog.Debug("expired conversation contexts removed", "count", removed)
			}
		}
	}
}
