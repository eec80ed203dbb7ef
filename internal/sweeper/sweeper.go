// Package sweeper runs the expiry sweep (C6): a periodic tick that clears
// expired manual-drive locks and gives the dispatcher a chance to run. It is
// adapted from the reference gateway's safety/timeout_watchdog.go ticker
// loop, but takes a context.Context rather than a raw done channel, matching
// the newer watchdog.Start(ctx) idiom of the reference gateway's main.go.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tabledelivery/control-core/internal/lock"
)

// Interval is the fixed tick period the specification names.
const Interval = 5 * time.Second

// Sweeper periodically calls lock.Manager.ExpireSweep.
type Sweeper struct {
	lock   *lock.Manager
	logger *zap.Logger
}

func New(l *lock.Manager, logger *zap.Logger) *Sweeper {
	return &Sweeper{lock: l, logger: logger}
}

// Start runs the sweep loop until ctx is canceled. It is meant to be
// launched in its own goroutine: `go sweeper.Start(ctx)`.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.Info("sweeper: stopping")
			}
			return
		case <-ticker.C:
			s.lock.ExpireSweep()
		}
	}
}
