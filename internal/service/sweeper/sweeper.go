package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/authkeeper/internal/logger"
)

const defaultInterval = time.Hour

type expiredSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically removes sessions with expired refresh tokens
type Sweeper struct {
	interval time.Duration
	logger   logger.Logger
	target   expiredSweeper
}

func New(interval time.Duration, target expiredSweeper, l logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Sweeper{interval: interval, logger: l, target: target}
}

// Run sweeps on every tick until ctx is done
// Returned channel is closed when the sweeper stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting sweeper", "interval", s.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				n, err := s.target.SweepExpired(ctx)
				if err != nil {
					s.logger.Error("Failed to sweep expired sessions", "error", err)
					continue
				}
				if n > 0 {
					s.logger.Info("Expired sessions swept", "count", n)
				}
			}
		}
	}()

	return idleStopped
}
