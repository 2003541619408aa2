package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type expiredSessionCloser interface {
	SweepExpired(ctx context.Context, batch int) (int, error)
}

// ExpirySweeper periodically closes sessions whose window elapsed without
// anybody polling or marking them.
type ExpirySweeper struct {
	sessions expiredSessionCloser
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

// NewExpirySweeper builds a sweeper. A non-positive interval disables it.
func NewExpirySweeper(sessions expiredSessionCloser, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySweeper{sessions: sessions, interval: interval, batch: 100, logger: logger}
}

// Start runs the sweep loop until ctx is cancelled. The returned channel is
// closed once the loop has exited.
func (s *ExpirySweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.interval <= 0 {
		s.logger.Info("session expiry sweeper disabled")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
	return done
}

// RunOnce drains expired sessions in batches. Errors are logged, never returned.
func (s *ExpirySweeper) RunOnce(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		closed, err := s.sessions.SweepExpired(ctx, s.batch)
		if err != nil {
			s.logger.Warn("session sweep failed", zap.Error(err))
			break
		}
		total += closed
		if closed < s.batch {
			break
		}
	}
	if total > 0 {
		s.logger.Info("expired sessions closed", zap.Int("count", total))
	}
	return total
}
