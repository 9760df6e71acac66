package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically runs the queue's bookkeeping passes: expiring
// pending items past their TTL and reverting stale selections back to
// pending. Both passes are safe to run at any time; reads never depend
// on sweep timing.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSweeper creates a Sweeper running the given manager's sweeps at the
// given interval. An interval of zero or less defaults to 15 minutes.
func NewSweeper(manager *Manager, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		manager:  manager,
		interval: interval,
		logger:   logger.With("component", "queue_sweeper"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop signals the loop to exit and waits for it.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("stopping queue sweeper")
			return

		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	expired, err := s.manager.ExpireOldItems(s.ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
	}

	reset, err := s.manager.ResetStaleSelected(s.ctx)
	if err != nil {
		s.logger.Error("stale selection sweep failed", "error", err)
	}

	if expired > 0 || reset > 0 {
		s.logger.Info("queue sweep completed",
			"expired", expired,
			"stale_reset", reset)
	}
}
