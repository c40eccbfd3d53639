// Package scheduler runs the background market lifecycle loop: markets whose
// end date has passed are closed on a fixed interval, so they stop taking
// bets even when nobody tries to bet on them.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExpiryCloser is what the scheduler needs from the ledger.
type ExpiryCloser interface {
	CloseExpiredMarkets(ctx context.Context, now time.Time) (int, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler runs the close loop. Call Start(ctx) once from main(); cancel the
// context and call Wait to shut it down gracefully.
type Scheduler struct {
	ledger   ExpiryCloser
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler that sweeps every interval.
func NewScheduler(ledger ExpiryCloser, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		ledger:   ledger,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the background goroutine. It returns immediately; the loop
// runs until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.closeLoop(ctx)
	}()
	s.logger.Info("scheduler started", "close_interval", s.interval)
}

// Wait blocks until the loop has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

// ──────────────────────────────────────────────────────────────────────────────
// closeLoop
// ──────────────────────────────────────────────────────────────────────────────

// closeLoop sweeps once at startup and then on every tick.
func (s *Scheduler) closeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("closeLoop: shutting down")
			return
		case <-ticker.C:
		}
	}
}

// sweep is one pass of closeLoop, split out so the deferred recover keeps the
// loop alive after a panic.
func (s *Scheduler) sweep(ctx context.Context) {
	defer s.recoverAndLog("closeLoop")

	n, err := s.ledger.CloseExpiredMarkets(ctx, s.now())
	if err != nil {
		s.logger.Error("closeLoop: CloseExpiredMarkets", "err", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired markets closed", "count", n)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred around each sweep to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
