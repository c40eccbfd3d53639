package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evetabi/wagerbot/internal/scheduler"
)

type closerFunc func(ctx context.Context, now time.Time) (int, error)

func (f closerFunc) CloseExpiredMarkets(ctx context.Context, now time.Time) (int, error) {
	return f(ctx, now)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScheduler_SweepsRepeatedlyUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	closer := closerFunc(func(context.Context, time.Time) (int, error) {
		calls.Add(1)
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := scheduler.NewScheduler(closer, 5*time.Millisecond, quiet())
	s.Start(ctx)

	waitFor(t, func() bool { return calls.Load() >= 3 })
	cancel()
	s.Wait()

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != after {
		t.Error("scheduler kept sweeping after shutdown")
	}
}

func TestScheduler_SurvivesErrorsAndPanics(t *testing.T) {
	var calls atomic.Int32
	closer := closerFunc(func(context.Context, time.Time) (int, error) {
		switch calls.Add(1) {
		case 1:
			return 0, errors.New("store down")
		case 2:
			panic("boom")
		}
		return 0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := scheduler.NewScheduler(closer, time.Millisecond, quiet())
	s.Start(ctx)

	waitFor(t, func() bool { return calls.Load() >= 3 })
	cancel()
	s.Wait()
}
