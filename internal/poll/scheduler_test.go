package poll_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/greeneye/companion/internal/poll"
)

func TestSchedulerFiresAtBoundaries(t *testing.T) {
	var fired atomic.Int64
	s := poll.NewScheduler(poll.Config{
		Interval:    func(context.Context) time.Duration { return 20 * time.Millisecond },
		Refresh:     func(context.Context) { fired.Add(1) },
		Logger:      zerolog.Nop(),
		MinInterval: time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if n := fired.Load(); n < 3 {
		t.Errorf("fired %d times in 150ms at 20ms interval, want >= 3", n)
	}
}

func TestSchedulerSupersedesInFlightRefresh(t *testing.T) {
	var started, cancelled atomic.Int64
	s := poll.NewScheduler(poll.Config{
		Interval: func(context.Context) time.Duration { return 20 * time.Millisecond },
		// Each refresh outlives the interval, so every new tick must cancel
		// its predecessor rather than piling up behind it.
		Refresh: func(ctx context.Context) {
			started.Add(1)
			<-ctx.Done()
			cancelled.Add(1)
		},
		Logger:      zerolog.Nop(),
		MinInterval: time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// Let the deferred cancellation reach the final refresh.
	deadline := time.Now().Add(time.Second)
	for cancelled.Load() < started.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if n := started.Load(); n < 3 {
		t.Fatalf("started %d refreshes, want >= 3", n)
	}
	if got, want := cancelled.Load(), started.Load(); got != want {
		t.Errorf("cancelled %d of %d refreshes, want all", got, want)
	}
}

func TestSchedulerFloorsInterval(t *testing.T) {
	var fired atomic.Int64
	s := poll.NewScheduler(poll.Config{
		Interval:    func(context.Context) time.Duration { return 0 },
		Refresh:     func(context.Context) { fired.Add(1) },
		Logger:      zerolog.Nop(),
		MinInterval: 30 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// A zero interval clamps to the floor instead of spinning.
	if n := fired.Load(); n > 5 {
		t.Errorf("fired %d times, floor not applied", n)
	}
}

func TestWakeReschedules(t *testing.T) {
	intervals := make(chan time.Duration, 4)
	s := poll.NewScheduler(poll.Config{
		Interval: func(context.Context) time.Duration {
			select {
			case d := <-intervals:
				return d
			default:
				return time.Hour
			}
		},
		Refresh:     func(context.Context) {},
		Logger:      zerolog.Nop(),
		MinInterval: time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// First pass arms a timer an hour out; Wake forces a re-read that
	// picks up the short interval.
	time.Sleep(20 * time.Millisecond)
	intervals <- 10 * time.Millisecond
	s.Wake()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop with its context")
	}
}
