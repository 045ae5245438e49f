// Package poll drives periodic registry and sensor refreshes aligned to
// wall-clock boundaries, so an agent configured for a 30 minute sensing
// interval fires at :00 and :30 rather than at an arbitrary offset from
// process start.
package poll

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMinInterval is the floor applied to whatever the interval source
// reports. Matches the settings floor so a misconfigured interval can
// never busy-loop the agent.
const DefaultMinInterval = 5 * time.Second

// IntervalFunc reports the current sensing interval. Called before every
// tick so settings changes take effect at the next boundary.
type IntervalFunc func(ctx context.Context) time.Duration

// RefreshFunc performs one refresh. It must return promptly once its
// context is cancelled; the scheduler cancels it when a newer tick
// supersedes it.
type RefreshFunc func(ctx context.Context)

// Config holds scheduler dependencies.
type Config struct {
	Interval IntervalFunc
	Refresh  RefreshFunc
	Logger   zerolog.Logger

	// MinInterval overrides the interval floor. Zero means DefaultMinInterval.
	MinInterval time.Duration
}

// Scheduler fires refreshes at wall-clock multiples of the sensing
// interval. A tick that arrives while a refresh is still in flight
// supersedes it: the older refresh is cancelled and a fresh one starts.
// Ticks are never queued.
type Scheduler struct {
	interval IntervalFunc
	refresh  RefreshFunc
	logger   zerolog.Logger
	floor    time.Duration
	wake     chan struct{}
}

func NewScheduler(cfg Config) *Scheduler {
	floor := cfg.MinInterval
	if floor <= 0 {
		floor = DefaultMinInterval
	}
	return &Scheduler{
		interval: cfg.Interval,
		refresh:  cfg.Refresh,
		logger:   cfg.Logger.With().Str("component", "poll").Logger(),
		floor:    floor,
		wake:     make(chan struct{}, 1),
	}
}

// Wake makes the scheduler re-read the interval and re-align its next
// tick. Call it after a settings change. Safe from any goroutine; extra
// wakes coalesce.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx ends, firing refreshes at each interval boundary.
// Any in-flight refresh is cancelled on return.
func (s *Scheduler) Run(ctx context.Context) {
	var cancelInflight context.CancelFunc
	defer func() {
		if cancelInflight != nil {
			cancelInflight()
		}
	}()

	for {
		d := s.tickInterval(ctx)
		timer := time.NewTimer(time.Until(nextBoundary(time.Now(), d)))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			s.logger.Debug().Msg("rescheduling after settings change")
			continue
		case <-timer.C:
		}

		if cancelInflight != nil {
			cancelInflight()
		}
		runCtx, cancel := context.WithCancel(ctx)
		cancelInflight = cancel
		go func() {
			defer cancel()
			s.refresh(runCtx)
		}()
	}
}

func (s *Scheduler) tickInterval(ctx context.Context) time.Duration {
	d := s.interval(ctx)
	if d < s.floor {
		return s.floor
	}
	return d
}

// nextBoundary returns the first wall-clock multiple of d strictly after
// now.
func nextBoundary(now time.Time, d time.Duration) time.Time {
	next := now.Truncate(d).Add(d)
	if !next.After(now) {
		next = next.Add(d)
	}
	return next
}
