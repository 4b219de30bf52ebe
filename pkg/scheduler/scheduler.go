package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	applogger "FxSentry/pkg/logger"
)

// Task is invoked on every due tick. Errors are logged, never fatal.
type Task func(ctx context.Context) error

// Option configures a Scheduler.
type Option func(*Scheduler)

// Scheduler drives periodic execution of a single task with a single-flight
// guarantee: a new tick never starts before the previous one finished. Due
// ticks that arrive while a run is in flight are dropped, not queued.
type Scheduler struct {
	name           string
	interval       time.Duration
	task           Task
	logger         *applogger.Logger
	runImmediately bool
	dailyHourUTC   int // -1 means interval mode

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates an interval scheduler.
func New(name string, interval time.Duration, task Task, lgr *applogger.Logger, opts ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler %s: interval must be positive", name)
	}
	if task == nil {
		return nil, fmt.Errorf("scheduler %s: task is required", name)
	}
	s := &Scheduler{
		name:         name,
		interval:     interval,
		task:         task,
		logger:       lgr,
		dailyHourUTC: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewDaily creates a scheduler that fires once per day at the given UTC hour.
func NewDaily(name string, hourUTC int, task Task, lgr *applogger.Logger) (*Scheduler, error) {
	if hourUTC < 0 || hourUTC > 23 {
		return nil, fmt.Errorf("scheduler %s: hour %d out of range", name, hourUTC)
	}
	s, err := New(name, 24*time.Hour, task, lgr)
	if err != nil {
		return nil, err
	}
	s.dailyHourUTC = hourUTC
	return s, nil
}

// WithRunImmediately makes the first tick fire at Start instead of after
// one full interval.
func WithRunImmediately() Option {
	return func(s *Scheduler) { s.runImmediately = true }
}

// Start launches the scheduling loop. It is an error to start twice.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler %s: already started", s.name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.loop(runCtx)
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to finish, up to
// the context deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	done := s.done
	s.started = false
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler %s: stop deadline exceeded", s.name)
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	if s.runImmediately {
		s.runOnce(ctx)
	}

	for {
		delay := s.untilNext(time.Now().UTC())
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		// Serial loop: the next tick cannot fire until runOnce returns,
		// so overdue ticks are dropped rather than overlapped.
		s.runOnce(ctx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	if err := s.task(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled task failed",
			applogger.String("scheduler", s.name),
			applogger.Error(err),
		)
		return
	}
	s.logger.Debug("scheduled task complete",
		applogger.String("scheduler", s.name),
		applogger.Duration("took_ms", time.Since(start)),
	)
}

func (s *Scheduler) untilNext(now time.Time) time.Duration {
	if s.dailyHourUTC < 0 {
		return s.interval
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), s.dailyHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
