package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	applogger "FxSentry/pkg/logger"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestSchedulerRejectsBadConfig(t *testing.T) {
	if _, err := New("t", 0, func(context.Context) error { return nil }, testLogger(t)); err == nil {
		t.Fatal("zero interval should fail")
	}
	if _, err := New("t", time.Second, nil, testLogger(t)); err == nil {
		t.Fatal("nil task should fail")
	}
	if _, err := NewDaily("t", 25, func(context.Context) error { return nil }, testLogger(t)); err == nil {
		t.Fatal("hour 25 should fail")
	}
}

func TestSchedulerTicksAndStops(t *testing.T) {
	var ticks atomic.Int32
	s, err := New("t", 10*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	}, testLogger(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	n := ticks.Load()
	if n < 2 {
		t.Fatalf("expected at least 2 ticks, got %d", n)
	}
	time.Sleep(30 * time.Millisecond)
	if ticks.Load() != n {
		t.Fatal("ticks continued after stop")
	}
}

func TestSchedulerSingleFlight(t *testing.T) {
	var inFlight atomic.Int32
	var overlapped atomic.Bool
	s, err := New("t", 5*time.Millisecond, func(context.Context) error {
		if inFlight.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(20 * time.Millisecond) // slower than the interval
		inFlight.Add(-1)
		return nil
	}, testLogger(t), WithRunImmediately())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if overlapped.Load() {
		t.Fatal("ticks overlapped despite single-flight guarantee")
	}
}

func TestSchedulerStartTwice(t *testing.T) {
	s, err := New("t", time.Hour, func(context.Context) error { return nil }, testLogger(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second start should fail")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.Stop(ctx)
}

func TestDailyUntilNext(t *testing.T) {
	s, err := NewDaily("t", 21, func(context.Context) error { return nil }, testLogger(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	now := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	if got := s.untilNext(now); got != time.Hour {
		t.Fatalf("expected 1h, got %v", got)
	}
	past := time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)
	if got := s.untilNext(past); got != 23*time.Hour {
		t.Fatalf("expected 23h, got %v", got)
	}
}
