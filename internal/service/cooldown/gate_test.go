package cooldown

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"FxSentry/internal/domain/models"
)

func TestTryAcquireWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := NewWithClock(func() time.Time { return now })

	if !g.TryAcquire("sub-1", "position-alert", models.LevelExit, 5*time.Minute) {
		t.Fatal("first acquire should succeed")
	}
	now = now.Add(2 * time.Minute)
	if g.TryAcquire("sub-1", "position-alert", models.LevelExit, 5*time.Minute) {
		t.Fatal("acquire inside window should fail")
	}
	now = now.Add(4 * time.Minute)
	if !g.TryAcquire("sub-1", "position-alert", models.LevelExit, 5*time.Minute) {
		t.Fatal("acquire after window should succeed")
	}
}

func TestTryAcquireKeysAreIndependent(t *testing.T) {
	g := New()
	if !g.TryAcquire("sub-1", "position-alert", models.LevelAdjust, 30*time.Minute) {
		t.Fatal("first key should acquire")
	}
	if !g.TryAcquire("sub-2", "position-alert", models.LevelAdjust, 30*time.Minute) {
		t.Fatal("different subscriber should acquire")
	}
	if !g.TryAcquire("sub-1", "signal-change", models.LevelAdjust, 30*time.Minute) {
		t.Fatal("different topic should acquire")
	}
}

func TestBypassRecordsTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := NewWithClock(func() time.Time { return now })

	g.Bypass("sub-1", "position-alert")
	got, ok := g.LastNotified("sub-1", "position-alert")
	if !ok || !got.Equal(now) {
		t.Fatalf("LastNotified = %v, %v; want %v, true", got, ok, now)
	}

	// A bypassed record must not hold a window against later acquires.
	now = now.Add(time.Second)
	if !g.TryAcquire("sub-1", "position-alert", models.LevelExit, 0) {
		t.Fatal("zero-window acquire should succeed after bypass")
	}
}

func TestBypassDoesNotChargeCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := NewWithClock(func() time.Time { return now })

	g.Bypass("sub-1", "position-alert")
	now = now.Add(time.Minute)
	if !g.TryAcquire("sub-1", "position-alert", models.LevelExit, 5*time.Minute) {
		t.Fatal("windowed acquire right after a bypass should succeed")
	}
	now = now.Add(time.Minute)
	if g.TryAcquire("sub-1", "position-alert", models.LevelExit, 5*time.Minute) {
		t.Fatal("second acquire inside its own window should fail")
	}

	// The bypass timestamp stays visible for audit alongside the window.
	g.Bypass("sub-1", "position-alert")
	got, ok := g.LastNotified("sub-1", "position-alert")
	if !ok || !got.Equal(now) {
		t.Fatalf("LastNotified = %v, %v; want %v, true", got, ok, now)
	}
}

func TestTryAcquireAtomicUnderConcurrency(t *testing.T) {
	g := New()
	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire("sub-1", "position-alert", models.LevelExit, time.Hour) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("wins = %d, want exactly 1", got)
	}
}

func TestSweepEvictsStaleEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := NewWithClock(func() time.Time { return now })

	g.TryAcquire("sub-1", "position-alert", models.LevelExit, 5*time.Minute)
	now = now.Add(2 * time.Hour)
	// Any acquire triggers the sweep.
	g.TryAcquire("sub-2", "position-alert", models.LevelExit, 5*time.Minute)

	if _, ok := g.LastNotified("sub-1", "position-alert"); ok {
		t.Fatal("stale entry should have been evicted")
	}
}
