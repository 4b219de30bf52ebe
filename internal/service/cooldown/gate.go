package cooldown

import (
	"sync"
	"time"

	"FxSentry/internal/domain/models"
)

type record struct {
	lastNotifiedAt time.Time
	bypassedAt     time.Time
	window         time.Duration
}

func (r *record) lastSeen() time.Time {
	if r.bypassedAt.After(r.lastNotifiedAt) {
		return r.bypassedAt
	}
	return r.lastNotifiedAt
}

// Gate is the per-(subscriber, topic) rate limiter. A single gate instance
// serves all monitors; tryAcquire is atomic per key so concurrent cycles
// cannot double-notify the same subscriber for the same topic.
type Gate struct {
	mu  sync.Mutex
	m   map[string]*record
	now func() time.Time

	lastSweep time.Time
}

// New creates an empty gate.
func New() *Gate {
	return &Gate{m: make(map[string]*record), now: time.Now}
}

// NewWithClock creates a gate with an injected clock for tests.
func NewWithClock(now func() time.Time) *Gate {
	return &Gate{m: make(map[string]*record), now: now}
}

func key(subscriberID, topic string) string {
	return subscriberID + "|" + topic
}

// TryAcquire records a notification for (subscriber, topic) and returns true
// if it is outside the level's cooldown window. Level-1 alerts must use
// Bypass instead; a zero window always acquires.
func (g *Gate) TryAcquire(subscriberID, topic string, level models.NotificationLevel, window time.Duration) bool {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweepLocked(now)

	k := key(subscriberID, topic)
	r, ok := g.m[k]
	if ok && window > 0 && now.Sub(r.lastNotifiedAt) < window {
		return false
	}
	if !ok {
		r = &record{}
		g.m[k] = r
	}
	r.lastNotifiedAt = now
	r.window = window
	return true
}

// Bypass records the timestamp for audit only. The window state is left
// untouched, so a Level-1 alert never charges the cooldown of the
// Level-2/3 alerts that follow it.
func (g *Gate) Bypass(subscriberID, topic string) {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	k := key(subscriberID, topic)
	r, ok := g.m[k]
	if !ok {
		r = &record{}
		g.m[k] = r
	}
	r.bypassedAt = now
}

// LastNotified returns the most recent recorded timestamp for a key,
// acquired or bypassed, if any.
func (g *Gate) LastNotified(subscriberID, topic string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.m[key(subscriberID, topic)]
	if !ok {
		return time.Time{}, false
	}
	return r.lastSeen(), true
}

// sweepLocked lazily evicts entries whose window has long expired. Runs at
// most once per minute to keep TryAcquire cheap.
func (g *Gate) sweepLocked(now time.Time) {
	if now.Sub(g.lastSweep) < time.Minute {
		return
	}
	g.lastSweep = now
	for k, r := range g.m {
		ttl := r.window
		if ttl < time.Hour {
			ttl = time.Hour
		}
		if now.Sub(r.lastSeen()) > ttl {
			delete(g.m, k)
		}
	}
}
