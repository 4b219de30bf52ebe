package subscriptions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	"FxSentry/pkg/cache"
	applogger "FxSentry/pkg/logger"
)

type fakeSource struct {
	subscribers   []models.Subscriber
	subscriptions []models.Subscription
	policy        models.CooldownPolicy
	err           error

	subscriberCalls atomic.Int64
	policyCalls     atomic.Int64
}

func (f *fakeSource) GetSubscribers(_ context.Context, _ string, _ domrepo.Timeframe) ([]models.Subscriber, error) {
	f.subscriberCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.subscribers, nil
}

func (f *fakeSource) GetSubscriptions(_ context.Context) ([]models.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.subscriptions, nil
}

func (f *fakeSource) GetCooldownPolicy(_ context.Context, _ string) (models.CooldownPolicy, error) {
	f.policyCalls.Add(1)
	if f.err != nil {
		return models.CooldownPolicy{}, f.err
	}
	return f.policy, nil
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestSubscribersReadThrough(t *testing.T) {
	src := &fakeSource{subscribers: []models.Subscriber{
		{ID: "sub-1", Channel: models.ChannelTelegram, Policy: models.DefaultCooldownPolicy()},
	}}
	r := NewRegistry(src, cache.NewMemoryCache(), time.Minute, testLogger(t))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		subs, err := r.Subscribers(ctx, "EUR/USD", domrepo.TF1h)
		if err != nil {
			t.Fatalf("Subscribers: %v", err)
		}
		if len(subs) != 1 || subs[0].ID != "sub-1" {
			t.Fatalf("subs = %+v", subs)
		}
	}
	if got := src.subscriberCalls.Load(); got != 1 {
		t.Fatalf("upstream calls = %d, want 1", got)
	}
}

func TestSubscribersUpstreamErrorSurfaces(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	r := NewRegistry(src, cache.NewMemoryCache(), time.Minute, testLogger(t))

	if _, err := r.Subscribers(context.Background(), "EUR/USD", domrepo.TF1h); err == nil {
		t.Fatal("expected error on cold cache with failing upstream")
	}
}

func TestPolicyFallsBackToDefault(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	r := NewRegistry(src, cache.NewMemoryCache(), time.Minute, testLogger(t))

	p := r.Policy(context.Background(), "sub-1")
	def := models.DefaultCooldownPolicy()
	if p.Level2Window != def.Level2Window || p.Level3Window != def.Level3Window {
		t.Fatalf("policy = %+v, want default", p)
	}
}

func TestPolicyCached(t *testing.T) {
	src := &fakeSource{policy: models.CooldownPolicy{
		Level2Window: 2 * time.Minute,
		Level3Window: 20 * time.Minute,
	}}
	r := NewRegistry(src, cache.NewMemoryCache(), time.Minute, testLogger(t))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if p := r.Policy(ctx, "sub-1"); p.Level3Window != 20*time.Minute {
			t.Fatalf("policy = %+v", p)
		}
	}
	if got := src.policyCalls.Load(); got != 1 {
		t.Fatalf("upstream calls = %d, want 1", got)
	}
}

func TestMonitoredKeysDeduplicates(t *testing.T) {
	src := &fakeSource{subscriptions: []models.Subscription{
		{SubscriberID: "sub-1", Instrument: "EUR/USD", Timeframe: "1h"},
		{SubscriberID: "sub-2", Instrument: "EUR/USD", Timeframe: "1h"},
		{SubscriberID: "sub-1", Instrument: "USD/JPY", Timeframe: "15m"},
	}}
	r := NewRegistry(src, cache.NewMemoryCache(), time.Minute, testLogger(t))

	keys, err := r.MonitoredKeys(context.Background())
	if err != nil {
		t.Fatalf("MonitoredKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys = %+v, want 2 distinct", keys)
	}
}
