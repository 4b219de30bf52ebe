package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	applogger "FxSentry/pkg/logger"

	"github.com/shopspring/decimal"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeDirectory struct {
	keys        []models.SignalKey
	subscribers map[string][]models.Subscriber // keyed by instrument:tf
	policies    map[string]models.CooldownPolicy
	channels    map[string][]models.Channel
}

func (f *fakeDirectory) Subscribers(_ context.Context, instrument string, tf domrepo.Timeframe) ([]models.Subscriber, error) {
	return f.subscribers[instrument+":"+string(tf)], nil
}

func (f *fakeDirectory) Policy(_ context.Context, id string) models.CooldownPolicy {
	if p, ok := f.policies[id]; ok {
		return p
	}
	return models.DefaultCooldownPolicy()
}

func (f *fakeDirectory) MonitoredKeys(_ context.Context) ([]models.SignalKey, error) {
	return f.keys, nil
}

func (f *fakeDirectory) OwnerChannels(_ context.Context, id string) []models.Channel {
	return f.channels[id]
}

type openGate struct{}

func (openGate) TryAcquire(string, string, models.NotificationLevel, time.Duration) bool { return true }
func (openGate) Bypass(string, string)                                                   {}

type fakePublisher struct {
	mu        sync.Mutex
	signal    []models.SignalChangeEvent
	alerts    []models.PositionAlertEvent
	summaries []models.PositionSummaryEvent
}

func (f *fakePublisher) PublishSignalChange(_ context.Context, e models.SignalChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signal = append(f.signal, e)
	return nil
}

func (f *fakePublisher) PublishPositionAlert(_ context.Context, e models.PositionAlertEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, e)
	return nil
}

func (f *fakePublisher) PublishPositionSummary(_ context.Context, e models.PositionSummaryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, e)
	return nil
}

func (f *fakePublisher) Health(context.Context) error { return nil }
func (f *fakePublisher) Close() error                 { return nil }

func (f *fakePublisher) signalEvents() []models.SignalChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.SignalChangeEvent(nil), f.signal...)
}

func (f *fakePublisher) alertEvents() []models.PositionAlertEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PositionAlertEvent(nil), f.alerts...)
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{outcomes: make(map[string]int)}
}

func (m *countingMetrics) RecordCycle(string, float64) {}

func (m *countingMetrics) RecordKeyOutcome(monitor, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[monitor+"/"+outcome]++
}

func (m *countingMetrics) RecordPublish(string, bool)      {}
func (m *countingMetrics) RecordSuppressed(string)         {}
func (m *countingMetrics) RecordLastPrice(string, float64) {}

func (m *countingMetrics) count(monitor, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[monitor+"/"+outcome]
}

type fakeAudit struct {
	mu        sync.Mutex
	states    []models.SignalState
	snapshots []models.PositionSnapshot
}

func (f *fakeAudit) AppendSignalState(_ context.Context, s models.SignalState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, s)
	return nil
}

func (f *fakeAudit) AppendSnapshot(_ context.Context, s models.PositionSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, s)
	return nil
}

func (f *fakeAudit) Health(context.Context) error { return nil }
func (f *fakeAudit) Close() error                 { return nil }

func (f *fakeAudit) snapshotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

type fakeHistory struct {
	candles map[string][]models.Candle // keyed by instrument
	err     map[string]error
}

func (f *fakeHistory) GetCandles(_ context.Context, instrument string, _ domrepo.Timeframe, limit int) ([]models.Candle, error) {
	if err := f.err[instrument]; err != nil {
		return nil, err
	}
	c := f.candles[instrument]
	if len(c) > limit {
		c = c[len(c)-limit:]
	}
	return c, nil
}

type fakePredictor struct {
	mu          sync.Mutex
	predictions map[string]models.Prediction // keyed by instrument
	err         map[string]error
	calls       int
}

func (f *fakePredictor) Predict(_ context.Context, instrument string, _ domrepo.Timeframe, _ []models.Candle) (models.Prediction, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := f.err[instrument]; err != nil {
		return models.Prediction{}, err
	}
	return f.predictions[instrument], nil
}

type fakeFeed struct {
	prices map[string]decimal.Decimal
	at     time.Time
}

func (f *fakeFeed) LastPrice(instrument string) (decimal.Decimal, time.Time, bool) {
	p, ok := f.prices[instrument]
	return p, f.at, ok
}

func bars(n int, close float64) []models.Candle {
	out := make([]models.Candle, n)
	ts := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := range out {
		out[i] = models.Candle{
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
			Open:      close, High: close, Low: close, Close: close, Volume: 100,
		}
	}
	return out
}
