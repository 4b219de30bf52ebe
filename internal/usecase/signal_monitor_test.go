package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	"FxSentry/internal/repository"
)

func newSignalFixture(t *testing.T, dir *fakeDirectory, history *fakeHistory, predictor *fakePredictor) (*SignalMonitor, *repository.SignalStateStore, *fakePublisher, *countingMetrics, *fakeAudit) {
	t.Helper()
	states := repository.NewSignalStateStore()
	pub := &fakePublisher{}
	metrics := newCountingMetrics()
	audit := &fakeAudit{}
	l := testLogger(t)
	dispatcher := NewDispatcher(dir, openGate{}, pub, metrics, l)
	mon := NewSignalMonitor(dir, history, predictor, states, audit, dispatcher, metrics, l, SignalMonitorConfig{
		WorkerPool:   4,
		LookbackBars: 100,
		MinBars:      20,
		CallTimeout:  time.Second,
	})
	return mon, states, pub, metrics, audit
}

func eurUsdDir() *fakeDirectory {
	return &fakeDirectory{
		keys: []models.SignalKey{{Instrument: "EUR/USD", Timeframe: "1h"}},
		subscribers: map[string][]models.Subscriber{
			"EUR/USD:1h": {{ID: "sub-1", Channel: models.ChannelTelegram, Policy: models.DefaultCooldownPolicy()}},
		},
	}
}

func TestHoldToBuyEmitsExactlyOneEvent(t *testing.T) {
	dir := eurUsdDir()
	history := &fakeHistory{candles: map[string][]models.Candle{"EUR/USD": bars(50, 1.0850)}}
	predictor := &fakePredictor{predictions: map[string]models.Prediction{
		"EUR/USD": {Label: models.LabelBuy, Confidence: 0.78, Strength: models.StrengthStrong, MarketCondition: models.ConditionTrending, ReferencePrice: dec("1.0850")},
	}}
	mon, states, pub, _, _ := newSignalFixture(t, dir, history, predictor)

	states.Put(models.SignalState{
		Instrument: "EUR/USD", Timeframe: "1h",
		Label: models.LabelHold, Confidence: 0.60, UpdatedAt: time.Now().Add(-time.Hour),
	})

	if err := mon.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	events := pub.signalEvents()
	if len(events) != 1 {
		t.Fatalf("events = %d, want exactly 1", len(events))
	}
	e := events[0]
	if e.OldLabel != models.LabelHold || e.NewLabel != models.LabelBuy {
		t.Fatalf("transition = %s -> %s", e.OldLabel, e.NewLabel)
	}
	if e.NewConfidence != 0.78 {
		t.Fatalf("confidence = %v", e.NewConfidence)
	}
	if len(e.Subscribers) != 1 || e.Subscribers[0].ID != "sub-1" {
		t.Fatalf("subscribers = %+v", e.Subscribers)
	}

	st, ok := states.Get(models.SignalKey{Instrument: "EUR/USD", Timeframe: "1h"})
	if !ok || st.Label != models.LabelBuy || st.Confidence != 0.78 {
		t.Fatalf("persisted state = %+v, %v", st, ok)
	}
}

func TestUnchangedLabelEmitsNothing(t *testing.T) {
	dir := eurUsdDir()
	history := &fakeHistory{candles: map[string][]models.Candle{"EUR/USD": bars(50, 1.0850)}}
	predictor := &fakePredictor{predictions: map[string]models.Prediction{
		"EUR/USD": {Label: models.LabelBuy, Confidence: 0.80},
	}}
	mon, _, pub, metrics, _ := newSignalFixture(t, dir, history, predictor)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := mon.RunCycle(ctx); err != nil {
			t.Fatalf("RunCycle %d: %v", i, err)
		}
	}

	// First cycle transitions from no-prior-state, the rest are no-ops.
	if got := len(pub.signalEvents()); got != 1 {
		t.Fatalf("events = %d, want 1", got)
	}
	if got := metrics.count("signal", outcomeUnchanged); got != 2 {
		t.Fatalf("unchanged outcomes = %d, want 2", got)
	}
}

func TestStandbyTransitionEmits(t *testing.T) {
	dir := eurUsdDir()
	history := &fakeHistory{candles: map[string][]models.Candle{"EUR/USD": bars(50, 1.0850)}}
	predictor := &fakePredictor{predictions: map[string]models.Prediction{
		"EUR/USD": {Label: models.LabelStandby, Confidence: 0.55},
	}}
	mon, states, pub, _, _ := newSignalFixture(t, dir, history, predictor)

	states.Put(models.SignalState{
		Instrument: "EUR/USD", Timeframe: "1h", Label: models.LabelBuy, Confidence: 0.9,
	})

	if err := mon.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	events := pub.signalEvents()
	if len(events) != 1 || events[0].NewLabel != models.LabelStandby {
		t.Fatalf("events = %+v", events)
	}
}

func TestInsufficientHistorySkipsKey(t *testing.T) {
	dir := eurUsdDir()
	history := &fakeHistory{candles: map[string][]models.Candle{"EUR/USD": bars(5, 1.0850)}}
	predictor := &fakePredictor{}
	mon, _, pub, metrics, _ := newSignalFixture(t, dir, history, predictor)

	if err := mon.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if got := metrics.count("signal", outcomeInsufficientData); got != 1 {
		t.Fatalf("insufficient_data outcomes = %d, want 1", got)
	}
	if predictor.calls != 0 {
		t.Fatalf("predictor called %d times on short history", predictor.calls)
	}
	if len(pub.signalEvents()) != 0 {
		t.Fatal("no events expected")
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	dir := &fakeDirectory{subscribers: map[string][]models.Subscriber{}}
	history := &fakeHistory{candles: map[string][]models.Candle{}}
	predictor := &fakePredictor{
		predictions: map[string]models.Prediction{},
		err:         map[string]error{},
	}
	for i := 0; i < 10; i++ {
		inst := fmt.Sprintf("PAIR%d/USD", i)
		dir.keys = append(dir.keys, models.SignalKey{Instrument: inst, Timeframe: "1h"})
		dir.subscribers[inst+":1h"] = []models.Subscriber{{ID: "sub-1", Channel: models.ChannelSlack, Policy: models.DefaultCooldownPolicy()}}
		history.candles[inst] = bars(50, 1.10)
		if i < 3 {
			predictor.err[inst] = &domrepo.UpstreamError{Service: "prediction", Err: errors.New("timeout")}
		} else {
			predictor.predictions[inst] = models.Prediction{Label: models.LabelSell, Confidence: 0.7}
		}
	}
	mon, _, pub, metrics, _ := newSignalFixture(t, dir, history, predictor)

	if err := mon.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if got := metrics.count("signal", outcomeFailed); got != 3 {
		t.Fatalf("failed outcomes = %d, want 3", got)
	}
	if got := len(pub.signalEvents()); got != 7 {
		t.Fatalf("events = %d, want 7", got)
	}
}

func TestSignalChangeAppendedToAudit(t *testing.T) {
	dir := eurUsdDir()
	history := &fakeHistory{candles: map[string][]models.Candle{"EUR/USD": bars(50, 1.0850)}}
	predictor := &fakePredictor{predictions: map[string]models.Prediction{
		"EUR/USD": {Label: models.LabelBuy, Confidence: 0.7},
	}}
	mon, _, _, _, audit := newSignalFixture(t, dir, history, predictor)

	if err := mon.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.states) != 1 || audit.states[0].Label != models.LabelBuy {
		t.Fatalf("audit states = %+v", audit.states)
	}
}
