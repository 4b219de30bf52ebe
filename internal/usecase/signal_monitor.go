package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	applogger "FxSentry/pkg/logger"
)

// Per-key cycle outcomes recorded in metrics.
const (
	outcomeChanged          = "changed"
	outcomeUnchanged        = "unchanged"
	outcomeInsufficientData = "insufficient_data"
	outcomeFailed           = "failed"
)

// SignalMonitorConfig bounds one detection cycle.
type SignalMonitorConfig struct {
	WorkerPool   int
	LookbackBars int
	MinBars      int
	CallTimeout  time.Duration
}

// SignalMonitor runs the label change detection cycle: for every monitored
// (instrument, timeframe) key it fetches history, asks the prediction service
// for the current label, and emits a SignalChangeEvent when the label differs
// from the last persisted state. Failures are isolated per key.
type SignalMonitor struct {
	dir        SubscriberDirectory
	history    domrepo.PriceHistory
	predictor  domrepo.PredictionService
	states     domrepo.SignalStates
	audit      domrepo.AuditStore
	dispatcher *Dispatcher
	metrics    domrepo.Metrics
	l          *applogger.Logger
	cfg        SignalMonitorConfig
	now        func() time.Time
}

func NewSignalMonitor(
	dir SubscriberDirectory,
	history domrepo.PriceHistory,
	predictor domrepo.PredictionService,
	states domrepo.SignalStates,
	audit domrepo.AuditStore,
	dispatcher *Dispatcher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg SignalMonitorConfig,
) *SignalMonitor {
	if cfg.WorkerPool <= 0 {
		cfg.WorkerPool = 8
	}
	if cfg.LookbackBars <= 0 {
		cfg.LookbackBars = 100
	}
	if cfg.MinBars <= 0 {
		cfg.MinBars = 20
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 8 * time.Second
	}
	return &SignalMonitor{
		dir:        dir,
		history:    history,
		predictor:  predictor,
		states:     states,
		audit:      audit,
		dispatcher: dispatcher,
		metrics:    metrics,
		l:          l,
		cfg:        cfg,
		now:        time.Now,
	}
}

// RunCycle processes every monitored key once. Per-key work runs on a
// bounded worker pool; a key failure never aborts the rest of the cycle.
func (m *SignalMonitor) RunCycle(ctx context.Context) error {
	start := m.now()
	defer func() {
		m.metrics.RecordCycle("signal", time.Since(start).Seconds())
	}()

	keys, err := m.dir.MonitoredKeys(ctx)
	if err != nil {
		return fmt.Errorf("list monitored keys: %w", err)
	}
	if len(keys) == 0 {
		m.l.Debug("no monitored keys this cycle")
		return nil
	}

	sem := make(chan struct{}, m.cfg.WorkerPool)
	var wg sync.WaitGroup
	for _, key := range keys {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}
		wg.Add(1)
		go func(key models.SignalKey) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := m.processKey(ctx, key)
			m.metrics.RecordKeyOutcome("signal", outcome)
		}(key)
	}
	wg.Wait()
	return nil
}

func (m *SignalMonitor) processKey(ctx context.Context, key models.SignalKey) string {
	tf := domrepo.Timeframe(key.Timeframe)

	hctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	candles, err := m.history.GetCandles(hctx, key.Instrument, tf, m.cfg.LookbackBars)
	cancel()
	if err != nil {
		if errors.Is(err, domrepo.ErrInsufficientData) {
			m.l.Info("key warming up", applogger.String("key", key.String()))
			return outcomeInsufficientData
		}
		m.l.Warn("price history fetch failed",
			applogger.String("key", key.String()), applogger.Error(err))
		return outcomeFailed
	}
	if len(candles) < m.cfg.MinBars {
		m.l.Info("key warming up",
			applogger.String("key", key.String()), applogger.Int("bars", len(candles)))
		return outcomeInsufficientData
	}

	pctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	pred, err := m.predictor.Predict(pctx, key.Instrument, tf, candles)
	cancel()
	if err != nil {
		if errors.Is(err, domrepo.ErrInsufficientData) {
			return outcomeInsufficientData
		}
		m.l.Warn("prediction failed",
			applogger.String("key", key.String()), applogger.Error(err))
		return outcomeFailed
	}

	prev, hadPrev := m.states.Get(key)
	if hadPrev && prev.Label == pred.Label {
		return outcomeUnchanged
	}

	state := pred.State(key, m.now())
	m.states.Put(state)
	if err := m.audit.AppendSignalState(ctx, state); err != nil {
		m.l.Error("signal history append failed",
			applogger.String("key", key.String()), applogger.Error(err))
	}

	event := models.SignalChangeEvent{
		Instrument:      key.Instrument,
		Timeframe:       key.Timeframe,
		NewLabel:        pred.Label,
		NewConfidence:   pred.Confidence,
		Strength:        pred.Strength,
		MarketCondition: pred.MarketCondition,
		ReferencePrice:  pred.ReferencePrice,
		DetectedAt:      state.UpdatedAt,
	}
	if hadPrev {
		event.OldLabel = prev.Label
		event.OldConfidence = prev.Confidence
	}

	if err := m.dispatcher.DispatchSignalChange(ctx, event); err != nil {
		m.l.Error("signal change dispatch failed",
			applogger.String("key", key.String()), applogger.Error(err))
	}
	m.l.Info("signal label changed",
		applogger.String("key", key.String()),
		applogger.String("old", string(event.OldLabel)),
		applogger.String("new", string(event.NewLabel)),
	)
	return outcomeChanged
}
