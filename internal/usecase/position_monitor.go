package usecase

import (
	"context"
	"sync"
	"time"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	applogger "FxSentry/pkg/logger"

	"github.com/shopspring/decimal"
)

// Per-position cycle outcomes.
const (
	outcomeClosed  = "closed"
	outcomeAlerted = "alerted"
	outcomeHeld    = "held"
)

// PositionMonitorConfig bounds one revaluation cycle.
type PositionMonitorConfig struct {
	WorkerPool        int
	CallTimeout       time.Duration
	PriceMaxAge       time.Duration
	ReversalThreshold float64
	ExitConfidence    float64
}

// PositionMonitor revalues every open position: computes pip PnL, closes on
// SL/TP crossings, derives recommendations from the last known signal state,
// and appends an audit snapshot each tick.
type PositionMonitor struct {
	positions  domrepo.Positions
	feed       domrepo.PriceFeed
	history    domrepo.PriceHistory
	states     domrepo.SignalStates
	dir        SubscriberDirectory
	audit      domrepo.AuditStore
	dispatcher *Dispatcher
	metrics    domrepo.Metrics
	l          *applogger.Logger
	cfg        PositionMonitorConfig
	now        func() time.Time
}

func NewPositionMonitor(
	positions domrepo.Positions,
	feed domrepo.PriceFeed,
	history domrepo.PriceHistory,
	states domrepo.SignalStates,
	dir SubscriberDirectory,
	audit domrepo.AuditStore,
	dispatcher *Dispatcher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg PositionMonitorConfig,
) *PositionMonitor {
	if cfg.WorkerPool <= 0 {
		cfg.WorkerPool = 8
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.PriceMaxAge <= 0 {
		cfg.PriceMaxAge = 30 * time.Second
	}
	if cfg.ReversalThreshold <= 0 {
		cfg.ReversalThreshold = 0.8
	}
	if cfg.ExitConfidence <= 0 {
		cfg.ExitConfidence = 0.75
	}
	return &PositionMonitor{
		positions:  positions,
		feed:       feed,
		history:    history,
		states:     states,
		dir:        dir,
		audit:      audit,
		dispatcher: dispatcher,
		metrics:    metrics,
		l:          l,
		cfg:        cfg,
		now:        time.Now,
	}
}

// RunCycle revalues all open positions on a bounded worker pool. One
// position's failure never aborts the rest.
func (m *PositionMonitor) RunCycle(ctx context.Context) error {
	start := m.now()
	defer func() {
		m.metrics.RecordCycle("position", time.Since(start).Seconds())
	}()

	open, err := m.positions.ListOpen(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}

	sem := make(chan struct{}, m.cfg.WorkerPool)
	var wg sync.WaitGroup
	for _, p := range open {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}
		wg.Add(1)
		go func(p models.Position) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := m.processPosition(ctx, p)
			m.metrics.RecordKeyOutcome("position", outcome)
		}(p)
	}
	wg.Wait()
	return nil
}

func (m *PositionMonitor) processPosition(ctx context.Context, p models.Position) string {
	price, err := m.currentPrice(ctx, p.Instrument)
	if err != nil {
		m.l.Warn("price unavailable for position",
			applogger.String("position", p.ID),
			applogger.String("instrument", p.Instrument),
			applogger.Error(err),
		)
		return outcomeFailed
	}

	// SL takes precedence when one tick crosses both levels.
	if p.StopLossHit(price) {
		return m.closePosition(ctx, p, price, models.CloseStopLoss)
	}
	if p.TakeProfitHit(price) {
		return m.closePosition(ctx, p, price, models.CloseTakeProfit)
	}

	eval := m.evaluate(ctx, p, price)

	if !eval.proposedSL.IsZero() && m.dir.Policy(ctx, p.OwnerID).AutoAdjustSL {
		if err := m.positions.UpdateStopLoss(ctx, p.ID, eval.proposedSL); err != nil {
			m.l.Error("auto stop-loss adjustment failed",
				applogger.String("position", p.ID), applogger.Error(err))
		} else {
			m.l.Info("stop-loss auto-adjusted",
				applogger.String("position", p.ID),
				applogger.String("stopLoss", eval.proposedSL.String()),
			)
		}
	}

	m.appendSnapshot(ctx, p, price, eval)

	if eval.level == 0 {
		return outcomeHeld
	}

	event := models.PositionAlertEvent{
		PositionID:        p.ID,
		OwnerID:           p.OwnerID,
		Instrument:        p.Instrument,
		Direction:         p.Direction,
		CurrentPrice:      price,
		EntryPrice:        p.EntryPrice,
		UnrealizedPnLPips: p.PnLPips(price),
		UnrealizedPnLPct:  p.PnLPercent(price),
		Recommendation:    eval.recommendation,
		Confidence:        eval.confidence,
		Level:             eval.level,
		ProposedStopLoss:  eval.proposedSL,
		DetectedAt:        m.now(),
	}
	if err := m.dispatcher.DispatchPositionAlert(ctx, event); err != nil {
		m.l.Error("position alert dispatch failed",
			applogger.String("position", p.ID), applogger.Error(err))
	}
	return outcomeAlerted
}

func (m *PositionMonitor) closePosition(ctx context.Context, p models.Position, price decimal.Decimal, reason models.CloseReason) string {
	now := m.now()
	if err := m.positions.Close(ctx, p.ID, reason, price, now); err != nil {
		if domrepo.IsInvariant(err) {
			// Already closed by a competing writer; nothing left to do.
			return outcomeHeld
		}
		m.l.Error("position close failed",
			applogger.String("position", p.ID), applogger.Error(err))
		return outcomeFailed
	}

	m.l.Info("position closed",
		applogger.String("position", p.ID),
		applogger.String("reason", string(reason)),
		applogger.String("price", price.String()),
	)

	eval := evaluation{
		recommendation: models.RecommendExit,
		confidence:     1,
		level:          models.LevelCritical,
	}
	m.appendSnapshot(ctx, p, price, eval)

	event := models.PositionAlertEvent{
		PositionID:        p.ID,
		OwnerID:           p.OwnerID,
		Instrument:        p.Instrument,
		Direction:         p.Direction,
		CurrentPrice:      price,
		EntryPrice:        p.EntryPrice,
		UnrealizedPnLPips: p.PnLPips(price),
		UnrealizedPnLPct:  p.PnLPercent(price),
		Recommendation:    models.RecommendExit,
		Confidence:        1,
		Level:             models.LevelCritical,
		CloseReason:       reason,
		DetectedAt:        now,
	}
	if err := m.dispatcher.DispatchPositionAlert(ctx, event); err != nil {
		m.l.Error("close alert dispatch failed",
			applogger.String("position", p.ID), applogger.Error(err))
	}
	return outcomeClosed
}

type evaluation struct {
	recommendation models.Recommendation
	confidence     float64
	level          models.NotificationLevel // 0 when no alert is warranted
	proposedSL     decimal.Decimal
}

// evaluate derives the recommendation for a still-open position from the
// last known signal state and the trailing-stop policy. It never calls the
// prediction service.
func (m *PositionMonitor) evaluate(ctx context.Context, p models.Position, price decimal.Decimal) evaluation {
	eval := evaluation{recommendation: models.RecommendHold}

	if state, ok := m.latestState(p.Instrument); ok && opposes(state.Label, p.Direction) {
		switch {
		case state.Confidence >= m.cfg.ReversalThreshold:
			return evaluation{
				recommendation: models.RecommendExit,
				confidence:     state.Confidence,
				level:          models.LevelCritical,
			}
		case state.Confidence >= m.cfg.ExitConfidence:
			return evaluation{
				recommendation: models.RecommendExit,
				confidence:     state.Confidence,
				level:          models.LevelExit,
			}
		}
	}

	if sl, ok := m.trailingProposal(p, price); ok {
		eval.recommendation = models.RecommendAdjustSL
		eval.confidence = 1
		eval.level = models.LevelAdjust
		eval.proposedSL = sl
	}
	return eval
}

// trailingProposal applies the trailing-stop ladder: at 50% of the distance
// to take-profit propose break-even, at 80% propose the halfway level. A
// proposal is only surfaced when it tightens the current stop.
func (m *PositionMonitor) trailingProposal(p models.Position, price decimal.Decimal) (decimal.Decimal, bool) {
	if !p.HasTakeProfit() {
		return decimal.Decimal{}, false
	}

	progress := p.TakeProfitProgress(price)
	var proposed decimal.Decimal
	switch {
	case progress.GreaterThanOrEqual(decimal.NewFromFloat(0.8)):
		half := p.TakeProfit.Sub(p.EntryPrice).Div(decimal.NewFromInt(2))
		proposed = p.EntryPrice.Add(half)
	case progress.GreaterThanOrEqual(decimal.NewFromFloat(0.5)):
		proposed = p.EntryPrice
	default:
		return decimal.Decimal{}, false
	}

	if !tightens(p, proposed) {
		return decimal.Decimal{}, false
	}
	return proposed, true
}

// tightens reports whether the proposed stop is strictly closer to price
// than the current one, direction-aware. Stops never loosen.
func tightens(p models.Position, proposed decimal.Decimal) bool {
	if p.Direction == models.DirectionLong {
		return proposed.GreaterThan(p.StopLoss)
	}
	return proposed.LessThan(p.StopLoss)
}

// opposes reports whether a signal label points against the position.
func opposes(label models.SignalLabel, dir models.Direction) bool {
	switch dir {
	case models.DirectionLong:
		return label == models.LabelSell
	case models.DirectionShort:
		return label == models.LabelBuy
	default:
		return false
	}
}

// latestState picks the most recently updated signal state for an
// instrument across timeframes.
func (m *PositionMonitor) latestState(instrument string) (models.SignalState, bool) {
	var best models.SignalState
	found := false
	for _, st := range m.states.All() {
		if st.Instrument != instrument {
			continue
		}
		if !found || st.UpdatedAt.After(best.UpdatedAt) {
			best = st
			found = true
		}
	}
	return best, found
}

// currentPrice prefers the live feed when fresh, falling back to the latest
// candle close.
func (m *PositionMonitor) currentPrice(ctx context.Context, instrument string) (decimal.Decimal, error) {
	if price, at, ok := m.feed.LastPrice(instrument); ok && m.now().Sub(at) <= m.cfg.PriceMaxAge {
		return price, nil
	}

	hctx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()
	candles, err := m.history.GetCandles(hctx, instrument, domrepo.TF5m, 1)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(candles) == 0 {
		return decimal.Decimal{}, domrepo.ErrInsufficientData
	}
	return decimal.NewFromFloat(candles[len(candles)-1].Close), nil
}

func (m *PositionMonitor) appendSnapshot(ctx context.Context, p models.Position, price decimal.Decimal, eval evaluation) {
	snap := models.PositionSnapshot{
		PositionID:               p.ID,
		Timestamp:                m.now(),
		CurrentPrice:             price,
		UnrealizedPnLPips:        p.PnLPips(price),
		UnrealizedPnLPct:         p.PnLPercent(price),
		Recommendation:           eval.recommendation,
		RecommendationConfidence: eval.confidence,
		NotificationLevel:        eval.level,
	}
	if err := m.audit.AppendSnapshot(ctx, snap); err != nil {
		m.l.Error("snapshot append failed",
			applogger.String("position", p.ID), applogger.Error(err))
	}
}
