package repository

import (
	"context"
	"time"

	"FxSentry/internal/domain/models"

	"github.com/shopspring/decimal"
)

// PredictionService is the external reversal/direction model, treated as a
// single opaque prediction call.
type PredictionService interface {
	Predict(ctx context.Context, instrument string, tf Timeframe, candles []models.Candle) (models.Prediction, error)
}

// PriceHistory provides recent OHLC candles for an instrument/timeframe,
// ordered newest-last.
type PriceHistory interface {
	GetCandles(ctx context.Context, instrument string, tf Timeframe, limit int) ([]models.Candle, error)
}

// PriceFeed exposes the most recent live price per instrument. Revaluation
// prefers it over candle closes when fresh enough.
type PriceFeed interface {
	LastPrice(instrument string) (decimal.Decimal, time.Time, bool)
}

// SubscriptionSource is the external subscription store. The engine reads
// snapshots through the registry cache; staleness up to one polling interval
// is acceptable.
type SubscriptionSource interface {
	GetSubscribers(ctx context.Context, instrument string, tf Timeframe) ([]models.Subscriber, error)
	GetSubscriptions(ctx context.Context) ([]models.Subscription, error)
	GetCooldownPolicy(ctx context.Context, subscriberID string) (models.CooldownPolicy, error)
}

// SignalStates holds the last-known signal per (instrument, timeframe).
// Writes are full replacements; one writer at a time (the signal monitor).
type SignalStates interface {
	Get(key models.SignalKey) (models.SignalState, bool)
	Put(state models.SignalState)
	All() []models.SignalState
}

// Positions holds open position records.
type Positions interface {
	Open(ctx context.Context, p models.Position) error
	Get(ctx context.Context, id string) (models.Position, error)
	ListOpen(ctx context.Context) ([]models.Position, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Position, error)
	UpdateStopLoss(ctx context.Context, id string, sl decimal.Decimal) error
	Close(ctx context.Context, id string, reason models.CloseReason, price decimal.Decimal, at time.Time) error
}

// AuditStore persists append-only history: signal transitions and position
// snapshots. It is never read by live detection.
type AuditStore interface {
	AppendSignalState(ctx context.Context, s models.SignalState) error
	AppendSnapshot(ctx context.Context, snap models.PositionSnapshot) error
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher publishes validated, de-duplicated events to broker topics.
// Publishing is fire-and-forget: broker outages are logged and counted, the
// cycle continues.
type EventPublisher interface {
	PublishSignalChange(ctx context.Context, e models.SignalChangeEvent) error
	PublishPositionAlert(ctx context.Context, e models.PositionAlertEvent) error
	PublishPositionSummary(ctx context.Context, e models.PositionSummaryEvent) error
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational counters for the monitoring cycles.
type Metrics interface {
	RecordCycle(monitor string, seconds float64)
	RecordKeyOutcome(monitor, outcome string)
	RecordPublish(topic string, ok bool)
	RecordSuppressed(level string)
	RecordLastPrice(instrument string, price float64)
}
