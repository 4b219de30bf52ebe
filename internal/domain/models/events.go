package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Broker topics owned by the engine. Channel adapters subscribe downstream.
const (
	TopicSignalChange    = "signal-change"
	TopicPositionAlert   = "position-alert"
	TopicPositionSummary = "position-summary"
)

// SubscriberRef is the resolved recipient attached to a published message.
type SubscriberRef struct {
	ID      string  `json:"id"`
	Channel Channel `json:"channel"`
}

// SignalChangeEvent is emitted when the label for a key differs from the
// last persisted state. Confidence or strength changes alone do not emit.
type SignalChangeEvent struct {
	Instrument      string          `json:"instrument"`
	Timeframe       string          `json:"timeframe"`
	OldLabel        SignalLabel     `json:"oldLabel"`
	NewLabel        SignalLabel     `json:"newLabel"`
	OldConfidence   float64         `json:"oldConfidence"`
	NewConfidence   float64         `json:"newConfidence"`
	Strength        SignalStrength  `json:"strength"`
	MarketCondition MarketCondition `json:"marketCondition"`
	ReferencePrice  decimal.Decimal `json:"referencePrice"`
	DetectedAt      time.Time       `json:"detectedAt"`
	Subscribers     []SubscriberRef `json:"subscribers,omitempty"`
}

// Key returns the monitored key the event belongs to.
func (e SignalChangeEvent) Key() SignalKey {
	return SignalKey{Instrument: e.Instrument, Timeframe: e.Timeframe}
}

// Validate checks the event schema before publishing.
func (e SignalChangeEvent) Validate() error {
	if e.Instrument == "" || e.Timeframe == "" {
		return fmt.Errorf("signal change event: instrument and timeframe required")
	}
	if !e.NewLabel.IsValid() {
		return fmt.Errorf("signal change event: invalid new label %q", e.NewLabel)
	}
	if e.OldLabel != "" && !e.OldLabel.IsValid() {
		return fmt.Errorf("signal change event: invalid old label %q", e.OldLabel)
	}
	if e.NewConfidence < 0 || e.NewConfidence > 1 {
		return fmt.Errorf("signal change event: confidence %v out of [0,1]", e.NewConfidence)
	}
	return nil
}

// PositionAlertEvent is emitted when a position revaluation crosses an
// urgency threshold for its owner.
type PositionAlertEvent struct {
	PositionID        string            `json:"positionId"`
	OwnerID           string            `json:"ownerId"`
	Instrument        string            `json:"instrument"`
	Direction         Direction         `json:"direction"`
	CurrentPrice      decimal.Decimal   `json:"currentPrice"`
	EntryPrice        decimal.Decimal   `json:"entryPrice"`
	UnrealizedPnLPips decimal.Decimal   `json:"unrealizedPnlPips"`
	UnrealizedPnLPct  decimal.Decimal   `json:"unrealizedPnlPct"`
	Recommendation    Recommendation    `json:"recommendation"`
	Confidence        float64           `json:"recommendationConfidence"`
	Level             NotificationLevel `json:"notificationLevel"`
	CloseReason       CloseReason       `json:"closeReason,omitempty"`
	ProposedStopLoss  decimal.Decimal   `json:"proposedStopLoss,omitempty"`
	DetectedAt        time.Time         `json:"detectedAt"`
	Subscribers       []SubscriberRef   `json:"subscribers,omitempty"`
}

// Validate checks the event schema before publishing.
func (e PositionAlertEvent) Validate() error {
	if e.PositionID == "" || e.OwnerID == "" {
		return fmt.Errorf("position alert event: position and owner required")
	}
	if !e.Level.IsValid() {
		return fmt.Errorf("position alert event: invalid level %d", e.Level)
	}
	if !e.Direction.IsValid() {
		return fmt.Errorf("position alert event: invalid direction %q", e.Direction)
	}
	return nil
}

// PositionSummaryEvent is the Level-4 daily digest for one subscriber.
type PositionSummaryEvent struct {
	OwnerID     string           `json:"ownerId"`
	Date        string           `json:"date"` // YYYY-MM-DD, UTC
	OpenCount   int              `json:"openCount"`
	ClosedCount int              `json:"closedCount"`
	TotalPips   decimal.Decimal  `json:"totalPips"`
	Positions   []PositionDigest `json:"positions"`
	Subscribers []SubscriberRef  `json:"subscribers,omitempty"`
}

// PositionDigest is one line of a summary event.
type PositionDigest struct {
	PositionID string          `json:"positionId"`
	Instrument string          `json:"instrument"`
	Direction  Direction       `json:"direction"`
	PnLPips    decimal.Decimal `json:"pnlPips"`
	Status     PositionStatus  `json:"status"`
}
