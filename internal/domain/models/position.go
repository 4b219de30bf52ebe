package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction of an open trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// PositionStatus is the lifecycle state of a position. The only transition
// is open -> closed, one-way.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// CloseReason is set if and only if status is closed.
type CloseReason string

const (
	CloseStopLoss   CloseReason = "sl_hit"
	CloseTakeProfit CloseReason = "tp_hit"
	CloseManual     CloseReason = "manual"
)

// Recommendation is the monitor's per-tick advice for an open position.
type Recommendation string

const (
	RecommendHold        Recommendation = "hold"
	RecommendExit        Recommendation = "exit"
	RecommendAdjustSL    Recommendation = "adjust_sl"
	RecommendTakePartial Recommendation = "take_partial"
)

// NotificationLevel classifies alert urgency. Level 1 is the most urgent
// and bypasses cooldown entirely.
type NotificationLevel int

const (
	LevelCritical NotificationLevel = 1 // SL/TP hit or imminent reversal
	LevelExit     NotificationLevel = 2 // high-confidence exit advice
	LevelAdjust   NotificationLevel = 3 // trend change / SL adjustment
	LevelSummary  NotificationLevel = 4 // periodic summary
)

func (l NotificationLevel) IsValid() bool {
	return l >= LevelCritical && l <= LevelSummary
}

// Position is one open trade owned by a subscriber.
type Position struct {
	ID          string
	OwnerID     string
	Instrument  string
	Direction   Direction
	EntryPrice  decimal.Decimal
	Size        decimal.Decimal
	StopLoss    decimal.Decimal
	TakeProfit  decimal.Decimal // zero means no TP set
	OpenedAt    time.Time
	Status      PositionStatus
	CloseReason CloseReason     // empty while open
	ClosePrice  decimal.Decimal // market price at close, zero while open
	ClosedAt    time.Time
}

// HasTakeProfit reports whether a take-profit is set.
func (p Position) HasTakeProfit() bool {
	return !p.TakeProfit.IsZero()
}

// PipFactor returns the pip multiplier for the position's instrument:
// 100 for JPY-quoted pairs, 10000 otherwise. The asymmetry reflects the
// quote currency's decimal precision.
func PipFactor(instrument string) decimal.Decimal {
	if strings.HasSuffix(strings.ToUpper(instrument), "JPY") {
		return decimal.NewFromInt(100)
	}
	return decimal.NewFromInt(10000)
}

// PnLPips computes unrealized profit in pips at the given price,
// direction-aware.
func (p Position) PnLPips(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Direction == DirectionShort {
		diff = diff.Neg()
	}
	return diff.Mul(PipFactor(p.Instrument))
}

// PnLPercent computes unrealized profit as a percentage of the entry price.
func (p Position) PnLPercent(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	diff := price.Sub(p.EntryPrice)
	if p.Direction == DirectionShort {
		diff = diff.Neg()
	}
	return diff.Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
}

// StopLossHit reports whether price has crossed the stop-loss for the
// position's direction.
func (p Position) StopLossHit(price decimal.Decimal) bool {
	if p.StopLoss.IsZero() {
		return false
	}
	if p.Direction == DirectionLong {
		return price.LessThanOrEqual(p.StopLoss)
	}
	return price.GreaterThanOrEqual(p.StopLoss)
}

// TakeProfitHit reports whether price has crossed the take-profit for the
// position's direction.
func (p Position) TakeProfitHit(price decimal.Decimal) bool {
	if !p.HasTakeProfit() {
		return false
	}
	if p.Direction == DirectionLong {
		return price.GreaterThanOrEqual(p.TakeProfit)
	}
	return price.LessThanOrEqual(p.TakeProfit)
}

// TakeProfitProgress returns how far the current price has travelled toward
// the take-profit, as a fraction of the entry-to-TP distance. Returns zero
// when no TP is set or the distance is degenerate.
func (p Position) TakeProfitProgress(price decimal.Decimal) decimal.Decimal {
	if !p.HasTakeProfit() {
		return decimal.Zero
	}
	dist := p.TakeProfit.Sub(p.EntryPrice)
	if dist.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.EntryPrice).Div(dist)
}

// PositionSnapshot is one append-only revaluation record, produced every
// monitoring tick for every open position. Never mutated.
type PositionSnapshot struct {
	PositionID               string
	Timestamp                time.Time
	CurrentPrice             decimal.Decimal
	UnrealizedPnLPips        decimal.Decimal
	UnrealizedPnLPct         decimal.Decimal
	Recommendation           Recommendation
	RecommendationConfidence float64
	NotificationLevel        NotificationLevel // 0 when no alert was warranted
}
