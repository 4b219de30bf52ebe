package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SignalLabel is the directional recommendation produced by the prediction
// service. Standby is a first-class label: transitions to and from it are
// change events like any other.
type SignalLabel string

const (
	LabelBuy     SignalLabel = "buy"
	LabelSell    SignalLabel = "sell"
	LabelHold    SignalLabel = "hold"
	LabelStandby SignalLabel = "standby"
)

// IsValid reports whether the label is one of the known values.
func (l SignalLabel) IsValid() bool {
	switch l {
	case LabelBuy, LabelSell, LabelHold, LabelStandby:
		return true
	default:
		return false
	}
}

// ParseSignalLabel converts a raw string into a SignalLabel.
func ParseSignalLabel(s string) (SignalLabel, error) {
	l := SignalLabel(s)
	if !l.IsValid() {
		return "", fmt.Errorf("unknown signal label %q", s)
	}
	return l, nil
}

// SignalStrength grades how pronounced the predicted move is.
type SignalStrength string

const (
	StrengthWeak       SignalStrength = "weak"
	StrengthModerate   SignalStrength = "moderate"
	StrengthStrong     SignalStrength = "strong"
	StrengthVeryStrong SignalStrength = "very_strong"
)

func (s SignalStrength) IsValid() bool {
	switch s {
	case StrengthWeak, StrengthModerate, StrengthStrong, StrengthVeryStrong:
		return true
	default:
		return false
	}
}

// MarketCondition describes the regime the predictor observed.
type MarketCondition string

const (
	ConditionTrending MarketCondition = "trending"
	ConditionRanging  MarketCondition = "ranging"
	ConditionVolatile MarketCondition = "volatile"
	ConditionUnknown  MarketCondition = "unknown"
)

func (m MarketCondition) IsValid() bool {
	switch m {
	case ConditionTrending, ConditionRanging, ConditionVolatile, ConditionUnknown:
		return true
	default:
		return false
	}
}

// SignalKey identifies one monitored (instrument, timeframe) pair.
type SignalKey struct {
	Instrument string
	Timeframe  string
}

func (k SignalKey) String() string {
	return k.Instrument + ":" + k.Timeframe
}

// SignalState is the last-known signal for a key. Exactly one current state
// exists per key; updates are full replacements.
type SignalState struct {
	Instrument      string
	Timeframe       string
	Label           SignalLabel
	Confidence      float64 // [0,1]
	Strength        SignalStrength
	MarketCondition MarketCondition
	ReferencePrice  decimal.Decimal
	UpdatedAt       time.Time
}

// Key returns the identity key of the state.
func (s SignalState) Key() SignalKey {
	return SignalKey{Instrument: s.Instrument, Timeframe: s.Timeframe}
}

// Prediction is the prediction service's answer for one key.
type Prediction struct {
	Label           SignalLabel
	Confidence      float64
	Strength        SignalStrength
	MarketCondition MarketCondition
	ReferencePrice  decimal.Decimal
}

// State converts a prediction into the SignalState it replaces.
func (p Prediction) State(key SignalKey, at time.Time) SignalState {
	return SignalState{
		Instrument:      key.Instrument,
		Timeframe:       key.Timeframe,
		Label:           p.Label,
		Confidence:      p.Confidence,
		Strength:        p.Strength,
		MarketCondition: p.MarketCondition,
		ReferencePrice:  p.ReferencePrice,
		UpdatedAt:       at,
	}
}

// Candle represents one OHLCV bar. History slices are ordered newest-last.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
