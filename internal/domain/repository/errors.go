package repository

import (
	"errors"
	"fmt"
)

// ErrInsufficientData means too little history exists for a key yet. Expected
// during warm-up; logged at info level, never an alert condition.
var ErrInsufficientData = errors.New("insufficient price history")

// ErrInvalidEvent means an event failed schema validation and was dropped
// before reaching the broker.
var ErrInvalidEvent = errors.New("invalid event")

// ErrBrokerUnavailable means a publish failed. The cycle continues without
// buffering; the engine keeps at-most-one-publish semantics.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// UpstreamError wraps a transient prediction/price service failure (timeout
// or 5xx). The key is retried on the next cycle, never within the same one.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether err is a transient upstream failure.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// InvariantError marks a record found in an impossible state. Fatal for that
// single unit of work only; the record is skipped for the cycle.
type InvariantError struct {
	Entity string
	ID     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated on %s %s: %s", e.Entity, e.ID, e.Detail)
}

// IsInvariant reports whether err is an invariant violation.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
