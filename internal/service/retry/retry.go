package retry

import (
	"context"
	"time"
)

// Policy is the single retry/backoff policy shared by all external clients,
// so failure-isolation behavior stays uniform across call sites.
type Policy struct {
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

// Default returns the policy used when config leaves retry unset.
func Default() Policy {
	return Policy{MaxAttempts: 3, BackoffMin: 200 * time.Millisecond, BackoffMax: 2 * time.Second}
}

// Normalized fills zero fields from Default.
func (p Policy) Normalized() Policy {
	d := Default()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BackoffMin <= 0 {
		p.BackoffMin = d.BackoffMin
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = d.BackoffMax
	}
	return p
}

// Do runs op up to MaxAttempts times with exponential backoff between
// attempts. Retries stop when op succeeds, when retryable returns false,
// or when ctx is cancelled. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, retryable func(error) bool) error {
	p = p.Normalized()

	var err error
	backoff := p.BackoffMin
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > p.BackoffMax {
			backoff = p.BackoffMax
		}
	}
	return err
}
