package messaging

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	defaultRetryBackoff    = 500 * time.Millisecond
	maxDeadLetterBackoff   = 30 * time.Second
	defaultDeliverAttempts = 3
)

// DeadLetterFunc parks a message that exhausted its attempts, together with the last handler error.
type DeadLetterFunc func(ctx context.Context, msg Message, cause error) error

// Delivery decides what happens to a message whose handler keeps failing.
type Delivery struct {
	MaxAttempts int
	Backoff     time.Duration
	DeadLetter  DeadLetterFunc
}

// Deliver runs handler until it succeeds or MaxAttempts runs out, then dead-letters the message,
// retrying the dead-letter write until it lands or ctx ends. A nil result means the message is
// settled and its offset can be committed. Without a DeadLetter the last handler error is returned.
func (d Delivery) Deliver(ctx context.Context, msg Message, handler Handler) error {
	var cause error
	attempts := retry.WithMaxRetries(uint64(d.attempts()-1), retry.NewConstant(d.backoff()))
	err := retry.Do(ctx, attempts, func(ctx context.Context) error {
		if cause = handler(ctx, msg); cause != nil {
			return retry.RetryableError(cause)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if d.DeadLetter == nil {
		return cause
	}

	park := retry.WithCappedDuration(maxDeadLetterBackoff, retry.NewExponential(d.backoff()))
	return retry.Do(ctx, park, func(ctx context.Context) error {
		if err := d.DeadLetter(ctx, msg, cause); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (d Delivery) attempts() int {
	if d.MaxAttempts <= 0 {
		return defaultDeliverAttempts
	}
	return d.MaxAttempts
}

func (d Delivery) backoff() time.Duration {
	if d.Backoff <= 0 {
		return defaultRetryBackoff
	}
	return d.Backoff
}
