package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
)

// errStopRetry marks an error as not retryable for the repeater
var errStopRetry = errors.New("stop retrying")

// Retrier runs an operation with exponential backoff, stopping early on
// errors classified as terminal
type Retrier struct {
	attempts int
	base     time.Duration
	maxDelay time.Duration
}

// NewRetrier creates a retrier. Zero values fall back to 3 attempts, 1s base
// delay and 60s ceiling.
func NewRetrier(attempts int, base, maxDelay time.Duration) *Retrier {
	if attempts <= 0 {
		attempts = 3
	}
	if base <= 0 {
		base = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}
	return &Retrier{attempts: attempts, base: base, maxDelay: maxDelay}
}

// Do runs fn until it succeeds, exhausts attempts, or returns a terminal
// error. The returned error is the last failure with the stop marker
// stripped.
func (r *Retrier) Do(ctx context.Context, fn func() error) error {
	retrier := repeater.NewBackoff(r.attempts, r.base, repeater.WithMaxDelay(r.maxDelay), repeater.WithJitter(0.5))

	var lastErr error
	err := retrier.Do(ctx, func() error {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		var pe *ProtectionError
		if IsTerminal(err) || errors.As(err, &pe) {
			// retrying the same method will not get past a block page
			return fmt.Errorf("%w: %w", errStopRetry, err)
		}
		return err
	}, errStopRetry)

	if err == nil {
		return nil
	}
	if errors.Is(err, errStopRetry) && lastErr != nil {
		return lastErr
	}
	return err
}
