// Package retry wraps outbound calls with a per-attempt timeout and bounded
// exponential backoff. Only errors classified as transient are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"scholarbridge/internal/apperr"
)

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 500 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 8 * time.Second
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = 15 * time.Second
	}
	return p
}

// Budget is the longest Do can take for one call: every attempt times out
// and every wait hits the randomized ceiling of MaxInterval.
func (p Policy) Budget() time.Duration {
	p = p.withDefaults()
	waitCeiling := time.Duration(float64(p.MaxInterval) * (1 + backoff.DefaultRandomizationFactor))
	return time.Duration(p.MaxAttempts)*p.AttemptTimeout + time.Duration(p.MaxAttempts-1)*waitCeiling
}

// Do runs op until it succeeds, returns a non-transient error, or the policy
// is exhausted. op receives a context bounded by AttemptTimeout.
func Do(ctx context.Context, name string, p Policy, op func(ctx context.Context) error) error {
	p = p.withDefaults()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.InitialInterval
	expo.MaxInterval = p.MaxInterval
	expo.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.MaxAttempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()

		err := op(attemptCtx)
		if err == nil {
			return nil
		}
		if !apperr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo, func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "outbound call failed, will retry",
			"op", name,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"backoff", wait.String(),
			"error", err,
		)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if !errors.Is(err, apperr.ErrTransient) {
			return fmt.Errorf("%s: %w: %w", name, apperr.ErrTransient, err)
		}
	}
	return err
}
