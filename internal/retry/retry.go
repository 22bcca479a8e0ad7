// Package retry runs collaborator calls with per-attempt timeouts and
// bounded exponential backoff. Only upstream timeouts and unavailability
// are retried; every other error is returned immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/agentpay/internal/domain"
	"github.com/kailas-cloud/agentpay/internal/logger"
	"github.com/kailas-cloud/agentpay/internal/metrics"
)

// Policy configures retries for one class of calls.
type Policy struct {
	MaxAttempts     int           // total attempts including the first; <=1 disables retries
	InitialInterval time.Duration // first backoff delay
	MaxInterval     time.Duration // backoff delay cap
	CallTimeout     time.Duration // per-attempt deadline; 0 means none
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CallTimeout:     5 * time.Second,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0 // bounded by attempts
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Do runs fn under policy p. op names the call in logs and metrics.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	attempts := 0

	operation := func() error {
		attempts++
		callCtx, cancel := withTimeout(ctx, p.CallTimeout)
		defer cancel()

		v, err := fn(callCtx)
		if err == nil {
			result = v
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %s: %w", domain.ErrUpstreamTimeout, op, err)
		}
		if !domain.IsRetryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		metrics.UpstreamRetriesTotal.WithLabelValues(op).Inc()
		logger.FromContext(ctx).Warn("Upstream call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempts),
			zap.Duration("next_retry_in", next),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, p.backOff(ctx), notify); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Run is Do for calls without a result.
func Run(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
