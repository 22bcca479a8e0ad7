package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// readyInterval is the pause between pings while waiting for a database.
const readyInterval = 100 * time.Millisecond

// WaitForReady pings p until it answers or timeout expires.
func WaitForReady(ctx context.Context, p Pinger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewConstantBackOff(readyInterval), ctx)
	if err := backoff.Retry(func() error { return p.Ping(ctx) }, b); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		}
		return err
	}
	return nil
}
