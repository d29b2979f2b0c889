// Package retry provides bounded retry with exponential backoff for
// provider calls.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default retry parameters for provider RPC calls.
const (
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxElapsedTime  = 15 * time.Second
)

// Operation is a retryable function.
type Operation func() error

// Config controls backoff behavior.
type Config struct {
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
	OnRetry         func(err error, next time.Duration)
}

// Do retries fn with exponential backoff until it succeeds, the backoff
// budget is exhausted, or the context is cancelled. Wrap a non-retryable
// error with Permanent to stop immediately.
func Do(ctx context.Context, fn Operation, cfg Config) error {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultInitialInterval
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = DefaultMaxElapsedTime
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxElapsedTime = cfg.MaxElapsedTime

	return backoff.RetryNotify(
		backoff.Operation(fn),
		backoff.WithContext(bo, ctx),
		func(err error, next time.Duration) {
			if cfg.OnRetry != nil {
				cfg.OnRetry(err, next)
			}
		},
	)
}

// Permanent marks err as non-retryable so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}
