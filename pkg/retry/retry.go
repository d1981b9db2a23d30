// Package retry provides an exponential-backoff loop. Its only caller is
// the deposit indexer's L1 subscription; the prover client and the L1
// settlement client do not retry.
package retry

import (
	"context"
	"time"
)

// Config bounds a retry loop's attempt count and backoff growth.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig is 5 attempts, doubling from 1s, capped at 30s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Do runs fn until it succeeds, the attempt budget is exhausted, or ctx
// is cancelled. It returns the last error on exhaustion.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	var err error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}
