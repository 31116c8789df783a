// Package retry repeats card operations that fail for transient reasons, such
// as a card not yet inserted or a reader busy in another session, with
// jittered exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

// Config configures retry behavior
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 = no retry)
	MaxAttempts int
	// InitialBackoff is the first sleep between attempts
	InitialBackoff time.Duration
	// MaxBackoff caps the sleep between attempts
	MaxBackoff time.Duration
	// Multiplier grows the backoff after each failed attempt
	Multiplier float64
	// Jitter adds up to this fraction of the backoff, at random
	Jitter float64
	// Timeout bounds all attempts together (0 = only ctx bounds them)
	Timeout time.Duration
	// OnRetry, when set, is called after each retryable failure
	OnRetry func(attempt int, err error, sleep time.Duration)
}

// Default returns the configuration used for quick transient failures.
func Default() *Config {
	return &Config{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
		Timeout:        5 * time.Second,
	}
}

// IsRetryable reports whether err may clear up by itself: the card is not
// there yet, the reader is busy or settling, or the card was just reset.
func IsRetryable(err error) bool {
	switch pcsc.CodeOf(err) {
	case pcsc.NoSmartcard, pcsc.RemovedCard, pcsc.CardReset, pcsc.NotReady,
		pcsc.SharingViolation, pcsc.Timeout, pcsc.UnpoweredCard:
		return true
	default:
		return false
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, runs out
// of attempts or the context ends. It returns the last error fn returned.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = Default()
	}
	if cfg.MaxAttempts <= 0 {
		return fn()
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}
		sleep := jittered(backoff, cfg.Jitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, sleep)
		}
		if !sleepContext(ctx, sleep) {
			return lastErr
		}
		backoff = nextBackoff(backoff, cfg)
	}

	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(backoff time.Duration, cfg *Config) time.Duration {
	next := time.Duration(float64(backoff) * cfg.Multiplier)
	if cfg.MaxBackoff > 0 && next > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return next
}

func jittered(base time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return base
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return base
	}
	f := float64(binary.LittleEndian.Uint64(buf[:])) / float64(1<<64)
	return base + time.Duration(f*float64(base)*factor)
}
