package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/cardchannel/pkg/pcsc"
)

func fast(attempts int) *Config {
	return &Config{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Positive(t, cfg.MaxAttempts)
	assert.Greater(t, cfg.MaxBackoff, cfg.InitialBackoff)
	assert.Greater(t, cfg.Multiplier, 1.0)
	assert.Greater(t, cfg.Timeout, time.Duration(0))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{pcsc.NoSmartcard, true},
		{pcsc.NewError("connect", "R", pcsc.RemovedCard, nil), true},
		{fmt.Errorf("wait: %w", pcsc.NewError("connect", "R", pcsc.SharingViolation, errors.New("busy"))), true},
		{pcsc.NewError("connect", "R", pcsc.UnknownReader, nil), false},
		{pcsc.ProtocolMismatch, false},
		{errors.New("plain"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), "%v", tt.err)
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	var retried []int
	cfg := fast(5)
	cfg.OnRetry = func(attempt int, err error, _ time.Duration) {
		retried = append(retried, attempt)
		assert.ErrorIs(t, err, pcsc.NoSmartcard)
	}

	err := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return pcsc.NewError("connect", "R", pcsc.NoSmartcard, nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fast(5), func() error {
		calls++
		return pcsc.NewError("connect", "R", pcsc.UnknownReader, nil)
	})
	assert.ErrorIs(t, err, pcsc.UnknownReader)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fast(4), func() error {
		calls++
		return pcsc.NotReady
	})
	assert.ErrorIs(t, err, pcsc.NotReady)
	assert.Equal(t, 4, calls)
}

func TestDo_NoRetryWhenAttemptsZero(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fast(0), func() error {
		calls++
		return pcsc.NoSmartcard
	})
	assert.ErrorIs(t, err, pcsc.NoSmartcard)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fast(3), func() error {
		t.Fatal("fn must not run on a dead context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_TimeoutReturnsLastError(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		MaxAttempts:    1000,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     1,
		Timeout:        30 * time.Millisecond,
	}
	err := Do(context.Background(), cfg, func() error {
		return pcsc.NoSmartcard
	})
	assert.ErrorIs(t, err, pcsc.NoSmartcard)
}

func TestNextBackoff(t *testing.T) {
	t.Parallel()

	cfg := &Config{Multiplier: 2, MaxBackoff: 5 * time.Second}
	assert.Equal(t, 200*time.Millisecond, nextBackoff(100*time.Millisecond, cfg))
	assert.Equal(t, 5*time.Second, nextBackoff(3*time.Second, cfg))
}

func TestJittered(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	assert.Equal(t, base, jittered(base, 0))
	for range 20 {
		got := jittered(base, 0.5)
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, base+base/2)
	}
}
