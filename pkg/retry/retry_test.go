package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"cafenote/pkg/config"
	errs "cafenote/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) *Policy {
	return &Policy{
		MaxAttempts: attempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{9, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 50; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errs.Upstream(503, "")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(2), func(context.Context) error {
		attempts++
		return errs.Network(errors.New("connection reset"))
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, err.Error(), "max retry attempts (2) exceeded")
	assert.True(t, errs.IsType(err, errs.ErrorTypeNetwork))
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"forbidden", errs.Upstream(403, "")},
		{"form unavailable", errs.FormUnavailable("no token")},
		{"validation", errs.Validation("bad")},
		{"plain error", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
				attempts++
				return tt.err
			})
			assert.Equal(t, 1, attempts)
			assert.Equal(t, tt.err, err)
		})
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(ctx, &Policy{MaxAttempts: 5, Backoff: &ConstantBackoff{Delay: time.Hour}}, func(context.Context) error {
		attempts++
		cancel()
		return errs.Upstream(500, "")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), fastPolicy(3), func(context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errs.Upstream(429, "")
		}
		return "page", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "page", got)
}

func TestFromConfig(t *testing.T) {
	assert.Same(t, NoRetry, FromConfig(config.RetryConfig{Enabled: false, MaxAttempts: 3}, nil))

	p := FromConfig(config.RetryConfig{
		Enabled:           true,
		MaxAttempts:       4,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}, nil)
	assert.Equal(t, 4, p.MaxAttempts)
	require.IsType(t, &ExponentialBackoff{}, p.Backoff)
	assert.Equal(t, 10*time.Second, p.Backoff.(*ExponentialBackoff).MaxDelay)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.True(t, DefaultRetryIf(errs.Upstream(502, "")))
	assert.False(t, DefaultRetryIf(errs.Upstream(404, "")))
	assert.True(t, DefaultRetryIf(errs.Network(errors.New("x"))))
	assert.False(t, DefaultRetryIf(errs.Duplicate("abc")))
}
