package retry

import (
	"context"
	"errors"
	"fmt"

	"cafenote/pkg/config"
	errs "cafenote/pkg/errors"
	"cafenote/pkg/logger"
	"cafenote/pkg/ratelimit"
)

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// Policy holds retry configuration
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	Logger  logger.Logger
}

// NoRetry runs an operation exactly once
var NoRetry = &Policy{MaxAttempts: 1}

// FromConfig builds a Policy from the retry config section
func FromConfig(cfg config.RetryConfig, log logger.Logger) *Policy {
	if !cfg.Enabled || cfg.MaxAttempts <= 1 {
		return NoRetry
	}
	return &Policy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff: &ExponentialBackoff{
			BaseDelay:    cfg.BaseDelay,
			MaxDelay:     cfg.MaxDelay,
			Multiplier:   cfg.BackoffMultiplier,
			JitterFactor: 0.1,
		},
		RetryIf: DefaultRetryIf,
		Logger:  log,
	}
}

// DefaultRetryIf retries transport failures, throttling and 5xx responses
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		if apiErr.Type == errs.ErrorTypeUpstream {
			return errs.IsRetryableStatusCode(apiErr.Code)
		}
		return errs.IsRetryable(apiErr.Type)
	}
	return false
}

// Do executes op, retrying per p until it succeeds, fails permanently,
// runs out of attempts or ctx ends
func Do(ctx context.Context, p *Policy, op Operation) error {
	if p == nil {
		p = NoRetry
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}
	log := p.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("Operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) || attempt == maxAttempts {
			break
		}

		delay := backoff.NextDelay(attempt)
		log.WarnWithFields("Retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": maxAttempts,
		})

		if err := ratelimit.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}

	if maxAttempts > 1 && retryIf(lastErr) {
		return fmt.Errorf("max retry attempts (%d) exceeded: %w", maxAttempts, lastErr)
	}
	return lastErr
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
