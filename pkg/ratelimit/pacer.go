package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer pauses between loop iterations
type Pacer interface {
	Pause(ctx context.Context) error
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FixedDelay pauses for the same duration every time
type FixedDelay time.Duration

func (d FixedDelay) Pause(ctx context.Context) error {
	return Sleep(ctx, time.Duration(d))
}

// Jitter pauses for a uniformly random duration in [Min, Max]
type Jitter struct {
	Min, Max time.Duration
	// Rand returns a float in [0,1); nil uses math/rand/v2
	Rand func() float64
}

// NewJitter returns a Jitter pacer over [min, max]
func NewJitter(min, max time.Duration) *Jitter {
	if max < min {
		max = min
	}
	return &Jitter{Min: min, Max: max}
}

// Next returns the duration the next Pause will wait
func (j *Jitter) Next() time.Duration {
	span := j.Max - j.Min
	if span <= 0 {
		return j.Min
	}
	r := rand.Float64
	if j.Rand != nil {
		r = j.Rand
	}
	return j.Min + time.Duration(r()*float64(span))
}

func (j *Jitter) Pause(ctx context.Context) error {
	return Sleep(ctx, j.Next())
}

// NoDelay never pauses; used by tests and dry runs
type NoDelay struct{}

func (NoDelay) Pause(ctx context.Context) error { return ctx.Err() }
