// Package ratelimit paces outgoing platform traffic.
//
// Two concerns live here. Limiter is a request budget shared by every HTTP
// call a client makes (a token bucket over golang.org/x/time/rate). Pacer is
// the deliberate pause between iterations of a loop: a fixed delay between
// article pages, a jittered delay between notes so sends never fall into a
// detectable cadence.
//
// Usage:
//
//	limiter := ratelimit.NewTokenBucket(60, 5) // 60 req/min, burst 5
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
//
//	pacer := ratelimit.NewJitter(time.Second, 2*time.Second)
//	if err := pacer.Pause(ctx); err != nil {
//	    return err // cancelled
//	}
package ratelimit
