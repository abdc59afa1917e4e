// Package ratelimit applies per-primitive and global token buckets to every
// invocation. Buckets are x/time/rate limiters; the global bucket is charged
// first and credited back when the per-primitive bucket rejects.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/config"
)

// acquirePollInterval is the backoff used by the blocking Acquire variants.
const acquirePollInterval = 100 * time.Millisecond

// RateLimitedError is returned when a bucket has no token available.
type RateLimitedError struct {
	Bucket string // primitive name, or "global"
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by %s bucket", e.Bucket)
}

// TimeoutError is returned by AcquireTimeout when the deadline passes before
// a token becomes available.
type TimeoutError struct {
	Bucket string
	Wait   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s bucket", e.Wait, e.Bucket)
}

// Status reports remaining tokens for header emission.
type Status struct {
	Limit           int
	Remaining       int
	GlobalLimit     int
	GlobalRemaining int
}

type bucket struct {
	limiter *rate.Limiter
	burst   int
}

// Limiter owns the global bucket and one bucket per primitive. Shared across
// invocations; all methods are safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	global   bucket
	buckets  map[string]bucket
	disabled bool
}

// New builds a limiter from config, falling back to the documented defaults
// for any bucket the config leaves unset.
func New(cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{
		disabled: cfg.Disabled,
		buckets:  make(map[string]bucket),
	}
	l.global = newBucket(cfg.Global, config.BucketConfig{Rate: 200, Burst: 500})

	defaults := map[string]config.BucketConfig{
		"read_file":   {Rate: 100, Burst: 200},
		"list_files":  {Rate: 50, Burst: 100},
		"bash":        {Rate: 10, Burst: 20},
		"edit_file":   {Rate: 20, Burst: 40},
		"code_search": {Rate: 30, Burst: 60},
	}
	for name, def := range defaults {
		bc := def
		if cfg.PerPrimitive != nil {
			if override, ok := cfg.PerPrimitive[name]; ok {
				bc = override
			}
		}
		l.buckets[name] = newBucket(bc, def)
	}
	for name, bc := range cfg.PerPrimitive {
		if _, ok := l.buckets[name]; !ok {
			l.buckets[name] = newBucket(bc, bc)
		}
	}
	return l
}

// Disabled returns a limiter that always admits, for tests.
func Disabled() *Limiter {
	return New(config.RateLimitConfig{Disabled: true})
}

func newBucket(bc, fallback config.BucketConfig) bucket {
	if bc.Rate <= 0 {
		bc.Rate = fallback.Rate
	}
	if bc.Burst <= 0 {
		bc.Burst = fallback.Burst
	}
	return bucket{limiter: rate.NewLimiter(rate.Limit(bc.Rate), bc.Burst), burst: bc.Burst}
}

// TryAcquire takes one token from the global bucket and one from the named
// bucket, atomically with respect to other acquirers. When the per-primitive
// bucket rejects, the global token is credited back.
func (l *Limiter) TryAcquire(name string) error {
	if l.disabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	// Reserve and cancel at one instant: rate.Reservation.CancelAt restores
	// nothing for a reservation whose time to act lies before the cancel time.
	now := time.Now()
	gres := l.global.limiter.ReserveN(now, 1)
	if !gres.OK() || gres.DelayFrom(now) > 0 {
		gres.CancelAt(now)
		return &RateLimitedError{Bucket: "global"}
	}

	b, ok := l.buckets[name]
	if !ok {
		// Unknown primitives are governed by the global bucket alone.
		return nil
	}
	bres := b.limiter.ReserveN(now, 1)
	if !bres.OK() || bres.DelayFrom(now) > 0 {
		bres.CancelAt(now)
		gres.CancelAt(now) // credit the global token back
		return &RateLimitedError{Bucket: name}
	}
	return nil
}

// Acquire blocks until a token is available or ctx is done, polling with a
// short backoff.
func (l *Limiter) Acquire(ctx context.Context, name string) error {
	for {
		if err := l.TryAcquire(name); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}

// AcquireTimeout is Acquire with a deadline; it fails with a TimeoutError
// when the window closes first.
func (l *Limiter) AcquireTimeout(ctx context.Context, name string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := l.TryAcquire(name); err == nil {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &TimeoutError{Bucket: name, Wait: timeout}
		}
		wait := acquirePollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Status reports remaining tokens and limits for the named bucket and the
// global bucket.
func (l *Limiter) Status(name string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Status{
		GlobalLimit:     l.global.burst,
		GlobalRemaining: tokensFloor(l.global.limiter),
	}
	if b, ok := l.buckets[name]; ok {
		st.Limit = b.burst
		st.Remaining = tokensFloor(b.limiter)
	}
	if l.disabled {
		st.Remaining = st.Limit
		st.GlobalRemaining = st.GlobalLimit
	}
	return st
}

// Headers renders the status as X-RateLimit headers.
func (l *Limiter) Headers(name string) map[string]string {
	st := l.Status(name)
	return map[string]string{
		"X-RateLimit-Limit":            strconv.Itoa(st.Limit),
		"X-RateLimit-Remaining":        strconv.Itoa(st.Remaining),
		"X-RateLimit-Global-Limit":     strconv.Itoa(st.GlobalLimit),
		"X-RateLimit-Global-Remaining": strconv.Itoa(st.GlobalRemaining),
	}
}

func tokensFloor(lim *rate.Limiter) int {
	t := lim.Tokens()
	if t < 0 {
		return 0
	}
	return int(math.Floor(t))
}
