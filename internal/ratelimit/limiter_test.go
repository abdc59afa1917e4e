package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/config"
)

// slowConfig uses a negligible refill rate so token counts stay stable for
// the duration of a test.
func slowConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Global: config.BucketConfig{Rate: 0.001, Burst: 5},
		PerPrimitive: map[string]config.BucketConfig{
			"bash":      {Rate: 0.001, Burst: 1},
			"read_file": {Rate: 0.001, Burst: 3},
		},
	}
}

func TestTryAcquire_Exhaustion(t *testing.T) {
	l := New(slowConfig())

	if err := l.TryAcquire("bash"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	err := l.TryAcquire("bash")
	if err == nil {
		t.Fatal("second acquire succeeded with an empty bucket")
	}
	var rl *RateLimitedError
	if !errors.As(err, &rl) || rl.Bucket != "bash" {
		t.Errorf("err = %v, want RateLimitedError for bash", err)
	}
}

func TestTryAcquire_GlobalCreditBack(t *testing.T) {
	l := New(slowConfig())

	// Drain the bash bucket.
	if err := l.TryAcquire("bash"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	// Rejected by the primitive bucket: the global token must be restored.
	for i := 0; i < 3; i++ {
		if err := l.TryAcquire("bash"); err == nil {
			t.Fatal("acquire succeeded with an empty bash bucket")
		}
	}

	st := l.Status("bash")
	if st.GlobalRemaining != 4 {
		t.Errorf("GlobalRemaining = %d, want 4 (one consumed, rejections credited back)", st.GlobalRemaining)
	}
}

func TestTryAcquire_GlobalExhaustion(t *testing.T) {
	l := New(config.RateLimitConfig{
		Global: config.BucketConfig{Rate: 0.001, Burst: 2},
		PerPrimitive: map[string]config.BucketConfig{
			"read_file": {Rate: 0.001, Burst: 100},
		},
	})

	for i := 0; i < 2; i++ {
		if err := l.TryAcquire("read_file"); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
	err := l.TryAcquire("read_file")
	var rl *RateLimitedError
	if !errors.As(err, &rl) || rl.Bucket != "global" {
		t.Errorf("err = %v, want global RateLimitedError", err)
	}
}

func TestAcquireTimeout(t *testing.T) {
	l := New(slowConfig())
	if err := l.TryAcquire("bash"); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	start := time.Now()
	err := l.AcquireTimeout(context.Background(), "bash", 250*time.Millisecond)
	elapsed := time.Since(start)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if elapsed < 200*time.Millisecond {
		t.Errorf("returned after %s, before the deadline", elapsed)
	}
}

func TestAcquire_Refill(t *testing.T) {
	l := New(config.RateLimitConfig{
		Global: config.BucketConfig{Rate: 100, Burst: 100},
		PerPrimitive: map[string]config.BucketConfig{
			"bash": {Rate: 20, Burst: 1},
		},
	})
	if err := l.TryAcquire("bash"); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Acquire(ctx, "bash"); err != nil {
		t.Errorf("Acquire did not obtain a refilled token: %v", err)
	}
}

func TestDisabled(t *testing.T) {
	l := Disabled()
	for i := 0; i < 1000; i++ {
		if err := l.TryAcquire("bash"); err != nil {
			t.Fatalf("disabled limiter rejected call %d: %v", i, err)
		}
	}
}

func TestHeaders(t *testing.T) {
	l := New(slowConfig())
	h := l.Headers("read_file")

	for _, key := range []string{
		"X-RateLimit-Limit", "X-RateLimit-Remaining",
		"X-RateLimit-Global-Limit", "X-RateLimit-Global-Remaining",
	} {
		if _, ok := h[key]; !ok {
			t.Errorf("missing header %s", key)
		}
	}
	if h["X-RateLimit-Limit"] != "3" {
		t.Errorf("X-RateLimit-Limit = %s, want 3", h["X-RateLimit-Limit"])
	}
	if h["X-RateLimit-Global-Limit"] != "5" {
		t.Errorf("X-RateLimit-Global-Limit = %s, want 5", h["X-RateLimit-Global-Limit"])
	}
}
