package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	attempts := 0
	cause := errors.New("http 404")

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return Permanent(cause)
	})

	if !errors.Is(err, cause) {
		t.Errorf("Retry error = %v, want %v", err, cause)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
}

func TestRetryZeroAttempts(t *testing.T) {
	attempts := 0
	_ = Retry(context.Background(), 0, 0, func() error {
		attempts++
		return errors.New("fail")
	})
	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
}

func TestRateLimiterNew(t *testing.T) {
	rl := NewRateLimiter(60)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	if NewRateLimiter(0) != nil {
		t.Error("NewRateLimiter(0) should disable limiting")
	}
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(60)
	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("first Wait returned error: %v", err)
	}

	// The bucket is empty now; a short deadline cannot be met.
	ctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("second Wait succeeded within 30ms, want an error")
	}

	var nilLimiter *RateLimiter
	if err := nilLimiter.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter Wait returned error: %v", err)
	}
}

func TestRateLimiterReserve(t *testing.T) {
	near := func(got, want time.Duration) bool {
		d := got - want
		return d > -time.Millisecond && d < time.Millisecond
	}
	base := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	rl := NewRateLimiter(600) // 10/s, burst 10

	for i := 0; i < 10; i++ {
		if d := rl.reserve(base); d != 0 {
			t.Fatalf("reserve %d within burst delay = %v, want 0", i, d)
		}
	}
	// Bucket is empty; further reservations queue up 100ms apart.
	if d := rl.reserve(base); !near(d, 100*time.Millisecond) {
		t.Errorf("reserve past burst delay = %v, want 100ms", d)
	}
	if d := rl.reserve(base); !near(d, 200*time.Millisecond) {
		t.Errorf("next reserve delay = %v, want 200ms", d)
	}

	// A long idle period refills only up to the burst.
	later := base.Add(time.Hour)
	for i := 0; i < 10; i++ {
		if d := rl.reserve(later); d != 0 {
			t.Fatalf("reserve %d after idle delay = %v, want 0", i, d)
		}
	}
	if d := rl.reserve(later); !near(d, 100*time.Millisecond) {
		t.Errorf("reserve past burst after idle delay = %v, want 100ms", d)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "text")
	log.Info("hidden")
	log.Warn("shown", "symbol", "600000")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "symbol=600000") {
		t.Errorf("text output missing attribute: %s", out)
	}

	buf.Reset()
	NewLogger(&buf, "debug", "json").Debug("dbg")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json output = %q, want a JSON object", buf.String())
	}

	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Error("ParseLevel should default to info")
	}
}
