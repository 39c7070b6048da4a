package calendar

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"limitboard/internal/domain"
	"limitboard/internal/store"
)

type fakeSource struct {
	calls atomic.Int32
	dates []domain.TradingDate
	err   error
	delay time.Duration
}

func (f *fakeSource) TradingDates(context.Context) ([]domain.TradingDate, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.dates, f.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestCacheTTL(t *testing.T) {
	src := &fakeSource{dates: []domain.TradingDate{"2025-01-02", "2025-01-03"}}
	clk := &clock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	c := NewCache(src, Config{TTL: time.Hour}, nil)
	c.now = clk.now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Dates(ctx); err != nil {
			t.Fatalf("Dates returned error: %v", err)
		}
	}
	if src.calls.Load() != 1 {
		t.Errorf("source called %d times within TTL, want 1", src.calls.Load())
	}

	clk.advance(59 * time.Minute)
	c.Dates(ctx)
	if src.calls.Load() != 1 {
		t.Errorf("source called %d times before expiry, want 1", src.calls.Load())
	}

	clk.advance(time.Minute)
	c.Dates(ctx)
	if src.calls.Load() != 2 {
		t.Errorf("source called %d times after expiry, want 2", src.calls.Load())
	}

	c.Invalidate()
	c.Dates(ctx)
	if src.calls.Load() != 3 {
		t.Errorf("source called %d times after Invalidate, want 3", src.calls.Load())
	}
}

func TestCacheReturnsCopy(t *testing.T) {
	src := &fakeSource{dates: []domain.TradingDate{"2025-01-02"}}
	c := NewCache(src, Config{}, nil)

	got, _ := c.Dates(context.Background())
	got[0] = "1999-01-01"
	again, _ := c.Dates(context.Background())
	if again[0] != "2025-01-02" {
		t.Errorf("cached calendar mutated through returned slice: %v", again)
	}
}

func TestCacheFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	c := NewCache(src, Config{}, nil)

	_, err := c.Dates(context.Background())
	if !errors.Is(err, domain.ErrCalendarUnavailable) {
		t.Fatalf("Dates error = %v, want ErrCalendarUnavailable", err)
	}
	// Failures are not cached.
	c.Dates(context.Background())
	if src.calls.Load() != 2 {
		t.Errorf("source called %d times, want 2", src.calls.Load())
	}
}

func TestCacheSingleFlight(t *testing.T) {
	src := &fakeSource{dates: []domain.TradingDate{"2025-01-02"}, delay: 50 * time.Millisecond}
	c := NewCache(src, Config{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Dates(context.Background()); err != nil {
				t.Errorf("Dates returned error: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := src.calls.Load(); n != 1 {
		t.Errorf("source called %d times for concurrent misses, want 1", n)
	}
}

func TestCachePersistentStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "cal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore returned error: %v", err)
	}
	defer st.Close()

	clk := &clock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	cfg := Config{TTL: time.Hour, Store: st, StartDate: "2025-01-01"}

	src := &fakeSource{dates: []domain.TradingDate{"2025-01-02", "2025-03-10"}}
	first := NewCache(src, cfg, nil)
	first.now = clk.now
	if _, err := first.Dates(ctx); err != nil {
		t.Fatalf("Dates returned error: %v", err)
	}

	// A fresh process within the TTL reuses the stored snapshot.
	src2 := &fakeSource{dates: []domain.TradingDate{"2025-01-02"}}
	second := NewCache(src2, cfg, nil)
	clk.advance(30 * time.Minute)
	second.now = clk.now
	got, err := second.Dates(ctx)
	if err != nil {
		t.Fatalf("Dates returned error: %v", err)
	}
	if src2.calls.Load() != 0 || len(got) != 2 {
		t.Errorf("second cache calls = %d, dates = %v; want 0 calls and the stored 2 dates", src2.calls.Load(), got)
	}

	// Past the TTL the stored snapshot is stale.
	third := NewCache(src2, cfg, nil)
	clk.advance(time.Hour)
	third.now = clk.now
	if _, err := third.Dates(ctx); err != nil {
		t.Fatalf("Dates returned error: %v", err)
	}
	if src2.calls.Load() != 1 {
		t.Errorf("stale store: source calls = %d, want 1", src2.calls.Load())
	}

	// A different window ignores the stored snapshot.
	other := NewCache(src2, Config{TTL: time.Hour, Store: st, StartDate: "2024-01-01"}, nil)
	other.now = clk.now
	other.Dates(ctx)
	if src2.calls.Load() != 2 {
		t.Errorf("other window: source calls = %d, want 2", src2.calls.Load())
	}
}
