package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"limitboard/internal/domain"
	"limitboard/internal/store"
)

type countingSource struct {
	calls   int
	records []domain.HistoryRecord
	err     error
}

func (s *countingSource) History(context.Context, string, domain.Period) ([]domain.HistoryRecord, error) {
	s.calls++
	return s.records, s.err
}

func TestCachedHistoryThrough(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{records: []domain.HistoryRecord{
		{Date: "2025-03-06", Close: 10, PreviousClose: 9.5},
		{Date: "2025-03-07", Close: 11, PreviousClose: 10},
		{Date: "2025-03-10", Close: 12.1, PreviousClose: 11},
	}}
	st := store.NewParquetStore(t.TempDir())
	c := NewCachedHistory(src, st, nil)
	c.now = func() time.Time { return time.Date(2025, 3, 10, 10, 0, 0, 0, domain.MarketLocation) }

	// Cold cache: upstream is hit and all three bars are returned.
	got, err := c.HistoryThrough(ctx, "600001", domain.PeriodDaily, "2025-03-07")
	if err != nil {
		t.Fatalf("HistoryThrough returned error: %v", err)
	}
	if len(got) != 3 || src.calls != 1 {
		t.Fatalf("cold HistoryThrough = %d records, %d calls; want 3 and 1", len(got), src.calls)
	}

	// Today's bar was not stored; the two closed bars serve 2025-03-07.
	got, err = c.HistoryThrough(ctx, "600001", domain.PeriodDaily, "2025-03-07")
	if err != nil {
		t.Fatalf("HistoryThrough returned error: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("warm HistoryThrough hit upstream, calls = %d", src.calls)
	}
	if len(got) != 2 || got[1].Date != "2025-03-07" {
		t.Errorf("warm HistoryThrough = %+v, want two bars ending 2025-03-07", got)
	}

	// Today is never served from the store.
	if _, err := c.HistoryThrough(ctx, "600001", domain.PeriodDaily, "2025-03-10"); err != nil {
		t.Fatalf("HistoryThrough returned error: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("HistoryThrough for today calls = %d, want 2", src.calls)
	}
}

func TestCachedHistoryUpstreamError(t *testing.T) {
	want := &domain.HistoryError{Symbol: "000001", Kind: domain.FailureNetwork, Err: errors.New("reset")}
	src := &countingSource{err: want}
	c := NewCachedHistory(src, store.NewParquetStore(t.TempDir()), nil)

	_, err := c.HistoryThrough(context.Background(), "000001", domain.PeriodDaily, "2025-03-07")
	var he *domain.HistoryError
	if !errors.As(err, &he) || he != want {
		t.Errorf("HistoryThrough error = %v, want %v", err, want)
	}
}
