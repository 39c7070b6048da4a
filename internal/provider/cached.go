// Package provider composes upstream market-data sources with the optional
// on-disk caches in package store.
package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"limitboard/internal/domain"
	"limitboard/internal/store"
)

// HistorySource returns the full history of one symbol.
type HistorySource interface {
	History(ctx context.Context, symbol string, period domain.Period) ([]domain.HistoryRecord, error)
}

// CachedHistory is a read-through history cache. Only bars of closed
// sessions (dated before today on the exchange clock) are stored, so a stored
// history that reaches the requested date is complete for it.
type CachedHistory struct {
	upstream HistorySource
	store    store.HistoryStore
	log      *slog.Logger
	now      func() time.Time
}

// NewCachedHistory wraps upstream with st.
func NewCachedHistory(upstream HistorySource, st store.HistoryStore, log *slog.Logger) *CachedHistory {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &CachedHistory{
		upstream: upstream,
		store:    st,
		log:      log.With("component", "history-cache"),
		now:      time.Now,
	}
}

// History always fetches upstream and refreshes the store.
func (c *CachedHistory) History(ctx context.Context, symbol string, period domain.Period) ([]domain.HistoryRecord, error) {
	records, err := c.upstream.History(ctx, symbol, period)
	if err != nil {
		return nil, err
	}
	c.save(ctx, symbol, period, records)
	return records, nil
}

// HistoryThrough serves from the store when it already holds a bar dated on
// or after through, and otherwise falls back to History.
func (c *CachedHistory) HistoryThrough(ctx context.Context, symbol string, period domain.Period, through domain.TradingDate) ([]domain.HistoryRecord, error) {
	cached, err := c.store.ReadHistory(ctx, symbol, period)
	switch {
	case err == nil && len(cached) > 0 && !through.After(cached[len(cached)-1].Date):
		return cached, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		c.log.Warn("reading cached history", "symbol", symbol, "error", err)
	}
	return c.History(ctx, symbol, period)
}

func (c *CachedHistory) save(ctx context.Context, symbol string, period domain.Period, records []domain.HistoryRecord) {
	today := domain.Today(c.now())
	closed := make([]domain.HistoryRecord, 0, len(records))
	for _, r := range records {
		if r.Date < today {
			closed = append(closed, r)
		}
	}
	if err := c.store.WriteHistory(ctx, symbol, period, closed); err != nil {
		c.log.Warn("writing cached history", "symbol", symbol, "error", err)
	}
}
