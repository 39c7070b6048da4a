// Package calendar caches the trading calendar for a bounded time.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"limitboard/internal/domain"
	"limitboard/internal/store"
)

// DefaultTTL is how long a fetched calendar stays valid.
const DefaultTTL = time.Hour

// Source fetches the trading calendar upstream.
type Source interface {
	TradingDates(ctx context.Context) ([]domain.TradingDate, error)
}

// Config tunes a Cache.
type Config struct {
	TTL time.Duration
	// Store, when set, keeps the last snapshot across restarts. A stored
	// snapshot is only used while it is younger than TTL.
	Store store.CalendarStore
	// StartDate identifies the calendar window; a stored snapshot for a
	// different window is ignored.
	StartDate domain.TradingDate
}

// Cache holds the trading calendar with an expiry. Concurrent misses share a
// single upstream fetch. It is safe for concurrent use.
type Cache struct {
	source Source
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
	group  singleflight.Group

	mu      sync.RWMutex
	dates   []domain.TradingDate
	expires time.Time
}

// NewCache creates a Cache over source.
func NewCache(source Source, cfg Config, log *slog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		source: source,
		cfg:    cfg,
		log:    log.With("component", "calendar"),
		now:    time.Now,
	}
}

// Dates returns the cached calendar, refreshing it once expired. A failed
// refresh returns an error wrapping domain.ErrCalendarUnavailable and leaves
// the cache empty.
func (c *Cache) Dates(ctx context.Context) ([]domain.TradingDate, error) {
	if dates, ok := c.cached(); ok {
		return dates, nil
	}
	v, err, _ := c.group.Do("calendar", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]domain.TradingDate)), nil
}

// Invalidate drops the cached calendar.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.dates = nil
	c.expires = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) cached() ([]domain.TradingDate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.dates == nil || !c.now().Before(c.expires) {
		return nil, false
	}
	return slices.Clone(c.dates), true
}

func (c *Cache) set(dates []domain.TradingDate, expires time.Time) {
	c.mu.Lock()
	c.dates = dates
	c.expires = expires
	c.mu.Unlock()
}

func (c *Cache) refresh(ctx context.Context) ([]domain.TradingDate, error) {
	if dates, ok := c.cached(); ok {
		return dates, nil
	}

	if c.cfg.Store != nil {
		snap, err := c.cfg.Store.LoadCalendar(ctx)
		switch {
		case err == nil && snap.StartDate == c.cfg.StartDate && len(snap.Dates) > 0 &&
			c.now().Before(snap.FetchedAt.Add(c.cfg.TTL)):
			c.set(snap.Dates, snap.FetchedAt.Add(c.cfg.TTL))
			c.log.Debug("calendar loaded from store", "dates", len(snap.Dates), "fetched_at", snap.FetchedAt)
			return snap.Dates, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			c.log.Warn("loading stored calendar", "error", err)
		}
	}

	fetchedAt := c.now()
	dates, err := c.source.TradingDates(ctx)
	if err != nil {
		c.log.Error("fetching trading calendar", "error", err)
		if !errors.Is(err, domain.ErrCalendarUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrCalendarUnavailable, err)
		}
		return nil, err
	}
	c.set(dates, fetchedAt.Add(c.cfg.TTL))

	if c.cfg.Store != nil {
		snap := store.CalendarSnapshot{StartDate: c.cfg.StartDate, Dates: dates, FetchedAt: fetchedAt}
		if err := c.cfg.Store.SaveCalendar(ctx, snap); err != nil {
			c.log.Warn("saving calendar", "error", err)
		}
	}
	return dates, nil
}
