// Package store defines storage interfaces for the optional on-disk caches of
// upstream market data: daily history bars and the trading calendar.
package store

import (
	"context"
	"errors"
	"time"

	"limitboard/internal/domain"
)

// ErrNotFound is returned when nothing has been stored for a key yet.
var ErrNotFound = errors.New("store: not found")

// HistoryStore persists and retrieves per-symbol daily history.
type HistoryStore interface {
	// WriteHistory merges records into the stored history of symbol.
	WriteHistory(ctx context.Context, symbol string, period domain.Period, records []domain.HistoryRecord) error

	// ReadHistory returns the stored history of symbol in ascending date
	// order, or ErrNotFound.
	ReadHistory(ctx context.Context, symbol string, period domain.Period) ([]domain.HistoryRecord, error)
}

// CalendarSnapshot is one fetched copy of the trading calendar.
type CalendarSnapshot struct {
	StartDate domain.TradingDate
	Dates     []domain.TradingDate
	FetchedAt time.Time
}

// CalendarStore persists the most recent calendar snapshot.
type CalendarStore interface {
	// SaveCalendar replaces the stored snapshot.
	SaveCalendar(ctx context.Context, snap CalendarSnapshot) error

	// LoadCalendar returns the stored snapshot, or ErrNotFound.
	LoadCalendar(ctx context.Context) (CalendarSnapshot, error)
}
