package limitup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"limitboard/internal/domain"
)

// SnapshotSource returns the current market snapshot.
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]domain.SnapshotRecord, error)
}

// HistorySource returns the full history of one symbol.
type HistorySource interface {
	History(ctx context.Context, symbol string, period domain.Period) ([]domain.HistoryRecord, error)
}

// boundedHistorySource is implemented by caches that can decide freshness
// from the date the caller needs history through.
type boundedHistorySource interface {
	HistoryThrough(ctx context.Context, symbol string, period domain.Period, through domain.TradingDate) ([]domain.HistoryRecord, error)
}

// CalendarSource lists selectable trading dates in ascending order.
type CalendarSource interface {
	Dates(ctx context.Context) ([]domain.TradingDate, error)
}

// Analyzer runs the whole analysis for one selected date: calendar check,
// snapshot fetch and classification.
type Analyzer struct {
	calendar CalendarSource
	snapshot SnapshotSource
	history  HistorySource
	opts     Options
	log      *slog.Logger
}

// NewAnalyzer creates an Analyzer. opts.OnProgress is ignored; progress is
// supplied per run.
func NewAnalyzer(calendar CalendarSource, snapshot SnapshotSource, history HistorySource, opts Options, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	opts.OnProgress = nil
	opts.Logger = log
	return &Analyzer{
		calendar: calendar,
		snapshot: snapshot,
		history:  history,
		opts:     opts,
		log:      log,
	}
}

// Mode returns the streak counting mode in use.
func (a *Analyzer) Mode() StreakMode { return a.opts.Mode }

// Dates returns the selectable trading dates.
func (a *Analyzer) Dates(ctx context.Context) ([]domain.TradingDate, error) {
	dates, err := a.calendar.Dates(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCalendarUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrCalendarUnavailable, err)
		}
		return nil, err
	}
	return dates, nil
}

// LatestDate returns the most recent trading date.
func (a *Analyzer) LatestDate(ctx context.Context) (domain.TradingDate, error) {
	dates, err := a.Dates(ctx)
	if err != nil {
		return "", err
	}
	if len(dates) == 0 {
		return "", fmt.Errorf("%w: calendar is empty", domain.ErrCalendarUnavailable)
	}
	return dates[len(dates)-1], nil
}

// Run validates date against the trading calendar, fetches the snapshot and
// classifies it. A calendar or snapshot failure aborts the run; per-symbol
// history failures do not.
func (a *Analyzer) Run(ctx context.Context, date string, onProgress func(Progress)) (*Result, error) {
	selected, err := domain.ParseTradingDate(date)
	if err != nil {
		return nil, err
	}
	dates, err := a.Dates(ctx)
	if err != nil {
		return nil, err
	}
	if _, found := slices.BinarySearch(dates, selected); !found {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotTradingDate, selected)
	}

	snapshot, err := a.snapshot.Snapshot(ctx)
	if err != nil {
		a.log.Error("fetching market snapshot", "date", selected, "error", err)
		if !errors.Is(err, domain.ErrSnapshotUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrSnapshotUnavailable, err)
		}
		return nil, err
	}

	opts := a.opts
	opts.OnProgress = onProgress
	return Classify(ctx, selected, snapshot, a.fetcher(selected), opts)
}

func (a *Analyzer) fetcher(selected domain.TradingDate) HistoryFunc {
	if b, ok := a.history.(boundedHistorySource); ok {
		return func(ctx context.Context, symbol string) ([]domain.HistoryRecord, error) {
			return b.HistoryThrough(ctx, symbol, domain.PeriodDaily, selected)
		}
	}
	return func(ctx context.Context, symbol string) ([]domain.HistoryRecord, error) {
		return a.history.History(ctx, symbol, domain.PeriodDaily)
	}
}
