package limitup

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"limitboard/internal/domain"
)

// DefaultWorkers bounds concurrent history fetches when Options.Workers is 0.
const DefaultWorkers = 8

// HistoryFunc fetches the daily history of one symbol.
type HistoryFunc func(ctx context.Context, symbol string) ([]domain.HistoryRecord, error)

// Progress is reported once per qualifying instrument after its history
// fetch finishes.
type Progress struct {
	Done   int    `json:"done"`
	Total  int    `json:"total"`
	Symbol string `json:"symbol"`
	Failed bool   `json:"failed"`
}

// Options tunes a classification run.
type Options struct {
	Filter Filter
	// LimitRatio is the minimum close/previousClose - 1 of a limit-up day.
	LimitRatio decimal.Decimal
	Mode       StreakMode
	// Workers bounds concurrent history fetches. 1 fetches sequentially.
	Workers int
	Logger  *slog.Logger
	// OnProgress is never called concurrently.
	OnProgress func(Progress)
}

// DefaultOptions returns the 9.9% / 0.099 thresholds in cumulative mode.
func DefaultOptions() Options {
	return Options{
		Filter:     DefaultFilter(),
		LimitRatio: decimal.RequireFromString("0.099"),
		Mode:       ModeCumulative,
		Workers:    DefaultWorkers,
	}
}

// Instrument is a classified qualifying instrument.
type Instrument struct {
	Symbol        string        `json:"symbol"`
	Name          string        `json:"name"`
	ChangePercent float64       `json:"changePercent"`
	Streak        int           `json:"streak"`
	Bucket        domain.Bucket `json:"-"`
	Category      string        `json:"category"`
}

// Skipped is a qualifying instrument whose history could not be fetched.
type Skipped struct {
	Symbol string             `json:"symbol"`
	Name   string             `json:"name"`
	Kind   domain.FailureKind `json:"kind"`
	Reason string             `json:"reason"`
}

// Result is the outcome of one classification run.
type Result struct {
	Date        domain.TradingDate         `json:"date"`
	Mode        StreakMode                 `json:"mode"`
	Counts      domain.BucketCounts        `json:"counts"`
	Qualifying  int                        `json:"qualifying"`
	Instruments []Instrument               `json:"instruments"`
	Skipped     []Skipped                  `json:"skipped"`
	Failures    map[domain.FailureKind]int `json:"failures"`
	Elapsed     time.Duration              `json:"elapsed"`
}

// Classified returns the number of instruments that landed in a bucket.
func (r *Result) Classified() int { return r.Counts.Total() }

// Classify filters snapshot to qualifying instruments, fetches each one's
// history through fetch and buckets it by streak count. A failed fetch skips
// that instrument and is recorded in Result.Skipped; it never fails the run.
// Classify only returns an error when ctx is cancelled.
func Classify(ctx context.Context, selected domain.TradingDate, snapshot []domain.SnapshotRecord, fetch HistoryFunc, opts Options) (*Result, error) {
	start := time.Now()
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeCumulative
	}

	qualifying := opts.Filter.Qualify(snapshot)
	log.Info("classifying limit-up instruments",
		"date", selected, "snapshot", len(snapshot), "qualifying", len(qualifying), "workers", workers)

	type outcome struct {
		streak int
		err    error
	}
	outcomes := make([]outcome, len(qualifying))

	var (
		progressMu sync.Mutex
		done       int
	)
	report := func(symbol string, failed bool) {
		if opts.OnProgress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		opts.OnProgress(Progress{Done: done, Total: len(qualifying), Symbol: symbol, Failed: failed})
	}

	sem := make(chan struct{}, workers)
	g, gctx := errgroup.WithContext(ctx)

	for i, inst := range qualifying {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			if err := gctx.Err(); err != nil {
				return err
			}

			history, err := fetch(gctx, inst.Symbol)
			if err != nil {
				// A cancelled run surfaces as the run's error, not as a skip.
				if ctxErr := gctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return ctxErr
				}
				outcomes[i] = outcome{err: err}
				report(inst.Symbol, true)
				return nil
			}
			outcomes[i] = outcome{streak: mode.Count(history, selected, opts.LimitRatio)}
			report(inst.Symbol, false)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Date:        selected,
		Mode:        mode,
		Qualifying:  len(qualifying),
		Instruments: make([]Instrument, 0, len(qualifying)),
		Skipped:     []Skipped{},
		Failures:    make(map[domain.FailureKind]int),
	}
	for i, o := range outcomes {
		inst := qualifying[i]
		if o.err != nil {
			kind := domain.KindOf(o.err)
			res.Skipped = append(res.Skipped, Skipped{
				Symbol: inst.Symbol,
				Name:   inst.Name,
				Kind:   kind,
				Reason: o.err.Error(),
			})
			res.Failures[kind]++
			log.Debug("skipping instrument", "symbol", inst.Symbol, "kind", kind, "error", o.err)
			continue
		}
		b := domain.BucketFor(o.streak)
		res.Counts.Add(b)
		res.Instruments = append(res.Instruments, Instrument{
			Symbol:        inst.Symbol,
			Name:          inst.Name,
			ChangePercent: inst.ChangePercent,
			Streak:        o.streak,
			Bucket:        b,
			Category:      b.Label(),
		})
	}

	sort.Slice(res.Instruments, func(i, j int) bool {
		a, b := res.Instruments[i], res.Instruments[j]
		if a.Streak != b.Streak {
			return a.Streak > b.Streak
		}
		return a.Symbol < b.Symbol
	})
	sort.Slice(res.Skipped, func(i, j int) bool {
		return res.Skipped[i].Symbol < res.Skipped[j].Symbol
	})

	res.Elapsed = time.Since(start)
	if len(res.Skipped) > 0 {
		log.Warn("instruments skipped", "date", selected, "skipped", len(res.Skipped), "failures", res.Failures)
	}
	log.Info("classification complete",
		"date", selected, "classified", res.Classified(), "skipped", len(res.Skipped), "elapsed", res.Elapsed)
	return res, nil
}
