// Package app wires configuration into a ready-to-use analysis pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"limitboard/internal/calendar"
	"limitboard/internal/config"
	"limitboard/internal/domain"
	"limitboard/internal/limitup"
	"limitboard/internal/provider"
	"limitboard/internal/provider/eastmoney"
	"limitboard/internal/store"
	"limitboard/internal/util"
)

// App holds the wired pipeline.
type App struct {
	Analyzer *limitup.Analyzer
	Calendar *calendar.Cache
	Client   *eastmoney.Client
	// History is the client itself, or a parquet read-through cache over
	// it when storage.data_dir is set.
	History limitup.HistorySource

	closers []io.Closer
}

// New builds the pipeline described by cfg.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	opts.Logger = log

	client := eastmoney.NewClient(eastmoney.Config{
		SnapshotURL:     cfg.EastMoney.SnapshotURL,
		KlineURL:        cfg.EastMoney.KlineURL,
		Timeout:         cfg.EastMoney.Timeout,
		PageSize:        cfg.EastMoney.PageSize,
		RateLimitPerMin: cfg.EastMoney.RateLimitPerMin,
		MaxAttempts:     cfg.EastMoney.MaxAttempts,
		RetryDelay:      cfg.EastMoney.RetryDelay,
		IndexSecID:      cfg.Calendar.IndexSecID,
		CalendarStart:   domain.TradingDate(cfg.Calendar.StartDate),
		HistoryBegin:    cfg.EastMoney.HistoryBegin,
	}, log)

	a := &App{Client: client, History: client}

	calCfg := calendar.Config{TTL: cfg.Calendar.TTL, StartDate: domain.TradingDate(cfg.Calendar.StartDate)}
	if path := cfg.Storage.SQLitePath; path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating sqlite directory: %w", err)
			}
		}
		st, err := store.NewSQLiteStore(ctx, path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st)
		calCfg.Store = st
		log.Info("calendar store enabled", "path", path)
	}
	a.Calendar = calendar.NewCache(client, calCfg, log)

	if dir := cfg.Storage.DataDir; dir != "" {
		a.History = provider.NewCachedHistory(client, store.NewParquetStore(dir), log)
		log.Info("history cache enabled", "dataDir", dir)
	}

	a.Analyzer = limitup.NewAnalyzer(a.Calendar, client, a.History, opts, log)
	return a, nil
}

// Close releases the stores opened by New.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Options converts the limitup section of cfg to classifier options.
func Options(cfg *config.Config) (limitup.Options, error) {
	mode, err := limitup.ParseStreakMode(cfg.LimitUp.StreakMode)
	if err != nil {
		return limitup.Options{}, err
	}
	opts := limitup.DefaultOptions()
	opts.Filter = limitup.Filter{
		MinChangePercent: cfg.LimitUp.ChangePctThreshold,
		ExcludeMarkers:   cfg.LimitUp.ExcludeMarkers,
	}
	opts.LimitRatio = decimal.NewFromFloat(cfg.LimitUp.LimitRatio)
	opts.Mode = mode
	opts.Workers = cfg.LimitUp.Workers
	return opts, nil
}

// NewLogger builds the logger described by cfg writing to w, and also to
// cfg.File when set. The returned closer closes that file.
func NewLogger(cfg config.Logging, w io.Writer) (*slog.Logger, io.Closer, error) {
	if cfg.File == "" {
		return util.NewLogger(w, cfg.Level, cfg.Format), closerFunc(func() error { return nil }), nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return util.NewLogger(io.MultiWriter(w, f), cfg.Level, cfg.Format), f, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
