package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"limitboard/internal/api"
	"limitboard/internal/app"
	"limitboard/internal/cnapi"
	"limitboard/internal/config"
	"limitboard/internal/util"
)

func main() {
	// Load config.
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logger, logCloser, err := app.NewLogger(cfg.Logging, os.Stdout)
	if err != nil {
		log.Fatalf("setting up logging: %v", err)
	}
	defer logCloser.Close()
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Wire the pipeline.
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("initializing: %v", err)
	}
	defer a.Close()

	// Warm the calendar so the first page load is fast. Failure is not
	// fatal; the page reports it and the next request retries.
	if dates, err := a.Calendar.Dates(ctx); err != nil {
		logger.Warn("warming trading calendar", "error", err)
	} else {
		logger.Info("trading calendar loaded", "dates", len(dates))
	}

	web := cnapi.NewServer(a.Analyzer, logger)
	svc := api.NewService(a.Analyzer, logger)
	srv := api.NewServer(cfg.Server, web.Handler(), svc, logger)

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("limitboard server stopped")
}
