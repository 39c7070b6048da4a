package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"limitboard/internal/app"
	"limitboard/internal/config"
)

var (
	configPath string
	serverURL  string
	grpcAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "limitboard",
	Short: "A-share limit-up streak dashboard",
	Long: `limitboard classifies today's limit-up A-share instruments by how many
limit-up days each has had, as of a selected trading date.

Commands run the analysis locally unless --server or --grpc points them at a
running limitboard-server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.Path(), "config file path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "limitboard-server base URL, e.g. http://localhost:8501")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc", "", "limitboard-server gRPC address, e.g. localhost:9501")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(datesCmd, classifyCmd, tuiCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// localApp loads config, applies override when non-nil and wires the local
// pipeline. Logs go to logOut (stderr with --verbose) and to logging.file
// when configured.
func localApp(ctx context.Context, logOut io.Writer, override func(*config.Config)) (*app.App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	if verbose && logOut == io.Discard {
		logOut = os.Stderr
	}
	logger, logCloser, err := app.NewLogger(cfg.Logging, logOut)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logCloser.Close()
		return nil, nil, err
	}
	cleanup := func() {
		a.Close()
		logCloser.Close()
	}
	return a, cleanup, nil
}
