package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"limitboard/internal/api"
	"limitboard/internal/config"
	"limitboard/internal/dashboard"
	"limitboard/internal/domain"
	"limitboard/internal/limitup"
	"limitboard/internal/report"
	"limitboard/pkg/limitboard"
)

var (
	classifyDate    string
	classifyCSV     string
	classifyXLSX    string
	classifyWorkers int
	classifyMode    string
	classifyTop     int
	classifyJSON    bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify limit-up instruments for a trading date",
	Long: `Fetch the market snapshot, keep non-ST instruments up at least 9.9% and
bucket each by its limit-up count as of --date (default: latest trading date).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		switch {
		case serverURL != "":
			return classifyRemote(ctx, cmd.OutOrStdout())
		case grpcAddr != "":
			return classifyGRPC(ctx, cmd.OutOrStdout())
		default:
			return classifyLocal(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr())
		}
	},
}

func init() {
	f := classifyCmd.Flags()
	f.StringVarP(&classifyDate, "date", "d", "", "trading date YYYY-MM-DD (default latest)")
	f.StringVar(&classifyCSV, "csv", "", "write the bucket table as CSV to this path")
	f.StringVar(&classifyXLSX, "xlsx", "", "write the XLSX workbook to this path")
	f.IntVarP(&classifyWorkers, "workers", "w", 0, "concurrent history fetches (default from config)")
	f.StringVar(&classifyMode, "mode", "", "streak mode: cumulative or trailing (default from config)")
	f.IntVar(&classifyTop, "top", 20, "instruments to list (0 for all, -1 for none)")
	f.BoolVar(&classifyJSON, "json", false, "print the result as JSON")
}

func classifyLocal(ctx context.Context, out, errOut io.Writer) error {
	a, cleanup, err := localApp(ctx, io.Discard, func(cfg *config.Config) {
		if classifyWorkers > 0 {
			cfg.LimitUp.Workers = classifyWorkers
		}
		if classifyMode != "" {
			cfg.LimitUp.StreakMode = classifyMode
		}
	})
	if err != nil {
		return err
	}
	defer cleanup()
	analyzer := a.Analyzer

	date := classifyDate
	if date == "" {
		latest, err := analyzer.LatestDate(ctx)
		if err != nil {
			return err
		}
		date = string(latest)
	}

	var lastDraw time.Time
	res, err := analyzer.Run(ctx, date, func(p limitup.Progress) {
		if p.Done == p.Total || time.Since(lastDraw) > 200*time.Millisecond {
			lastDraw = time.Now()
			fmt.Fprintf(errOut, "\r正在获取数据并分析... %d/%d", p.Done, p.Total)
		}
	})
	fmt.Fprintln(errOut)
	if err != nil {
		return err
	}

	if classifyCSV != "" {
		if err := writeFile(classifyCSV, func(w io.Writer) error { return report.WriteCSV(w, res.Counts) }); err != nil {
			return err
		}
	}
	if classifyXLSX != "" {
		if err := writeFile(classifyXLSX, func(w io.Writer) error { return report.WriteXLSX(w, res) }); err != nil {
			return err
		}
	}
	return printResult(out, res)
}

func classifyRemote(ctx context.Context, out io.Writer) error {
	c := limitboard.NewClient(serverURL)
	resp, err := c.LimitUp(ctx, classifyDate)
	if err != nil {
		return err
	}
	if classifyCSV != "" {
		data, err := c.ExportCSV(ctx, resp.Date, resp.RunID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(classifyCSV, data, 0o644); err != nil {
			return err
		}
	}
	if classifyXLSX != "" {
		data, err := c.ExportXLSX(ctx, resp.Date, resp.RunID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(classifyXLSX, data, 0o644); err != nil {
			return err
		}
	}
	res, err := resultFromRemote(resp)
	if err != nil {
		return err
	}
	return printResult(out, res)
}

// errXLSXOverGRPC is returned for --xlsx with --grpc: Classify carries counts
// only, not the per-instrument rows the workbook needs.
var errXLSXOverGRPC = errors.New("--xlsx is not supported with --grpc; use --server or a local run")

func classifyGRPC(ctx context.Context, out io.Writer) error {
	if classifyXLSX != "" {
		return errXLSXOverGRPC
	}
	c, err := api.Dial(grpcAddr)
	if err != nil {
		return err
	}
	defer c.Close()
	got, err := c.Classify(ctx, classifyDate)
	if err != nil {
		return err
	}
	res := &limitup.Result{
		Date:       got.Date,
		Mode:       limitup.StreakMode(got.Mode),
		Counts:     got.Counts,
		Qualifying: got.Qualifying,
		Failures:   got.Failures,
		Elapsed:    time.Duration(got.ElapsedMs) * time.Millisecond,
	}
	if classifyCSV != "" {
		if err := writeFile(classifyCSV, func(w io.Writer) error { return report.WriteCSV(w, res.Counts) }); err != nil {
			return err
		}
	}
	return printResult(out, res)
}

// resultFromRemote converts an SDK response for local rendering.
func resultFromRemote(resp *limitboard.LimitUp) (*limitup.Result, error) {
	date, err := domain.ParseTradingDate(resp.Date)
	if err != nil {
		return nil, err
	}
	res := &limitup.Result{
		Date:       date,
		Mode:       limitup.StreakMode(resp.Mode),
		Qualifying: resp.Qualifying,
		Failures:   make(map[domain.FailureKind]int, len(resp.Failures)),
		Elapsed:    time.Duration(resp.ElapsedMs) * time.Millisecond,
	}
	for _, row := range resp.Rows {
		b, ok := domain.BucketByLabel(row.Category)
		if !ok {
			return nil, fmt.Errorf("unknown category %q in response", row.Category)
		}
		res.Counts[b] = row.Count
	}
	for _, in := range resp.Instruments {
		res.Instruments = append(res.Instruments, limitup.Instrument{
			Symbol:        in.Symbol,
			Name:          in.Name,
			ChangePercent: in.ChangePercent,
			Streak:        in.Streak,
			Bucket:        domain.BucketFor(in.Streak),
			Category:      in.Category,
		})
	}
	for _, sk := range resp.Skipped {
		res.Skipped = append(res.Skipped, limitup.Skipped{
			Symbol: sk.Symbol,
			Name:   sk.Name,
			Kind:   domain.FailureKind(sk.Kind),
			Reason: sk.Reason,
		})
	}
	for k, n := range resp.Failures {
		res.Failures[domain.FailureKind(k)] = n
	}
	return res, nil
}

func printResult(out io.Writer, res *limitup.Result) error {
	if classifyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(out, dashboard.Report(res, 30))
	if classifyTop >= 0 && len(res.Instruments) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, dashboard.Instruments(res, classifyTop))
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
