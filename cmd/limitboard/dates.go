package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"limitboard/internal/api"
	"limitboard/pkg/limitboard"
)

var datesLimit int

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "List the selectable trading dates, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var dates []string

		switch {
		case serverURL != "":
			d, err := limitboard.NewClient(serverURL).Dates(ctx)
			if err != nil {
				return err
			}
			dates = d
		case grpcAddr != "":
			c, err := api.Dial(grpcAddr)
			if err != nil {
				return err
			}
			defer c.Close()
			d, err := c.Dates(ctx)
			if err != nil {
				return err
			}
			for _, x := range d {
				dates = append(dates, string(x))
			}
		default:
			a, cleanup, err := localApp(ctx, io.Discard, nil)
			if err != nil {
				return err
			}
			defer cleanup()
			d, err := a.Analyzer.Dates(ctx)
			if err != nil {
				return err
			}
			for _, x := range d {
				dates = append(dates, string(x))
			}
		}

		out := cmd.OutOrStdout()
		for i := len(dates) - 1; i >= 0; i-- {
			if datesLimit > 0 && len(dates)-1-i >= datesLimit {
				break
			}
			fmt.Fprintln(out, dates[i])
		}
		return nil
	},
}

func init() {
	datesCmd.Flags().IntVarP(&datesLimit, "limit", "n", 0, "print at most n dates (0 for all)")
}
