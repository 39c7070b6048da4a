package main

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"limitboard/internal/tui"
)

var tuiOutDir string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Logs would corrupt the screen; only logging.file receives them.
		verbose = false
		a, cleanup, err := localApp(cmd.Context(), io.Discard, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		p := tea.NewProgram(
			tui.New(a.Analyzer, tuiOutDir),
			tea.WithAltScreen(),
			tea.WithMouseCellMotion(),
			tea.WithContext(cmd.Context()),
		)
		_, err = p.Run()
		return err
	},
}

func init() {
	tuiCmd.Flags().StringVarP(&tuiOutDir, "out", "o", ".", "directory for saved CSV/XLSX files")
}
