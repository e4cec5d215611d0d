package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/rollphys/internal/platform/tui"
	"github.com/vovakirdan/rollphys/internal/storage"
)

var (
	flagHistoryLimit   int
	flagHistoryDesyncs bool
	flagHistoryTUI     bool
)

var historyCmd = &cobra.Command{
	Use:   "history [scenario]",
	Short: "Show recorded runs",
	Long: `Display recent runs from the history database, newest first,
with per-scenario totals.

Examples:
  rollphys history
  rollphys history tanks --limit 50
  rollphys history --desyncs
  rollphys history --tui`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 10, "Number of runs to show")
	historyCmd.Flags().BoolVar(&flagHistoryDesyncs, "desyncs", false, "List desync reports instead of runs")
	historyCmd.Flags().BoolVar(&flagHistoryTUI, "tui", false, "Browse runs interactively")
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := storage.Open(flagDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if flagHistoryTUI {
		width, height := 80, 24
		if w, h, termErr := term.GetSize(int(os.Stdout.Fd())); termErr == nil {
			width, height = w, h
		}
		return tui.RunHistory(store, width, height)
	}
	if flagHistoryDesyncs {
		return printDesyncs(store)
	}

	var scenarioID string
	if len(args) == 1 {
		scenarioID = args[0]
	}
	runs, err := store.RecentRuns(scenarioID, flagHistoryLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		fmt.Println()
		fmt.Println("Run 'rollphys simulate <scenario>' to record one.")
		return nil
	}

	fmt.Printf("  %-8s  %-8s  %7s  %5s  %9s  %-16s  %-3s  %s\n",
		"Run", "Scenario", "Frames", "Depth", "Rollbacks", "Checksum", "OK", "Date")
	for _, r := range runs {
		ok := "-"
		if r.Verified {
			ok = "yes"
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Printf("  %-8s  %-8s  %7d  %5d  %9d  %-16s  %-3s  %s\n",
			id, r.Scenario, r.Frames, r.MaxDepth, r.Rollbacks, r.FinalChecksum, ok,
			r.CreatedAt.Format("2006-01-02 15:04"))
	}

	stats, err := store.Stats()
	if err != nil {
		return err
	}
	fmt.Println()
	for _, st := range stats {
		fmt.Printf("  %s: %d runs, %d frames, %d rollbacks, %d desyncs\n",
			st.Scenario, st.Runs, st.Frames, st.Rollbacks, st.Desyncs)
	}
	return nil
}

func printDesyncs(store *storage.Store) error {
	ds, err := store.Desyncs("", flagHistoryLimit)
	if err != nil {
		return err
	}
	if len(ds) == 0 {
		fmt.Println("No desyncs recorded.")
		return nil
	}
	fmt.Printf("  %-8s  %-8s  %-16s  %-16s  %s\n", "Run", "Frame", "Expected", "Actual", "Date")
	for _, d := range ds {
		id := d.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Printf("  %-8s  %-8d  %-16s  %-16s  %s\n",
			id, d.Frame, d.Expected, d.Actual, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
