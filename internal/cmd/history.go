package cmd

import (
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/LuckyLaurence/InSAR-Pipeline/internal/config"
	"github.com/LuckyLaurence/InSAR-Pipeline/pkg/runlog"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past batch runs",
	Long: `Show past batch runs from the run-history database, newest first.
With --run, show the per-pair outcomes of one run instead.

Example:
  insar history
  insar history --limit 5
  insar history --run 3f1c...`,
	RunE: runHistory,
}

var (
	historyLimit int
	historyRunID string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Maximum runs to show (0 for all)")
	historyCmd.Flags().StringVar(&historyRunID, "run", "", "Show task outcomes for one run ID")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	store, err := runlog.Open(ctx, cfg.RunLogPath)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot open run history", err)
	}
	defer func() { _ = store.Close() }()

	if historyRunID != "" {
		return showTasks(cmd, store, historyRunID)
	}

	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read run history", err)
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	for _, r := range runs {
		fmt.Printf("%s  %s  workers=%d  %d/%d succeeded  (%s)\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.RunID,
			r.Workers,
			r.Succeeded, r.Total,
			r.EndedAt.Sub(r.StartedAt).Round(time.Second))
	}
	return nil
}

func showTasks(cmd *cobra.Command, store *runlog.Store, runID string) error {
	tasks, err := store.ListTasks(cmd.Context(), runID)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot read run history", err)
	}
	if len(tasks) == 0 {
		fmt.Printf("No tasks recorded for run %s.\n", runID)
		return nil
	}

	for _, t := range tasks {
		line := fmt.Sprintf("[%d] %s  %s  %s", t.Index+1, t.PairID, t.Status, t.Elapsed.Round(time.Second))
		if t.Message != "" {
			line += "  " + t.Message
		}
		fmt.Println(line)
	}
	return nil
}
