package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/hookguard/internal/history"
)

var (
	historyLimit     int
	historyOlderThan time.Duration
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
	historyShowCmd.Flags().IntVarP(&historyLimit, "lines", "n", 20, "Number of recent records to show")
	historyPruneCmd.Flags().DurationVar(&historyOlderThan, "older-than", 0, "Drop records older than this (default history.retention)")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Execution history operations",
	Long:  "Commands for the shared execution history that suppresses repeated events.",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recently accepted executions",
	Args:  cobra.NoArgs,
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop old execution records",
	Long: `Removes records older than --older-than (or history.retention from the
config). Records inside the suppression window are always kept.`,
	Args: cobra.NoArgs,
	RunE: runHistoryPrune,
}

func openHistory() (history.Store, time.Duration, time.Duration, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, 0, 0, err
	}
	store, err := history.Open(cfg.History.Backend, cfg.History.Path)
	if err != nil {
		return nil, 0, 0, err
	}
	return store, cfg.History.Window, cfg.History.Retention, nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, window, _, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "No executions recorded.")
		return nil
	}
	now := time.Now()
	for _, r := range recs {
		marker := ""
		if now.Sub(r.At) < window {
			marker = "  (suppressing)"
		}
		fmt.Fprintf(out, "%s  %s  %s%s\n",
			r.Fingerprint, r.At.Local().Format("2006-01-02 15:04:05.000"), humanize.Time(r.At), marker)
	}
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	store, window, retention, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	age := historyOlderThan
	if age <= 0 {
		age = retention
	}
	if age < window {
		age = window
	}

	n, err := store.Prune(cmd.Context(), time.Now().Add(-age))
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s older than %s.\n", pluralRecords(n), age)
	return nil
}

func pluralRecords(n int) string {
	if n == 1 {
		return "1 record"
	}
	return humanize.Comma(int64(n)) + " records"
}
