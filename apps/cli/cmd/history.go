package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/imagic/packages/history"
	"github.com/abdul-hamid-achik/imagic/packages/output"
	"github.com/spf13/cobra"
)

var (
	historyLimitFlag  int
	historyStatsFlag  bool
	historyClearFlag  bool
	historyFormatFlag string
	historyDBPathFlag string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded uploads",
	Long: `Show the uploads recorded by previous runs, newest first.

Examples:
  imagic history
  imagic history --limit 50 --stats
  imagic history --format json
  imagic history --clear`,
	Args: cobra.NoArgs,
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "l", 20, "Number of uploads to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyStatsFlag, "stats", false, "Show totals across all recorded uploads")
	historyCmd.Flags().BoolVar(&historyClearFlag, "clear", false, "Delete all recorded uploads")
	historyCmd.Flags().StringVarP(&historyFormatFlag, "format", "f", "console", "Output format: console, json")
	historyCmd.Flags().StringVar(&historyDBPathFlag, "db", getEnvString("IMAGIC_HISTORY_DB", ""), "History database (env: IMAGIC_HISTORY_DB)")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	dbPath := historyDBPathFlag
	if dbPath == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dbPath = cfg.HistoryDB
	}

	store, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if historyClearFlag {
		n, err := store.Clear(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d upload(s) from %s\n", n, store.Path())
		return nil
	}

	formatter, err := output.New(historyFormatFlag, cmd.OutOrStdout(), verboseFlag, noColorFlag)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	hf, ok := formatter.(output.HistoryFormatter)
	if !ok {
		return withExitCode(ExitUsageError, fmt.Errorf("format %q cannot show history", historyFormatFlag))
	}

	entries, err := store.List(ctx, historyLimitFlag)
	if err != nil {
		return err
	}

	var stats *history.Stats
	if historyStatsFlag {
		if stats, err = store.Stats(ctx); err != nil {
			return err
		}
	}
	return hf.FormatHistory(entries, stats)
}
