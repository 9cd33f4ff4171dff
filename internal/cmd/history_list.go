package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eventwindow/eventwindow/internal/core/store"
	"github.com/eventwindow/eventwindow/internal/output"
)

var (
	historyListID     string
	historyListSince  string
	historyListBefore string
	historyListLimit  int
)

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded window runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, allFormats...)
		if err != nil {
			return err
		}

		query, err := runQueryFromFlags(true, historyListID, historyListSince, historyListBefore, time.Now())
		if err != nil {
			return err
		}
		query.Limit = historyListLimit

		db, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		runs, err := db.ListRuns(cmd.Context(), query)
		if err != nil {
			return err
		}

		sink, err := openOutput(cmd, format, "history.list")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatRuns(runs)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	addOutputFlags(historyListCmd, allFormats...)
	historyListCmd.Flags().StringVar(&historyListID, "id", "", "Show a single run")
	historyListCmd.Flags().StringVar(&historyListSince, "since", "", "Runs recorded at or after this time (RFC3339 or duration ago, e.g. 24h)")
	historyListCmd.Flags().StringVar(&historyListBefore, "before", "", "Runs recorded before this time (RFC3339 or duration ago)")
	historyListCmd.Flags().IntVar(&historyListLimit, "limit", store.DefaultRunLimit, "Maximum number of runs")
}
