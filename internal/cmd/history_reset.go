package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/eventwindow/eventwindow/internal/output"
)

var (
	historyResetAll    bool
	historyResetID     string
	historyResetSince  string
	historyResetBefore string
	historyResetYes    bool
	historyResetDryRun bool
)

var historyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete recorded window runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, output.FormatTable, output.FormatJSON)
		if err != nil {
			return err
		}

		query, err := runQueryFromFlags(historyResetAll, historyResetID, historyResetSince, historyResetBefore, time.Now())
		if err != nil {
			return err
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !historyResetYes && !historyResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountRuns(cmd.Context(), query)
		if err != nil {
			return err
		}

		sink, err := openOutput(cmd, format, "history.reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if historyResetDryRun {
			return writeHistoryResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := db.ResetRuns(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writeHistoryResetResult(format, sink.writer, matched, deleted, false)
	},
}

func writeHistoryResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	if format == output.FormatJSON {
		payload, err := sonic.MarshalIndent(map[string]any{
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	lines := []string{"Window History", ""}
	if dryRun {
		lines = append(lines, fmt.Sprintf("Would delete %d run(s)", matched))
	} else {
		lines = append(lines, fmt.Sprintf("Deleted %d/%d run(s)", deleted, matched))
	}
	_, err := fmt.Fprint(w, ascii.DrawBox(strings.Join(lines, "\n"), 0))
	return err
}

func init() {
	historyResetCmd.Flags().BoolVar(&historyResetAll, "all", false, "Delete every recorded run")
	historyResetCmd.Flags().StringVar(&historyResetID, "id", "", "Delete a single run")
	historyResetCmd.Flags().StringVar(&historyResetSince, "since", "", "Delete runs recorded at or after this time (RFC3339 or duration ago)")
	historyResetCmd.Flags().StringVar(&historyResetBefore, "before", "", "Delete runs recorded before this time (RFC3339 or duration ago)")
	historyResetCmd.Flags().BoolVar(&historyResetYes, "yes", false, "Confirm destructive reset")
	historyResetCmd.Flags().BoolVar(&historyResetDryRun, "dry-run", false, "Show what would be deleted")
	addOutputFlags(historyResetCmd, output.FormatTable, output.FormatJSON)
}
