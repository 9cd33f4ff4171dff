package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eventwindow/eventwindow/internal/core/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded window runs",
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyResetCmd)
	rootCmd.AddCommand(historyCmd)
}

// parseTimeFlag accepts an RFC3339 timestamp or a duration counted back from now.
func parseTimeFlag(name, value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("--%s: expected RFC3339 time or duration, got %q", name, value)
}

// runQueryFromFlags builds a query from the shared selection flags.
func runQueryFromFlags(all bool, id, since, before string, now time.Time) (store.RunQuery, error) {
	q := store.RunQuery{All: all, ID: strings.TrimSpace(id)}
	var err error
	if q.Since, err = parseTimeFlag("since", since, now); err != nil {
		return q, err
	}
	if q.Before, err = parseTimeFlag("before", before, now); err != nil {
		return q, err
	}
	return q, nil
}
