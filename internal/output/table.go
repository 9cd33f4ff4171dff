package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/eventwindow/eventwindow/internal/core"
	"github.com/eventwindow/eventwindow/internal/scenario"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatTrace renders a replay trace as a table, one row per step.
func (f *TableFormatter) FormatTrace(trace *scenario.Trace) (string, error) {
	if trace == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("%s (limit %d)", displayName(trace.Name), trace.Limit))
	t.AppendHeader(table.Row{"#", "Op", "T", "Result", "Value", "Stored", "Window", "Expect", "Check"})

	for _, step := range trace.Steps {
		t.AppendRow(table.Row{
			step.Index,
			string(step.Op),
			uint32(step.T),
			step.Result,
			valueCell(step.Value),
			uint8(step.Stored),
			stateLabel(step.Running),
			expectCell(step.Expect),
			statusCell(step),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", traceSummary(trace)})
	return t.Render(), nil
}

// FormatRuns renders run history as a table, newest first.
func (f *TableFormatter) FormatRuns(runs []core.WindowRun) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Recorded", "ID", "Limit", "Start", "Stop", "Span", "Events", "Added", "Overflows"})

	for _, run := range runs {
		t.AppendRow(table.Row{
			run.RecordedAt.Local().Format(time.DateTime),
			shortID(run.ID),
			uint32(run.Limit),
			uint32(run.Start),
			uint32(run.Stop),
			uint32(run.Span),
			uint8(run.Events),
			run.Added,
			run.Overflows,
		})
	}

	t.AppendFooter(table.Row{"", fmt.Sprintf("%d runs", len(runs)), "", "", "", "", "", "", ""})
	return t.Render(), nil
}

// FormatSnapshot renders a snapshot as a two-column table.
func (f *TableFormatter) FormatSnapshot(snap *core.Snapshot) (string, error) {
	if snap == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"T", uint32(snap.At)},
		{"State", stateLabel(snap.Running)},
		{"Limit", uint32(snap.Limit)},
		{"Window time", uint32(snap.WindowTime)},
		{"Count", fmt.Sprintf("%d/%d", snap.Count, snap.Capacity)},
		{"Events", eventsCell(snap.Events)},
	})
	return t.Render(), nil
}

func displayName(name string) string {
	if name == "" {
		return "scenario"
	}
	return name
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
