package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/eventwindow/eventwindow/internal/core"
	"github.com/eventwindow/eventwindow/internal/scenario"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatTrace renders a replay trace as Markdown.
func (f *MarkdownFormatter) FormatTrace(trace *scenario.Trace) (string, error) {
	if trace == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s (limit %d)\n\n", escapeMarkdownCell(displayName(trace.Name)), trace.Limit))
	sb.WriteString("| # | Op | T | Result | Value | Stored | Window | Expect | Check |\n")
	sb.WriteString("|---|----|---|--------|-------|--------|--------|--------|-------|\n")

	for _, step := range trace.Steps {
		sb.WriteString(fmt.Sprintf("| %d | %s | %d | %s | %s | %d | %s | %s | %s |\n",
			step.Index,
			escapeMarkdownCell(string(step.Op)),
			step.T,
			escapeMarkdownCell(step.Result),
			valueCell(step.Value),
			step.Stored,
			stateLabel(step.Running),
			escapeMarkdownCell(expectCell(step.Expect)),
			escapeMarkdownCell(statusCell(step)),
		))
	}

	sb.WriteString(fmt.Sprintf("\n**Result**: %s\n", traceSummary(trace)))
	return sb.String(), nil
}

// FormatRuns renders run history as Markdown.
func (f *MarkdownFormatter) FormatRuns(runs []core.WindowRun) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Window runs\n\n")
	sb.WriteString("| Recorded | ID | Limit | Start | Stop | Span | Events | Added | Overflows |\n")
	sb.WriteString("|----------|----|-------|-------|------|------|--------|-------|-----------|\n")

	for _, run := range runs {
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %d | %d | %d | %d |\n",
			run.RecordedAt.UTC().Format(time.RFC3339),
			escapeMarkdownCell(run.ID),
			run.Limit,
			run.Start,
			run.Stop,
			run.Span,
			run.Events,
			run.Added,
			run.Overflows,
		))
	}
	return sb.String(), nil
}

// FormatSnapshot renders a snapshot as Markdown.
func (f *MarkdownFormatter) FormatSnapshot(snap *core.Snapshot) (string, error) {
	if snap == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Window at t=%d\n\n", snap.At))
	sb.WriteString("| Field | Value |\n|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| State | %s |\n", stateLabel(snap.Running)))
	sb.WriteString(fmt.Sprintf("| Limit | %d |\n", snap.Limit))
	sb.WriteString(fmt.Sprintf("| Window time | %d |\n", snap.WindowTime))
	sb.WriteString(fmt.Sprintf("| Count | %d/%d |\n", snap.Count, snap.Capacity))
	sb.WriteString(fmt.Sprintf("| Events | %s |\n", eventsCell(snap.Events)))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
