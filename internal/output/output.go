package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eventwindow/eventwindow/internal/core"
	"github.com/eventwindow/eventwindow/internal/core/window"
	"github.com/eventwindow/eventwindow/internal/scenario"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders replay traces, run history and snapshots.
type Formatter interface {
	FormatTrace(trace *scenario.Trace) (string, error)
	FormatRuns(runs []core.WindowRun) (string, error)
	FormatSnapshot(snap *core.Snapshot) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func valueCell(v *uint32) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func expectCell(e *scenario.Expect) string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if e.Result != "" {
		parts = append(parts, e.Result)
	}
	if e.Value != nil {
		parts = append(parts, strconv.FormatUint(uint64(*e.Value), 10))
	}
	return strings.Join(parts, " ")
}

func statusCell(step scenario.StepResult) string {
	switch step.Status {
	case scenario.StatusPass:
		return "✓"
	case scenario.StatusFail:
		return "✗ " + step.Message
	default:
		return ""
	}
}

func traceSummary(trace *scenario.Trace) string {
	if trace.Checked == 0 {
		return fmt.Sprintf("%d steps, no expectations", len(trace.Steps))
	}
	return fmt.Sprintf("%d/%d expectations met", trace.Checked-trace.Failures, trace.Checked)
}

func stateLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}

func eventsCell(events []window.Timestamp) string {
	if len(events) == 0 {
		return "-"
	}
	parts := make([]string, len(events))
	for i, ts := range events {
		parts[i] = strconv.FormatUint(uint64(ts), 10)
	}
	return strings.Join(parts, ", ")
}
