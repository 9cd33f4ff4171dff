package output

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventwindow/eventwindow/internal/core"
	"github.com/eventwindow/eventwindow/internal/core/window"
	"github.com/eventwindow/eventwindow/internal/scenario"
)

func sampleTrace(t *testing.T) *scenario.Trace {
	t.Helper()
	s, err := scenario.Parse(strings.NewReader(`
name: sample
limit: 200
steps:
  - {op: start, t: 0, expect: okay}
  - {op: add, t: 10, expect: 1}
  - {op: count, t: 20, expect: 2}
`), scenario.FormatYAML)
	require.NoError(t, err)
	trace, err := scenario.Run(s)
	require.NoError(t, err)
	return trace
}

func sampleRuns() []core.WindowRun {
	return []core.WindowRun{
		{
			ID:         "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0",
			Limit:      200,
			Start:      157,
			Stop:       357,
			Span:       200,
			Events:     2,
			Added:      4,
			RecordedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestFormatTrace(t *testing.T) {
	trace := sampleTrace(t)
	require.Equal(t, 1, trace.Failures)

	t.Run("Table", func(t *testing.T) {
		rendered, err := NewFormatter(FormatTable).FormatTrace(trace)
		require.NoError(t, err)
		assert.Contains(t, rendered, "sample (limit 200)")
		assert.Contains(t, rendered, "expected value 2, got 1")
		assert.Contains(t, rendered, "2/3 expectations met")
	})

	t.Run("Markdown", func(t *testing.T) {
		rendered, err := NewFormatter(FormatMarkdown).FormatTrace(trace)
		require.NoError(t, err)
		assert.Contains(t, rendered, "## sample (limit 200)")
		assert.Contains(t, rendered, "| 2 | add | 10 | okay | 1 | 1 | running | 1 | ✓ |")
		assert.Contains(t, rendered, "**Result**: 2/3 expectations met")
	})

	t.Run("JSON", func(t *testing.T) {
		rendered, err := NewFormatter(FormatJSON).FormatTrace(trace)
		require.NoError(t, err)

		var decoded scenario.Trace
		require.NoError(t, sonic.UnmarshalString(rendered, &decoded))
		assert.Equal(t, "sample", decoded.Name)
		assert.Equal(t, 1, decoded.Failures)
		require.Len(t, decoded.Steps, 3)
		assert.Equal(t, scenario.StatusFail, decoded.Steps[2].Status)
	})

	t.Run("Nil", func(t *testing.T) {
		for _, format := range []Format{FormatTable, FormatJSON, FormatMarkdown} {
			rendered, err := NewFormatter(format).FormatTrace(nil)
			require.NoError(t, err)
			assert.Empty(t, rendered)
		}
	})
}

func TestFormatRuns(t *testing.T) {
	runs := sampleRuns()

	rendered, err := NewFormatter(FormatTable).FormatRuns(runs)
	require.NoError(t, err)
	assert.Contains(t, rendered, "0f1e2d3c")
	assert.Contains(t, rendered, "1 runs")

	rendered, err = NewFormatter(FormatMarkdown).FormatRuns(runs)
	require.NoError(t, err)
	assert.Contains(t, rendered, "| 2025-03-01T12:00:00Z | 0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0 | 200 | 157 | 357 | 200 | 2 | 4 | 0 |")

	rendered, err = NewFormatter(FormatJSON).FormatRuns(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(rendered))
}

func TestFormatSnapshot(t *testing.T) {
	snap := &core.Snapshot{
		At:         300,
		Running:    true,
		Limit:      200,
		WindowTime: 200,
		Count:      2,
		Capacity:   window.Capacity,
		Events:     []window.Timestamp{200, 300},
	}

	rendered, err := NewFormatter(FormatTable).FormatSnapshot(snap)
	require.NoError(t, err)
	assert.Contains(t, rendered, "2/30")
	assert.Contains(t, rendered, "200, 300")

	rendered, err = NewFormatter(FormatMarkdown).FormatSnapshot(snap)
	require.NoError(t, err)
	assert.Contains(t, rendered, "| State | running |")

	rendered, err = NewFormatter(FormatJSON).FormatSnapshot(snap)
	require.NoError(t, err)
	assert.Contains(t, rendered, `"window_time": 200`)
}
