package scenario

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventwindow/eventwindow/internal/core/window"
)

func TestLoadYAML(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "expiry.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "expiry", s.Name)
	assert.Equal(t, uint32(200), s.Limit)
	require.Len(t, s.Steps, 10)

	require.NotNil(t, s.Steps[1].Expect)
	assert.Equal(t, "okay", s.Steps[1].Expect.Result)
	require.NotNil(t, s.Steps[1].Expect.Value)
	assert.Equal(t, uint32(1), *s.Steps[1].Expect.Value)

	// Scalar shorthand.
	assert.Equal(t, "okay", s.Steps[0].Expect.Result)
	assert.Nil(t, s.Steps[0].Expect.Value)
	require.NotNil(t, s.Steps[2].Expect.Value)
	assert.Equal(t, uint32(2), *s.Steps[2].Expect.Value)
}

func TestLoadNDJSON(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "overflow.ndjson"))
	require.NoError(t, err)
	assert.Equal(t, "overflow", s.Name)
	assert.Equal(t, uint32(31), s.Limit)
	require.Len(t, s.Steps, 6)
	assert.Equal(t, 30, s.Steps[1].Repeat)
	assert.Equal(t, "buffer_overflow", s.Steps[2].Expect.Result)
}

func TestRunExpiryScenario(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "expiry.yaml"))
	require.NoError(t, err)

	trace, err := Run(s)
	require.NoError(t, err)
	for _, step := range trace.Steps {
		assert.Equal(t, StatusPass, step.Status, "step %d: %s", step.Index, step.Message)
	}
	assert.True(t, trace.Passed())
	assert.Equal(t, 10, trace.Checked)
	assert.False(t, trace.Steps[len(trace.Steps)-1].Running)
}

func TestRunOverflowScenario(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "overflow.ndjson"))
	require.NoError(t, err)

	trace, err := Run(s)
	require.NoError(t, err)
	assert.True(t, trace.Passed(), "%+v", trace.Steps)
	assert.Equal(t, window.Count(window.Capacity), trace.Steps[2].Stored)
}

func TestRunReportsFailures(t *testing.T) {
	s, err := Parse(strings.NewReader(`
limit: 100
steps:
  - {op: add, t: 0, expect: okay}
  - {op: start, t: 0}
  - {op: count, t: 10, expect: 5}
  - {op: clear, t: 10, expect: okay}
`), FormatYAML)
	require.NoError(t, err)

	trace, err := Run(s)
	require.NoError(t, err)
	assert.False(t, trace.Passed())
	assert.Equal(t, 3, trace.Failures)
	assert.Equal(t, 3, trace.Checked)

	assert.Equal(t, "not_started", trace.Steps[0].Result)
	assert.Equal(t, "expected result okay, got not_started", trace.Steps[0].Message)
	assert.Empty(t, trace.Steps[1].Status)
	assert.Equal(t, "expected value 5, got 0", trace.Steps[2].Message)
	assert.Contains(t, trace.Steps[3].Message, "reports no result")
}

func TestRunLimitOp(t *testing.T) {
	s, err := Parse(strings.NewReader(`{"op":"limit","limit":50,"expect":"okay"}
{"op":"start","t":0}
{"op":"limit","limit":70,"expect":"already_started"}
{"op":"time","t":500,"expect":50}
`), FormatNDJSON)
	require.NoError(t, err)

	trace, err := Run(s)
	require.NoError(t, err)
	assert.True(t, trace.Passed(), "%+v", trace.Steps)
	assert.Equal(t, uint32(50), *trace.Steps[2].Value)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]struct {
		body   string
		format Format
		want   string
	}{
		"unknown op":       {`steps: [{op: jump, t: 0}]`, FormatYAML, "unknown op"},
		"limit without":    {`steps: [{op: limit}]`, FormatYAML, "requires a limit"},
		"no steps":         {`name: empty`, FormatYAML, "no steps"},
		"bad expect":       {`steps: [{op: add, expect: maybe}]`, FormatYAML, "neither a number"},
		"repeat on count":  {`steps: [{op: count, repeat: 3}]`, FormatYAML, "only valid for add"},
		"unknown field":    {`steps: [{op: add, when: 3}]`, FormatYAML, "when"},
		"late header":      {"{\"op\":\"start\"}\n{\"name\":\"x\"}\n", FormatNDJSON, "header"},
		"bad json":         {"{\"op\":\n", FormatNDJSON, "line 1"},
		"unknown format":   {``, Format("toml"), "unsupported"},
		"empty yaml input": {``, FormatYAML, "empty"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.body), tc.format)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	for path, want := range map[string]Format{
		"a.yaml": FormatYAML, "a.YML": FormatYAML, "a.jsonl": FormatNDJSON, "a.ndjson": FormatNDJSON,
	} {
		got, err := DetectFormat(path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := DetectFormat("a.txt")
	assert.Error(t, err)
}

func TestWatchReplaysOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps: [{op: start, t: 0, expect: okay}]\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		traces []*Trace
	)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(trace *Trace, err error) {
			if err != nil {
				return
			}
			mu.Lock()
			traces = append(traces, trace)
			mu.Unlock()
		})
	}()

	runs := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(traces)
	}
	require.Eventually(t, func() bool { return runs() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("steps: [{op: stop, t: 0, expect: okay}]\n"), 0o600))
	require.Eventually(t, func() bool { return runs() >= 2 }, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	last := traces[len(traces)-1]
	mu.Unlock()
	assert.False(t, last.Passed())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
