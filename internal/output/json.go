package output

import (
	"github.com/bytedance/sonic"

	"github.com/eventwindow/eventwindow/internal/core"
	"github.com/eventwindow/eventwindow/internal/scenario"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatTrace renders a replay trace as JSON.
func (f *JSONFormatter) FormatTrace(trace *scenario.Trace) (string, error) {
	if trace == nil {
		return "", nil
	}
	return f.marshal(trace)
}

// FormatRuns renders run history as a JSON array.
func (f *JSONFormatter) FormatRuns(runs []core.WindowRun) (string, error) {
	if runs == nil {
		runs = []core.WindowRun{}
	}
	return f.marshal(runs)
}

// FormatSnapshot renders a snapshot as JSON.
func (f *JSONFormatter) FormatSnapshot(snap *core.Snapshot) (string, error) {
	if snap == nil {
		return "", nil
	}
	return f.marshal(snap)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = sonic.MarshalIndent(v, "", "  ")
	} else {
		data, err = sonic.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
