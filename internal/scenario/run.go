package scenario

import (
	"fmt"

	"github.com/eventwindow/eventwindow/internal/core/window"
)

// Step outcomes
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// StepResult records what one step did to the counter.
type StepResult struct {
	Index   int              `json:"index"`
	Op      Op               `json:"op"`
	T       window.Timestamp `json:"t"`
	Result  string           `json:"result,omitempty"`
	Value   *uint32          `json:"value,omitempty"`
	Stored  window.Count     `json:"stored"`
	Running bool             `json:"running"`
	Expect  *Expect          `json:"expect,omitempty"`
	Status  string           `json:"status,omitempty"`
	Message string           `json:"message,omitempty"`
}

// Trace is the full record of a replay.
type Trace struct {
	Name     string          `json:"name"`
	Limit    window.Duration `json:"limit"`
	Steps    []StepResult    `json:"steps"`
	Checked  int             `json:"checked"`
	Failures int             `json:"failures"`
}

// Passed reports whether every expectation held.
func (t *Trace) Passed() bool {
	return t != nil && t.Failures == 0
}

// Run replays the scenario against a fresh counter.
func Run(s *Scenario) (*Trace, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	c := window.New()
	c.WindowLimitSet(window.Duration(s.Limit))

	trace := &Trace{
		Name:  s.Name,
		Limit: window.Duration(s.Limit),
		Steps: make([]StepResult, 0, len(s.Steps)),
	}

	for i, step := range s.Steps {
		res := apply(c, step)
		res.Index = i + 1
		res.Op = step.Op
		res.T = window.Timestamp(step.T)
		res.Stored = c.Len()
		res.Running = c.Running()

		if step.Expect != nil {
			res.Expect = step.Expect
			trace.Checked++
			if msg := check(step.Expect, res); msg != "" {
				res.Status = StatusFail
				res.Message = msg
				trace.Failures++
			} else {
				res.Status = StatusPass
			}
		}
		trace.Steps = append(trace.Steps, res)
	}

	return trace, nil
}

func apply(c *window.Counter, step Step) StepResult {
	ts := window.Timestamp(step.T)

	switch step.Op {
	case OpLimit:
		limit := *step.Limit
		return StepResult{Result: c.WindowLimitSet(window.Duration(limit)).String(), Value: u32(c.WindowLimitGet())}
	case OpStart:
		return StepResult{Result: c.WindowStart(ts).String()}
	case OpStop:
		res := c.WindowStop(ts)
		return StepResult{Result: res.String(), Value: u32(c.WindowTimeGet(ts))}
	case OpAdd:
		n := step.Repeat
		if n < 1 {
			n = 1
		}
		// A repeated add reports buffer_overflow if any repetition evicted.
		final := window.Okay
		for i := 0; i < n; i++ {
			res := c.EventAdd(ts)
			if !res.Accepted() {
				final = res
				break
			}
			if res == window.BufferOverflow {
				final = res
			}
		}
		return StepResult{Result: final.String(), Value: u32(c.Len())}
	case OpCount:
		return StepResult{Value: u32(c.EventCountGet(ts))}
	case OpTime:
		return StepResult{Value: u32(c.WindowTimeGet(ts))}
	case OpClear:
		c.EventsClear()
		return StepResult{Value: u32(0)}
	default:
		return StepResult{Message: fmt.Sprintf("unknown op %q", step.Op)}
	}
}

func check(want *Expect, got StepResult) string {
	if want.Result != "" && want.Result != got.Result {
		if got.Result == "" {
			return fmt.Sprintf("expected result %s, but %s reports no result", want.Result, got.Op)
		}
		return fmt.Sprintf("expected result %s, got %s", want.Result, got.Result)
	}
	if want.Value != nil {
		if got.Value == nil {
			return fmt.Sprintf("expected value %d, but %s reports no value", *want.Value, got.Op)
		}
		if *want.Value != *got.Value {
			return fmt.Sprintf("expected value %d, got %d", *want.Value, *got.Value)
		}
	}
	return ""
}

func u32[T ~uint8 | ~uint32 | ~int](v T) *uint32 {
	out := uint32(v)
	return &out
}
