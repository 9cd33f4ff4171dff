// Package scenario replays scripted window operations against a fresh
// counter and checks the outcome of each step.
//
// Scripts are YAML documents or NDJSON streams (one step per line, with an
// optional header line carrying name and limit).
package scenario

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	"github.com/eventwindow/eventwindow/internal/core/window"
)

// Op names a counter operation.
type Op string

const (
	OpLimit Op = "limit"
	OpStart Op = "start"
	OpStop  Op = "stop"
	OpAdd   Op = "add"
	OpCount Op = "count"
	OpTime  Op = "time"
	OpClear Op = "clear"
)

// Format is a script encoding.
type Format string

const (
	FormatYAML   Format = "yaml"
	FormatNDJSON Format = "ndjson"
)

// maxRepeat bounds a single add step; anything past a few buffers is noise.
const maxRepeat = 100 * window.Capacity

// Scenario is a named sequence of steps run against one counter.
type Scenario struct {
	Name  string `yaml:"name" json:"name"`
	Limit uint32 `yaml:"limit" json:"limit"`
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one operation at tick T.
type Step struct {
	Op     Op      `yaml:"op" json:"op"`
	T      uint32  `yaml:"t" json:"t"`
	Limit  *uint32 `yaml:"limit,omitempty" json:"limit,omitempty"`
	Repeat int     `yaml:"repeat,omitempty" json:"repeat,omitempty"`
	Expect *Expect `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// Expect is the outcome a step must produce. A bare scalar is shorthand:
// numbers set Value, names set Result.
type Expect struct {
	Result string  `yaml:"result,omitempty" json:"result,omitempty"`
	Value  *uint32 `yaml:"value,omitempty" json:"value,omitempty"`
}

type expectFields Expect

// UnmarshalYAML accepts `expect: 3`, `expect: okay` or the mapping form.
func (e *Expect) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return e.setScalar(node.Value)
	}
	var fields expectFields
	if err := node.Decode(&fields); err != nil {
		return err
	}
	*e = Expect(fields)
	return nil
}

// UnmarshalJSON accepts `"expect": 3`, `"expect": "okay"` or the object form.
func (e *Expect) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '{':
		var fields expectFields
		if err := sonic.Unmarshal(trimmed, &fields); err != nil {
			return err
		}
		*e = Expect(fields)
		return nil
	case '"':
		var s string
		if err := sonic.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		return e.setScalar(s)
	default:
		return e.setScalar(string(trimmed))
	}
}

func (e *Expect) setScalar(raw string) error {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseUint(raw, 10, 32); err == nil {
		v := uint32(n)
		e.Value = &v
		return nil
	}
	if _, ok := window.ParseResult(raw); !ok {
		return fmt.Errorf("expect: %q is neither a number nor a result name", raw)
	}
	e.Result = raw
	return nil
}

// Validate checks every step before anything runs.
func (s *Scenario) Validate() error {
	if s == nil {
		return errors.New("scenario is nil")
	}
	if len(s.Steps) == 0 {
		return errors.New("scenario has no steps")
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (st Step) validate() error {
	switch st.Op {
	case OpLimit:
		if st.Limit == nil {
			return errors.New("limit op requires a limit")
		}
	case OpStart, OpStop, OpAdd, OpCount, OpTime, OpClear:
	case "":
		return errors.New("op is required")
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
	if st.Repeat < 0 || st.Repeat > maxRepeat {
		return fmt.Errorf("repeat must be between 0 and %d", maxRepeat)
	}
	if st.Repeat > 1 && st.Op != OpAdd {
		return fmt.Errorf("repeat is only valid for %s", OpAdd)
	}
	if st.Expect != nil && st.Expect.Result != "" {
		if _, ok := window.ParseResult(st.Expect.Result); !ok {
			return fmt.Errorf("unknown expected result %q", st.Expect.Result)
		}
	}
	return nil
}

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".jsonl", ".ndjson":
		return FormatNDJSON, nil
	default:
		return "", fmt.Errorf("unsupported scenario file extension %q (use .yaml, .yml, .jsonl or .ndjson)", filepath.Ext(path))
	}
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path) // #nosec G304 -- path is the user-provided scenario file
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close() // nolint:errcheck // read-only file

	s, err := Parse(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Parse decodes and validates a scenario.
func Parse(r io.Reader, format Format) (*Scenario, error) {
	var (
		s   *Scenario
		err error
	)
	switch format {
	case FormatYAML:
		s, err = parseYAML(r)
	case FormatNDJSON:
		s, err = parseNDJSON(r)
	default:
		return nil, fmt.Errorf("unsupported scenario format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseYAML(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("scenario is empty")
		}
		return nil, fmt.Errorf("parse yaml scenario: %w", err)
	}
	return &s, nil
}

// ndjsonLine is either a header (no op) or a step.
type ndjsonLine struct {
	Name string `json:"name"`
	Step
}

func parseNDJSON(r io.Reader) (*Scenario, error) {
	s := &Scenario{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var entry ndjsonLine
		if err := sonic.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if entry.Op == "" {
			if len(s.Steps) > 0 {
				return nil, fmt.Errorf("line %d: header must come before steps", lineNo)
			}
			s.Name = entry.Name
			if entry.Limit != nil {
				s.Limit = *entry.Limit
			}
			continue
		}
		s.Steps = append(s.Steps, entry.Step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ndjson scenario: %w", err)
	}
	return s, nil
}
