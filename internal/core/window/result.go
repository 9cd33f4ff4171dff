package window

import "errors"

// Result is the outcome of a counter operation.
type Result uint8

const (
	// Okay means the operation took effect.
	Okay Result = iota
	// AlreadyStarted means a start or limit change was attempted while running.
	AlreadyStarted
	// NotStarted means a stop or event was attempted while stopped.
	NotStarted
	// BufferOverflow means the event was recorded but the oldest live event
	// was evicted to make room.
	BufferOverflow
)

var (
	ErrAlreadyStarted = errors.New("window already started")
	ErrNotStarted     = errors.New("window not started")
	ErrBufferOverflow = errors.New("event buffer overflow: oldest event evicted")
)

func (r Result) String() string {
	switch r {
	case Okay:
		return "okay"
	case AlreadyStarted:
		return "already_started"
	case NotStarted:
		return "not_started"
	case BufferOverflow:
		return "buffer_overflow"
	default:
		return "unknown"
	}
}

// Err converts r to a sentinel error, nil for Okay. ErrBufferOverflow is a
// warning: the event it refers to was recorded.
func (r Result) Err() error {
	switch r {
	case Okay:
		return nil
	case AlreadyStarted:
		return ErrAlreadyStarted
	case NotStarted:
		return ErrNotStarted
	case BufferOverflow:
		return ErrBufferOverflow
	default:
		return errors.New("unknown window result")
	}
}

// Accepted reports whether the operation took effect. BufferOverflow counts
// as accepted.
func (r Result) Accepted() bool {
	return r == Okay || r == BufferOverflow
}

// ParseResult is the inverse of Result.String.
func ParseResult(s string) (Result, bool) {
	switch s {
	case "okay":
		return Okay, true
	case "already_started":
		return AlreadyStarted, true
	case "not_started":
		return NotStarted, true
	case "buffer_overflow":
		return BufferOverflow, true
	default:
		return 0, false
	}
}
