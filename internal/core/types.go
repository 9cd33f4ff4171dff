package core

import (
	"time"

	"github.com/eventwindow/eventwindow/internal/core/window"
)

// Snapshot captures the observable state of a counter at a tick.
type Snapshot struct {
	At         window.Timestamp   `json:"t"`
	Running    bool               `json:"running"`
	Limit      window.Duration    `json:"limit"`
	WindowTime window.Duration    `json:"window_time"`
	Count      window.Count       `json:"count"`
	Capacity   int                `json:"capacity"`
	Events     []window.Timestamp `json:"events"`
	Reason     string             `json:"reason,omitempty"`
}

// WindowRun is a completed measurement window, from start to stop.
type WindowRun struct {
	ID         string           `json:"id"`
	Limit      window.Duration  `json:"limit"`
	Start      window.Timestamp `json:"start"`
	Stop       window.Timestamp `json:"stop"`
	Span       window.Duration  `json:"span"`
	Events     window.Count     `json:"events"`
	Added      int              `json:"added"`
	Overflows  int              `json:"overflows"`
	RecordedAt time.Time        `json:"recorded_at"`
}
