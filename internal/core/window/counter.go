// Package window counts events inside a trailing, bounded time window.
//
// A Counter keeps a fixed-capacity ring of caller-supplied timestamps and a
// single measurement window. It owns no clock and performs no I/O: every
// time-dependent call takes the current timestamp as an argument and expires
// stale entries lazily. Timestamps are free-running 32-bit ticks; every
// difference is taken modulo 2^32, so a counter that wraps past its maximum
// value keeps working.
//
// A Counter is not safe for concurrent use. Callers that share one must
// serialize every call (see engine.Tracker).
package window

// Capacity is the number of timestamps the event log can hold.
const Capacity = 30

// Timestamp is a caller-supplied tick.
type Timestamp uint32

// Duration is a span of ticks. It has the same width as Timestamp.
type Duration uint32

// Count is a number of live events, bounded by Capacity.
type Count uint8

// Since returns t - earlier modulo 2^32.
func (t Timestamp) Since(earlier Timestamp) Duration {
	return Duration(t - earlier)
}

// Add returns t + d modulo 2^32.
func (t Timestamp) Add(d Duration) Timestamp {
	return t + Timestamp(d)
}

// Sub returns t - d modulo 2^32.
func (t Timestamp) Sub(d Duration) Timestamp {
	return t - Timestamp(d)
}

// Counter is a windowed event counter. The zero value is ready to use:
// stopped, limit 0, empty log.
type Counter struct {
	running bool
	start   Timestamp
	stop    Timestamp
	limit   Duration

	events [Capacity]Timestamp
	head   int // next write slot
	tail   int // oldest live entry
	count  Count
}

// New returns a stopped counter with an empty event log.
func New() *Counter {
	return &Counter{}
}

// WindowLimitGet returns the maximum age of an event or window.
func (c *Counter) WindowLimitGet() Duration {
	return c.limit
}

// WindowLimitSet changes the window limit. The limit can only change while
// the window is stopped.
func (c *Counter) WindowLimitSet(limit Duration) Result {
	if c.running {
		return AlreadyStarted
	}
	c.limit = limit
	return Okay
}

// WindowStart opens the window with startTime as its left edge. Starting a
// running window is rejected and leaves the recorded start untouched.
func (c *Counter) WindowStart(startTime Timestamp) Result {
	if c.running {
		return AlreadyStarted
	}
	c.running = true
	c.start = startTime
	return Okay
}

// WindowStop closes the window at stopTime. The left edge is shifted first so
// the frozen span never exceeds the limit.
func (c *Counter) WindowStop(stopTime Timestamp) Result {
	if !c.running {
		return NotStarted
	}
	c.shiftStart(stopTime)
	c.running = false
	c.stop = stopTime
	return Okay
}

// WindowTimeGet returns the span of the window. While running it slides the
// left edge up to currentTime and returns currentTime - start; while stopped
// it returns the span frozen at the last stop (0 before the first start).
//
// This is a mutating accessor: it may move the left edge.
func (c *Counter) WindowTimeGet(currentTime Timestamp) Duration {
	if !c.running {
		return c.stop.Since(c.start)
	}
	c.shiftStart(currentTime)
	return currentTime.Since(c.start)
}

// EventAdd records an event at eventTime. Events older than the limit are
// expired first. When the log is still full the oldest event is evicted and
// BufferOverflow is returned; the new event is recorded either way.
func (c *Counter) EventAdd(eventTime Timestamp) Result {
	if c.expire(eventTime) != Okay {
		return NotStarted
	}

	res := Okay
	if int(c.count) == Capacity {
		c.dropOldest()
		res = BufferOverflow
	}

	c.events[c.head] = eventTime
	c.head = nextIndex(c.head, Capacity)
	c.count++
	return res
}

// EventCountGet expires events older than the limit at currentTime and
// returns the number of live events. While stopped nothing expires and the
// frozen count is returned.
//
// This is a mutating accessor.
func (c *Counter) EventCountGet(currentTime Timestamp) Count {
	_ = c.expire(currentTime)
	return c.count
}

// EventsClear empties the event log. The window state and limit are kept.
func (c *Counter) EventsClear() {
	c.count = 0
	c.head = 0
	c.tail = 0
}

// Running reports whether the window is open.
func (c *Counter) Running() bool {
	return c.running
}

// Len returns the number of entries in the log without expiring anything.
func (c *Counter) Len() Count {
	return c.count
}

// Clone returns an independent copy of c. Queries on the copy let callers
// look ahead without disturbing the original's expiry state.
func (c *Counter) Clone() *Counter {
	cp := *c
	return &cp
}

// Events returns a copy of the live timestamps, oldest first. It does not
// expire anything.
func (c *Counter) Events() []Timestamp {
	out := make([]Timestamp, 0, c.count)
	for i, idx := 0, c.tail; i < int(c.count); i, idx = i+1, nextIndex(idx, Capacity) {
		out = append(out, c.events[idx])
	}
	return out
}

// shiftStart slides the left edge so that t - start never exceeds the limit.
func (c *Counter) shiftStart(t Timestamp) {
	if t.Since(c.start) >= c.limit {
		c.start = t.Sub(c.limit)
	}
}

// expire shifts the left edge and drops events whose age at t is at least
// the limit. Entries are chronological, so the walk stops at the first one
// still inside the window. It is a no-op returning NotStarted while stopped.
func (c *Counter) expire(t Timestamp) Result {
	if !c.running {
		return NotStarted
	}
	c.shiftStart(t)
	for c.count > 0 && t.Since(c.events[c.tail]) >= c.limit {
		c.dropOldest()
	}
	return Okay
}

func (c *Counter) dropOldest() {
	c.tail = nextIndex(c.tail, Capacity)
	c.count--
}

// nextIndex advances a ring index by one, wrapping from the last slot to the
// first.
func nextIndex(index, capacity int) int {
	if index < capacity-1 {
		return index + 1
	}
	return 0
}
