package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventwindow/eventwindow/internal/core"
	"github.com/eventwindow/eventwindow/internal/core/window"
	"github.com/eventwindow/eventwindow/internal/metrics"
)

// Tracker serializes access to a single windowed event counter and reports
// what happens to it. The counter itself stays free of locking, logging and
// clocks.
type Tracker struct {
	mu      sync.Mutex
	counter *window.Counter

	store  RunStore
	logger Logger
	clock  func() time.Time
	tick   time.Duration
	epoch  time.Time

	// per-run bookkeeping, reset on every successful start
	added     int
	overflows int

	subsMu    sync.Mutex
	subs      map[chan core.Snapshot]struct{}
	subBuffer int
}

// RunStore persists completed windows.
type RunStore interface {
	SaveRun(ctx context.Context, run *core.WindowRun) error
}

// Logger is the subset of the structured loggers the tracker writes to.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Options configures a Tracker.
type Options struct {
	// Limit is applied to the counter before it is handed out.
	Limit window.Duration
	// Store receives every completed run. Nil disables history.
	Store RunStore
	// Logger defaults to a no-op logger.
	Logger Logger
	// Clock and Tick drive Now. Tick defaults to one millisecond.
	Clock func() time.Time
	Tick  time.Duration
	// SubscriberBuffer is the channel size handed to each subscriber.
	SubscriberBuffer int
}

// New creates a tracker with a stopped counter.
func New(opts Options) *Tracker {
	t := &Tracker{
		counter:   window.New(),
		store:     opts.Store,
		logger:    opts.Logger,
		clock:     opts.Clock,
		tick:      opts.Tick,
		subs:      make(map[chan core.Snapshot]struct{}),
		subBuffer: opts.SubscriberBuffer,
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	if t.tick <= 0 {
		t.tick = time.Millisecond
	}
	if t.subBuffer <= 0 {
		t.subBuffer = 16
	}
	t.epoch = t.now()
	t.counter.WindowLimitSet(opts.Limit)
	return t
}

// Now returns the current tick. It counts Tick-sized steps since the tracker
// was created and wraps at 2^32 like a free-running hardware counter.
func (t *Tracker) Now() window.Timestamp {
	elapsed := t.now().Sub(t.epoch)
	if elapsed < 0 {
		elapsed = 0
	}
	return window.Timestamp(uint64(elapsed / t.tick))
}

// Limit returns the current window limit.
func (t *Tracker) Limit() window.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counter.WindowLimitGet()
}

// SetLimit changes the window limit. It is rejected while the window runs.
func (t *Tracker) SetLimit(limit window.Duration) window.Result {
	t.mu.Lock()
	res := t.counter.WindowLimitSet(limit)
	t.mu.Unlock()

	if !res.Accepted() {
		t.reject("limit_set", res, zap.Uint32("limit", uint32(limit)))
		return res
	}
	t.logger.Info("Window limit updated", zap.Uint32("limit", uint32(limit)))
	return res
}

// Start opens the window at ts.
func (t *Tracker) Start(ts window.Timestamp) window.Result {
	t.mu.Lock()
	res := t.counter.WindowStart(ts)
	if res == window.Okay {
		t.added = 0
		t.overflows = 0
	}
	snap := t.snapshotLocked(ts)
	t.mu.Unlock()

	if !res.Accepted() {
		t.reject("start", res, zap.Uint32("t", uint32(ts)))
		return res
	}
	t.logger.Info("Window started", zap.Uint32("t", uint32(ts)), zap.Uint32("limit", uint32(snap.Limit)))
	snap.Reason = "start"
	t.publish(snap)
	return res
}

// Recording reports whether completed runs are saved to a RunStore.
func (t *Tracker) Recording() bool {
	return t.store != nil
}

// Stop closes the window at ts and returns the completed run. A store failure
// is reported through err; the window is stopped regardless.
func (t *Tracker) Stop(ctx context.Context, ts window.Timestamp) (window.Result, *core.WindowRun, error) {
	t.mu.Lock()
	live := t.counter.Clone().EventCountGet(ts)
	res := t.counter.WindowStop(ts)
	if res != window.Okay {
		t.mu.Unlock()
		t.reject("stop", res, zap.Uint32("t", uint32(ts)))
		return res, nil, nil
	}
	span := t.counter.WindowTimeGet(ts)
	run := &core.WindowRun{
		ID:         uuid.New().String(),
		Limit:      t.counter.WindowLimitGet(),
		Start:      ts.Sub(span),
		Stop:       ts,
		Span:       span,
		Events:     live,
		Added:      t.added,
		Overflows:  t.overflows,
		RecordedAt: t.now().UTC(),
	}
	snap := t.snapshotLocked(ts)
	t.mu.Unlock()

	t.logger.Info("Window stopped",
		zap.String("run_id", run.ID),
		zap.Uint32("t", uint32(ts)),
		zap.Uint32("span", uint32(span)),
		zap.Uint8("events", uint8(live)),
		zap.Int("overflows", run.Overflows))
	metrics.RecordRun()
	snap.Reason = "stop"
	t.publish(snap)

	if t.store == nil {
		return res, run, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := t.store.SaveRun(ctx, run); err != nil {
		t.logger.Warn("Failed to record window run", zap.String("run_id", run.ID), zap.Error(err))
		return res, run, err
	}
	return res, run, nil
}

// WindowTime returns the window span at ts. It slides the window's left edge.
func (t *Tracker) WindowTime(ts window.Timestamp) window.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counter.WindowTimeGet(ts)
}

// Add records an event at ts and returns the result with the live count
// afterwards.
func (t *Tracker) Add(ts window.Timestamp) (window.Result, window.Count) {
	t.mu.Lock()
	before := t.counter.Len()
	res := t.counter.EventAdd(ts)
	after := t.counter.Len()
	if res.Accepted() {
		t.added++
	}
	if res == window.BufferOverflow {
		t.overflows++
	}
	snap := t.snapshotLocked(ts)
	t.mu.Unlock()

	if !res.Accepted() {
		t.reject("event_add", res, zap.Uint32("t", uint32(ts)))
		return res, after
	}

	evicted := int(before) + 1 - int(after)
	if res == window.BufferOverflow {
		evicted--
		metrics.RecordEviction("overflow", 1)
		t.logger.Warn("Event buffer full, oldest event evicted",
			zap.Uint32("t", uint32(ts)),
			zap.Int("capacity", window.Capacity))
	}
	if evicted > 0 {
		metrics.RecordEviction("expired", evicted)
	}
	metrics.RecordEvent(res.String())
	metrics.SetEventCount(int(after))
	t.logger.Debug("Event recorded",
		zap.Uint32("t", uint32(ts)),
		zap.String("result", res.String()),
		zap.Uint8("count", uint8(after)))

	snap.Reason = "event"
	t.publish(snap)
	return res, after
}

// Count returns the live event count at ts, expiring stale events.
func (t *Tracker) Count(ts window.Timestamp) window.Count {
	t.mu.Lock()
	before := t.counter.Len()
	count := t.counter.EventCountGet(ts)
	t.mu.Unlock()

	if expired := int(before) - int(count); expired > 0 {
		metrics.RecordEviction("expired", expired)
	}
	metrics.SetEventCount(int(count))
	return count
}

// Clear drops every recorded event. The window state is kept; the published
// snapshot is taken at ts.
func (t *Tracker) Clear(ts window.Timestamp) {
	t.mu.Lock()
	t.counter.EventsClear()
	snap := t.snapshotLocked(ts)
	t.mu.Unlock()

	metrics.SetEventCount(0)
	t.logger.Info("Events cleared", zap.Uint32("t", uint32(ts)))
	snap.Reason = "clear"
	t.publish(snap)
}

// Snapshot reports the counter state at ts without expiring anything.
func (t *Tracker) Snapshot(ts window.Timestamp) core.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(ts)
}

// Subscribe returns a channel of snapshots published after every accepted
// mutation, and a function that releases it. Slow subscribers miss
// snapshots instead of blocking the tracker.
func (t *Tracker) Subscribe() (<-chan core.Snapshot, func()) {
	ch := make(chan core.Snapshot, t.subBuffer)

	t.subsMu.Lock()
	t.subs[ch] = struct{}{}
	t.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.subsMu.Lock()
			delete(t.subs, ch)
			t.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (t *Tracker) snapshotLocked(ts window.Timestamp) core.Snapshot {
	peek := t.counter.Clone()
	return core.Snapshot{
		At:         ts,
		Running:    peek.Running(),
		Limit:      peek.WindowLimitGet(),
		WindowTime: peek.WindowTimeGet(ts),
		Count:      peek.EventCountGet(ts),
		Capacity:   window.Capacity,
		Events:     peek.Events(),
	}
}

func (t *Tracker) publish(snap core.Snapshot) {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	for ch := range t.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (t *Tracker) reject(op string, res window.Result, fields ...zap.Field) {
	metrics.RecordLifecycleRejection(op, res.String())
	fields = append(fields, zap.String("op", op), zap.String("result", res.String()))
	t.logger.Warn("Window operation rejected", fields...)
}

func (t *Tracker) now() time.Time {
	if t != nil && t.clock != nil {
		return t.clock()
	}
	return time.Now().UTC()
}
