package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventwindow/eventwindow/internal/core"
	"github.com/eventwindow/eventwindow/internal/core/window"
)

type memoryRunStore struct {
	runs []*core.WindowRun
	err  error
}

func (m *memoryRunStore) SaveRun(ctx context.Context, run *core.WindowRun) error {
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	return nil
}

func TestTrackerLifecycle(t *testing.T) {
	store := &memoryRunStore{}
	tracker := New(Options{Limit: 200, Store: store})

	require.Equal(t, window.Duration(200), tracker.Limit())
	require.Equal(t, window.Okay, tracker.Start(123))
	require.Equal(t, window.AlreadyStarted, tracker.Start(124))
	require.Equal(t, window.AlreadyStarted, tracker.SetLimit(50))

	require.Equal(t, window.Duration(111), tracker.WindowTime(234))
	require.Equal(t, window.Duration(200), tracker.WindowTime(334))

	res, run, err := tracker.Stop(context.Background(), 357)
	require.NoError(t, err)
	require.Equal(t, window.Okay, res)
	require.NotNil(t, run)
	assert.Equal(t, window.Duration(200), run.Span)
	assert.Equal(t, window.Timestamp(157), run.Start)
	assert.Equal(t, window.Timestamp(357), run.Stop)
	assert.NotEmpty(t, run.ID)

	require.Len(t, store.runs, 1)
	assert.Equal(t, run, store.runs[0])

	assert.Equal(t, window.Duration(200), tracker.WindowTime(456))

	res, run, err = tracker.Stop(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, window.NotStarted, res)
	assert.Nil(t, run)
	assert.Len(t, store.runs, 1)
}

func TestTrackerEvents(t *testing.T) {
	tracker := New(Options{Limit: 200})

	res, _ := tracker.Add(0)
	require.Equal(t, window.NotStarted, res)

	require.Equal(t, window.Okay, tracker.Start(0))
	for _, ts := range []window.Timestamp{0, 0, 100} {
		res, _ := tracker.Add(ts)
		require.Equal(t, window.Okay, res)
	}
	require.Equal(t, window.Count(3), tracker.Count(100))

	res, count := tracker.Add(200)
	require.Equal(t, window.Okay, res)
	require.Equal(t, window.Count(2), count)

	tracker.Clear(250)
	require.Equal(t, window.Count(0), tracker.Count(250))
}

func TestTrackerClearPublishesAtCallerTick(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	tracker := New(Options{Limit: 100, Clock: func() time.Time { return epoch }})
	snaps, cancel := tracker.Subscribe()
	defer cancel()

	require.Equal(t, window.Okay, tracker.Start(1_000_000))
	tracker.Add(1_000_050)
	tracker.Clear(1_000_060)

	var cleared core.Snapshot
	for i := 0; i < 3; i++ {
		cleared = <-snaps
	}
	assert.Equal(t, "clear", cleared.Reason)
	assert.Equal(t, window.Timestamp(1_000_060), cleared.At)
	assert.Equal(t, window.Duration(60), cleared.WindowTime)
	assert.Equal(t, window.Count(0), cleared.Count)
	assert.True(t, cleared.Running)
}

func TestTrackerRecording(t *testing.T) {
	assert.False(t, New(Options{}).Recording())
	assert.True(t, New(Options{Store: &memoryRunStore{}}).Recording())
}

func TestTrackerRunCountsOverflows(t *testing.T) {
	tracker := New(Options{Limit: window.Capacity + 1})
	require.Equal(t, window.Okay, tracker.Start(0))

	var ts window.Timestamp
	for ts = 0; ts <= window.Capacity; ts++ {
		tracker.Add(ts)
	}

	_, run, err := tracker.Stop(context.Background(), ts)
	require.NoError(t, err)
	assert.Equal(t, window.Capacity+1, run.Added)
	assert.Equal(t, 1, run.Overflows)
	assert.Equal(t, window.Count(window.Capacity), run.Events)

	// A new run starts with fresh bookkeeping.
	require.Equal(t, window.Okay, tracker.Start(ts))
	_, run, err = tracker.Stop(context.Background(), ts)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Added)
	assert.Equal(t, 0, run.Overflows)
}

func TestTrackerStopStoreFailure(t *testing.T) {
	store := &memoryRunStore{err: errors.New("disk full")}
	tracker := New(Options{Limit: 100, Store: store})
	require.Equal(t, window.Okay, tracker.Start(0))

	res, run, err := tracker.Stop(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, window.Okay, res)
	assert.NotNil(t, run)

	// The stop took effect even though the run was not saved.
	assert.False(t, tracker.Snapshot(20).Running)
}

func TestTrackerSnapshotDoesNotExpire(t *testing.T) {
	tracker := New(Options{Limit: 100})
	require.Equal(t, window.Okay, tracker.Start(0))
	tracker.Add(10)
	tracker.Add(90)

	snap := tracker.Snapshot(150)
	assert.True(t, snap.Running)
	assert.Equal(t, window.Count(1), snap.Count)
	assert.Equal(t, []window.Timestamp{90}, snap.Events)
	assert.Equal(t, window.Duration(100), snap.WindowTime)
	assert.Equal(t, window.Capacity, snap.Capacity)

	// A frozen window keeps both events because nothing expired before stop.
	_, _, err := tracker.Stop(context.Background(), 95)
	require.NoError(t, err)
	assert.Equal(t, window.Count(2), tracker.Count(1000))
}

func TestTrackerNowWraps(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	tracker := New(Options{Clock: clock, Tick: time.Millisecond})
	require.Equal(t, window.Timestamp(0), tracker.Now())

	advance(1500 * time.Millisecond)
	require.Equal(t, window.Timestamp(1500), tracker.Now())

	// 2^32 ms later the tick has wrapped back to the same value.
	advance(time.Duration(1<<32) * time.Millisecond)
	require.Equal(t, window.Timestamp(1500), tracker.Now())
}

func TestTrackerSubscribe(t *testing.T) {
	tracker := New(Options{Limit: 100, SubscriberBuffer: 4})
	snaps, cancel := tracker.Subscribe()

	require.Equal(t, window.Okay, tracker.Start(5))
	tracker.Add(6)

	first := <-snaps
	assert.Equal(t, "start", first.Reason)
	assert.True(t, first.Running)

	second := <-snaps
	assert.Equal(t, "event", second.Reason)
	assert.Equal(t, window.Count(1), second.Count)

	cancel()
	cancel()
	_, ok := <-snaps
	assert.False(t, ok)

	// Publishing with no subscribers must not block.
	tracker.Add(7)
}

func TestTrackerSlowSubscriberDoesNotBlock(t *testing.T) {
	tracker := New(Options{Limit: 1000, SubscriberBuffer: 1})
	_, cancel := tracker.Subscribe()
	defer cancel()

	require.Equal(t, window.Okay, tracker.Start(0))
	done := make(chan struct{})
	go func() {
		for ts := window.Timestamp(1); ts < 50; ts++ {
			tracker.Add(ts)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tracker blocked on a slow subscriber")
	}
}

func TestTrackerConcurrentAdds(t *testing.T) {
	tracker := New(Options{Limit: window.Duration(math.MaxUint32)})
	require.Equal(t, window.Okay, tracker.Start(0))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tracker.Add(window.Timestamp(i))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, window.Count(window.Capacity), tracker.Count(100))
}
