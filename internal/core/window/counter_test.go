package window

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCounter(t *testing.T, limit Duration) *Counter {
	t.Helper()
	c := New()
	require.Equal(t, Okay, c.WindowLimitSet(limit))
	return c
}

func TestWindowStart(t *testing.T) {
	t.Run("OkayWhenStopped", func(t *testing.T) {
		c := newTestCounter(t, 10000)
		require.Equal(t, Okay, c.WindowStart(0))
		require.True(t, c.Running())
	})

	t.Run("AlreadyStartedWhenRunning", func(t *testing.T) {
		c := newTestCounter(t, 10000)
		require.Equal(t, Okay, c.WindowStart(5))
		require.Equal(t, AlreadyStarted, c.WindowStart(9))

		// The second start must not move the left edge.
		require.Equal(t, Duration(95), c.WindowTimeGet(100))
	})
}

func TestWindowStop(t *testing.T) {
	t.Run("NotStartedWhenStopped", func(t *testing.T) {
		c := newTestCounter(t, 10000)
		require.Equal(t, NotStarted, c.WindowStop(0))
	})

	t.Run("OkayWhenRunning", func(t *testing.T) {
		c := newTestCounter(t, 10000)
		require.Equal(t, Okay, c.WindowStart(0))
		require.Equal(t, Okay, c.WindowStop(0))
		require.False(t, c.Running())
		require.Equal(t, NotStarted, c.WindowStop(1))
	})
}

func TestWindowTimeGet(t *testing.T) {
	t.Run("TracksElapsedTime", func(t *testing.T) {
		c := newTestCounter(t, 10000)
		require.Equal(t, Okay, c.WindowStart(0))

		assert.Equal(t, Duration(100), c.WindowTimeGet(100))
		assert.Equal(t, Duration(200), c.WindowTimeGet(200))
	})

	t.Run("IndependentOfStartTime", func(t *testing.T) {
		c := newTestCounter(t, 10000)
		require.Equal(t, Okay, c.WindowStart(245))

		assert.Equal(t, Duration(125), c.WindowTimeGet(245+125))
		assert.Equal(t, Duration(653), c.WindowTimeGet(245+653))
	})

	t.Run("ZeroBeforeFirstStart", func(t *testing.T) {
		c := newTestCounter(t, 10000)
		assert.Equal(t, Duration(0), c.WindowTimeGet(100))
		assert.Equal(t, Duration(0), c.WindowTimeGet(200))
	})

	t.Run("ConstantWhenStopped", func(t *testing.T) {
		c := newTestCounter(t, 10000)
		require.Equal(t, Okay, c.WindowStart(0))
		require.Equal(t, Okay, c.WindowStop(123))

		assert.Equal(t, Duration(123), c.WindowTimeGet(234))
		assert.Equal(t, Duration(123), c.WindowTimeGet(245))
	})

	t.Run("ClampedToLimit", func(t *testing.T) {
		c := newTestCounter(t, 200)
		require.Equal(t, Okay, c.WindowStart(123))

		assert.Equal(t, Duration(111), c.WindowTimeGet(234))
		assert.Equal(t, Duration(200), c.WindowTimeGet(334))

		require.Equal(t, Okay, c.WindowStop(357))
		assert.Equal(t, Duration(200), c.WindowTimeGet(456))
	})
}

func TestWindowLimit(t *testing.T) {
	t.Run("SetWhenStopped", func(t *testing.T) {
		c := New()
		for _, limit := range []Duration{100, 152374, 5723621} {
			require.Equal(t, Okay, c.WindowLimitSet(limit))
			assert.Equal(t, limit, c.WindowLimitGet())
		}
	})

	t.Run("RejectedWhileRunning", func(t *testing.T) {
		c := newTestCounter(t, 100)
		require.Equal(t, Okay, c.WindowStart(0))

		require.Equal(t, AlreadyStarted, c.WindowLimitSet(200))
		assert.Equal(t, Duration(100), c.WindowLimitGet())
	})
}

func TestEventAdd(t *testing.T) {
	t.Run("NotStartedWhenStopped", func(t *testing.T) {
		c := newTestCounter(t, 10000)
		require.Equal(t, NotStarted, c.EventAdd(1))
		assert.Empty(t, c.Events())
	})

	t.Run("IncreasesCount", func(t *testing.T) {
		c := newTestCounter(t, 10000)
		require.Equal(t, Okay, c.WindowStart(0))

		require.Equal(t, Okay, c.EventAdd(1))
		assert.Equal(t, Count(1), c.EventCountGet(1))
		require.Equal(t, Okay, c.EventAdd(1))
		assert.Equal(t, Count(2), c.EventCountGet(1))
	})

	t.Run("ExpiresOldEvents", func(t *testing.T) {
		c := newTestCounter(t, 200)
		require.Equal(t, Okay, c.WindowStart(0))

		steps := []struct {
			at   Timestamp
			want Count
		}{
			{0, 1},
			{0, 2},
			{100, 3},
			{200, 2},
			{300, 2},
		}
		for _, step := range steps {
			c.EventAdd(step.at)
			assert.Equal(t, step.want, c.EventCountGet(step.at), "count at %d", step.at)
		}
		assert.Equal(t, []Timestamp{200, 300}, c.Events())
	})

	t.Run("ExpiresBeforeOverflowing", func(t *testing.T) {
		c := newTestCounter(t, Capacity)
		require.Equal(t, Okay, c.WindowStart(0))

		var ts Timestamp
		for ts = 0; ts < Capacity; ts++ {
			c.EventAdd(ts)
			require.Equal(t, Count(ts+1), c.EventCountGet(ts))
		}
		require.Equal(t, Okay, c.EventAdd(ts))
		assert.Equal(t, Count(Capacity), c.EventCountGet(ts))
	})

	t.Run("OverflowEvictsOldest", func(t *testing.T) {
		c := newTestCounter(t, Capacity+1)
		require.Equal(t, Okay, c.WindowStart(0))

		var ts Timestamp
		for ts = 0; ts < Capacity; ts++ {
			require.Equal(t, Okay, c.EventAdd(ts))
			require.Equal(t, Count(ts+1), c.EventCountGet(ts))
		}
		require.Equal(t, BufferOverflow, c.EventAdd(ts))
		assert.Equal(t, Count(Capacity), c.EventCountGet(ts))

		events := c.Events()
		require.Len(t, events, Capacity)
		assert.Equal(t, Timestamp(1), events[0])
		assert.Equal(t, ts, events[len(events)-1])
	})

	t.Run("SustainedOverflowStaysBounded", func(t *testing.T) {
		c := newTestCounter(t, math.MaxUint32)
		require.Equal(t, Okay, c.WindowStart(0))

		for ts := Timestamp(0); ts < 5*Capacity; ts++ {
			res := c.EventAdd(ts)
			if ts < Capacity {
				require.Equal(t, Okay, res)
			} else {
				require.Equal(t, BufferOverflow, res)
			}
			require.LessOrEqual(t, int(c.EventCountGet(ts)), Capacity)
		}
	})
}

func TestEventCountGet(t *testing.T) {
	t.Run("StartsAtZero", func(t *testing.T) {
		c := newTestCounter(t, 10000)
		assert.Equal(t, Count(0), c.EventCountGet(0))
	})

	t.Run("FrozenWhileStopped", func(t *testing.T) {
		c := newTestCounter(t, 100)
		require.Equal(t, Okay, c.WindowStart(0))
		c.EventAdd(10)
		c.EventAdd(20)
		require.Equal(t, Okay, c.WindowStop(30))

		// Far past the limit, but a stopped window never expires its log.
		assert.Equal(t, Count(2), c.EventCountGet(5000))
	})
}

func TestEventsClear(t *testing.T) {
	c := newTestCounter(t, 10000)
	require.Equal(t, Okay, c.WindowStart(0))
	for ts := Timestamp(0); ts < 10; ts++ {
		c.EventAdd(ts)
	}

	c.EventsClear()
	assert.Equal(t, Count(0), c.EventCountGet(10))
	assert.True(t, c.Running())
	assert.Equal(t, Duration(10000), c.WindowLimitGet())

	require.Equal(t, Okay, c.WindowStop(11))
	c.EventsClear()
	assert.Equal(t, Count(0), c.EventCountGet(12))
}

func TestWraparound(t *testing.T) {
	var start Timestamp
	start -= 342
	require.Greater(t, uint32(start), uint32(1000))

	c := newTestCounter(t, 200)
	require.Equal(t, Okay, c.WindowStart(start))

	ts := start
	c.EventAdd(ts)
	assert.Equal(t, Count(1), c.EventCountGet(ts))
	c.EventAdd(ts)
	assert.Equal(t, Count(2), c.EventCountGet(ts))

	for _, want := range []Count{3, 2, 2, 2} {
		ts += 100
		c.EventAdd(ts)
		assert.Equal(t, want, c.EventCountGet(ts), "count at %d", ts)
	}
	require.Less(t, uint32(ts), uint32(1000))

	assert.Equal(t, Duration(200), c.WindowTimeGet(ts))
}

func TestNextIndex(t *testing.T) {
	assert.Equal(t, 1, nextIndex(0, Capacity))
	assert.Equal(t, Capacity-1, nextIndex(Capacity-2, Capacity))
	assert.Equal(t, 0, nextIndex(Capacity-1, Capacity))
}

func TestCountNeverExceedsCapacity(t *testing.T) {
	c := newTestCounter(t, 50)
	ops := []func(Timestamp){
		func(ts Timestamp) { c.EventAdd(ts) },
		func(ts Timestamp) { c.EventAdd(ts) },
		func(ts Timestamp) { c.EventAdd(ts) },
		func(ts Timestamp) { c.EventCountGet(ts) },
		func(ts Timestamp) { c.WindowTimeGet(ts) },
		func(ts Timestamp) { c.WindowStart(ts) },
		func(ts Timestamp) { c.WindowStop(ts) },
		func(Timestamp) { c.EventsClear() },
	}

	// Deterministic pseudo-random walk over operations and time steps.
	var seed uint32 = 7
	ts := Timestamp(math.MaxUint32 - 500)
	for i := 0; i < 2000; i++ {
		seed = seed*1664525 + 1013904223
		ops[seed%uint32(len(ops))](ts)
		require.LessOrEqual(t, int(c.count), Capacity)
		require.GreaterOrEqual(t, c.head, 0)
		require.Less(t, c.head, Capacity)
		require.GreaterOrEqual(t, c.tail, 0)
		require.Less(t, c.tail, Capacity)
		ts += Timestamp(seed % 7)
	}
}

func TestResult(t *testing.T) {
	for _, r := range []Result{Okay, AlreadyStarted, NotStarted, BufferOverflow} {
		parsed, ok := ParseResult(r.String())
		require.True(t, ok)
		assert.Equal(t, r, parsed)
	}

	assert.NoError(t, Okay.Err())
	assert.ErrorIs(t, AlreadyStarted.Err(), ErrAlreadyStarted)
	assert.ErrorIs(t, NotStarted.Err(), ErrNotStarted)
	assert.ErrorIs(t, BufferOverflow.Err(), ErrBufferOverflow)
	assert.True(t, BufferOverflow.Accepted())
	assert.False(t, NotStarted.Accepted())
}

func TestClone(t *testing.T) {
	c := newTestCounter(t, 100)
	require.Equal(t, Okay, c.WindowStart(0))
	c.EventAdd(10)
	c.EventAdd(90)

	peek := c.Clone()
	assert.Equal(t, Count(1), peek.EventCountGet(150))
	assert.Equal(t, Duration(100), peek.WindowTimeGet(150))

	// The original has not expired anything yet.
	assert.Equal(t, Count(2), c.Len())
	assert.Equal(t, []Timestamp{10, 90}, c.Events())
}
