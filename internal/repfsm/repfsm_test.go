package repfsm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		DescentVelocity:       0.08,
		AscentVelocity:        0.08,
		QuietVelocity:         0.03,
		MinTransitionInterval: 150 * time.Millisecond,
	}
}

func TestNextTransitionTable(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	tests := []struct {
		name string
		from State
		sig  Signal
		want State
	}{
		{"idle stays on quiet", StateIdle, Signal{Velocity: 0}, StateIdle},
		{"idle to descent", StateIdle, Signal{Velocity: 0.2}, StateDescent},
		{"idle ignores upward motion", StateIdle, Signal{Velocity: -0.2}, StateIdle},
		{"descent holds while moving down", StateDescent, Signal{Velocity: 0.2}, StateDescent},
		{"descent to bottom needs depth", StateDescent, Signal{Velocity: 0.01}, StateDescent},
		{"descent to bottom", StateDescent, Signal{Velocity: 0.01, DepthReached: true}, StateBottom},
		{"descent bounce skips bottom", StateDescent, Signal{Velocity: -0.2, DepthReached: true}, StateAscent},
		{"bottom holds on quiet", StateBottom, Signal{Velocity: 0.01}, StateBottom},
		{"bottom to ascent", StateBottom, Signal{Velocity: -0.2}, StateAscent},
		{"ascent holds while rising", StateAscent, Signal{Velocity: -0.2}, StateAscent},
		{"ascent to lockout", StateAscent, Signal{Velocity: 0.0}, StateLockout},
		{"lockout to descent", StateLockout, Signal{Velocity: 0.2}, StateDescent},
		{"lockout stays on quiet", StateLockout, Signal{Velocity: 0}, StateLockout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Next(tt.from, tt.sig, cfg))
		})
	}
}

// drive feeds positions at 0.2s intervals, wide enough apart that the
// transition throttle never interferes.
func drive(m *Machine, start float64, positions []float64, depthOK func(pos float64) bool) []Event {
	var all []Event
	ts := start
	for _, p := range positions {
		ts += 0.2
		ok := false
		if depthOK != nil {
			ok = depthOK(p)
		}
		all = append(all, m.Advance(p, ok, ts)...)
	}
	return all
}

func TestFullCycleCountsOneRep(t *testing.T) {
	t.Parallel()

	m := NewMachine(testConfig())
	deep := func(p float64) bool { return p > 0.7 }

	events := drive(m, 0, []float64{
		0.5, 0.5, // idle
		0.55, 0.62, 0.70, 0.76, // descent
		0.76, 0.76, // bottom
		0.70, 0.62, 0.55, // ascent
		0.55, 0.55, // lockout
	}, deep)

	assert.Equal(t, 1, m.RepCount())
	assert.Equal(t, StateLockout, m.State())
	assert.Contains(t, events, EventBottom)
	assert.Contains(t, events, EventRepCounted)
	assert.False(t, m.DepthReached(), "latch clears at lockout")
}

func TestShallowCycleCountsNothing(t *testing.T) {
	t.Parallel()

	m := NewMachine(testConfig())

	// Depth gate never confirms: the machine rides descent → ascent →
	// lockout without visiting bottom and without counting.
	events := drive(m, 0, []float64{
		0.5, 0.5,
		0.55, 0.60, 0.63,
		0.60, 0.55, 0.5,
		0.5, 0.5,
	}, nil)

	assert.Equal(t, 0, m.RepCount())
	assert.Equal(t, StateLockout, m.State())
	assert.NotContains(t, events, EventBottom)
	assert.NotContains(t, events, EventRepCounted)
}

func TestBackToBackRepsEmitCycleStart(t *testing.T) {
	t.Parallel()

	m := NewMachine(testConfig())
	deep := func(p float64) bool { return p > 0.7 }

	rep := []float64{
		0.55, 0.62, 0.70, 0.76,
		0.76, 0.76,
		0.70, 0.62, 0.55,
		0.55, 0.55,
	}

	drive(m, 0, append([]float64{0.5, 0.5}, rep...), deep)
	require.Equal(t, 1, m.RepCount())

	events := drive(m, 3.0, rep, deep)
	assert.Equal(t, 2, m.RepCount())
	assert.Contains(t, events, EventCycleStart)
}

func TestThrottleSuppressesRapidFlipFlop(t *testing.T) {
	t.Parallel()

	m := NewMachine(testConfig())

	// 10ms frames with violently alternating velocity: without the
	// throttle this would churn through states every frame.
	ts := 0.0
	m.Advance(0.5, false, ts)
	changes := 0
	last := m.State()
	for i := 0; i < 30; i++ {
		ts += 0.01
		pos := 0.5
		if i%2 == 0 {
			pos = 0.53
		}
		m.Advance(pos, false, ts)
		if m.State() != last {
			changes++
			last = m.State()
		}
	}
	assert.LessOrEqual(t, changes, 2, "0.3s of frames admits at most two throttled transitions")
}

func TestDepthLatchClearsEvenWhenRepNotCounted(t *testing.T) {
	t.Parallel()

	m := NewMachine(testConfig())

	// Confirm depth once mid-descent, bounce to ascent, reach lockout: the
	// rep counts (depth was latched), and the latch is gone afterwards.
	ts := 0.0
	m.Advance(0.5, false, ts)
	for _, step := range []struct {
		pos   float64
		depth bool
	}{
		{0.55, false}, {0.62, false}, {0.70, true},
		{0.62, false}, {0.55, false},
		{0.55, false},
	} {
		ts += 0.2
		m.Advance(step.pos, step.depth, ts)
	}
	assert.Equal(t, 1, m.RepCount())
	assert.False(t, m.DepthReached())
}

func TestAdvanceIgnoresNonMonotonicTimestamps(t *testing.T) {
	t.Parallel()

	m := NewMachine(testConfig())
	m.Advance(0.5, false, 1.0)
	assert.Nil(t, m.Advance(0.9, false, 1.0), "dt=0 frame is dropped")
	assert.Nil(t, m.Advance(0.9, false, 0.5), "time going backwards is dropped")
	assert.Equal(t, StateIdle, m.State())
}

func TestTurnaround(t *testing.T) {
	t.Parallel()

	tr := NewTurnaround(testConfig())

	ts := 0.0
	fire := false
	for _, pos := range []float64{0.5, 0.55, 0.62, 0.70, 0.705, 0.705} {
		ts += 0.2
		if tr.Observe(pos, ts) {
			fire = true
		}
	}
	assert.True(t, fire, "stalling after a descent fires the turnaround")

	// It does not fire again without a fresh descent.
	ts += 0.2
	assert.False(t, tr.Observe(0.705, ts))
}

func TestTurnaroundRequiresPriorDescent(t *testing.T) {
	t.Parallel()

	tr := NewTurnaround(testConfig())
	ts := 0.0
	for _, pos := range []float64{0.5, 0.5, 0.5, 0.5} {
		ts += 0.2
		assert.False(t, tr.Observe(pos, ts))
	}
}
