// Package repfsm owns the authoritative repetition count. A five-state
// machine is driven by the vertical motion of the depth signal and a gated
// depth boolean. Transition logic is a pure function of (state, signal) so
// it is unit-testable without any pipeline plumbing; rep-count side effects
// are emitted separately as events.
package repfsm

import (
	"time"

	"github.com/banshee-data/rep.coach/internal/config"
)

// State is one phase of the repetition cycle.
type State string

const (
	StateIdle    State = "idle"    // standing, no movement yet
	StateDescent State = "descent" // moving down
	StateBottom  State = "bottom"  // near-zero velocity at depth
	StateAscent  State = "ascent"  // moving back up
	StateLockout State = "lockout" // returned to the top, cycle complete
)

// Event is a side effect emitted by a transition.
type Event string

const (
	// EventRepCounted fires on ascent → lockout when depth was reached
	// during the cycle. Exactly one per counted rep.
	EventRepCounted Event = "rep_counted"
	// EventBottom fires when the machine enters the bottom state.
	EventBottom Event = "bottom"
	// EventCycleStart fires on lockout → descent. Callers reset temporal
	// gates and per-rep cue memory on this event.
	EventCycleStart Event = "cycle_start"
)

// Config holds the state machine tunables. Velocity units are driver signal
// units per second (normalised image height per second for the hip driver).
type Config struct {
	DescentVelocity       float64       // downward velocity that begins a descent
	AscentVelocity        float64       // upward velocity magnitude for clear ascent
	QuietVelocity         float64       // at or below this magnitude is near-zero
	MinTransitionInterval time.Duration // throttle between state changes
}

// ConfigFromTuning builds an FSM Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		DescentVelocity:       cfg.GetDescentVelocity(),
		AscentVelocity:        cfg.GetAscentVelocity(),
		QuietVelocity:         cfg.GetQuietVelocity(),
		MinTransitionInterval: cfg.GetMinTransitionInterval(),
	}
}

// Signal is the per-frame input to the pure transition function. Velocity
// is positive downward (image coordinates). DepthReached is the latched
// "depth was reached at some point since the last lockout" flag, not the
// instantaneous gate output.
type Signal struct {
	Velocity     float64
	DepthReached bool
}

// Next is the pure transition function. It returns the successor state for
// the given signal; it never mutates anything and emits nothing.
func Next(s State, sig Signal, cfg Config) State {
	switch s {
	case StateIdle:
		if sig.Velocity > cfg.DescentVelocity {
			return StateDescent
		}
	case StateDescent:
		// A sharp reversal before depth is confirmed is a bounce or false
		// start: skip bottom and ride the ascent.
		if sig.Velocity < -cfg.AscentVelocity {
			return StateAscent
		}
		if sig.Velocity >= -cfg.QuietVelocity && sig.Velocity <= cfg.QuietVelocity && sig.DepthReached {
			return StateBottom
		}
	case StateBottom:
		if sig.Velocity < -cfg.AscentVelocity {
			return StateAscent
		}
	case StateAscent:
		if sig.Velocity >= -cfg.QuietVelocity && sig.Velocity <= cfg.QuietVelocity {
			return StateLockout
		}
	case StateLockout:
		if sig.Velocity > cfg.DescentVelocity {
			return StateDescent
		}
	}
	return s
}

// Machine tracks the repetition cycle for one session. Single writer, no
// locking; sessions are never shared.
type Machine struct {
	cfg Config

	state        State
	repCount     int
	depthReached bool

	lastPos    float64
	lastTime   float64
	havePos    bool
	lastChange float64 // timestamp of the last state change
}

// NewMachine creates a machine in the idle state.
func NewMachine(cfg Config) *Machine {
	return &Machine{cfg: cfg, state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// RepCount returns the number of completed, depth-qualified cycles. It is
// monotonically non-decreasing.
func (m *Machine) RepCount() int { return m.repCount }

// DepthReached reports the latched depth flag for the current cycle.
func (m *Machine) DepthReached() bool { return m.depthReached }

// Advance feeds one frame's driver position and gated depth boolean to the
// machine and returns any emitted events. Frames arriving inside the
// minimum inter-transition window update velocity tracking and the depth
// latch but cannot change state, which suppresses oscillation from sensor
// noise independent of frame rate.
func (m *Machine) Advance(position float64, depthGateOK bool, timestamp float64) []Event {
	// Latch depth whenever the gate confirms it, throttled or not: the
	// spec for descent → bottom is "depth reached at some point since the
	// last lockout".
	if depthGateOK {
		m.depthReached = true
	}

	if !m.havePos {
		m.havePos = true
		m.lastPos = position
		m.lastTime = timestamp
		m.lastChange = timestamp
		return nil
	}

	dt := timestamp - m.lastTime
	if dt <= 0 {
		return nil
	}
	velocity := (position - m.lastPos) / dt
	m.lastPos = position
	m.lastTime = timestamp

	// Throttle state changes, not measurement.
	if timestamp-m.lastChange < m.cfg.MinTransitionInterval.Seconds() {
		return nil
	}

	next := Next(m.state, Signal{Velocity: velocity, DepthReached: m.depthReached}, m.cfg)
	if next == m.state {
		return nil
	}

	var events []Event
	switch {
	case next == StateBottom:
		events = append(events, EventBottom)
	case m.state == StateAscent && next == StateLockout:
		// The rep increments exactly here, and only when depth was
		// reached during the cycle. The latch clears regardless of
		// outcome so a shallow cycle cannot borrow a later confirmation.
		if m.depthReached {
			m.repCount++
			events = append(events, EventRepCounted)
		}
		m.depthReached = false
	case m.state == StateLockout && next == StateDescent:
		events = append(events, EventCycleStart)
	}

	m.state = next
	m.lastChange = timestamp
	return events
}

// Turnaround detects the moment the descending motion stalls: velocity was
// positive beyond the descent threshold and has now dropped to at or below
// the quiet threshold. It is independent of the FSM's bottom state so a
// too-shallow repetition still triggers a coaching evaluation.
type Turnaround struct {
	cfg Config

	lastPos    float64
	lastTime   float64
	havePos    bool
	descending bool
}

// NewTurnaround creates a turnaround detector.
func NewTurnaround(cfg Config) *Turnaround {
	return &Turnaround{cfg: cfg}
}

// Observe feeds one frame's driver position and returns true at the frame
// where a descent turns around.
func (t *Turnaround) Observe(position, timestamp float64) bool {
	if !t.havePos {
		t.havePos = true
		t.lastPos = position
		t.lastTime = timestamp
		return false
	}
	dt := timestamp - t.lastTime
	if dt <= 0 {
		return false
	}
	velocity := (position - t.lastPos) / dt
	t.lastPos = position
	t.lastTime = timestamp

	if velocity > t.cfg.DescentVelocity {
		t.descending = true
		return false
	}
	if t.descending && velocity <= t.cfg.QuietVelocity {
		t.descending = false
		return true
	}
	return false
}
