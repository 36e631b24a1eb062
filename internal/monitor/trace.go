// Package monitor records a rolling trace of the pipeline's per-frame
// outputs and serves debug visualisations of it: interactive ECharts HTML
// for quick inspection in a browser and rendered PNG line plots for
// attaching to tuning notes. Debugging-only; no auth.
package monitor

import (
	"sync"

	"github.com/banshee-data/rep.coach/internal/session"
)

// Sample is one frame's worth of trace data.
type Sample struct {
	FrameIdx      int
	Timestamp     float64 // pipeline seconds
	Depth         float64
	KneeAngleDeg  float64
	TrunkAngleDeg float64
	State         string
	RepCount      int
	Calibrated    bool
}

// Trace is a fixed-capacity ring buffer of samples. The frame loop is the
// only writer; HTTP handlers snapshot under the lock.
type Trace struct {
	mu       sync.Mutex
	samples  []Sample
	capacity int
	next     int
	full     bool
	frameIdx int
}

// NewTrace creates a trace holding up to capacity samples. A minute of
// 60 Hz video is 3600 samples.
func NewTrace(capacity int) *Trace {
	if capacity < 1 {
		capacity = 3600
	}
	return &Trace{
		samples:  make([]Sample, capacity),
		capacity: capacity,
	}
}

// Record appends one frame's snapshot to the trace, evicting the oldest
// sample once the buffer is full.
func (t *Trace) Record(snap session.Snapshot, timestamp float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.next] = Sample{
		FrameIdx:      t.frameIdx,
		Timestamp:     timestamp,
		Depth:         snap.DepthFraction,
		KneeAngleDeg:  snap.KneeAngleDeg,
		TrunkAngleDeg: snap.TrunkAngleDeg,
		State:         string(snap.FSMState),
		RepCount:      snap.RepCount,
		Calibrated:    snap.Calibrated,
	}
	t.frameIdx++
	t.next = (t.next + 1) % t.capacity
	if t.next == 0 {
		t.full = true
	}
}

// Snapshot returns the recorded samples in chronological order.
func (t *Trace) Snapshot() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		out := make([]Sample, t.next)
		copy(out, t.samples[:t.next])
		return out
	}
	out := make([]Sample, 0, t.capacity)
	out = append(out, t.samples[t.next:]...)
	out = append(out, t.samples[:t.next]...)
	return out
}

// Len returns the number of recorded samples.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.full {
		return t.capacity
	}
	return t.next
}
