package session

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rep.coach/internal/coach"
	"github.com/banshee-data/rep.coach/internal/config"
	"github.com/banshee-data/rep.coach/internal/pose"
)

// scaleUnit is the body-scale the calibrator learns from the test skeleton:
// the hip-to-knee span (0.22) times the ankle-occlusion multiplier (2.2).
const scaleUnit = 0.22 * 2.2

func f64(v float64) *float64 { return &v }
func i(v int) *int           { return &v }
func str(v string) *string   { return &v }
func boolPtr(v bool) *bool   { return &v }

// testTuning shrinks the windows so scenarios stay short, disables angle
// smoothing lag, and lets calibration admit samples with the knee triple
// occluded (the test skeleton hides its ankles so the hip estimator drives
// depth alone).
func testTuning() *config.TuningConfig {
	return &config.TuningConfig{
		AngleSmoothingEMA:      f64(1),
		CalibrationFrames:      i(10),
		StillnessWindow:        i(3),
		StillnessVariance:      f64(0.001),
		CalibrationMinKneeDeg:  f64(0),
		RepDepthThreshold:      f64(0.45),
		CoachingDepthThreshold: f64(0.45),
		RepGateWindow:          i(3),
		RepGateNeed:            i(2),
		CoachingGateWindow:     i(3),
		CoachingGateNeed:       i(2),
		CoachingDwellFrames:    i(2),
		MinTransitionInterval:  str("100ms"),
	}
}

// poseFrame builds a side-profile skeleton at the given squat depth and trunk
// lean. Ankles are reported with low confidence, as a cropped camera view
// would, so depth comes entirely from the calibrated hip estimator.
func poseFrame(depth, leanDeg, ts float64) pose.Frame {
	hipY := 0.5 + depth*scaleUnit
	shoulderX := 0.5 + 0.30*math.Tan(leanDeg*math.Pi/180)

	kps := make([]pose.Keypoint, pose.NumJoints)
	for j := range kps {
		kps[j] = pose.Keypoint{X: 0.5, Y: hipY, Visibility: 0.9}
	}
	set := func(j pose.Joint, x, y, vis float64) {
		kps[j] = pose.Keypoint{X: x, Y: y, Visibility: vis}
	}
	set(pose.LeftShoulder, shoulderX, hipY-0.30, 0.9)
	set(pose.RightShoulder, shoulderX, hipY-0.30, 0.9)
	set(pose.LeftHip, 0.5, hipY, 0.9)
	set(pose.RightHip, 0.5, hipY, 0.9)
	set(pose.LeftKnee, 0.5, hipY+0.22, 0.9)
	set(pose.RightKnee, 0.5, hipY+0.22, 0.9)
	set(pose.LeftAnkle, 0.5, hipY+0.44, 0.1)
	set(pose.RightAnkle, 0.5, hipY+0.44, 0.1)
	return pose.Frame{Keypoints: kps, Timestamp: ts}
}

// harness feeds frames at 5 fps and collects emitted reps and cues.
type harness struct {
	s    *Session
	ts   float64
	last Snapshot
	reps []*RepEvent
	cues []*coach.Cue
}

func newHarness(cfg *config.TuningConfig) *harness {
	return &harness{s: New(cfg)}
}

func (h *harness) feed(depth, leanDeg float64, n int) {
	for f := 0; f < n; f++ {
		h.ts += 0.2
		res := h.s.ProcessFrame(poseFrame(depth, leanDeg, h.ts))
		h.last = res.Snapshot
		if res.Rep != nil {
			h.reps = append(h.reps, res.Rep)
		}
		if res.Cue != nil {
			h.cues = append(h.cues, res.Cue)
		}
	}
}

// calibrate stands still until the baselines lock, plus two frames so the
// state machine sees a standing reference.
func (h *harness) calibrate(t *testing.T) {
	t.Helper()
	h.feed(0, 0, 16)
	require.True(t, h.s.Baseline().Calibrated(), "session must calibrate while standing still")
	require.InDelta(t, scaleUnit, h.s.Baseline().ScaleUnit, 1e-6)
}

// rep performs one full squat cycle: ramped descent, a hold at the given
// peak depth, ramped ascent, and a standing hold long enough to reach
// lockout.
func (h *harness) rep(peak, leanDeg float64) {
	for _, frac := range []float64{0.15, 0.3, 0.45, 0.6, 0.75, 0.9, 1.0} {
		h.feed(peak*frac, leanDeg*frac, 1)
	}
	h.feed(peak, leanDeg, 6)
	for _, frac := range []float64{0.75, 0.55, 0.35, 0.2, 0.1} {
		h.feed(peak*frac, leanDeg*frac, 1)
	}
	h.feed(0, 0, 10)
}

func TestSessionAwaitsCalibration(t *testing.T) {
	t.Parallel()

	h := newHarness(testTuning())
	h.feed(0, 0, 5)

	assert.False(t, h.last.Calibrated)
	assert.Equal(t, 10, h.last.CalibrationWant)
	assert.Equal(t, 0, h.last.RepCount)
	assert.Empty(t, h.reps)
	assert.Empty(t, h.cues)
}

func TestDeepRepCountsWithoutCue(t *testing.T) {
	t.Parallel()

	h := newHarness(testTuning())
	h.calibrate(t)
	h.rep(0.65, 0)

	require.Len(t, h.reps, 1)
	rep := h.reps[0]
	assert.Equal(t, h.s.ID(), rep.SessionID)
	assert.Equal(t, 1, rep.RepNumber)
	assert.InDelta(t, 0.65, rep.Depth, 0.02)
	assert.False(t, rep.RecordedAt.IsZero())

	assert.Equal(t, 1, h.last.RepCount)
	assert.Empty(t, h.cues, "a deep upright rep earns no cue")
}

func TestShallowAttemptGetsDepthCue(t *testing.T) {
	t.Parallel()

	h := newHarness(testTuning())
	h.calibrate(t)
	h.rep(0.40, 0)

	assert.Empty(t, h.reps, "a shallow attempt never counts")
	assert.Equal(t, 0, h.last.RepCount)

	require.Len(t, h.cues, 1, "the turnaround still coaches the failed attempt")
	assert.Equal(t, coach.KindDepth, h.cues[0].Kind)
}

func TestTrunkLeanGetsTrunkCue(t *testing.T) {
	t.Parallel()

	h := newHarness(testTuning())
	h.calibrate(t)
	// Deep enough to count, but folding forward 25° past the upright
	// baseline by the bottom.
	h.rep(0.65, 25)

	require.Len(t, h.reps, 1, "the leaning rep still counts")
	require.Len(t, h.cues, 1)
	assert.Equal(t, coach.KindTrunk, h.cues[0].Kind)
	assert.Equal(t, "Chest up", h.cues[0].Message)
}

func TestBackToBackRepsResetPerRepState(t *testing.T) {
	t.Parallel()

	h := newHarness(testTuning())
	h.calibrate(t)
	h.rep(0.40, 0)
	h.rep(0.40, 0)

	assert.Empty(t, h.reps)
	// The depth cue repeats across cycles: per-rep suppression clears at
	// each cycle start.
	require.Len(t, h.cues, 2)
	assert.Equal(t, coach.KindDepth, h.cues[0].Kind)
	assert.Equal(t, coach.KindDepth, h.cues[1].Kind)
}

func TestAdaptiveThresholdAdjustsOnce(t *testing.T) {
	t.Parallel()

	cfg := testTuning()
	cfg.AdaptiveCoachingEnabled = boolPtr(true)
	cfg.AdaptiveCoachingMin = f64(0.4)
	cfg.AdaptiveCoachingMax = f64(0.8)

	h := newHarness(cfg)
	h.calibrate(t)

	h.rep(0.50, 0)
	require.Len(t, h.reps, 1)
	assert.Equal(t, 0.45, h.s.CoachingThreshold(), "unchanged until the second qualified bottom")

	h.rep(0.65, 0)
	require.Len(t, h.reps, 2)
	adjusted := h.s.CoachingThreshold()
	assert.InDelta(t, 0.575, adjusted, 0.02, "median of the first two rep depths")

	h.rep(0.70, 0)
	assert.Equal(t, adjusted, h.s.CoachingThreshold(), "the adjustment applies exactly once")
}

func TestOcclusionMidSetPausesDecisions(t *testing.T) {
	t.Parallel()

	h := newHarness(testTuning())
	h.calibrate(t)
	h.rep(0.65, 0)
	require.Equal(t, 1, h.last.RepCount)

	// Hips drop below the confidence floor: decisions pause but the
	// pipeline keeps producing snapshots.
	for f := 0; f < 5; f++ {
		h.ts += 0.2
		frame := poseFrame(0, 0, h.ts)
		frame.Keypoints[pose.LeftHip].Visibility = 0.1
		frame.Keypoints[pose.RightHip].Visibility = 0.1
		res := h.s.ProcessFrame(frame)
		assert.False(t, res.Snapshot.ProfileOK)
		assert.Nil(t, res.Rep)
		assert.Nil(t, res.Cue)
	}

	// Recovery: the count survives and another rep still works.
	h.feed(0, 0, 5)
	h.rep(0.65, 0)
	assert.Equal(t, 2, h.last.RepCount)
}

func TestInvalidFrameDegradesGracefully(t *testing.T) {
	t.Parallel()

	s := New(testTuning())
	res := s.ProcessFrame(pose.Frame{})
	assert.Equal(t, s.ID(), res.Snapshot.SessionID)
	assert.False(t, res.Snapshot.Calibrated)
	assert.Nil(t, res.Rep)
	assert.Nil(t, res.Cue)
}

func TestManagerReset(t *testing.T) {
	t.Parallel()

	m := NewManager(testTuning())
	first := m.Current()
	require.NotEmpty(t, first.ID())

	second := m.Reset()
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Same(t, second, m.Current())
	assert.Equal(t, Snapshot{}, m.Latest())
	assert.Nil(t, m.LastCue())
}

func TestManagerSetConfigAppliesOnReset(t *testing.T) {
	t.Parallel()

	m := NewManager(testTuning())
	assert.Equal(t, 0.45, m.Current().CoachingThreshold())

	next := testTuning()
	next.CoachingDepthThreshold = f64(0.7)
	m.SetConfig(next)

	// The active session keeps its construction-time config.
	assert.Equal(t, 0.45, m.Current().CoachingThreshold())
	assert.Same(t, next, m.Config())

	s := m.Reset()
	assert.Equal(t, 0.7, s.CoachingThreshold())
}

func TestManagerPublish(t *testing.T) {
	t.Parallel()

	m := NewManager(testTuning())
	snap := Snapshot{SessionID: "s", RepCount: 3, DepthFraction: 0.7}
	m.Publish(Result{
		Snapshot: snap,
		Cue:      &coach.Cue{Kind: coach.KindDepth, Message: "Go a little deeper"},
	})

	assert.Equal(t, snap, m.Latest())
	cue := m.LastCue()
	require.NotNil(t, cue)
	assert.Equal(t, "depth", cue.Kind)
	assert.Equal(t, 3, cue.Rep)

	// A cue-less publish keeps the last cue available.
	m.Publish(Result{Snapshot: Snapshot{RepCount: 4}})
	require.NotNil(t, m.LastCue())
	assert.Equal(t, 3, m.LastCue().Rep)

	// The returned cue is a copy, not a handle into manager state.
	cue.Rep = 99
	assert.Equal(t, 3, m.LastCue().Rep)
}
