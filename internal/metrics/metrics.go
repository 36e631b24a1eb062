// Package metrics derives the movement measurements that drive rep counting
// and coaching: knee flexion angle, trunk lean, and monotonic depth
// fractions. Angle computation is pure; the Extractor layers exponential
// smoothing on top for display and gating stability.
package metrics

import (
	"math"

	"github.com/banshee-data/rep.coach/internal/config"
	"github.com/banshee-data/rep.coach/internal/pose"
	"github.com/banshee-data/rep.coach/internal/units"
)

// StandingKneeAngleDeg is the anatomical fully-extended knee angle used as
// the zero-depth reference for the knee-angle depth estimator.
const StandingKneeAngleDeg = 180.0

// Config holds the metric extraction tunables.
type Config struct {
	TargetKneeAngleDeg float64 // knee angle at which depth fraction saturates at 1
	AngleSmoothingEMA  float64 // EMA weight of the new observation [0,1]
	VisibilityMin      float64 // joint confidence floor for the profile check
	MinScaleUnit       float64 // floor applied to the calibrated scale divisor
	HipKneeMultiplier  float64 // ankle-occlusion fallback scale multiplier
}

// ConfigFromTuning builds a metrics Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		TargetKneeAngleDeg: cfg.GetTargetKneeAngleDeg(),
		AngleSmoothingEMA:  cfg.GetAngleSmoothingEMA(),
		VisibilityMin:      cfg.GetVisibilityThreshold(),
		MinScaleUnit:       cfg.GetMinScaleUnit(),
		HipKneeMultiplier:  cfg.GetHipKneeScaleMultiplier(),
	}
}

// Snapshot is the per-frame numeric output consumed by the state machine,
// the coach, and rendering collaborators.
type Snapshot struct {
	KneeAngleDeg  float64 `json:"knee_angle_deg"`
	TrunkAngleDeg float64 `json:"trunk_angle_deg"`
	HipY          float64 `json:"hip_y"`
	DepthKnee     float64 `json:"depth_knee"`     // knee-angle estimator [0,1]
	DepthHip      float64 `json:"depth_hip"`      // calibrated hip estimator [0,1]
	DepthFraction float64 `json:"depth"`          // max of available estimators
	ProfileOK     bool    `json:"profile_ok"`     // angles trustworthy this frame
	ScaleSpan     float64 `json:"scale_span"`     // body-scale candidate (calibration input)
	ScaleFromHips bool    `json:"scale_fallback"` // true when ankles were occluded
}

// jointAngleDeg returns the angle at vertex b formed by segments b→a and
// b→c, in degrees. The cosine is clamped to [-1, 1] before acos so
// floating-point overshoot cannot produce a domain error.
func jointAngleDeg(a, b, c pose.Keypoint) float64 {
	v1x, v1y := a.X-b.X, a.Y-b.Y
	v2x, v2y := c.X-b.X, c.Y-b.Y
	m1 := math.Hypot(v1x, v1y)
	m2 := math.Hypot(v2x, v2y)
	if m1 == 0 || m2 == 0 {
		return 0
	}
	cos := units.ClampCos((v1x*v2x + v1y*v2y) / (m1 * m2))
	return units.RadToDeg(math.Acos(cos))
}

// KneeAngleDeg returns the hip–knee–ankle angle averaged across whichever
// body sides are visible above the threshold. The second return is false
// when neither side has a usable hip/knee/ankle triple.
func KneeAngleDeg(kps []pose.Keypoint, visMin float64) (float64, bool) {
	type side struct{ hip, knee, ankle pose.Joint }
	sides := [2]side{
		{pose.LeftHip, pose.LeftKnee, pose.LeftAnkle},
		{pose.RightHip, pose.RightKnee, pose.RightAnkle},
	}

	var sum float64
	var n int
	for _, s := range sides {
		if kps[s.hip].Visible(visMin) && kps[s.knee].Visible(visMin) && kps[s.ankle].Visible(visMin) {
			sum += jointAngleDeg(kps[s.hip], kps[s.knee], kps[s.ankle])
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// TrunkAngleDeg returns the absolute deviation of the hip-centre→shoulder-
// centre line from vertical, folded into [0°, 90°]. Folding makes the
// measure orientation-invariant, so left/right mirroring of the camera view
// does not change it.
func TrunkAngleDeg(kps []pose.Keypoint) float64 {
	hip := pose.Midpoint(kps[pose.LeftHip], kps[pose.RightHip])
	shoulder := pose.Midpoint(kps[pose.LeftShoulder], kps[pose.RightShoulder])

	// Image y grows downward; shoulders above hips give a negative dy.
	dx := shoulder.X - hip.X
	dy := hip.Y - shoulder.Y
	if dx == 0 && dy == 0 {
		return 0
	}
	return units.FoldTo90(math.Abs(units.RadToDeg(math.Atan2(dx, dy))))
}

// DepthFromKneeAngle maps a knee angle linearly from standing (180°, depth
// 0) to the target angle (depth 1), clamped to [0,1]. Monotonically
// non-decreasing as the knee flexes.
func DepthFromKneeAngle(angleDeg, targetDeg float64) float64 {
	span := StandingKneeAngleDeg - targetDeg
	if span <= 0 {
		return 0
	}
	return units.Clamp01((StandingKneeAngleDeg - angleDeg) / span)
}

// DepthFromHip maps calibrated hip displacement to [0,1]. The scale unit is
// floored to minScale before use as a divisor so a degenerate calibration
// cannot blow up the fraction.
func DepthFromHip(hipY, referenceHipY, scaleUnit, minScale float64) float64 {
	if scaleUnit < minScale {
		scaleUnit = minScale
	}
	return units.Clamp01((hipY - referenceHipY) / scaleUnit)
}

// ProfileOK reports whether enough joints are visible to trust the angles
// at all: hip and knee on at least one body side. Downstream stages skip
// state-machine and cue evaluation when this is false; rendering may still
// proceed.
func ProfileOK(kps []pose.Keypoint, visMin float64) bool {
	left := kps[pose.LeftHip].Visible(visMin) && kps[pose.LeftKnee].Visible(visMin)
	right := kps[pose.RightHip].Visible(visMin) && kps[pose.RightKnee].Visible(visMin)
	return left || right
}

// scaleSpan returns the body-scale candidate: the shoulder-to-ankle vertical
// span when ankles are reliably visible, otherwise a multiple of the
// hip-to-knee span. The boolean reports whether the fallback was used.
func scaleSpan(kps []pose.Keypoint, visMin, hipKneeMultiplier float64) (float64, bool) {
	shoulder := pose.Midpoint(kps[pose.LeftShoulder], kps[pose.RightShoulder])
	hip := pose.Midpoint(kps[pose.LeftHip], kps[pose.RightHip])

	ankles := pose.Midpoint(kps[pose.LeftAnkle], kps[pose.RightAnkle])
	if kps[pose.LeftAnkle].Visible(visMin) && kps[pose.RightAnkle].Visible(visMin) {
		return math.Abs(ankles.Y - shoulder.Y), false
	}

	knee := pose.Midpoint(kps[pose.LeftKnee], kps[pose.RightKnee])
	return math.Abs(knee.Y-hip.Y) * hipKneeMultiplier, true
}

// Extractor computes per-frame snapshots, layering exponential smoothing on
// the knee and trunk angles. One instance per session; single writer.
type Extractor struct {
	cfg Config

	kneeEMA     float64
	kneeSeeded  bool
	trunkEMA    float64
	trunkSeeded bool
}

// NewExtractor creates an extractor with the given configuration.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Baseline carries the calibrated references needed for the hip-depth
// estimator. Zero value means "not calibrated"; the hip estimator is then
// reported as 0 and the knee estimator drives alone.
type Baseline struct {
	ReferenceHipY    float64
	ScaleUnit        float64
	TrunkBaselineDeg float64
}

// Calibrated reports whether the baseline carries usable references.
func (b Baseline) Calibrated() bool {
	return b.ScaleUnit > 0
}

// Extract computes a snapshot from one smoothed skeleton. The FSM driver
// DepthFraction is the max of the available estimators, so the signal stays
// monotonically available even when one estimator degrades (e.g. ankle
// occlusion invalidating the hip scale).
func (e *Extractor) Extract(kps []pose.Keypoint, baseline Baseline) Snapshot {
	snap := Snapshot{
		ProfileOK: ProfileOK(kps, e.cfg.VisibilityMin),
	}

	hip := pose.Midpoint(kps[pose.LeftHip], kps[pose.RightHip])
	snap.HipY = hip.Y
	snap.ScaleSpan, snap.ScaleFromHips = scaleSpan(kps, e.cfg.VisibilityMin, e.cfg.HipKneeMultiplier)

	knee, kneeOK := KneeAngleDeg(kps, e.cfg.VisibilityMin)
	trunk := TrunkAngleDeg(kps)

	// Trunk lean needs only hips and shoulders, so its smoothing keeps
	// running while the knee triple is occluded.
	if !e.trunkSeeded {
		e.trunkEMA = trunk
		e.trunkSeeded = true
	} else {
		e.trunkEMA += e.cfg.AngleSmoothingEMA * (trunk - e.trunkEMA)
	}
	if kneeOK {
		if !e.kneeSeeded {
			e.kneeEMA = knee
			e.kneeSeeded = true
		} else {
			e.kneeEMA += e.cfg.AngleSmoothingEMA * (knee - e.kneeEMA)
		}
	}
	snap.KneeAngleDeg = e.kneeEMA
	snap.TrunkAngleDeg = e.trunkEMA

	if kneeOK {
		snap.DepthKnee = DepthFromKneeAngle(e.kneeEMA, e.cfg.TargetKneeAngleDeg)
	}
	if baseline.Calibrated() {
		snap.DepthHip = DepthFromHip(hip.Y, baseline.ReferenceHipY, baseline.ScaleUnit, e.cfg.MinScaleUnit)
	}

	snap.DepthFraction = snap.DepthKnee
	if snap.DepthHip > snap.DepthFraction {
		snap.DepthFraction = snap.DepthHip
	}
	return snap
}
