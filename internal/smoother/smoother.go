// Package smoother implements per-joint adaptive low-pass filtering of raw
// detector keypoints. The filter is a One Euro style adaptive low-pass: the
// position cutoff frequency rises with estimated speed, so fast motion stays
// responsive while slow motion is heavily smoothed. A pre-filter despike
// clamp bounds single-frame detector glitches, and low-visibility joints are
// frozen rather than smoothed toward garbage.
package smoother

import (
	"math"

	"github.com/banshee-data/rep.coach/internal/config"
	"github.com/banshee-data/rep.coach/internal/pose"
)

// minDt floors the frame time delta used for derivative estimation so a
// duplicate timestamp cannot blow up the derivative.
const minDt = 1e-6

// Config holds the smoother tunables.
type Config struct {
	MinCutoffHz   float64 // baseline position cutoff (Hz); lower = smoother
	Beta          float64 // speed coefficient; higher = less lag on fast motion
	DerivCutoffHz float64 // fixed cutoff for the derivative low-pass (Hz)
	MaxJump       float64 // despike clamp, normalised units per frame
	VisibilityMin float64 // below this confidence a joint's filter is frozen
}

// ConfigFromTuning builds a smoother Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MinCutoffHz:   cfg.GetSmootherMinCutoffHz(),
		Beta:          cfg.GetSmootherBeta(),
		DerivCutoffHz: cfg.GetSmootherDerivCutoffHz(),
		MaxJump:       cfg.GetSmootherMaxJump(),
		VisibilityMin: cfg.GetVisibilityThreshold(),
	}
}

// axisFilter is the 1-D filter state for a single coordinate axis of a
// single joint.
type axisFilter struct {
	initialized bool
	lastRaw     float64 // previous raw input, for derivative estimation
	lastValue   float64 // previous filtered output
	lastDeriv   float64 // previous low-passed derivative
	lastTime    float64
}

// alphaFor converts a cutoff frequency and time delta into the low-pass
// smoothing coefficient: alpha = 1 / (1 + tau/dt) with tau = 1/(2π·cutoff).
func alphaFor(cutoffHz, dt float64) float64 {
	tau := 1.0 / (2 * math.Pi * cutoffHz)
	return 1.0 / (1.0 + tau/dt)
}

// apply advances the filter by one sample and returns the filtered value.
func (f *axisFilter) apply(raw, t float64, cfg Config) float64 {
	if !f.initialized {
		// First sample: seed the filter and return the sample unchanged,
		// so a joint appearing mid-session carries no artificial lag.
		f.initialized = true
		f.lastRaw = raw
		f.lastValue = raw
		f.lastDeriv = 0
		f.lastTime = t
		return raw
	}

	dt := t - f.lastTime
	if dt < minDt {
		dt = minDt
	}
	f.lastTime = t

	// Estimate speed from the raw signal and low-pass it at a fixed cutoff.
	rawDeriv := (raw - f.lastRaw) / dt
	f.lastRaw = raw
	dAlpha := alphaFor(cfg.DerivCutoffHz, dt)
	f.lastDeriv += dAlpha * (rawDeriv - f.lastDeriv)

	// Adapt the position cutoff: faster motion relaxes smoothing (less
	// lag), slow motion tightens it (less jitter).
	cutoff := cfg.MinCutoffHz + cfg.Beta*math.Abs(f.lastDeriv)
	alpha := alphaFor(cutoff, dt)
	f.lastValue += alpha * (raw - f.lastValue)
	return f.lastValue
}

// Smoother owns the per-joint filter arena for one session. It has exactly
// one writer (the frame-processing call) and must not be shared across
// sessions.
type Smoother struct {
	cfg Config

	// Fixed-size arena, allocated once: one x/y filter pair per joint.
	filters [pose.NumJoints][2]axisFilter

	// Last smoothed output per joint, used for the despike clamp and for
	// freezing low-visibility joints.
	lastOut    [pose.NumJoints]pose.Keypoint
	hasLastOut [pose.NumJoints]bool
}

// New creates a smoother with the given configuration.
func New(cfg Config) *Smoother {
	return &Smoother{cfg: cfg}
}

// despike clamps the raw input toward the previous output so the jump
// magnitude never exceeds MaxJump. Single-frame detector glitches are
// bounded before they reach the filter.
func (s *Smoother) despike(j pose.Joint, raw pose.Keypoint) pose.Keypoint {
	if !s.hasLastOut[j] || s.cfg.MaxJump <= 0 {
		return raw
	}
	prev := s.lastOut[j]
	dx := raw.X - prev.X
	dy := raw.Y - prev.Y
	dist := math.Hypot(dx, dy)
	if dist <= s.cfg.MaxJump {
		return raw
	}
	scale := s.cfg.MaxJump / dist
	raw.X = prev.X + dx*scale
	raw.Y = prev.Y + dy*scale
	return raw
}

// Apply filters one frame of raw keypoints. It must be called at most once
// per frame with strictly increasing timestamps. The returned slice is newly
// allocated on every call; the previous frame's output is never aliased to
// the caller.
func (s *Smoother) Apply(raw []pose.Keypoint, timestamp float64) []pose.Keypoint {
	out := make([]pose.Keypoint, len(raw))
	for i := range raw {
		j := pose.Joint(i)
		if j >= pose.NumJoints {
			out[i] = raw[i]
			continue
		}

		// Low-confidence joints pass through the previous smoothed value
		// unchanged (or the raw value if none exists yet). The filter is
		// not updated, so it does not smooth toward a garbage detection.
		if raw[i].Visibility < s.cfg.VisibilityMin {
			if s.hasLastOut[j] {
				out[i] = s.lastOut[j]
				out[i].Visibility = raw[i].Visibility
			} else {
				out[i] = raw[i]
			}
			continue
		}

		kp := s.despike(j, raw[i])
		out[i] = pose.Keypoint{
			X:          s.filters[j][0].apply(kp.X, timestamp, s.cfg),
			Y:          s.filters[j][1].apply(kp.Y, timestamp, s.cfg),
			Visibility: raw[i].Visibility,
		}
		s.lastOut[j] = out[i]
		s.hasLastOut[j] = true
	}
	return out
}

// ClampedInput exposes the despiked raw value for a joint without advancing
// any filter state. Used by tests to verify despike boundedness.
func (s *Smoother) ClampedInput(j pose.Joint, raw pose.Keypoint) pose.Keypoint {
	return s.despike(j, raw)
}
