// Package units provides shared angle and fraction helpers for the pipeline
package units

import "math"

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Clamp01 clamps a fraction to [0, 1]. Depth estimators and gate inputs are
// all expressed on this range.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampCos clamps a cosine to [-1, 1] so floating-point overshoot cannot
// produce an acos domain error.
func ClampCos(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// FoldTo90 folds an angle in [0°, 180°] into [0°, 90°], making deviation
// measures orientation-invariant under camera mirroring.
func FoldTo90(deg float64) float64 {
	if deg > 90 {
		return 180 - deg
	}
	return deg
}
