// Package calibrate learns subject- and session-specific baselines from an
// initial "upright and still" window: standing hip height, a body-scale
// unit, and the upright trunk angle. Baselines are medians over the
// admitted window, so transient outliers do not shift them. Calibration is
// write-once per session; switching cameras discards the tracker with the
// rest of the session state.
package calibrate

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/rep.coach/internal/config"
	"github.com/banshee-data/rep.coach/internal/metrics"
)

// Config holds the calibration tunables.
type Config struct {
	WindowFrames    int     // admitted samples needed before baselines lock
	StillnessVar    float64 // max hip-height variance over the stillness window
	StillnessWindow int     // rolling hip-height window for the variance check
	MinKneeDeg      float64 // knee must be near straight to admit a sample
	MaxTrunkDeg     float64 // trunk must be near upright to admit a sample
	MinScaleUnit    float64 // floor for the learned scale unit
}

// ConfigFromTuning builds a calibration Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		WindowFrames:    cfg.GetCalibrationFrames(),
		StillnessVar:    cfg.GetStillnessVariance(),
		StillnessWindow: cfg.GetStillnessWindow(),
		MinKneeDeg:      cfg.GetCalibrationMinKneeDeg(),
		MaxTrunkDeg:     cfg.GetCalibrationMaxTrunkDeg(),
		MinScaleUnit:    cfg.GetMinScaleUnit(),
	}
}

// Tracker accumulates calibration samples until the window fills, then
// locks the baselines for the session. Single writer; never calibrates
// twice. There is no timeout: an unsuitable scene simply stays in the
// awaiting state, which is reported but never fatal.
type Tracker struct {
	cfg Config

	// Parallel buffers of admitted samples.
	hipYs  []float64
	scales []float64
	trunks []float64

	// Rolling window of recent hip heights for the stillness check. Holds
	// every offered hip height with profile OK, admitted or not, so a
	// subject who just stopped moving is not admitted prematurely.
	recentHips []float64

	calibrated bool
	baseline   metrics.Baseline
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:        cfg,
		hipYs:      make([]float64, 0, cfg.WindowFrames),
		scales:     make([]float64, 0, cfg.WindowFrames),
		trunks:     make([]float64, 0, cfg.WindowFrames),
		recentHips: make([]float64, 0, cfg.StillnessWindow),
	}
}

// Calibrated reports whether the baselines have locked.
func (t *Tracker) Calibrated() bool { return t.calibrated }

// Baseline returns the locked baselines. The zero Baseline is returned
// until calibration completes.
func (t *Tracker) Baseline() metrics.Baseline { return t.baseline }

// Progress returns admitted samples and the window size, for UI display of
// the awaiting-calibration state.
func (t *Tracker) Progress() (have, want int) {
	return len(t.hipYs), t.cfg.WindowFrames
}

// still reports whether the recent hip-height window is full and its
// variance is below the stillness threshold.
func (t *Tracker) still() bool {
	if len(t.recentHips) < t.cfg.StillnessWindow {
		return false
	}
	return stat.Variance(t.recentHips, nil) <= t.cfg.StillnessVar
}

// median returns the sample median without mutating the input.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// Offer feeds one frame's measurements to the tracker and returns whether
// the session is calibrated after this frame. A sample is admitted only
// when the subject is upright (knee near straight, trunk near vertical),
// the profile is trustworthy, and the recent hip heights are still.
func (t *Tracker) Offer(hipY, kneeAngleDeg, trunkAngleDeg, scaleCandidate float64, profileOK bool) bool {
	if t.calibrated {
		return true
	}
	if !profileOK {
		return false
	}

	t.recentHips = append(t.recentHips, hipY)
	if len(t.recentHips) > t.cfg.StillnessWindow {
		t.recentHips = t.recentHips[1:]
	}

	if kneeAngleDeg < t.cfg.MinKneeDeg || trunkAngleDeg > t.cfg.MaxTrunkDeg || !t.still() {
		return false
	}

	t.hipYs = append(t.hipYs, hipY)
	t.scales = append(t.scales, scaleCandidate)
	t.trunks = append(t.trunks, trunkAngleDeg)

	if len(t.hipYs) < t.cfg.WindowFrames {
		return false
	}

	scale := median(t.scales)
	if scale < t.cfg.MinScaleUnit {
		scale = t.cfg.MinScaleUnit
	}
	t.baseline = metrics.Baseline{
		ReferenceHipY:    median(t.hipYs),
		ScaleUnit:        scale,
		TrunkBaselineDeg: median(t.trunks),
	}
	t.calibrated = true
	return true
}
