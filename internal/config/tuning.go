package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for pipeline tuning
// parameters. The schema matches the /api/params endpoint so the same JSON
// can be used for both startup configuration and runtime updates.
//
// All thresholds are configuration rather than constants: the right values
// are scale- and frame-rate-dependent and were never settled during field
// trials, so they stay tunable with documented defaults.
type TuningConfig struct {
	// Smoother params
	SmootherMinCutoffHz   *float64 `json:"smoother_min_cutoff_hz,omitempty"`
	SmootherBeta          *float64 `json:"smoother_beta,omitempty"`
	SmootherDerivCutoffHz *float64 `json:"smoother_deriv_cutoff_hz,omitempty"`
	SmootherMaxJump       *float64 `json:"smoother_max_jump,omitempty"`
	VisibilityThreshold   *float64 `json:"visibility_threshold,omitempty"`

	// Metric params
	TargetKneeAngleDeg *float64 `json:"target_knee_angle_deg,omitempty"`
	AngleSmoothingEMA  *float64 `json:"angle_smoothing_ema,omitempty"`

	// Calibration params
	CalibrationFrames      *int     `json:"calibration_frames,omitempty"`
	StillnessVariance      *float64 `json:"stillness_variance,omitempty"`
	StillnessWindow        *int     `json:"stillness_window,omitempty"`
	CalibrationMinKneeDeg  *float64 `json:"calibration_min_knee_deg,omitempty"`
	CalibrationMaxTrunkDeg *float64 `json:"calibration_max_trunk_deg,omitempty"`
	MinScaleUnit           *float64 `json:"min_scale_unit,omitempty"`
	HipKneeScaleMultiplier *float64 `json:"hip_knee_scale_multiplier,omitempty"`

	// Depth gating params. Rep gating is looser than coaching gating:
	// counting a rep and praising its depth tolerate false positives
	// differently.
	RepDepthThreshold      *float64 `json:"rep_depth_threshold,omitempty"`
	CoachingDepthThreshold *float64 `json:"coaching_depth_threshold,omitempty"`
	RepGateWindow          *int     `json:"rep_gate_window,omitempty"`
	RepGateNeed            *int     `json:"rep_gate_need,omitempty"`
	CoachingGateWindow     *int     `json:"coaching_gate_window,omitempty"`
	CoachingGateNeed       *int     `json:"coaching_gate_need,omitempty"`
	CoachingDwellFrames    *int     `json:"coaching_dwell_frames,omitempty"`

	// Rep state machine params
	DescentVelocity       *float64 `json:"descent_velocity,omitempty"`
	AscentVelocity        *float64 `json:"ascent_velocity,omitempty"`
	QuietVelocity         *float64 `json:"quiet_velocity,omitempty"`
	MinTransitionInterval *string  `json:"min_transition_interval,omitempty"` // duration string like "150ms"

	// Coaching params
	TrunkDeviationDeg *float64 `json:"trunk_deviation_deg,omitempty"`

	// Adaptive coaching threshold strategy (optional policy). When enabled,
	// the coaching depth threshold is adjusted once to the median of the
	// first two depth-qualified bottoms, clamped to [min, max].
	AdaptiveCoachingEnabled *bool    `json:"adaptive_coaching_enabled,omitempty"`
	AdaptiveCoachingMin     *float64 `json:"adaptive_coaching_min,omitempty"`
	AdaptiveCoachingMax     *float64 `json:"adaptive_coaching_max,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.VisibilityThreshold != nil {
		if *c.VisibilityThreshold < 0 || *c.VisibilityThreshold > 1 {
			return fmt.Errorf("visibility_threshold must be between 0 and 1, got %f", *c.VisibilityThreshold)
		}
	}
	if c.RepDepthThreshold != nil {
		if *c.RepDepthThreshold <= 0 || *c.RepDepthThreshold > 1 {
			return fmt.Errorf("rep_depth_threshold must be in (0, 1], got %f", *c.RepDepthThreshold)
		}
	}
	if c.CoachingDepthThreshold != nil {
		if *c.CoachingDepthThreshold <= 0 || *c.CoachingDepthThreshold > 1 {
			return fmt.Errorf("coaching_depth_threshold must be in (0, 1], got %f", *c.CoachingDepthThreshold)
		}
	}
	if c.TargetKneeAngleDeg != nil {
		if *c.TargetKneeAngleDeg <= 0 || *c.TargetKneeAngleDeg >= 180 {
			return fmt.Errorf("target_knee_angle_deg must be in (0, 180), got %f", *c.TargetKneeAngleDeg)
		}
	}
	if c.RepGateWindow != nil && c.RepGateNeed != nil {
		if *c.RepGateNeed > *c.RepGateWindow {
			return fmt.Errorf("rep_gate_need (%d) cannot exceed rep_gate_window (%d)", *c.RepGateNeed, *c.RepGateWindow)
		}
	}
	if c.CoachingGateWindow != nil && c.CoachingGateNeed != nil {
		if *c.CoachingGateNeed > *c.CoachingGateWindow {
			return fmt.Errorf("coaching_gate_need (%d) cannot exceed coaching_gate_window (%d)", *c.CoachingGateNeed, *c.CoachingGateWindow)
		}
	}
	if c.MinTransitionInterval != nil && *c.MinTransitionInterval != "" {
		if _, err := time.ParseDuration(*c.MinTransitionInterval); err != nil {
			return fmt.Errorf("invalid min_transition_interval '%s': %w", *c.MinTransitionInterval, err)
		}
	}
	if c.CalibrationFrames != nil {
		if *c.CalibrationFrames < 1 {
			return fmt.Errorf("calibration_frames must be positive, got %d", *c.CalibrationFrames)
		}
	}
	if c.AdaptiveCoachingMin != nil && c.AdaptiveCoachingMax != nil {
		if *c.AdaptiveCoachingMin > *c.AdaptiveCoachingMax {
			return fmt.Errorf("adaptive_coaching_min (%f) cannot exceed adaptive_coaching_max (%f)",
				*c.AdaptiveCoachingMin, *c.AdaptiveCoachingMax)
		}
	}
	return nil
}

// GetSmootherMinCutoffHz returns the smoother_min_cutoff_hz value or the default.
func (c *TuningConfig) GetSmootherMinCutoffHz() float64 {
	if c.SmootherMinCutoffHz == nil {
		return 1.0
	}
	return *c.SmootherMinCutoffHz
}

// GetSmootherBeta returns the smoother_beta value or the default.
func (c *TuningConfig) GetSmootherBeta() float64 {
	if c.SmootherBeta == nil {
		return 0.3
	}
	return *c.SmootherBeta
}

// GetSmootherDerivCutoffHz returns the smoother_deriv_cutoff_hz value or the default.
func (c *TuningConfig) GetSmootherDerivCutoffHz() float64 {
	if c.SmootherDerivCutoffHz == nil {
		return 1.0
	}
	return *c.SmootherDerivCutoffHz
}

// GetSmootherMaxJump returns the smoother_max_jump value or the default.
// Units are normalised image coordinates per frame.
func (c *TuningConfig) GetSmootherMaxJump() float64 {
	if c.SmootherMaxJump == nil {
		return 0.12
	}
	return *c.SmootherMaxJump
}

// GetVisibilityThreshold returns the visibility_threshold value or the default.
func (c *TuningConfig) GetVisibilityThreshold() float64 {
	if c.VisibilityThreshold == nil {
		return 0.5
	}
	return *c.VisibilityThreshold
}

// GetTargetKneeAngleDeg returns the target_knee_angle_deg value or the default.
func (c *TuningConfig) GetTargetKneeAngleDeg() float64 {
	if c.TargetKneeAngleDeg == nil {
		return 70.0
	}
	return *c.TargetKneeAngleDeg
}

// GetAngleSmoothingEMA returns the angle_smoothing_ema value or the default.
func (c *TuningConfig) GetAngleSmoothingEMA() float64 {
	if c.AngleSmoothingEMA == nil {
		return 0.3
	}
	return *c.AngleSmoothingEMA
}

// GetCalibrationFrames returns the calibration_frames value or the default.
func (c *TuningConfig) GetCalibrationFrames() int {
	if c.CalibrationFrames == nil {
		return 45
	}
	return *c.CalibrationFrames
}

// GetStillnessVariance returns the stillness_variance value or the default.
func (c *TuningConfig) GetStillnessVariance() float64 {
	if c.StillnessVariance == nil {
		return 0.0001
	}
	return *c.StillnessVariance
}

// GetStillnessWindow returns the stillness_window value or the default.
func (c *TuningConfig) GetStillnessWindow() int {
	if c.StillnessWindow == nil {
		return 15
	}
	return *c.StillnessWindow
}

// GetCalibrationMinKneeDeg returns the calibration_min_knee_deg value or the default.
func (c *TuningConfig) GetCalibrationMinKneeDeg() float64 {
	if c.CalibrationMinKneeDeg == nil {
		return 160.0
	}
	return *c.CalibrationMinKneeDeg
}

// GetCalibrationMaxTrunkDeg returns the calibration_max_trunk_deg value or the default.
func (c *TuningConfig) GetCalibrationMaxTrunkDeg() float64 {
	if c.CalibrationMaxTrunkDeg == nil {
		return 12.0
	}
	return *c.CalibrationMaxTrunkDeg
}

// GetMinScaleUnit returns the min_scale_unit value or the default.
// The scale unit is used as a divisor and is floored to this value.
func (c *TuningConfig) GetMinScaleUnit() float64 {
	if c.MinScaleUnit == nil {
		return 0.05
	}
	return *c.MinScaleUnit
}

// GetHipKneeScaleMultiplier returns the hip_knee_scale_multiplier value or the default.
// Used when ankles are occluded: body scale ≈ multiplier × hip-to-knee span.
func (c *TuningConfig) GetHipKneeScaleMultiplier() float64 {
	if c.HipKneeScaleMultiplier == nil {
		return 2.2
	}
	return *c.HipKneeScaleMultiplier
}

// GetRepDepthThreshold returns the rep_depth_threshold value or the default.
func (c *TuningConfig) GetRepDepthThreshold() float64 {
	if c.RepDepthThreshold == nil {
		return 0.45
	}
	return *c.RepDepthThreshold
}

// GetCoachingDepthThreshold returns the coaching_depth_threshold value or the default.
func (c *TuningConfig) GetCoachingDepthThreshold() float64 {
	if c.CoachingDepthThreshold == nil {
		return 0.6
	}
	return *c.CoachingDepthThreshold
}

// GetRepGateWindow returns the rep_gate_window value or the default.
func (c *TuningConfig) GetRepGateWindow() int {
	if c.RepGateWindow == nil {
		return 5
	}
	return *c.RepGateWindow
}

// GetRepGateNeed returns the rep_gate_need value or the default.
func (c *TuningConfig) GetRepGateNeed() int {
	if c.RepGateNeed == nil {
		return 2
	}
	return *c.RepGateNeed
}

// GetCoachingGateWindow returns the coaching_gate_window value or the default.
func (c *TuningConfig) GetCoachingGateWindow() int {
	if c.CoachingGateWindow == nil {
		return 6
	}
	return *c.CoachingGateWindow
}

// GetCoachingGateNeed returns the coaching_gate_need value or the default.
func (c *TuningConfig) GetCoachingGateNeed() int {
	if c.CoachingGateNeed == nil {
		return 4
	}
	return *c.CoachingGateNeed
}

// GetCoachingDwellFrames returns the coaching_dwell_frames value or the default.
func (c *TuningConfig) GetCoachingDwellFrames() int {
	if c.CoachingDwellFrames == nil {
		return 3
	}
	return *c.CoachingDwellFrames
}

// GetDescentVelocity returns the descent_velocity value or the default.
// Units are normalised image height per second; positive is downward.
func (c *TuningConfig) GetDescentVelocity() float64 {
	if c.DescentVelocity == nil {
		return 0.08
	}
	return *c.DescentVelocity
}

// GetAscentVelocity returns the ascent_velocity value or the default.
// Threshold magnitude for clearly-upward motion.
func (c *TuningConfig) GetAscentVelocity() float64 {
	if c.AscentVelocity == nil {
		return 0.08
	}
	return *c.AscentVelocity
}

// GetQuietVelocity returns the quiet_velocity value or the default.
// Velocity magnitudes at or below this are treated as near-zero.
func (c *TuningConfig) GetQuietVelocity() float64 {
	if c.QuietVelocity == nil {
		return 0.03
	}
	return *c.QuietVelocity
}

// GetMinTransitionInterval parses and returns the min_transition_interval
// as a time.Duration.
func (c *TuningConfig) GetMinTransitionInterval() time.Duration {
	if c.MinTransitionInterval == nil || *c.MinTransitionInterval == "" {
		return 150 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.MinTransitionInterval)
	if err != nil {
		return 150 * time.Millisecond // default on parse error
	}
	return d
}

// GetTrunkDeviationDeg returns the trunk_deviation_deg value or the default.
func (c *TuningConfig) GetTrunkDeviationDeg() float64 {
	if c.TrunkDeviationDeg == nil {
		return 16.0
	}
	return *c.TrunkDeviationDeg
}

// GetAdaptiveCoachingEnabled returns the adaptive_coaching_enabled value or the default.
func (c *TuningConfig) GetAdaptiveCoachingEnabled() bool {
	if c.AdaptiveCoachingEnabled == nil {
		return false // default: fixed coaching threshold
	}
	return *c.AdaptiveCoachingEnabled
}

// GetAdaptiveCoachingMin returns the adaptive_coaching_min value or the default.
func (c *TuningConfig) GetAdaptiveCoachingMin() float64 {
	if c.AdaptiveCoachingMin == nil {
		return 0.4
	}
	return *c.AdaptiveCoachingMin
}

// GetAdaptiveCoachingMax returns the adaptive_coaching_max value or the default.
func (c *TuningConfig) GetAdaptiveCoachingMax() float64 {
	if c.AdaptiveCoachingMax == nil {
		return 0.8
	}
	return *c.AdaptiveCoachingMax
}
