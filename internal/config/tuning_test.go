package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float64Ptr(v float64) *float64 { return &v }
func intPtr(v int) *int             { return &v }
func stringPtr(v string) *string    { return &v }

func TestEmptyConfigUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg := EmptyTuningConfig()

	assert.Equal(t, 1.0, cfg.GetSmootherMinCutoffHz())
	assert.Equal(t, 0.3, cfg.GetSmootherBeta())
	assert.Equal(t, 0.12, cfg.GetSmootherMaxJump())
	assert.Equal(t, 0.5, cfg.GetVisibilityThreshold())
	assert.Equal(t, 70.0, cfg.GetTargetKneeAngleDeg())
	assert.Equal(t, 45, cfg.GetCalibrationFrames())
	assert.Equal(t, 0.45, cfg.GetRepDepthThreshold())
	assert.Equal(t, 0.6, cfg.GetCoachingDepthThreshold())
	assert.Equal(t, 5, cfg.GetRepGateWindow())
	assert.Equal(t, 2, cfg.GetRepGateNeed())
	assert.Equal(t, 6, cfg.GetCoachingGateWindow())
	assert.Equal(t, 4, cfg.GetCoachingGateNeed())
	assert.Equal(t, 150*time.Millisecond, cfg.GetMinTransitionInterval())
	assert.Equal(t, 16.0, cfg.GetTrunkDeviationDeg())
	assert.False(t, cfg.GetAdaptiveCoachingEnabled())
}

func TestLoadDefaultsFileMatchesAccessors(t *testing.T) {
	t.Parallel()

	cfg := MustLoadDefaultConfig()

	// The canonical defaults file must agree with the in-code fallbacks so
	// deleting a key from the file never changes behaviour.
	require.NotNil(t, cfg.RepDepthThreshold)
	assert.Equal(t, EmptyTuningConfig().GetRepDepthThreshold(), *cfg.RepDepthThreshold)
	require.NotNil(t, cfg.CoachingDepthThreshold)
	assert.Equal(t, EmptyTuningConfig().GetCoachingDepthThreshold(), *cfg.CoachingDepthThreshold)
	require.NotNil(t, cfg.MinTransitionInterval)
	assert.Equal(t, EmptyTuningConfig().GetMinTransitionInterval(), cfg.GetMinTransitionInterval())
}

func TestLoadTuningConfigPartial(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rep_depth_threshold": 0.5}`), 0o644))

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.GetRepDepthThreshold())
	// Unset fields fall back to defaults.
	assert.Equal(t, 0.6, cfg.GetCoachingDepthThreshold())
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	t.Parallel()

	_, err := LoadTuningConfig("tuning.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     TuningConfig
		wantErr bool
	}{
		{name: "empty is valid", cfg: TuningConfig{}},
		{name: "visibility in range", cfg: TuningConfig{VisibilityThreshold: float64Ptr(0.7)}},
		{name: "visibility out of range", cfg: TuningConfig{VisibilityThreshold: float64Ptr(1.5)}, wantErr: true},
		{name: "rep depth zero", cfg: TuningConfig{RepDepthThreshold: float64Ptr(0)}, wantErr: true},
		{name: "coaching depth above one", cfg: TuningConfig{CoachingDepthThreshold: float64Ptr(1.2)}, wantErr: true},
		{name: "target knee angle at bound", cfg: TuningConfig{TargetKneeAngleDeg: float64Ptr(180)}, wantErr: true},
		{name: "gate need exceeds window", cfg: TuningConfig{RepGateWindow: intPtr(3), RepGateNeed: intPtr(4)}, wantErr: true},
		{name: "coaching gate need exceeds window", cfg: TuningConfig{CoachingGateWindow: intPtr(2), CoachingGateNeed: intPtr(5)}, wantErr: true},
		{name: "bad duration", cfg: TuningConfig{MinTransitionInterval: stringPtr("soon")}, wantErr: true},
		{name: "good duration", cfg: TuningConfig{MinTransitionInterval: stringPtr("200ms")}},
		{name: "calibration frames zero", cfg: TuningConfig{CalibrationFrames: intPtr(0)}, wantErr: true},
		{name: "adaptive bounds inverted", cfg: TuningConfig{AdaptiveCoachingMin: float64Ptr(0.8), AdaptiveCoachingMax: float64Ptr(0.4)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
