// Package coach turns calibrated metrics into at most one coaching cue per
// qualifying event. Evaluation happens only at repetition bottoms (counted
// reps) and descent turnarounds (failed attempts); a per-rep memory keeps
// any cue kind from repeating within one repetition cycle.
package coach

import "github.com/banshee-data/rep.coach/internal/config"

// Kind categorises a cue. The speech collaborator keys audio on it and the
// per-rep memory suppresses repeats by it.
type Kind string

const (
	KindDepth Kind = "depth"
	KindTrunk Kind = "trunk"
	KindKnee  Kind = "knee"
)

// Cue is a single coaching message.
type Cue struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Input is the evaluated evidence for one bottom or turnaround event.
type Input struct {
	// DepthAchieved is the strict coaching gate's verdict, persisted for
	// the configured dwell so single-frame flicker cannot flip it.
	DepthAchieved bool
	// TrunkDeltaDeg is the trunk angle's deviation from the calibrated
	// upright baseline, in degrees.
	TrunkDeltaDeg float64
}

// Config holds the rule engine tunables.
type Config struct {
	TrunkDeviationDeg float64 // deviation beyond which the trunk cue fires
}

// ConfigFromTuning builds a coach Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		TrunkDeviationDeg: cfg.GetTrunkDeviationDeg(),
	}
}

// Engine evaluates the cue precedence rule and tracks the per-rep spoken
// memory. Single writer; one instance per session.
type Engine struct {
	cfg    Config
	spoken map[Kind]bool
}

// NewEngine creates a rule engine with an empty per-rep memory.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg,
		spoken: make(map[Kind]bool),
	}
}

// ResetRep clears the per-rep spoken memory. Called when a new repetition
// cycle begins (lockout → descent).
func (e *Engine) ResetRep() {
	clear(e.spoken)
}

// Evaluate applies the precedence rule — depth first, then trunk — and
// returns at most one cue. A kind already spoken during the current
// repetition cycle is suppressed; the engine never emits two cues for one
// evaluation.
func (e *Engine) Evaluate(in Input) *Cue {
	if !in.DepthAchieved {
		return e.emit(KindDepth, "Go a little deeper")
	}
	if in.TrunkDeltaDeg > e.cfg.TrunkDeviationDeg {
		return e.emit(KindTrunk, "Chest up")
	}
	return nil
}

func (e *Engine) emit(kind Kind, message string) *Cue {
	if e.spoken[kind] {
		return nil
	}
	e.spoken[kind] = true
	return &Cue{Kind: kind, Message: message}
}
