// Package session wires the per-frame coaching pipeline: smoother → metric
// extraction → calibration → temporal gates → repetition state machine →
// cue engine. One Session owns all per-session mutable state and has
// exactly one writer, the frame-processing call. Switching the video source
// discards the Session wholesale and constructs a fresh one; partially
// calibrated or gated state never leaks across sessions.
package session

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/rep.coach/internal/calibrate"
	"github.com/banshee-data/rep.coach/internal/coach"
	"github.com/banshee-data/rep.coach/internal/config"
	"github.com/banshee-data/rep.coach/internal/gate"
	"github.com/banshee-data/rep.coach/internal/metrics"
	"github.com/banshee-data/rep.coach/internal/pose"
	"github.com/banshee-data/rep.coach/internal/repfsm"
	"github.com/banshee-data/rep.coach/internal/smoother"
)

// Snapshot is the per-frame numeric output for rendering and API
// collaborators. It is a value copy; callers never alias session state.
type Snapshot struct {
	SessionID     string       `json:"session_id"`
	KneeAngleDeg  float64      `json:"knee_angle_deg"`
	TrunkAngleDeg float64      `json:"trunk_angle_deg"`
	DepthFraction float64      `json:"depth"`
	RepCount      int          `json:"rep_count"`
	FSMState      repfsm.State `json:"state"`
	Calibrated    bool         `json:"calibrated"`
	ProfileOK     bool         `json:"profile_ok"`
	// Calibration progress, for the awaiting-calibration status display.
	CalibrationHave int `json:"calibration_have"`
	CalibrationWant int `json:"calibration_want"`
}

// RepEvent describes one counted repetition, for persistence.
type RepEvent struct {
	SessionID  string
	RepNumber  int
	Depth      float64 // deepest driver value seen during the cycle
	Timestamp  float64 // pipeline timestamp (monotonic seconds)
	RecordedAt time.Time
}

// Result is everything one frame produced.
type Result struct {
	Snapshot Snapshot
	Cue      *coach.Cue
	Rep      *RepEvent
}

// Session owns the full pipeline state for one camera/subject pairing.
type Session struct {
	id  string
	cfg *config.TuningConfig

	smoother   *smoother.Smoother
	extractor  *metrics.Extractor
	calibrator *calibrate.Tracker
	repGate    *gate.Gate
	coachGate  *gate.Gate
	fsm        *repfsm.Machine
	turnaround *repfsm.Turnaround
	engine     *coach.Engine

	// Strict-gate dwell tracking: the coaching verdict only counts after
	// the strict gate has held for dwellFrames consecutive frames.
	dwellFrames    int
	dwellRun       int
	depthApproved  bool // latched for the current cycle
	deepestInCycle float64

	// Adaptive coaching threshold (optional policy): adjusted once to the
	// median of the first two depth-qualified bottoms, clamped.
	coachingThreshold float64
	adaptiveEnabled   bool
	adaptiveApplied   bool
	adaptiveSamples   []float64

	evaluatedThisDescent bool
	startedAt            time.Time
}

// New constructs a session from tuning configuration. The returned session
// is in the awaiting-calibration state.
func New(cfg *config.TuningConfig) *Session {
	fsmCfg := repfsm.ConfigFromTuning(cfg)
	return &Session{
		id:                uuid.NewString(),
		cfg:               cfg,
		smoother:          smoother.New(smoother.ConfigFromTuning(cfg)),
		extractor:         metrics.NewExtractor(metrics.ConfigFromTuning(cfg)),
		calibrator:        calibrate.NewTracker(calibrate.ConfigFromTuning(cfg)),
		repGate:           gate.New(cfg.GetRepGateWindow(), cfg.GetRepGateNeed()),
		coachGate:         gate.New(cfg.GetCoachingGateWindow(), cfg.GetCoachingGateNeed()),
		fsm:               repfsm.NewMachine(fsmCfg),
		turnaround:        repfsm.NewTurnaround(fsmCfg),
		engine:            coach.NewEngine(coach.ConfigFromTuning(cfg)),
		dwellFrames:       cfg.GetCoachingDwellFrames(),
		coachingThreshold: cfg.GetCoachingDepthThreshold(),
		adaptiveEnabled:   cfg.GetAdaptiveCoachingEnabled(),
		startedAt:         time.Now(),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// StartedAt returns the session construction time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Baseline returns the calibrated baselines (zero until calibrated).
func (s *Session) Baseline() metrics.Baseline { return s.calibrator.Baseline() }

// snapshot assembles the externally visible state for one frame.
func (s *Session) snapshot(m metrics.Snapshot) Snapshot {
	have, want := s.calibrator.Progress()
	return Snapshot{
		SessionID:       s.id,
		KneeAngleDeg:    m.KneeAngleDeg,
		TrunkAngleDeg:   m.TrunkAngleDeg,
		DepthFraction:   m.DepthFraction,
		RepCount:        s.fsm.RepCount(),
		FSMState:        s.fsm.State(),
		Calibrated:      s.calibrator.Calibrated(),
		ProfileOK:       m.ProfileOK,
		CalibrationHave: have,
		CalibrationWant: want,
	}
}

// ProcessFrame advances the pipeline by one frame. An empty or low-quality
// frame degrades gracefully: smoothing and metrics still update, but
// gating, state machine, and cue evaluation are skipped for the frame.
// There are no hard failures in the core.
func (s *Session) ProcessFrame(frame pose.Frame) Result {
	if !frame.Valid() {
		// Detector unavailable or no person: skip entirely.
		return Result{Snapshot: s.snapshot(metrics.Snapshot{})}
	}

	smoothed := s.smoother.Apply(frame.Keypoints, frame.Timestamp)
	m := s.extractor.Extract(smoothed, s.calibrator.Baseline())

	// Calibration phase: learn the baselines, suppress depth/FSM/cues.
	if !s.calibrator.Calibrated() {
		s.calibrator.Offer(m.HipY, m.KneeAngleDeg, m.TrunkAngleDeg, m.ScaleSpan, m.ProfileOK)
		return Result{Snapshot: s.snapshot(m)}
	}

	// Low overall visibility: keep rendering, skip decisions this frame.
	if !m.ProfileOK {
		return Result{Snapshot: s.snapshot(m)}
	}

	if m.DepthFraction > s.deepestInCycle {
		s.deepestInCycle = m.DepthFraction
	}

	repDeep := s.repGate.Push(m.DepthFraction >= s.cfg.GetRepDepthThreshold())

	// Strict gate with consecutive-frame dwell: one flickering frame can
	// not approve the depth for coaching.
	if s.coachGate.Push(m.DepthFraction >= s.coachingThreshold) {
		s.dwellRun++
		if s.dwellRun >= s.dwellFrames {
			s.depthApproved = true
		}
	} else {
		s.dwellRun = 0
	}

	res := Result{}
	for _, ev := range s.fsm.Advance(m.DepthFraction, repDeep, frame.Timestamp) {
		switch ev {
		case repfsm.EventBottom:
			res.Cue = s.evaluateCue(m)
		case repfsm.EventRepCounted:
			rep := &RepEvent{
				SessionID:  s.id,
				RepNumber:  s.fsm.RepCount(),
				Depth:      s.deepestInCycle,
				Timestamp:  frame.Timestamp,
				RecordedAt: time.Now(),
			}
			res.Rep = rep
			s.observeAdaptive(rep.Depth)
		case repfsm.EventCycleStart:
			s.repGate.Reset()
			s.coachGate.Reset()
			s.engine.ResetRep()
			s.dwellRun = 0
			s.depthApproved = false
			s.deepestInCycle = 0
			s.evaluatedThisDescent = false
		}
	}

	// Turnaround coaching covers attempts too shallow for the FSM to
	// reach bottom: the user still hears why the rep did not count.
	if s.turnaround.Observe(m.DepthFraction, frame.Timestamp) && res.Cue == nil && !s.evaluatedThisDescent {
		res.Cue = s.evaluateCue(m)
	}

	res.Snapshot = s.snapshot(m)
	return res
}

// evaluateCue runs the rule engine once per descent.
func (s *Session) evaluateCue(m metrics.Snapshot) *coach.Cue {
	s.evaluatedThisDescent = true
	delta := m.TrunkAngleDeg - s.calibrator.Baseline().TrunkBaselineDeg
	if delta < 0 {
		delta = 0
	}
	return s.engine.Evaluate(coach.Input{
		DepthAchieved: s.depthApproved,
		TrunkDeltaDeg: delta,
	})
}

// observeAdaptive records a depth-qualified bottom for the optional
// adaptive coaching strategy and applies the one-time adjustment after the
// second sample.
func (s *Session) observeAdaptive(depth float64) {
	if !s.adaptiveEnabled || s.adaptiveApplied {
		return
	}
	s.adaptiveSamples = append(s.adaptiveSamples, depth)
	if len(s.adaptiveSamples) < 2 {
		return
	}
	sorted := append([]float64(nil), s.adaptiveSamples...)
	sort.Float64s(sorted)
	med := (sorted[0] + sorted[1]) / 2

	if min := s.cfg.GetAdaptiveCoachingMin(); med < min {
		med = min
	}
	if max := s.cfg.GetAdaptiveCoachingMax(); med > max {
		med = max
	}
	s.coachingThreshold = med
	s.adaptiveApplied = true
}

// CoachingThreshold returns the active strict depth threshold (possibly
// adjusted by the adaptive strategy).
func (s *Session) CoachingThreshold() float64 { return s.coachingThreshold }
