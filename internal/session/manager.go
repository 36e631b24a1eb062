package session

import (
	"sync"

	"github.com/banshee-data/rep.coach/internal/config"
	"github.com/banshee-data/rep.coach/internal/monitoring"
)

// Manager holds the single active session and the latest snapshot so HTTP
// handlers can read them without touching pipeline state. The frame loop is
// the only writer of pipeline state; the manager only swaps whole sessions
// and copies snapshots under its own lock.
type Manager struct {
	mu      sync.RWMutex
	cfg     *config.TuningConfig
	current *Session
	latest  Snapshot
	lastCue *Cue
}

// Cue mirrors coach.Cue for API consumers with the rep context attached.
type Cue struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Rep     int    `json:"rep"`
}

// NewManager creates a manager with a fresh session.
func NewManager(cfg *config.TuningConfig) *Manager {
	return &Manager{
		cfg:     cfg,
		current: New(cfg),
	}
}

// Current returns the active session. Only the frame loop may call
// ProcessFrame on it.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Config returns the tuning configuration that new sessions will use.
func (m *Manager) Config() *config.TuningConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// SetConfig swaps the tuning configuration for future sessions. The active
// session keeps the config it was constructed with; runtime updates take
// effect on the next Reset.
func (m *Manager) SetConfig(cfg *config.TuningConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Reset discards the active session and constructs a fresh one. Used when
// the camera or subject changes: calibration, gates, and FSM state must
// never leak across sessions.
func (m *Manager) Reset() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.current.ID()
	m.current = New(m.cfg)
	m.latest = Snapshot{}
	m.lastCue = nil
	monitoring.Logf("session reset: %s -> %s", old, m.current.ID())
	return m.current
}

// Publish stores the latest result for API readers.
func (m *Manager) Publish(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = res.Snapshot
	if res.Cue != nil {
		m.lastCue = &Cue{
			Kind:    string(res.Cue.Kind),
			Message: res.Cue.Message,
			Rep:     res.Snapshot.RepCount,
		}
	}
}

// Latest returns a copy of the most recent snapshot.
func (m *Manager) Latest() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// LastCue returns the most recently emitted cue, or nil.
func (m *Manager) LastCue() *Cue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastCue == nil {
		return nil
	}
	c := *m.lastCue
	return &c
}
