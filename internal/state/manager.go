// Package state implements the State Manager (SM): the process-wide,
// mutex-guarded authority over SystemState. It validates every transition
// against a fixed graph, maintains a bounded history ring, applies the
// alcohol-detection override, and dispatches committed snapshots to
// subscribers outside its mutex with per-callback isolation. Generalized
// from the teacher's Redis-backed per-key state helper
// (wisefido-alarm/internal/consumer/state_manager.go and cache_manager.go)
// into an authoritative in-memory FSM — the Postgres mirroring now lives
// one layer up, in the repository subscriber cmd/ffe registers on this
// manager, and the Redis mirroring in internal/bus.Sink, which the
// evaluation loop calls after each tick's commit.
package state

import (
	"sync"
	"time"

	"fatigue-fusion-engine/internal/clock"
	"fatigue-fusion-engine/internal/ffeerrors"
	"fatigue-fusion-engine/internal/model"

	"go.uber.org/zap"
)

// transitionGraph encodes the admissible state-to-state edges. An
// entry's absence means the edge is rejected. Every state admits its own
// self-edge; SYSTEM_CRASHED admits nothing else.
var transitionGraph = map[model.SystemState]map[model.SystemState]bool{
	model.StateScanning: {
		model.StateScanning: true, model.StateIntruderDetected: true, model.StateMonitoringActive: true,
		model.StateAlcoholDetected: true, model.StateSystemError: true, model.StateSystemCrashed: true,
	},
	model.StateIntruderDetected: {
		model.StateScanning: true, model.StateIntruderDetected: true, model.StateMonitoringActive: true,
		model.StateAlcoholDetected: true, model.StateSystemError: true, model.StateSystemCrashed: true,
	},
	model.StateMonitoringActive: {
		model.StateScanning: true, model.StateIntruderDetected: true, model.StateMonitoringActive: true,
		model.StateAlertMild: true, model.StateAlertModerate: true, model.StateAlertSevere: true,
		model.StateAlcoholDetected: true, model.StateSystemError: true, model.StateSystemCrashed: true,
	},
	model.StateAlertMild: {
		model.StateScanning: true, model.StateMonitoringActive: true, model.StateAlertMild: true,
		model.StateAlertModerate: true, model.StateAlertSevere: true,
		model.StateAlcoholDetected: true, model.StateSystemError: true, model.StateSystemCrashed: true,
	},
	model.StateAlertModerate: {
		model.StateScanning: true, model.StateMonitoringActive: true, model.StateAlertMild: true,
		model.StateAlertModerate: true, model.StateAlertSevere: true,
		model.StateAlcoholDetected: true, model.StateSystemError: true, model.StateSystemCrashed: true,
	},
	model.StateAlertSevere: {
		model.StateScanning: true, model.StateMonitoringActive: true, model.StateAlertMild: true,
		model.StateAlertModerate: true, model.StateAlertSevere: true,
		model.StateAlcoholDetected: true, model.StateSystemError: true, model.StateSystemCrashed: true,
	},
	model.StateAlcoholDetected: {
		model.StateAlcoholDetected: true, model.StateSystemError: true, model.StateSystemCrashed: true,
	},
	model.StateSystemError: {
		model.StateScanning: true, model.StateMonitoringActive: true,
		model.StateAlcoholDetected: true, model.StateSystemError: true, model.StateSystemCrashed: true,
	},
	model.StateSystemCrashed: {
		model.StateSystemCrashed: true,
	},
}

var fatigueStates = map[model.SystemState]bool{
	model.StateAlertMild:     true,
	model.StateAlertModerate: true,
	model.StateAlertSevere:   true,
}

const defaultHistoryLimit = 1000
const defaultSubscriberTimeout = 2 * time.Second
const defaultAlcoholOverrideWindowS = 10.0

// Subscriber receives a copy of every committed snapshot, invoked outside
// the manager's mutex.
type Subscriber func(model.StateSnapshot)

// Config parameterizes the SM.
type Config struct {
	HistoryLimit           int
	SubscriberTimeout      time.Duration
	AlcoholOverrideWindowS float64
}

func DefaultConfig() Config {
	return Config{
		HistoryLimit:           defaultHistoryLimit,
		SubscriberTimeout:      defaultSubscriberTimeout,
		AlcoholOverrideWindowS: defaultAlcoholOverrideWindowS,
	}
}

// Manager is the State Manager. Safe for concurrent use: all mutating
// operations take mu; subscriber dispatch happens after release.
type Manager struct {
	cfg    Config
	oracle *clock.Oracle
	logger *zap.Logger

	mu          sync.Mutex
	current     model.StateSnapshot
	history     []model.StateSnapshot // insertion order, oldest first
	historyHead int                   // next write index, ring semantics
	historyFull bool
	sequence    uint64

	lastAlcoholEventS float64
	haveAlcoholEvent  bool

	subscribers []Subscriber
	subMu       sync.Mutex
}

func New(cfg Config, oracle *clock.Oracle, logger *zap.Logger) *Manager {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.SubscriberTimeout <= 0 {
		cfg.SubscriberTimeout = defaultSubscriberTimeout
	}
	if cfg.AlcoholOverrideWindowS <= 0 {
		cfg.AlcoholOverrideWindowS = defaultAlcoholOverrideWindowS
	}
	m := &Manager{
		cfg:    cfg,
		oracle: oracle,
		logger: logger,
		history: make([]model.StateSnapshot, cfg.HistoryLimit),
	}
	m.current = model.StateSnapshot{State: model.StateScanning, Service: "ffe", TimestampS: oracle.NowS()}
	return m
}

// GetCurrent returns a consistent copy of the authoritative snapshot.
func (m *Manager) GetCurrent() model.StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetState validates and commits a transition, dispatching to subscribers
// outside the mutex on success. Returns ffeerrors.ErrIllegalTransition
// without side effects if the edge is not admissible.
func (m *Manager) SetState(target model.SystemState, message, service string, pilotID *string, data map[string]any) (model.StateSnapshot, error) {
	m.mu.Lock()

	if target == m.current.State && message == m.current.Message {
		snap := m.current
		m.mu.Unlock()
		return snap, nil
	}

	if !transitionGraph[m.current.State][target] {
		m.mu.Unlock()
		return model.StateSnapshot{}, ffeerrors.ErrIllegalTransition
	}

	m.sequence++
	snap := model.StateSnapshot{
		State:      target,
		Message:    message,
		TimestampS: m.oracle.NowS(),
		Service:    service,
		Data:       data,
		Sequence:   m.sequence,
	}
	if pilotID != nil {
		snap.HasPilotID = true
		snap.PilotID = *pilotID
	}

	m.current = snap
	m.appendHistory(snap)
	m.mu.Unlock()

	m.dispatch(snap)
	return snap, nil
}

// NoteAlcoholEvent records the most recent alcohol-detection timestamp,
// consulted by SetFatigueStage to decide whether the override is active.
func (m *Manager) NoteAlcoholEvent(ev model.AlcoholEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAlcoholEventS = ev.DetectionTimeS
	m.haveAlcoholEvent = true
}

// alcoholOverrideActive reports whether the override window is currently
// fresh. Must be called with mu held.
func (m *Manager) alcoholOverrideActive() bool {
	if !m.haveAlcoholEvent {
		return false
	}
	return m.oracle.NowS()-m.lastAlcoholEventS < m.cfg.AlcoholOverrideWindowS
}

// SetFatigueStage is the SC→SM entry point: it maps a FatigueStage to the
// corresponding SystemState, applying the alcohol override and the
// SCANNING-ineligible-precursor rule (fatigue transitions are silent
// outside MONITORING_ACTIVE and the alert states themselves).
func (m *Manager) SetFatigueStage(fatigueStage model.FatigueStage, message, service string, pilotID *string, data map[string]any) (model.StateSnapshot, error) {
	m.mu.Lock()
	if m.alcoholOverrideActive() {
		m.mu.Unlock()
		return m.SetState(model.StateAlcoholDetected, "alcohol override active", service, pilotID, data)
	}
	current := m.current.State
	m.mu.Unlock()

	if current != model.StateMonitoringActive && !fatigueStates[current] {
		return m.GetCurrent(), nil
	}

	target := fatigueStageToState(fatigueStage)
	return m.SetState(target, message, service, pilotID, data)
}

func fatigueStageToState(s model.FatigueStage) model.SystemState {
	switch s {
	case model.StageMild:
		return model.StateAlertMild
	case model.StageModerate:
		return model.StateAlertModerate
	case model.StageSevere:
		return model.StateAlertSevere
	default:
		return model.StateMonitoringActive
	}
}

// History returns up to limit snapshots, newest first.
func (m *Manager) History(limit int) []model.StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.history)
	if !m.historyFull {
		n = m.historyHead
	}
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]model.StateSnapshot, n)
	cap := len(m.history)
	for i := 0; i < n; i++ {
		idx := (m.historyHead - 1 - i + cap) % cap
		out[i] = m.history[idx]
	}
	return out
}

// appendHistory writes into the ring. Must be called with mu held.
func (m *Manager) appendHistory(snap model.StateSnapshot) {
	cap := len(m.history)
	m.history[m.historyHead] = snap
	m.historyHead = (m.historyHead + 1) % cap
	if m.historyHead == 0 {
		m.historyFull = true
	}
}

// Subscribe registers a callback invoked on every future commit.
func (m *Manager) Subscribe(sub Subscriber) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscribers = append(m.subscribers, sub)
}

// dispatch invokes every subscriber with an isolated, time-bounded call —
// a panic or a hang in one callback is contained and logged, never
// propagated to the committer or to other subscribers, mirroring the
// per-callback isolation the teacher's
// evaluator.Evaluate applies across its four event evaluators (log and
// continue rather than abort the batch).
func (m *Manager) dispatch(snap model.StateSnapshot) {
	m.subMu.Lock()
	subs := append([]Subscriber(nil), m.subscribers...)
	m.subMu.Unlock()

	for _, sub := range subs {
		m.invokeWithTimeout(sub, snap)
	}
}

func (m *Manager) invokeWithTimeout(sub Subscriber, snap model.StateSnapshot) {
	done := make(chan struct{})
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("subscriber panicked", zap.Any("panic", r))
				}
			}
			close(done)
		}()
		sub(snap)
	}()

	select {
	case <-done:
	case <-time.After(m.cfg.SubscriberTimeout):
		if m.logger != nil {
			m.logger.Error("subscriber callback abandoned: exceeded timeout",
				zap.Duration("timeout", m.cfg.SubscriberTimeout),
				zap.String("state", string(snap.State)))
		}
	}
}
