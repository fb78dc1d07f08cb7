// Package sessionmgr implements the Session Manager (spec.md §4.10):
// the server-side counterpart to the Daemon Runtime. It holds the
// live session-state map, per-daemon work queues, and pull-mode
// cancellation flags; accepts progress/terminal updates; schedules
// follow-up sessions; and runs the periodic stall-detection and
// cleanup sweeps. Its locking discipline (narrow write-locks held only
// around the transition being made, collect-then-act across two
// passes for sweeps) is grounded directly on original_source's
// DiscoveryService in backend/src/server/discovery/service.rs,
// translated from three separate tokio RwLocks to three separate
// sync.RWMutex-guarded maps.
package sessionmgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"netwalk/internal/logging"
	"netwalk/internal/session"
)

// stallThreshold is spec.md §4.10/§8 scenario 5's idle window: a
// non-terminal session with no update for this long is declared
// stalled.
const stallThreshold = 5 * time.Minute

// HistoryRecorder persists a terminal session as a historical
// discovery record, per spec.md §4.10's "persist a historical
// discovery record" transition. Implemented by internal/historystore;
// accepted here as a narrow interface so this package never imports a
// storage driver directly.
type HistoryRecorder interface {
	RecordSession(state SessionState) error
}

type pullCancellation struct {
	pending   bool
	sessionID uuid.UUID
}

// Manager is the Session Manager's single instance, shared by the
// HTTP handlers that daemons call into.
type Manager struct {
	logger    *logging.Logger
	history   HistoryRecorder
	publisher Publisher

	mu           sync.RWMutex
	sessions     map[uuid.UUID]SessionState
	lastUpdated  map[uuid.UUID]time.Time // tombstone: suppresses redundant terminal replays

	queueMu      sync.RWMutex
	daemonQueues map[uuid.UUID][]uuid.UUID

	cancelMu    sync.RWMutex
	pullCancels map[uuid.UUID]pullCancellation
}

// New returns an empty Manager. A nil history or publisher is replaced
// with a no-op implementation so callers that don't need one (tests,
// a pull-mode-only deployment without an SSE bridge) don't have to
// provide a stub.
func New(history HistoryRecorder, publisher Publisher, logger *logging.Logger) *Manager {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &Manager{
		logger:       logger,
		history:      history,
		publisher:    publisher,
		sessions:     make(map[uuid.UUID]SessionState),
		lastUpdated:  make(map[uuid.UUID]time.Time),
		daemonQueues: make(map[uuid.UUID][]uuid.UUID),
		pullCancels:  make(map[uuid.UUID]pullCancellation),
	}
}

// GetSession returns a copy of one session's current state.
func (m *Manager) GetSession(id uuid.UUID) (SessionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return SessionState{}, false
	}
	return s.clone(), true
}

// GetAllSessions returns every live session belonging to one of
// networkIDs.
func (m *Manager) GetAllSessions(networkIDs []uuid.UUID) []SessionState {
	want := make(map[uuid.UUID]struct{}, len(networkIDs))
	for _, id := range networkIDs {
		want[id] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionState, 0, len(m.sessions))
	for _, s := range m.sessions {
		if _, ok := want[s.NetworkID]; ok {
			out = append(out, s.clone())
		}
	}
	return out
}

// PendingSessionsForDaemon returns daemonID's queued Pending sessions,
// in queue order. Once a session is dispatched it transitions to
// Starting and stops appearing here — mirrors get_sessions_for_daemon's
// "only return Pending sessions" filter.
func (m *Manager) PendingSessionsForDaemon(daemonID uuid.UUID) []SessionState {
	m.queueMu.RLock()
	ids := append([]uuid.UUID(nil), m.daemonQueues[daemonID]...)
	m.queueMu.RUnlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionState, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok && s.Phase == session.StatePending {
			out = append(out, s.clone())
		}
	}
	return out
}

// HasActiveSession reports whether daemonID has a session that is
// neither Pending nor terminal — i.e. one actually running. Used to
// decide whether a newly queued session should be dispatched right
// away or left queued behind the current one.
func (m *Manager) HasActiveSession(daemonID uuid.UUID) bool {
	m.queueMu.RLock()
	ids := append([]uuid.UUID(nil), m.daemonQueues[daemonID]...)
	m.queueMu.RUnlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok && !s.Phase.Terminal() && s.Phase != session.StatePending {
			return true
		}
	}
	return false
}

// StartSession enqueues a new session for daemonID, per spec.md
// §4.10's dispatch half of the transitions rule. If the daemon has no
// other session running, an EventStarted is published immediately so a
// push-mode subscriber can dispatch it without waiting on a poll;
// otherwise it waits queued until the running session finishes.
func (m *Manager) StartSession(daemonID, networkID uuid.UUID, dt DiscoveryType) SessionState {
	sessionID := uuid.New()
	state := SessionState{
		SessionID:     sessionID,
		DaemonID:      daemonID,
		NetworkID:     networkID,
		Phase:         session.StatePending,
		DiscoveryType: dt,
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	m.mu.Unlock()

	daemonBusy := m.HasActiveSession(daemonID)

	m.queueMu.Lock()
	m.daemonQueues[daemonID] = append(m.daemonQueues[daemonID], sessionID)
	m.queueMu.Unlock()

	if !daemonBusy {
		m.publisher.Publish(Event{Kind: EventStarted, Session: state.clone()})
	}
	return state.clone()
}

// TransitionToStarting promotes a Pending session to Starting the
// moment it's actually dispatched to a daemon (pull-mode request-work
// response, push-mode /api/discovery/initiate call). This is what
// prevents two concurrent polls from both claiming the same session:
// the second poll's PendingSessionsForDaemon call no longer sees it.
func (m *Manager) TransitionToStarting(sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Phase != session.StatePending {
		return
	}
	s.Phase = session.StateStarting
	m.sessions[sessionID] = s
}

// PopPullCancellation returns and clears any pending pull-mode
// cancellation for daemonID, per spec.md §4.9's "daemon's next poll
// clears the cancellation flag." A pull-mode request-work handler
// calls this on every poll.
func (m *Manager) PopPullCancellation(daemonID uuid.UUID) (sessionID uuid.UUID, pending bool) {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	c, ok := m.pullCancels[daemonID]
	if !ok || !c.pending {
		return uuid.Nil, false
	}
	delete(m.pullCancels, daemonID)
	return c.sessionID, true
}

// UpdateSession applies a daemon-reported status update, per spec.md
// §4.10's transitions rule: auto-create the session if the server
// restarted mid-discovery; otherwise apply the update; on terminal,
// publish the terminal event, persist history, and dispatch the next
// queued session for that daemon.
//
// A terminal update for a session id that's already gone (removed by
// a prior terminal update, per the immediate-removal behavior below)
// is detected via the lastUpdated tombstone and dropped rather than
// silently re-creating a second, stale terminal record — spec.md §8
// property 4's "terminal idempotence."
func (m *Manager) UpdateSession(sessionID, daemonID, networkID uuid.UUID, update StatusUpdate) error {
	m.mu.Lock()

	_, alreadySeen := m.lastUpdated[sessionID]
	m.lastUpdated[sessionID] = time.Now()

	s, exists := m.sessions[sessionID]
	if !exists {
		if update.Phase.Terminal() && alreadySeen {
			m.mu.Unlock()
			m.logger.Debug("ignoring redundant terminal update",
				logging.F("session_id", sessionID))
			return nil
		}
		now := time.Now()
		s = SessionState{
			SessionID: sessionID,
			DaemonID:  daemonID,
			NetworkID: networkID,
			Phase:     session.StatePending,
			StartedAt: &now,
		}
		m.queueMu.Lock()
		m.daemonQueues[daemonID] = append(m.daemonQueues[daemonID], sessionID)
		m.queueMu.Unlock()
		m.logger.Info("auto-created session from daemon update",
			logging.F("session_id", sessionID), logging.F("daemon_id", daemonID))
	}

	s.Phase = update.Phase
	s.Progress = update.Progress
	s.Error = update.Error
	if s.StartedAt == nil && update.Phase != session.StatePending {
		now := time.Now()
		s.StartedAt = &now
	}
	m.sessions[sessionID] = s

	m.publisher.Publish(Event{Kind: EventUpdated, Session: s.clone()})

	if !s.Phase.Terminal() {
		m.mu.Unlock()
		return nil
	}

	now := time.Now()
	s.FinishedAt = &now
	m.sessions[sessionID] = s
	terminal := s.clone()

	// Clear a pull-cancellation flag against a session that finished
	// on its own before the cancel ever reached the daemon.
	m.cancelMu.Lock()
	if c, ok := m.pullCancels[daemonID]; ok && c.sessionID == sessionID {
		delete(m.pullCancels, daemonID)
	}
	m.cancelMu.Unlock()

	// Remove the completed session immediately: the tombstone in
	// lastUpdated (left in place) is what absorbs a redundant replay
	// from a daemon that doesn't know the server already processed it.
	delete(m.sessions, sessionID)

	nextID, nextExists := m.nextQueuedSession(daemonID, sessionID)
	m.mu.Unlock()

	m.publisher.Publish(Event{Kind: EventTerminal, Session: terminal})

	if m.history != nil {
		if err := m.history.RecordSession(terminal); err != nil {
			m.logger.Error("failed to persist historical discovery record", err,
				logging.F("session_id", sessionID))
		}
	}

	if nextExists {
		m.mu.Lock()
		if next, ok := m.sessions[nextID]; ok {
			next.Phase = session.StatePending
			m.sessions[nextID] = next
			m.mu.Unlock()
			m.publisher.Publish(Event{Kind: EventStarted, Session: next.clone()})
		} else {
			m.mu.Unlock()
		}
	}

	return nil
}

// nextQueuedSession removes sessionID from daemonID's queue and
// reports the id of whatever is now at the front, if any. Caller must
// hold m.mu (for session-map access the caller does afterward); the
// queue lock is acquired internally.
func (m *Manager) nextQueuedSession(daemonID, sessionID uuid.UUID) (uuid.UUID, bool) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	queue := m.daemonQueues[daemonID]
	filtered := queue[:0:0]
	for _, id := range queue {
		if id != sessionID {
			filtered = append(filtered, id)
		}
	}
	m.daemonQueues[daemonID] = filtered
	if len(filtered) == 0 {
		return uuid.Nil, false
	}
	return filtered[0], true
}

// CancelSession requests cancellation of sessionID, branching on its
// current phase per the source's cancel_session: Pending sessions are
// simply dequeued; Starting sessions reject the request (retry
// shortly, the dispatch race would otherwise be ambiguous); running
// sessions get a cancellation delivered through both transports at
// once (an event for push-mode, a flag for the next pull-mode poll);
// terminal sessions are a no-op.
func (m *Manager) CancelSession(sessionID uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session %s not found", sessionID)
	}

	switch s.Phase {
	case session.StatePending:
		delete(m.sessions, sessionID)
		m.mu.Unlock()

		m.queueMu.Lock()
		queue := m.daemonQueues[s.DaemonID]
		filtered := queue[:0:0]
		for _, id := range queue {
			if id != sessionID {
				filtered = append(filtered, id)
			}
		}
		m.daemonQueues[s.DaemonID] = filtered
		m.queueMu.Unlock()

		cancelled := s.clone()
		cancelled.Phase = session.StateCancelled
		now := time.Now()
		cancelled.FinishedAt = &now
		m.publisher.Publish(Event{Kind: EventTerminal, Session: cancelled})
		m.logger.Info("cancelled pending session from queue", logging.F("session_id", sessionID))
		return nil

	case session.StateStarting:
		m.mu.Unlock()
		return fmt.Errorf("session %s is starting on daemon, try again shortly", sessionID)

	case session.StateComplete, session.StateFailed, session.StateCancelled:
		m.mu.Unlock()
		m.logger.Info("session already terminal, nothing to cancel", logging.F("session_id", sessionID))
		return nil

	default: // Started, Scanning
		m.mu.Unlock()

		m.cancelMu.Lock()
		m.pullCancels[s.DaemonID] = pullCancellation{pending: true, sessionID: sessionID}
		m.cancelMu.Unlock()

		m.publisher.Publish(Event{Kind: EventCancelRequested, Session: s.clone()})
		m.logger.Info("discovery cancellation requested",
			logging.F("daemon_id", s.DaemonID), logging.F("session_id", sessionID))
		return nil
	}
}

// ClearSessionsForDaemon drops all in-memory state for daemonID.
// Intended for tests that need a clean slate between phases, mirroring
// the source's own test-only clear_sessions_for_daemon.
func (m *Manager) ClearSessionsForDaemon(daemonID uuid.UUID) {
	m.queueMu.Lock()
	ids := m.daemonQueues[daemonID]
	delete(m.daemonQueues, daemonID)
	m.queueMu.Unlock()

	m.mu.Lock()
	for _, id := range ids {
		delete(m.sessions, id)
		delete(m.lastUpdated, id)
	}
	m.mu.Unlock()

	m.cancelMu.Lock()
	delete(m.pullCancels, daemonID)
	m.cancelMu.Unlock()
}
