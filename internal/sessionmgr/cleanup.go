package sessionmgr

import (
	"context"
	"time"

	"github.com/google/uuid"

	"netwalk/internal/logging"
	"netwalk/internal/session"
)

// stallReason is spec.md §8 scenario 5's exact error string, matched
// verbatim since it's a user-visible message, not an internal code.
const stallReason = "Session stalled - no updates received from daemon for more than 5 minutes"

// sweepInterval is how often Run checks for stalled/aged sessions.
// Not named by spec.md; chosen well under stallThreshold so a stall is
// caught promptly after crossing the 5-minute window.
const sweepInterval = 30 * time.Second

// Run drives the periodic stall-detection and cleanup sweeps until ctx
// is cancelled. maxAge bounds how long a terminal session's record is
// kept around as a defensive backstop (see cleanupOldSessions) before
// being purged — in steady state nothing accumulates there, since
// UpdateSession and the stall sweep both remove a session from the
// live map the moment it goes terminal.
func (m *Manager) Run(ctx context.Context, maxAge time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanupStalledSessions()
			m.cleanupOldSessions(maxAge)
		}
	}
}

// cleanupStalledSessions marks any non-terminal session idle for more
// than stallThreshold as Failed with stallReason, per spec.md §4.10 and
// §8 scenario 5. Grounded on original_source's cleanup_stalled_sessions:
// identify candidates under a read lock only, request cancellation
// through both transports with no locks held, then take the session
// out of the live map and history it under write locks. The outward
// signal (event + pull-mode flag) uses phase Cancelled — a "stop now"
// instruction to whichever daemon is holding it — which is distinct
// from the Failed verdict this sweep records as the session's own
// final state; the daemon is presumed unresponsive, so unlike a normal
// terminal update this sweep doesn't wait for it to report back.
func (m *Manager) cleanupStalledSessions() {
	now := time.Now()

	m.mu.RLock()
	var stalled []SessionState
	for _, s := range m.sessions {
		if s.Phase.Terminal() {
			continue
		}
		last, seen := m.lastUpdated[s.SessionID]
		switch {
		case seen:
			if now.Sub(last) > stallThreshold {
				stalled = append(stalled, s.clone())
			}
		case s.StartedAt != nil:
			if now.Sub(*s.StartedAt) > stallThreshold {
				stalled = append(stalled, s.clone())
			}
		}
	}
	m.mu.RUnlock()

	if len(stalled) == 0 {
		return
	}

	for _, s := range stalled {
		m.logger.Warn("requesting cancellation for stalled session",
			logging.F("session_id", s.SessionID), logging.F("daemon_id", s.DaemonID))

		cancelSignal := s.clone()
		cancelSignal.Phase = session.StateCancelled
		finishedAt := now
		cancelSignal.FinishedAt = &finishedAt
		m.publisher.Publish(Event{Kind: EventCancelRequested, Session: cancelSignal})

		m.cancelMu.Lock()
		m.pullCancels[s.DaemonID] = pullCancellation{pending: true, sessionID: s.SessionID}
		m.cancelMu.Unlock()
	}

	m.mu.Lock()
	var failedCount int
	for _, s := range stalled {
		if _, ok := m.sessions[s.SessionID]; !ok {
			continue // already resolved (e.g. a terminal update raced this sweep)
		}
		reason := stallReason
		s.Phase = session.StateFailed
		s.Error = &reason
		s.FinishedAt = &now
		delete(m.sessions, s.SessionID)
		delete(m.lastUpdated, s.SessionID)
		failedCount++

		m.cancelMu.Lock()
		if c, ok := m.pullCancels[s.DaemonID]; ok && c.sessionID == s.SessionID {
			delete(m.pullCancels, s.DaemonID)
		}
		m.cancelMu.Unlock()

		m.queueMu.Lock()
		queue := m.daemonQueues[s.DaemonID]
		filtered := queue[:0:0]
		for _, id := range queue {
			if id != s.SessionID {
				filtered = append(filtered, id)
			}
		}
		m.daemonQueues[s.DaemonID] = filtered
		m.queueMu.Unlock()

		terminal := s.clone()
		m.publisher.Publish(Event{Kind: EventTerminal, Session: terminal})
		if m.history != nil {
			if err := m.history.RecordSession(terminal); err != nil {
				m.logger.Error("failed to persist historical record for stalled session", err,
					logging.F("session_id", s.SessionID))
			}
		}
	}

	// Evict lastUpdated tombstones left behind by a normal terminal
	// UpdateSession, which deliberately never deletes its own entry (it
	// exists to absorb a redundant replay from a daemon that doesn't
	// know the server already processed it). Once a tombstone's session
	// is gone from the live map and it's older than stallThreshold, a
	// redundant replay is no longer a realistic risk, so it's safe to
	// drop — otherwise lastUpdated grows by one entry per completed
	// session for the life of the process. Grounded on
	// original_source's cleanup_stalled_sessions's identical
	// last_updated.retain(...) pass (service.rs ~1100-1106).
	for id, last := range m.lastUpdated {
		if _, live := m.sessions[id]; !live && now.Sub(last) >= stallThreshold {
			delete(m.lastUpdated, id)
		}
	}
	m.mu.Unlock()

	if failedCount > 0 {
		m.logger.Info("cleaned up stalled discovery sessions", logging.F("count", failedCount))
	}
}

// cleanupOldSessions purges terminal sessions older than maxAge from
// the live map and their daemon-queue entries, per spec.md §4.10's
// cleanup rule. In steady state UpdateSession and the stall sweep
// above already remove a session the moment it turns terminal, so this
// is a defensive backstop for anything left behind by a future code
// path rather than the primary removal mechanism — grounded on
// original_source carrying the identical belt-and-braces sweep
// alongside its own immediate-removal update_session.
func (m *Manager) cleanupOldSessions(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var toRemove []uuid.UUID
	for id, s := range m.sessions {
		if s.FinishedAt != nil && s.FinishedAt.Before(cutoff) {
			toRemove = append(toRemove, id)
		}
	}
	daemonOf := make(map[uuid.UUID]uuid.UUID, len(toRemove))
	for _, id := range toRemove {
		daemonOf[id] = m.sessions[id].DaemonID
		delete(m.sessions, id)
		delete(m.lastUpdated, id)
	}
	m.mu.Unlock()

	if len(toRemove) == 0 {
		return
	}

	m.queueMu.Lock()
	for _, id := range toRemove {
		daemonID := daemonOf[id]
		queue := m.daemonQueues[daemonID]
		filtered := queue[:0:0]
		for _, qid := range queue {
			if qid != id {
				filtered = append(filtered, qid)
			}
		}
		m.daemonQueues[daemonID] = filtered
	}
	m.queueMu.Unlock()

	m.logger.Debug("cleaned up old discovery sessions", logging.F("count", len(toRemove)))
}
