package sessionmgr

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"netwalk/internal/config"
)

// DaemonRecord is the server's view of one registered daemon. Full
// daemon account/ownership CRUD (org assignment, API-key issuance) is
// explicitly out of scope per spec.md §1 ("the web API handlers and
// persistence layer for CRUD entities"); this is the narrowest slice
// of that concern the Session Manager itself needs in order to answer
// registration, startup, and request-work calls.
type DaemonRecord struct {
	DaemonID     uuid.UUID
	NetworkID    uuid.UUID
	Name         string
	Mode         config.Mode
	Version      string
	LastSeen     time.Time
}

// Registry is an in-memory daemon_id -> DaemonRecord table guarding
// the register/startup/request-work endpoints.
type Registry struct {
	mu      sync.RWMutex
	daemons map[uuid.UUID]DaemonRecord
}

func NewRegistry() *Registry {
	return &Registry{daemons: make(map[uuid.UUID]DaemonRecord)}
}

// Register creates or re-registers a daemon. A zero DaemonID in req
// means "assign a fresh one" (a push-mode daemon has no existing id to
// present at its first registration call); a non-zero DaemonID
// re-registers in place, refreshing its record.
func (r *Registry) Register(req DaemonRecord) DaemonRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.DaemonID == uuid.Nil {
		req.DaemonID = uuid.New()
	}
	req.LastSeen = time.Now()
	r.daemons[req.DaemonID] = req
	return req
}

// Touch updates LastSeen for daemonID, recording the startup/heartbeat
// call that triggered it.
func (r *Registry) Touch(daemonID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.daemons[daemonID]; ok {
		rec.LastSeen = time.Now()
		r.daemons[daemonID] = rec
	}
}

func (r *Registry) Get(daemonID uuid.UUID) (DaemonRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.daemons[daemonID]
	return rec, ok
}
