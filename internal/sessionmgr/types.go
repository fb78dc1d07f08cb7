package sessionmgr

import (
	"time"

	"github.com/google/uuid"

	"netwalk/internal/session"
)

// DiscoveryKind tags which variant of discovery work a session runs,
// per spec.md §6's "kind ∈ {Network, Docker, SelfReport}".
type DiscoveryKind string

const (
	KindNetwork    DiscoveryKind = "network"
	KindDocker     DiscoveryKind = "docker"
	KindSelfReport DiscoveryKind = "self_report"
)

// String names the discovery kind for display, matching the source's
// discovery_type.to_string() used as a historical record's default name.
func (k DiscoveryKind) String() string {
	switch k {
	case KindNetwork:
		return "Network Discovery"
	case KindDocker:
		return "Docker Discovery"
	case KindSelfReport:
		return "Self-Report"
	default:
		return string(k)
	}
}

// DiscoveryType carries the parameters for whichever Kind is set. Only
// the fields matching Kind are meaningful; this mirrors the source's
// tagged-union DiscoveryType without a Go sum type, per spec.md §9's
// "use a tagged variant... dispatch in one place" design note.
type DiscoveryType struct {
	Kind DiscoveryKind `json:"kind"`

	// Network fields.
	SubnetIDs            []uuid.UUID `json:"subnet_ids,omitempty"`
	HostNamingFallback   bool        `json:"host_naming_fallback,omitempty"`
	ProbeRawSocketPorts  bool        `json:"probe_raw_socket_ports,omitempty"`

	// Docker fields.
	HostID uuid.UUID `json:"host_id,omitempty"`
}

// SessionState is one session's server-side record, the Go analogue of
// the source's DiscoveryUpdatePayload. It is both the live in-memory
// state and (once terminal) the payload persisted as a historical
// record.
type SessionState struct {
	SessionID     uuid.UUID        `json:"session_id"`
	DaemonID      uuid.UUID        `json:"daemon_id"`
	NetworkID     uuid.UUID        `json:"network_id"`
	Phase         session.State    `json:"phase"`
	Progress      int              `json:"progress"`
	Error         *string          `json:"error,omitempty"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
	DiscoveryType DiscoveryType    `json:"discovery_type"`
}

// clone returns a value copy safe to hand to a caller outside the
// manager's lock (Error/StartedAt/FinishedAt are pointers, so a plain
// struct copy would otherwise still alias the stored record).
func (s SessionState) clone() SessionState {
	out := s
	if s.Error != nil {
		msg := *s.Error
		out.Error = &msg
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	if s.DiscoveryType.SubnetIDs != nil {
		out.DiscoveryType.SubnetIDs = append([]uuid.UUID(nil), s.DiscoveryType.SubnetIDs...)
	}
	return out
}

// StatusUpdate is what a daemon reports on every progress/terminal
// call, per spec.md §6's POST .../sessions/{id}/update body.
type StatusUpdate struct {
	Phase    session.State `json:"phase"`
	Progress int           `json:"progress"`
	Error    *string       `json:"error,omitempty"`
}
