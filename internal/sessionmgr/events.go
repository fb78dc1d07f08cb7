package sessionmgr

// EventKind distinguishes the lifecycle moments other parts of the
// server (SSE clients, a push-mode daemon's DaemonService subscriber)
// care about.
type EventKind string

const (
	// EventStarted fires when a session's daemon has no other session
	// already running, so the push-mode transport should dispatch it
	// immediately rather than waiting for the daemon to ask.
	EventStarted EventKind = "discovery_started"
	// EventUpdated fires on every progress update.
	EventUpdated EventKind = "discovery_updated"
	// EventTerminal fires once per session, when it reaches a terminal
	// phase (Complete, Failed, or Cancelled).
	EventTerminal EventKind = "discovery_terminal"
	// EventCancelRequested fires when a running session's cancellation
	// is requested but not yet confirmed terminal — this is the signal
	// a push-mode daemon's subscriber uses to call POST
	// /api/discovery/cancel; pull-mode daemons instead see the
	// cancellation flag on their next request-work poll.
	EventCancelRequested EventKind = "discovery_cancel_requested"
)

// Event is one lifecycle notification, broadcast to whoever is
// listening for this session's daemon.
type Event struct {
	Kind    EventKind
	Session SessionState
}

// Publisher broadcasts session lifecycle events. Grounded on the
// teacher's internal/hub.Hub: a non-blocking, best-effort fan-out (a
// slow or absent subscriber must never stall a session transition),
// generalized from raw SSE byte frames to a typed Event so both an SSE
// bridge and a push-mode dispatch subscriber can consume the same
// channel without re-parsing JSON.
type Publisher interface {
	Publish(Event)
}

// noopPublisher discards every event. Used when the manager is built
// without a push-mode/SSE bridge wired in (e.g. in tests, or a
// pull-mode-only deployment).
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
