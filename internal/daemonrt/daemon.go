// Package daemonrt implements the Daemon Runtime (spec.md §4.9): the
// process that registers with the server, exchanges work over pull or
// push transport, and drives the Discovery Session Runner for whatever
// session it's assigned. Its registration/retry/standby handling
// continues the teacher's own "detect environment, announce self,
// report progress" bootstrap shape in
// internal/adapter/bootstrap.go, generalized from a one-shot adapter
// into a long-lived runtime loop.
package daemonrt

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"netwalk/internal/buffer"
	"netwalk/internal/config"
	"netwalk/internal/logging"
	"netwalk/internal/once"
	"netwalk/internal/session"
	"netwalk/internal/transport"
)

// version is the daemon's reported build version, announced on every
// registration and startup call per spec.md §4.9.
const version = "0.1.0"

// healthLogInterval is how many heartbeats pass between periodic
// health-summary log lines in pull mode, grounded on original_source's
// HEALTH_LOG_INTERVAL (10 heartbeats at a 30s poll interval, ~5
// minutes).
const healthLogInterval = 10

// healthLogPeriod is the equivalent cadence for push mode, which has
// no poll-count of its own to count heartbeats against.
const healthLogPeriod = 5 * time.Minute

// Registration is the payload sent to POST /api/daemons/register,
// per spec.md §4.9/§6.
type Registration struct {
	DaemonID     uuid.UUID    `json:"daemon_id,omitempty"`
	NetworkID    uuid.UUID    `json:"network_id"`
	Capabilities Capabilities `json:"capabilities"`
	Mode         config.Mode  `json:"mode"`
	Name         string       `json:"name"`
	Version      string       `json:"version"`
}

// Capabilities describes what this daemon can do, per spec.md §4.9.
type Capabilities struct {
	HasDockerSocket   bool `json:"has_docker_socket"`
	InterfacedSubnets bool `json:"interfaced_subnets"`
}

// ServerCapabilities is what the server reports back on registration
// and startup: its own version info and any deprecation notices.
type ServerCapabilities struct {
	LatestVersion    string   `json:"latest_version"`
	MinDaemonVersion string   `json:"min_supported_daemon_version"`
	Deprecations     []string `json:"deprecation_warnings,omitempty"`
}

// RegistrationResponse is the server's reply to registration/startup.
type RegistrationResponse struct {
	DaemonID     uuid.UUID          `json:"daemon_id"`
	Capabilities ServerCapabilities `json:"server_capabilities"`
}

// StatusPayload is sent on every heartbeat/request-work poll.
type StatusPayload struct {
	Name         string       `json:"name"`
	Mode         config.Mode  `json:"mode"`
	Version      string       `json:"version"`
	Capabilities Capabilities `json:"capabilities"`
}

// WorkAssignment is the server's reply to a request-work poll: an
// optional session to run, plus whether the daemon's current session
// (if any) should be cancelled first.
type WorkAssignment struct {
	Session       *AssignedSession `json:"session,omitempty"`
	CancelCurrent bool             `json:"cancel_current"`
}

// AssignedSession is one session's work order, per spec.md §6's
// Discovery type.
type AssignedSession struct {
	SessionID uuid.UUID       `json:"session_id"`
	Kind      string          `json:"kind"`
	Request   session.Request `json:"request"`
}

// activeSession tracks the one session this daemon may run at a time.
type activeSession struct {
	id     uuid.UUID
	cancel context.CancelFunc
}

// Daemon drives the registration → work-loop → session lifecycle for
// one running daemon process.
type Daemon struct {
	cfg     *config.Config
	client  *transport.Client
	buf     *buffer.Buffer
	runner  *session.Runner
	logger  *logging.Logger
	network uuid.UUID

	// idSlot is bound once registration/first-contact assigns this
	// daemon its authoritative id. Push mode's HTTP handlers and the
	// pull loop's logging both read it; both may start racing the
	// assignment, so a blocking set-once slot (rather than a plain
	// field a reader might observe half-written) is the safe handoff.
	idSlot *once.Slot[uuid.UUID]

	mu     sync.Mutex
	active *activeSession

	httpServer *http.Server

	// startedAt and lastActivity feed the periodic health-summary log
	// line (FormatUptime/SinceHuman). lastActivity is touched from both
	// the pull loop and push mode's concurrent HTTP handlers, so it's
	// an atomic rather than a field under mu (a different lock, guarding
	// the active-session record).
	startedAt    time.Time
	lastActivity atomic.Int64
}

// New returns a Daemon ready to register and run. runner must already
// be wired with this Daemon as its ProgressReporter (see
// cmd/daemon/main.go) — Go's interface satisfaction needs no special
// construction order here since ReportProgress is only ever invoked
// after a session starts, well after both objects exist.
func New(cfg *config.Config, client *transport.Client, buf *buffer.Buffer, runner *session.Runner, logger *logging.Logger) *Daemon {
	d := &Daemon{
		cfg:       cfg,
		client:    client,
		buf:       buf,
		runner:    runner,
		logger:    logger,
		network:   cfg.NetworkID,
		idSlot:    once.NewSlot[uuid.UUID](),
		startedAt: time.Now(),
	}
	d.touchActivity()
	return d
}

// touchActivity records that the daemon just heard from (or reached)
// the server, feeding the health summary's "last activity" field.
func (d *Daemon) touchActivity() {
	d.lastActivity.Store(time.Now().UnixNano())
}

// logHealthSummary emits one "Health: OK" line in the teacher's style,
// grounded on original_source's periodic health summary
// (daemon/runtime/service.rs): uptime, poll count, and whether a
// discovery session is currently running. This is FormatUptime's and
// SinceHuman's one call site.
func (d *Daemon) logHealthSummary(pollCount int64) {
	_, discoveryActive := d.activeSessionID()
	state := "idle"
	if discoveryActive {
		state = "active"
	}
	d.logger.Info("health summary",
		logging.F("uptime", logging.FormatUptime(time.Since(d.startedAt))),
		logging.F("polls", pollCount),
		logging.F("discovery", state),
		logging.F("last_activity", logging.SinceHuman(time.Unix(0, d.lastActivity.Load()))),
	)
}

// capabilities reports what this daemon can do, derived from config.
func (d *Daemon) capabilities() Capabilities {
	return Capabilities{
		HasDockerSocket:   d.cfg.Docker != nil && d.cfg.Docker.Enabled,
		InterfacedSubnets: true,
	}
}

// Register performs the daemon's initial registration, binding idSlot
// to the server-assigned authoritative id.
func (d *Daemon) Register(ctx context.Context) error {
	req := Registration{
		NetworkID:    d.network,
		Capabilities: d.capabilities(),
		Mode:         d.cfg.Mode,
		Name:         d.cfg.Name,
		Version:      version,
	}

	var resp RegistrationResponse
	if err := d.client.Do(ctx, http.MethodPost, "/api/daemons/register", req, &resp); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if err := d.idSlot.Set(resp.DaemonID); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	d.client.SetDaemonID(resp.DaemonID)

	if len(resp.Capabilities.Deprecations) > 0 {
		for _, warning := range resp.Capabilities.Deprecations {
			d.logger.Warn("server reports deprecation", logging.F("warning", warning))
		}
	}
	d.logger.Info("registered",
		logging.F("daemon_id", resp.DaemonID),
		logging.F("network_id", d.network),
	)
	return nil
}

// Run drives either the pull or push work loop until ctx is cancelled
// or an unrecoverable error (authorization failure) occurs.
//
// Pull mode registers outbound first (it already has to call the
// server to poll, so the server hands back the daemon's authoritative
// id synchronously). Push mode skips that: the server reaches the
// daemon, not the other way round, so there is nothing to register
// against yet. Its id is instead assigned when the server's own
// POST /api/first-contact call arrives, per spec.md §4.9.
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.Mode == config.ModePush {
		return d.runPush(ctx)
	}

	if err := d.Register(ctx); err != nil {
		return err
	}
	return d.runPull(ctx)
}

// setActive records the running session's id and cancel func, first
// cancelling any prior one still tracked (spec.md's "at most one active
// session per daemon" rule).
func (d *Daemon) setActive(id uuid.UUID, cancel context.CancelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		d.active.cancel()
	}
	d.active = &activeSession{id: id, cancel: cancel}
}

// clearActive drops the active-session record if it still matches id
// (a late-arriving clear from an already-superseded session must not
// clobber a newer one).
func (d *Daemon) clearActive(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil && d.active.id == id {
		d.active = nil
	}
}

// cancelActive cancels the current session, if any, per spec.md §8's
// "cancellation is total" property and §6's
// POST /api/discovery/cancel / pull-mode cancel_current flag.
func (d *Daemon) cancelActive() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		d.active.cancel()
	}
}

// activeSessionID reports the currently running session's id, if any.
func (d *Daemon) activeSessionID() (uuid.UUID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return uuid.Nil, false
	}
	return d.active.id, true
}

// runSession launches the runner for assignment and reports its
// terminal outcome back to the server, per spec.md §4.7's pipeline
// feeding into §4.10's Session Manager update endpoint.
func (d *Daemon) runSession(ctx context.Context, assignment *AssignedSession) {
	sessionCtx, cancel := context.WithCancel(ctx)
	d.setActive(assignment.SessionID, cancel)
	defer cancel()
	defer d.clearActive(assignment.SessionID)

	d.logger.Info("session starting",
		logging.F("session_id", assignment.SessionID),
		logging.F("network_id", d.network),
	)

	result := d.runner.Run(sessionCtx, assignment.Request)

	d.logger.Info("session terminal",
		logging.F("session_id", assignment.SessionID),
		logging.F("state", result.State),
	)
	d.reportTerminal(ctx, assignment.SessionID, result)
}

func (d *Daemon) reportTerminal(ctx context.Context, sessionID uuid.UUID, result session.Result) {
	update := sessionUpdatePayload{State: string(result.State), Percent: 100}
	if result.Error != nil {
		msg := result.Error.Error()
		update.Error = &msg
	}
	path := fmt.Sprintf("/api/discovery/sessions/%s/update", sessionID)
	if err := d.client.Do(ctx, http.MethodPost, path, update, nil); err != nil {
		d.logger.Error("failed to report terminal session state", err,
			logging.F("session_id", sessionID))
	}
}
