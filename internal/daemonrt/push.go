package daemonrt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"netwalk/internal/logging"
)

const shutdownGrace = 10 * time.Second

// firstContactRequest is the server's initial reach-out to a push-mode
// daemon: the server assigns the authoritative id (it has no prior
// registration call to assign one against, unlike pull mode), and the
// daemon just needs to bind it and answer with its status.
type firstContactRequest struct {
	DaemonID  uuid.UUID `json:"daemon_id"`
	NetworkID uuid.UUID `json:"network_id"`
}

// entitiesCreatedRequest is the server's confirmation of pending
// entities it accepted from a prior /api/poll drain, per spec.md
// §4.9's two-phase ID handoff. The daemon has nothing left to update
// by the time this arrives — the buffer entries were already drained
// and handed off in the poll response — so this handler exists purely
// to acknowledge and log the count for operator visibility.
type entitiesCreatedRequest struct {
	Subnets []uuid.UUID `json:"confirmed_subnet_ids"`
	Hosts   []uuid.UUID `json:"confirmed_host_ids"`
}

// runPush implements the server-initiated mode of spec.md §4.9: the
// daemon runs its own HTTP listener and the server drives it by
// calling in, rather than the daemon calling out on a ticker. Grounded
// on the teacher's cmd/server/main.go (its bare net/http.ServeMux +
// manual JSON helpers, not this repo's gin-based cmd/server), since
// this is the daemon's mirror of that server listener, not a
// client-facing API layer.
func (d *Daemon) runPush(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/first-contact", d.handleFirstContact)
	mux.HandleFunc("GET /api/status", d.handleStatus)
	mux.HandleFunc("GET /api/poll", d.handlePoll)
	mux.HandleFunc("POST /api/discovery/entities-created", d.handleEntitiesCreated)
	mux.HandleFunc("POST /api/discovery/initiate", d.handleInitiate)
	mux.HandleFunc("POST /api/discovery/cancel", d.handleCancel)

	addr := fmt.Sprintf("%s:%d", d.cfg.BindAddress, d.cfg.Port)
	d.httpServer = &http.Server{
		Addr:         addr,
		Handler:      Chain(mux, d.recover, d.logRequests),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("push-mode listener starting", logging.F("addr", addr))
		if err := d.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	healthTicker := time.NewTicker(healthLogPeriod)
	defer healthTicker.Stop()
	go func() {
		var ticks int64
		for {
			select {
			case <-ctx.Done():
				return
			case <-healthTicker.C:
				ticks++
				d.logHealthSummary(ticks)
			}
		}
	}()

	select {
	case <-ctx.Done():
		d.cancelActive()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("push-mode listener shutdown error", logging.F("error", err.Error()))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Chain applies middlewares to next in order, mirroring the teacher's
// handler.Chain(mux, Recover, CORS, Logger) composition in
// cmd/server/main.go: each middleware wraps the previous result, so the
// last one listed is outermost and sees the request first. This push
// listener is a server-to-daemon surface with no browser origin, so it
// carries the Recover and Logger stages but not CORS.
func Chain(next http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for _, m := range mw {
		next = m(next)
	}
	return next
}

// recover mirrors the teacher's handler.Recover middleware: a panic in
// any handler is logged and turned into a 500 instead of crashing the
// daemon's only HTTP listener out from under an in-flight discovery
// session.
func (d *Daemon) recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				d.logger.Error("panic in push api handler", fmt.Errorf("%v", rec),
					logging.F("method", r.Method), logging.F("path", r.URL.Path))
				writeError(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// logRequests wraps the mux the same way the teacher's handler.Logger
// middleware wraps its own mux: log method, path, status and latency
// for every request.
func (d *Daemon) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		d.logger.Info("push api request",
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F("status", sw.status),
			logging.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, msg string, statusCode int) {
	writeJSON(w, map[string]string{"error": msg}, statusCode)
}

func (d *Daemon) handleFirstContact(w http.ResponseWriter, r *http.Request) {
	d.touchActivity()
	var req firstContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	// A second first-contact call (idSlot already bound) is treated as
	// idempotent: the server may retry this handshake after a timeout
	// without knowing whether the first attempt landed.
	if err := d.idSlot.Set(req.DaemonID); err == nil {
		d.client.SetDaemonID(req.DaemonID)
		d.logger.Info("first contact received", logging.F("daemon_id", req.DaemonID))
	}
	writeJSON(w, StatusPayload{
		Name:         d.cfg.Name,
		Mode:         d.cfg.Mode,
		Version:      version,
		Capabilities: d.capabilities(),
	}, http.StatusOK)
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StatusPayload{
		Name:         d.cfg.Name,
		Mode:         d.cfg.Mode,
		Version:      version,
		Capabilities: d.capabilities(),
	}, http.StatusOK)
}

// handlePoll hands the server whatever this daemon has accumulated
// since the last poll, draining the buffer the same way pull mode's
// uploadEntities does — push mode simply has the server pull instead
// of the daemon push.
func (d *Daemon) handlePoll(w http.ResponseWriter, r *http.Request) {
	d.touchActivity()
	drained := d.buf.Drain()
	writeJSON(w, map[string]any{
		"status": StatusPayload{
			Name:         d.cfg.Name,
			Mode:         d.cfg.Mode,
			Version:      version,
			Capabilities: d.capabilities(),
		},
		"entities": entityUploadPayload{Hosts: drained.Hosts, Subnets: drained.Subnets},
	}, http.StatusOK)
}

func (d *Daemon) handleEntitiesCreated(w http.ResponseWriter, r *http.Request) {
	var req entitiesCreatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	d.logger.Debug("entities confirmed",
		logging.F("subnets", len(req.Subnets)),
		logging.F("hosts", len(req.Hosts)),
	)
	writeJSON(w, map[string]bool{"acknowledged": true}, http.StatusOK)
}

func (d *Daemon) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var assignment AssignedSession
	if err := json.NewDecoder(r.Body).Decode(&assignment); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	go d.runSession(context.Background(), &assignment)
	writeJSON(w, map[string]uuid.UUID{"session_id": assignment.SessionID}, http.StatusAccepted)
}

func (d *Daemon) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID uuid.UUID `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if current, ok := d.activeSessionID(); !ok || current != body.SessionID {
		writeError(w, "no matching active session", http.StatusConflict)
		return
	}
	d.cancelActive()
	writeJSON(w, map[string]bool{"cancelled": true}, http.StatusOK)
}
