package daemonrt

import (
	"context"
	"net/http"

	"netwalk/internal/logging"
	"netwalk/internal/session"
)

// sessionUpdatePayload is the body of POST
// /api/discovery/sessions/{id}/update, spec.md §6.
type sessionUpdatePayload struct {
	State   string  `json:"state"`
	Percent int     `json:"percent"`
	Error   *string `json:"error,omitempty"`
}

// ReportProgress implements session.ProgressReporter: it forwards the
// runner's progress to the server for whichever session is currently
// active. Transport errors are logged, never escalated to the
// session — a missed progress update is recoverable, it just ages
// toward the Session Manager's >5 minute stall threshold (spec.md
// §4.10), which is an acceptable failure mode for what is, by
// definition, best-effort telemetry.
func (d *Daemon) ReportProgress(ctx context.Context, update session.ProgressUpdate) {
	sessionID, ok := d.activeSessionID()
	if !ok {
		return
	}

	payload := sessionUpdatePayload{State: string(update.State), Percent: update.Percent}
	path := "/api/discovery/sessions/" + sessionID.String() + "/update"
	if err := d.client.Do(ctx, http.MethodPost, path, payload, nil); err != nil {
		d.logger.Error("failed to report progress", err, logging.F("session_id", sessionID))
	}
}
