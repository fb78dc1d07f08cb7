package daemonrt

import (
	"context"
	"net/http"

	"netwalk/internal/domain"
	"netwalk/internal/logging"
)

// entityUploadPayload is the body of POST /api/discovery/entities,
// spec.md §4.9's "discovery output is pushed to the server as it is
// produced": pull-mode daemons drain their buffer on a cadence rather
// than holding everything for one end-of-session upload.
type entityUploadPayload struct {
	Hosts   []domain.Host   `json:"hosts,omitempty"`
	Subnets []domain.Subnet `json:"subnets,omitempty"`
}

// uploadEntities drains whatever the current session has accumulated
// and ships it to the server. A failed upload is logged and the
// drained batch is dropped rather than requeued: the buffer's
// pending/created bookkeeping exists for in-session awaiters, not as a
// durable outbox, so retrying a stale batch risks re-deriving entities
// the runner has already moved past. This mirrors the best-effort
// telemetry posture of ReportProgress.
func (d *Daemon) uploadEntities(ctx context.Context) {
	drained := d.buf.Drain()
	if len(drained.Hosts) == 0 && len(drained.Subnets) == 0 {
		return
	}

	payload := entityUploadPayload{Hosts: drained.Hosts, Subnets: drained.Subnets}
	if err := d.client.Do(ctx, http.MethodPost, "/api/discovery/entities", payload, nil); err != nil {
		d.logger.Warn("entity upload failed, batch dropped",
			logging.F("error", err.Error()),
			logging.F("hosts", len(drained.Hosts)),
			logging.F("subnets", len(drained.Subnets)),
		)
	}
}
