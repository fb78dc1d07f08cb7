package daemonrt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"netwalk/internal/logging"
	"netwalk/internal/transport"
)

// runPull implements the daemon-initiated mode of spec.md §4.9: poll
// the server on a heartbeat interval, send status, and either start
// whatever session is assigned or sit idle until the next tick. A
// missed tick (poll still in flight when the next one would fire) is
// skipped rather than queued, per spec's "missed-tick skipped" rule.
func (d *Daemon) runPull(ctx context.Context) error {
	interval := d.cfg.HeartbeatInterval.Duration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pollCount int64

	for {
		select {
		case <-ctx.Done():
			d.cancelActive()
			return nil
		case <-ticker.C:
			pollCount++
			if err := d.poll(ctx); err != nil {
				var authErr *transport.AuthError
				if errors.As(err, &authErr) {
					return fmt.Errorf("daemon terminated, authorization failure: %w", err)
				}
				var standbyErr *transport.StandbyError
				if errors.As(err, &standbyErr) {
					d.logger.Info("daemon on standby")
					continue
				}
				d.logger.Warn("request-work poll failed", logging.F("error", err.Error()))
			} else {
				d.touchActivity()
			}
			d.uploadEntities(ctx)

			if pollCount%healthLogInterval == 0 {
				d.logHealthSummary(pollCount)
			}
		}
	}
}

// poll sends one status update and acts on the server's response.
func (d *Daemon) poll(ctx context.Context) error {
	daemonID := d.idSlot.Get()
	status := StatusPayload{
		Name:         d.cfg.Name,
		Mode:         d.cfg.Mode,
		Version:      version,
		Capabilities: d.capabilities(),
	}

	var assignment WorkAssignment
	path := fmt.Sprintf("/api/daemons/%s/request-work", daemonID)
	if err := d.client.Do(ctx, http.MethodPost, path, status, &assignment); err != nil {
		return err
	}

	if assignment.CancelCurrent {
		d.cancelActive()
	}
	if assignment.Session != nil {
		go d.runSession(ctx, assignment.Session)
	}
	return nil
}
