package daemonrt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"netwalk/internal/buffer"
	"netwalk/internal/config"
	"netwalk/internal/domain"
	"netwalk/internal/logging"
	"netwalk/internal/scanctl"
	"netwalk/internal/session"
	"netwalk/internal/transport"
)

func fastBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 5 * time.Millisecond
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, 5), ctx)
}

func newTestDaemon(t *testing.T, handler http.HandlerFunc) (*Daemon, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)

	cfg := &config.Config{
		NetworkID:         uuid.New(),
		APIKey:            "secret",
		Name:              "test-daemon",
		Mode:              config.ModePull,
		HeartbeatInterval: config.Duration(5 * time.Millisecond),
	}
	client := transport.New(srv.URL, cfg.APIKey, uuid.Nil)
	client.SetRetryPolicy(fastBackoff)

	runner := session.New(buffer.New(), scanctl.New(50), nil, nil, nil)
	d := New(cfg, client, buffer.New(), runner, logging.New())
	return d, srv
}

func TestRegisterBindsDaemonID(t *testing.T) {
	assigned := uuid.New()
	d, srv := newTestDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := json.Marshal(RegistrationResponse{DaemonID: assigned})
		json.NewEncoder(w).Encode(transport.Envelope{Success: true, Data: data})
	})
	defer srv.Close()

	if err := d.Register(context.Background()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got, ok := d.idSlot.TryGet(); !ok || got != assigned {
		t.Errorf("idSlot = %v, %v, want %v, true", got, ok, assigned)
	}
}

func TestRunPullTerminatesOnAuthError(t *testing.T) {
	var calls atomic.Int32
	d, srv := newTestDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			data, _ := json.Marshal(RegistrationResponse{DaemonID: uuid.New()})
			json.NewEncoder(w).Encode(transport.Envelope{Success: true, Data: data})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("revoked"))
	})
	defer srv.Close()

	err := d.Run(context.Background())
	if err == nil {
		t.Fatal("Run() returned nil error, want authorization failure")
	}
}

func TestRunPullRespectsStandbyAndContextCancellation(t *testing.T) {
	var calls atomic.Int32
	d, srv := newTestDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			data, _ := json.Marshal(RegistrationResponse{DaemonID: uuid.New()})
			json.NewEncoder(w).Encode(transport.Envelope{Success: true, Data: data})
			return
		}
		msg := "daemon on standby"
		json.NewEncoder(w).Encode(transport.Envelope{Success: false, Error: &msg})
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, want nil on context cancellation", err)
	}
	if calls.Load() < 2 {
		t.Errorf("server was called %d times, want at least 2 (register + poll)", calls.Load())
	}
}

func TestPollStartsAssignedSession(t *testing.T) {
	sessionID := uuid.New()

	d, srv := newTestDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/daemons/register" {
			data, _ := json.Marshal(RegistrationResponse{DaemonID: uuid.New()})
			json.NewEncoder(w).Encode(transport.Envelope{Success: true, Data: data})
			return
		}
		// Every assignment request (request-work poll, progress/terminal
		// update) shares this branch; only the first needs an assigned
		// session, the rest are status-report calls the runner makes as
		// the (long-running, default grace period) session proceeds.
		assignment := WorkAssignment{Session: &AssignedSession{
			SessionID: sessionID,
			Kind:      "full",
			Request: session.Request{
				NetworkID: uuid.New(),
				Subnets: []session.SubnetTarget{
					{Subnet: domain.Subnet{ID: uuid.New(), CIDR: "2001:db8::/32"}},
				},
			},
		}}
		data, _ := json.Marshal(assignment)
		json.NewEncoder(w).Encode(transport.Envelope{Success: true, Data: data})
	})
	defer srv.Close()

	if err := d.Register(context.Background()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := d.poll(context.Background()); err != nil {
		t.Fatalf("poll() error = %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if got, ok := d.activeSessionID(); ok && got == sessionID {
			break
		}
		select {
		case <-deadline:
			t.Fatal("assigned session never became active")
		case <-time.After(5 * time.Millisecond):
		}
	}
	d.cancelActive()
}

func TestPollCancelCurrentClearsActiveSession(t *testing.T) {
	d, srv := newTestDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/daemons/register" {
			data, _ := json.Marshal(RegistrationResponse{DaemonID: uuid.New()})
			json.NewEncoder(w).Encode(transport.Envelope{Success: true, Data: data})
			return
		}
		data, _ := json.Marshal(WorkAssignment{CancelCurrent: true})
		json.NewEncoder(w).Encode(transport.Envelope{Success: true, Data: data})
	})
	defer srv.Close()

	if err := d.Register(context.Background()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var cancelled atomic.Bool
	d.setActive(uuid.New(), func() { cancelled.Store(true) })

	if err := d.poll(context.Background()); err != nil {
		t.Fatalf("poll() error = %v", err)
	}
	if !cancelled.Load() {
		t.Error("poll() with cancel_current=true did not cancel the active session")
	}
}

func TestSetActiveCancelsPriorSession(t *testing.T) {
	d := &Daemon{logger: logging.New()}
	var firstCancelled atomic.Bool
	firstID := uuid.New()
	secondID := uuid.New()

	d.setActive(firstID, func() { firstCancelled.Store(true) })
	d.setActive(secondID, func() {})

	if !firstCancelled.Load() {
		t.Error("setActive did not cancel the prior active session")
	}
	if got, ok := d.activeSessionID(); !ok || got != secondID {
		t.Errorf("activeSessionID() = %v, %v, want %v, true", got, ok, secondID)
	}
}

func TestClearActiveIgnoresStaleSessionID(t *testing.T) {
	d := &Daemon{logger: logging.New()}
	first := uuid.New()
	second := uuid.New()

	d.setActive(first, func() {})
	d.setActive(second, func() {})

	// A stale clear for the superseded session must not remove the
	// newer one.
	d.clearActive(first)
	if got, ok := d.activeSessionID(); !ok || got != second {
		t.Errorf("activeSessionID() = %v, %v, want %v, true (stale clear must not win)", got, ok, second)
	}

	d.clearActive(second)
	if _, ok := d.activeSessionID(); ok {
		t.Error("activeSessionID() still reports active after matching clear")
	}
}
