package transport

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
)

func fastBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 5 * time.Millisecond
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts), ctx)
}

func TestDoDecodesSuccessfulEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization header = %q", got)
		}
		data, _ := json.Marshal(map[string]string{"name": "host-1"})
		env := Envelope{Success: true, Data: data, Meta: Meta{APIVersion: APIVersion}}
		json.NewEncoder(w).Encode(env)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", uuid.Nil)
	var out struct {
		Name string `json:"name"`
	}
	if err := c.Do(context.Background(), http.MethodGet, "/x", nil, &out); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if out.Name != "host-1" {
		t.Errorf("out.Name = %q, want host-1", out.Name)
	}
}

func TestDoSetsDaemonIDHeaderWhenAssigned(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Daemon-ID"); got != id.String() {
			t.Errorf("X-Daemon-ID = %q, want %s", got, id)
		}
		json.NewEncoder(w).Encode(Envelope{Success: true, Meta: Meta{APIVersion: APIVersion}})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", id)
	if err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
}

func TestDoReturnsAuthErrorWithoutRetrying(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("key revoked"))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", uuid.Nil)
	c.newBackoff = fastBackoff

	err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
	if _, ok := err.(*AuthError); !ok {
		t.Fatalf("Do() error = %v (%T), want *AuthError", err, err)
	}
	if calls.Load() != 1 {
		t.Errorf("server was called %d times, want exactly 1 (no retry on auth failure)", calls.Load())
	}
}

func TestDoReturnsStandbyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		msg := standbyMessage
		json.NewEncoder(w).Encode(Envelope{Success: false, Error: &msg, Meta: Meta{APIVersion: APIVersion}})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", uuid.Nil)
	c.newBackoff = fastBackoff

	err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil)
	if _, ok := err.(*StandbyError); !ok {
		t.Fatalf("Do() error = %v (%T), want *StandbyError", err, err)
	}
}

func TestDoRetriesTransientFailuresThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Envelope{Success: true, Meta: Meta{APIVersion: APIVersion}})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", uuid.Nil)
	c.newBackoff = fastBackoff

	if err := c.Do(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server was called %d times, want 3", calls.Load())
	}
}

func TestNewPaginationClampsAndComputesHasMore(t *testing.T) {
	p := NewPagination(2000, 0, 50)
	if p.Limit != 1000 {
		t.Errorf("Limit = %d, want clamped to 1000", p.Limit)
	}

	p2 := NewPagination(10, 0, 50)
	if !p2.HasMore {
		t.Error("HasMore = false, want true when offset+limit < total")
	}

	p3 := NewPagination(10, 40, 50)
	if p3.HasMore {
		t.Error("HasMore = true, want false when offset+limit >= total")
	}

	p4 := NewPagination(0, 0, 50)
	if p4.HasMore {
		t.Error("HasMore = true with limit=0 (no limit), want false")
	}
}
