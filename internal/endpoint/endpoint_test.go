package endpoint

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProbeDedupsCandidatesAndCapturesEvidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "test-server")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	addr := server.Listener.Addr().(*net.TCPAddr)
	prober := New(2 * time.Second)

	candidates := []Candidate{
		{Port: addr.Port, Path: "/"},
		{Port: addr.Port, Path: "/"}, // duplicate, should be deduped
	}

	results, confirmed := prober.Probe(context.Background(), addr.IP, candidates)
	if len(results) != 1 {
		t.Fatalf("Probe() returned %d results, want 1 (deduped)", len(results))
	}
	if results[0].StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", results[0].StatusCode)
	}
	if results[0].Headers["server"] != "test-server" {
		t.Errorf("Headers[server] = %q, want test-server (lowercased)", results[0].Headers["server"])
	}
	if !confirmed[addr.Port] {
		t.Error("confirmedOpen does not include the probed port")
	}
}

func TestProbeNoListenerReturnsNoResults(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	prober := New(200 * time.Millisecond)
	results, confirmed := prober.Probe(context.Background(), addr.IP, []Candidate{{Port: addr.Port, Path: "/"}})
	if len(results) != 0 {
		t.Errorf("Probe() returned %d results, want 0 for a closed port", len(results))
	}
	if len(confirmed) != 0 {
		t.Errorf("confirmedOpen has %d entries, want 0", len(confirmed))
	}
}
