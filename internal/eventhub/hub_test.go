package eventhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"netwalk/internal/logging"
	"netwalk/internal/sessionmgr"
)

func TestServeHTTPStreamsPublishedEvents(t *testing.T) {
	h := New(logging.New())
	done := make(chan struct{})
	defer close(done)
	go h.Run(done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := newStreamingRecorder()

	requestDone := make(chan struct{})
	go func() {
		h.ServeHTTP(rec, req)
		close(requestDone)
	}()

	// Wait until the client has registered before publishing, so the
	// event isn't dropped as a slow/absent subscriber.
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", h.ClientCount())
	}

	h.Publish(sessionmgr.Event{
		Kind:    sessionmgr.EventStarted,
		Session: sessionmgr.SessionState{SessionID: uuid.New()},
	})

	line := rec.waitForLine(t, "event: discovery_started")
	if !strings.HasPrefix(line, "event: discovery_started") {
		t.Fatalf("got line %q, want discovery_started event", line)
	}

	cancel()
	<-requestDone
}

// streamingRecorder is a minimal http.ResponseWriter/http.Flusher that
// lets a test read SSE frames as they're written, since
// httptest.ResponseRecorder only buffers after the handler returns.
type streamingRecorder struct {
	header http.Header
	pw     *strings.Builder
	lines  chan string
}

func newStreamingRecorder() *streamingRecorder {
	return &streamingRecorder{
		header: make(http.Header),
		pw:     &strings.Builder{},
		lines:  make(chan string, 16),
	}
}

func (r *streamingRecorder) Header() http.Header { return r.header }

func (r *streamingRecorder) Write(p []byte) (int, error) {
	r.pw.Write(p)
	for _, line := range strings.Split(string(p), "\n") {
		if line != "" {
			select {
			case r.lines <- line:
			default:
			}
		}
	}
	return len(p), nil
}

func (r *streamingRecorder) WriteHeader(int) {}

func (r *streamingRecorder) Flush() {}

func (r *streamingRecorder) waitForLine(t *testing.T, prefix string) string {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case line := <-r.lines:
			if strings.HasPrefix(line, prefix) {
				return line
			}
		case <-deadline:
			t.Fatalf("timed out waiting for line with prefix %q", prefix)
			return ""
		}
	}
}
