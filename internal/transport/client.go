package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// maxAttempts and the min/max backoff interval are spec.md §4.9's retry
// policy for every daemon↔server RPC: exponential backoff, min 1s, max
// 30s, at most 30 attempts.
const (
	minBackoffInterval = time.Second
	maxBackoffInterval = 30 * time.Second
	maxAttempts        = 30
)

// AuthError distinguishes an authorization failure (key expired,
// revoked, not yet active) from an ordinary transient RPC error.
// Per spec.md §4.9, authorization errors never retry — the daemon
// runtime terminates on one rather than looping through the backoff
// policy.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization error (status %d): %s", e.StatusCode, e.Message)
}

// StandbyError is returned when the server responds that the daemon
// should halt discovery and wait, per spec.md §4.9's "daemon on
// standby" response. It is not a failure — callers treat it as a signal
// to pause, not to terminate.
type StandbyError struct{}

func (e *StandbyError) Error() string { return "daemon on standby" }

// Client is the daemon-side RPC client: it attaches auth headers, wraps
// every call in the spec's retry policy, and decodes the envelope.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	daemonID uuid.UUID

	// newBackoff builds the retry policy for one Do call. Overridable
	// so tests can swap in a near-instant backoff instead of waiting
	// out the real 1s-30s policy.
	newBackoff func(ctx context.Context) backoff.BackOff
}

// New returns a Client authenticating with apiKey. daemonID may be
// uuid.Nil before the daemon has completed registration/first-contact;
// SetDaemonID updates it once assigned.
func New(baseURL, apiKey string, daemonID uuid.UUID) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 30 * time.Second},
		baseURL:  baseURL,
		apiKey:   apiKey,
		daemonID: daemonID,
	}
	c.newBackoff = c.defaultBackoff
	return c
}

// SetDaemonID updates the X-Daemon-ID header value sent on every
// subsequent request.
func (c *Client) SetDaemonID(id uuid.UUID) {
	c.daemonID = id
}

// SetRetryPolicy overrides the backoff policy used by Do. Production
// callers have no reason to touch this; it exists so tests exercising
// callers of Client (e.g. internal/daemonrt) can swap in a near-instant
// policy instead of waiting out the real 1s-30s one.
func (c *Client) SetRetryPolicy(newBackoff func(ctx context.Context) backoff.BackOff) {
	c.newBackoff = newBackoff
}

func (c *Client) defaultBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minBackoffInterval
	b.MaxInterval = maxBackoffInterval
	b.MaxElapsedTime = 0
	// WithMaxRetries counts retries after the first try, so maxAttempts-1
	// retries make maxAttempts attempts in all.
	return backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)
}

// Do issues method against path (joined to baseURL), retrying transient
// failures per the policy above. body is marshaled as the request
// payload if non-nil; out, if non-nil, receives the decoded envelope
// data. A *AuthError or *StandbyError is never retried.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	operation := func() error {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err // network error: retry
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(&AuthError{StatusCode: resp.StatusCode, Message: string(raw)})
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return fmt.Errorf("transient status %d: %s", resp.StatusCode, raw)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("request failed with status %d: %s", resp.StatusCode, raw))
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return backoff.Permanent(fmt.Errorf("decode envelope: %w", err))
		}
		if !env.Success {
			msg := "unknown error"
			if env.Error != nil {
				msg = *env.Error
			}
			if msg == standbyMessage {
				return backoff.Permanent(&StandbyError{})
			}
			return backoff.Permanent(fmt.Errorf("server error: %s", msg))
		}
		if out != nil {
			if err := env.Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode payload: %w", err))
			}
		}
		return nil
	}

	return backoff.Retry(operation, c.newBackoff(ctx))
}

// standbyMessage is the server's distinguished error string for the
// "daemon on standby" condition, matched against Envelope.Error since
// the envelope carries no dedicated status-code-like field for it.
const standbyMessage = "daemon on standby"

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.daemonID != uuid.Nil {
		req.Header.Set("X-Daemon-ID", c.daemonID.String())
	}
	return req, nil
}
