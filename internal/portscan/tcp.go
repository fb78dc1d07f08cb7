// Package portscan implements the TCP and UDP Port Scanners (spec.md
// §4.4). The TCP half follows the teacher's own batched-connect +
// banner-peek idiom in internal/adapter/scanner.go (a net.Dialer with a
// fixed timeout, one goroutine per probe, no deeper abstraction); the
// UDP half has no teacher analogue and instead wires one library per
// protocol from the rest of the retrieval pack: miekg/dns for the DNS
// probe, beevik/ntp for NTP, gosnmp for SNMP, and insomniacslk/dhcp for
// the gateway-only DHCP probe.
package portscan

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"netwalk/internal/errs"
)

// TCPResult is the outcome of one TCP connect attempt.
type TCPResult struct {
	Port      int
	Open      bool
	HTTPSHint bool
}

// TCPProbeConfig tunes the batched connect scan.
type TCPProbeConfig struct {
	// Timeout is the baseline per-attempt dial timeout (800ms per
	// spec.md §4.4).
	Timeout time.Duration
	// PeekWindow bounds the brief read used to confirm/override the
	// HTTPS hint (50ms per spec.md §4.4).
	PeekWindow time.Duration
	// RatePPS staggers successive dial attempts; 0 disables staggering.
	RatePPS int
}

// DefaultTCPProbeConfig matches spec.md §4.4's stated baselines.
func DefaultTCPProbeConfig() TCPProbeConfig {
	return TCPProbeConfig{
		Timeout:    800 * time.Millisecond,
		PeekWindow: 50 * time.Millisecond,
	}
}

// ProbeTCP attempts a single connect to ip:port, retrying once when
// the first attempt times out (not on a prompt refusal), per spec.md
// §4.4 ("a fixed timeout... and one retry on timeout"). isHTTPSPort is
// the caller's hint (from a well-known port table); the probe peeks
// the connection briefly, and a peer that closes it at once sets
// HTTPSHint to true, while anything else leaves the hint as given.
func ProbeTCP(ctx context.Context, ip net.IP, port int, isHTTPSPort bool, cfg TCPProbeConfig) TCPResult {
	result, _ := probeTCP(ctx, ip, port, isHTTPSPort, cfg)
	return result
}

// probeTCP is ProbeTCP plus a reported exhaustion flag, so ProbeBatch
// can feed FD-exhaustion signals to a Scan Controller without exposing
// that plumbing on the single-probe entry point.
func probeTCP(ctx context.Context, ip net.IP, port int, isHTTPSPort bool, cfg TCPProbeConfig) (TCPResult, bool) {
	result := TCPResult{Port: port, HTTPSHint: isHTTPSPort}

	conn, err := dialOnce(ctx, ip, port, cfg.Timeout)
	if err != nil {
		exhausted := errs.IsCritical(err)
		if !isDialTimeout(err) {
			return result, exhausted
		}
		conn, err = dialOnce(ctx, ip, port, cfg.Timeout)
		if err != nil {
			return result, exhausted || errs.IsCritical(err)
		}
	}
	defer conn.Close()

	result.Open = true
	result.HTTPSHint = peekHTTPSHint(conn, isHTTPSPort, cfg.PeekWindow)
	return result, false
}

func dialOnce(ctx context.Context, ip net.IP, port int, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(port))
	return dialer.DialContext(ctx, "tcp", addr)
}

// isDialTimeout reports whether err is the dial's own timeout elapsing
// (as opposed to a prompt connection-refused or similar), per
// spec.md §4.4/§5's "one retry on timeout" — a refusal gets no retry.
func isDialTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// peekHTTPSHint reads a brief burst from conn. A peer that closes the
// connection within the peek window (EOF) returns true; a readable
// byte, any other read error, or the window's own timeout falls back to
// the port's own hint.
func peekHTTPSHint(conn net.Conn, hint bool, window time.Duration) bool {
	_ = conn.SetReadDeadline(time.Now().Add(window))
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	_ = conn.SetReadDeadline(time.Time{})
	if errors.Is(err, io.EOF) {
		return true
	}
	return hint
}

// ProbeBatch runs ProbeTCP over ports against ip, staggering
// successive dials by 1_000_000/pps microseconds per spec.md §4.4's
// rate-limiting rule, and reports to ctl on connect-refused-by-FD-
// exhaustion so the Scan Controller can shrink subsequent batches.
func ProbeBatch(ctx context.Context, ip net.IP, ports []int, httpsHint map[int]bool, cfg TCPProbeConfig, onExhaustion func()) []TCPResult {
	pacing := staggerInterval(cfg.RatePPS)
	results := make([]TCPResult, 0, len(ports))

	for _, port := range ports {
		if ctx.Err() != nil {
			return results
		}
		res, exhausted := probeTCP(ctx, ip, port, httpsHint[port], cfg)
		results = append(results, res)
		if exhausted && onExhaustion != nil {
			onExhaustion()
		}
		if pacing > 0 {
			time.Sleep(pacing)
		}
	}
	return results
}

func staggerInterval(pps int) time.Duration {
	if pps <= 0 {
		return 0
	}
	return time.Duration(1_000_000/pps) * time.Microsecond
}
