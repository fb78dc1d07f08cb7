package portscan

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestStaggerInterval(t *testing.T) {
	if got := staggerInterval(0); got != 0 {
		t.Errorf("staggerInterval(0) = %v, want 0", got)
	}
	if got := staggerInterval(500); got != time.Duration(2000)*time.Microsecond {
		t.Errorf("staggerInterval(500) = %v, want 2ms", got)
	}
}

func TestProbeTCPOpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := DefaultTCPProbeConfig()
	result := ProbeTCP(context.Background(), addr.IP, addr.Port, false, cfg)
	if !result.Open {
		t.Error("ProbeTCP().Open = false, want true for a listening port")
	}
}

func TestProbeTCPClosedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close() // nothing listening now

	cfg := TCPProbeConfig{Timeout: 100 * time.Millisecond, PeekWindow: 10 * time.Millisecond}
	result := ProbeTCP(context.Background(), addr.IP, addr.Port, false, cfg)
	if result.Open {
		t.Error("ProbeTCP().Open = true, want false for a closed port")
	}
}

func TestProbeBatchRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := ProbeBatch(ctx, net.ParseIP("127.0.0.1"), []int{1, 2, 3}, nil, DefaultTCPProbeConfig(), nil)
	if len(results) != 0 {
		t.Errorf("ProbeBatch() on a cancelled context returned %d results, want 0", len(results))
	}
}
