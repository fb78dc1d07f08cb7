package once

import (
	"testing"
	"time"
)

func TestSetThenGetReturnsValue(t *testing.T) {
	s := NewSlot[int]()
	if err := s.Set(42); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := s.Get(); got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}
}

func TestSecondSetReturnsError(t *testing.T) {
	s := NewSlot[string]()
	if err := s.Set("first"); err != nil {
		t.Fatalf("first Set() error = %v", err)
	}
	if err := s.Set("second"); err == nil {
		t.Fatal("second Set() returned nil error, want one")
	}
	if got := s.Get(); got != "first" {
		t.Errorf("Get() = %q, want %q (second Set must not overwrite)", got, "first")
	}
}

func TestTryGetBeforeBindReportsFalse(t *testing.T) {
	s := NewSlot[int]()
	if _, bound := s.TryGet(); bound {
		t.Fatal("TryGet() reported bound before Set was ever called")
	}
}

func TestGetBlocksUntilSet(t *testing.T) {
	s := NewSlot[int]()
	done := make(chan int)
	go func() {
		done <- s.Get()
	}()

	select {
	case <-done:
		t.Fatal("Get() returned before Set was called")
	case <-time.After(20 * time.Millisecond):
	}

	if err := s.Set(7); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	select {
	case got := <-done:
		if got != 7 {
			t.Errorf("Get() = %d, want 7", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Get() did not unblock after Set")
	}
}
