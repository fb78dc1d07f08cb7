// Package errs classifies discovery-pipeline errors into the taxonomy
// spec.md §7 describes: Critical, Transient, Probe-local, Validation,
// and Conflict. There is no exception hierarchy — classification is a
// predicate over the wrapped error, grounded on original_source's
// `DiscoveryCriticalError::is_critical_error` (a string-match predicate
// over the underlying OS error text, since the Rust socket libraries
// don't expose a stable error-kind enum across platforms either).
package errs

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Class is one of the error buckets from spec.md §7. Four are modelled
// below; Conflict has no Class value.
type Class int

const (
	// ClassProbeLocal covers TCP timeouts, HTTP parse errors, SNMP
	// no-response, DNS failure: absence of evidence, not evidence of
	// absence. Never bubbles past the probe that produced it.
	ClassProbeLocal Class = iota
	// ClassTransient covers transport timeout/5xx/429: retried with
	// exponential backoff at the RPC layer.
	ClassTransient
	// ClassValidation covers malformed input, CIDR too large, no
	// interfaces available: fail-fast at session start.
	ClassValidation
	// ClassCritical covers FD exhaustion, permission denied on raw
	// socket, irrecoverable transport failure, authorization revoked.
	// Aborts the current subnet or the whole session.
	ClassCritical
)

func (c Class) String() string {
	switch c {
	case ClassProbeLocal:
		return "probe-local"
	case ClassTransient:
		return "transient"
	case ClassValidation:
		return "validation"
	case ClassCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Critical wraps an error that IsCritical will recognize, for callers
// that detect a critical condition programmatically rather than via
// string matching (e.g. a budgeter computing zero safe concurrency).
type Critical struct {
	Err error
}

func (c *Critical) Error() string { return c.Err.Error() }
func (c *Critical) Unwrap() error { return c.Err }

// NewCritical wraps err as a Critical error.
func NewCritical(err error) error {
	return &Critical{Err: err}
}

// Validation wraps a fail-fast session-start error.
type Validation struct {
	Err error
}

func (v *Validation) Error() string { return v.Err.Error() }
func (v *Validation) Unwrap() error { return v.Err }

// NewValidation wraps err as a Validation error.
func NewValidation(err error) error {
	return &Validation{Err: err}
}

func NewValidationf(format string, args ...any) error {
	return &Validation{Err: fmt.Errorf(format, args...)}
}

// criticalSubstrings mirrors DiscoveryCriticalError::is_critical_error:
// matched case-insensitively against the error's string representation
// because syscall-wrapped errors cross OS boundaries (pcap, raw
// sockets) where a typed errno isn't always available.
var criticalSubstrings = []string{
	"too many open files",
	"permission denied",
	"operation not permitted",
	"address already in use",
	"network is unreachable",
	"device or resource busy",
}

// IsCritical reports whether err should be treated as Critical per
// spec.md §7: FD exhaustion, permission denied, or an explicitly
// wrapped Critical error. Transient/probe-local conditions (timeouts,
// connection refused, DNS failure) are deliberately excluded — those
// are expected, frequent, and handled by their own retry/skip policy.
func IsCritical(err error) bool {
	if err == nil {
		return false
	}
	var critical *Critical
	if errors.As(err, &critical) {
		return true
	}
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
		return true
	}
	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, substr := range criticalSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// IsValidation reports whether err is a fail-fast session-start error.
func IsValidation(err error) bool {
	var validation *Validation
	return errors.As(err, &validation)
}
