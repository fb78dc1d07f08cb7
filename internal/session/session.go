// Package session implements the Discovery Session Runner (spec.md
// §4.7): the per-session state machine that enumerates subnets,
// bridges ARP results and non-interfaced targets into one candidate
// stream, and drives Deep Scanner tasks under the Resource Budgeter's
// concurrency cap until the subnet is exhausted. Its concurrency-capped
// dispatch and progress-callback shape continue the teacher's own
// worker-pool idiom in internal/adapter/scanner.go (discoverHosts /
// scanHosts), generalized from a wg.Wait()-blocking batch into a
// long-lived select-loop the spec's pipeline requires.
package session

import (
	"net"

	"github.com/google/uuid"

	"netwalk/internal/domain"
	"netwalk/internal/snmpwalk"
)

// State is one of the Discovery Session Runner's states (spec.md §4.7).
// Complete, Failed, and Cancelled are absorbing.
type State string

const (
	StatePending   State = "pending"
	StateStarting  State = "starting"
	StateStarted   State = "started"
	StateScanning  State = "scanning"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is one of the absorbing terminal states.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// SubnetTarget is one subnet to scan plus the interface it was found on
// (empty if unknown, which forces it non-interfaced regardless of
// system-wide ARP availability).
type SubnetTarget struct {
	Subnet    domain.Subnet
	Interface string
}

// Request parameterizes one discovery session run, per spec.md §4.7's
// pipeline inputs.
type Request struct {
	NetworkID uuid.UUID

	// Subnets is the explicit target list. When empty, the runner
	// enumerates the host's own interface subnets (step 1's "else"
	// branch).
	Subnets []SubnetTarget

	Gateways       []net.IP
	SNMPCredential *snmpwalk.Credential

	ARPRetries int
	RatePPS    int

	// PortBatchSize seeds the deep-scan port batch size; 0 defers to
	// the shared Scan Controller's current value.
	PortBatchSize int

	// ConcurrencyOverride pins deep-scan host concurrency; 0 means "use
	// the Budgeter's computed value."
	ConcurrencyOverride int
}

// Result is a session's final outcome.
type Result struct {
	State State
	Error error
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
