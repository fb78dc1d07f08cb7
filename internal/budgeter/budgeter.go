// Package budgeter computes safe scan concurrency from the OS
// file-descriptor soft limit, per spec.md §4.1. It is ported directly
// from original_source's ConcurrentPipelineOps::estimated_fd_usage and
// DaemonUtils::get_optimal_concurrent_scans
// (daemon/utils/base.rs), which is the only place the exact constants
// (203 reserved FDs, the 500/2000/5000 tiers, the 25/20 per-host
// overhead) are written down — spec.md states the model in prose but
// leaves the numbers to the source.
package budgeter

import (
	"fmt"

	"golang.org/x/sys/unix"

	"netwalk/internal/errs"
)

// reservedFDs is held back for daemon internals (config file, log
// output, IPC, the transport's own connection pool) before any scan FD
// budget is computed.
const reservedFDs = 203

// defaultConcurrencySentinel is the config value that means "no user
// override, compute automatically" — the teacher's config default
// (15) doubles as the sentinel, same as original_source.
const defaultConcurrencySentinel = 15

const (
	endpointFDsPerHost = 25
	overheadPerHost    = 20
)

// MaxConcurrentScans is the hard upper clamp OptimalConcurrentScans
// never exceeds, exported so callers sizing a fixed-capacity permit
// pool (the session runner's deep-scan semaphore) can allocate it once
// up front and only ever hand out more of it, never resize it.
const MaxConcurrentScans = 50

// PipelineOps describes every concurrent operation in the discovery
// pipeline that consumes file descriptors right now, mirroring
// ConcurrentPipelineOps in base.rs field-for-field.
type PipelineOps struct {
	// ARPSubnetCount is the number of open ARP datalink channels (2 FDs
	// each: tx + rx).
	ARPSubnetCount int
	// NonInterfacedScanConcurrency is the number of concurrent hosts in
	// the non-interfaced discovery-port responsiveness sweep.
	NonInterfacedScanConcurrency int
	// DiscoveryPortsCount is the number of discovery ports scanned per
	// non-interfaced host.
	DiscoveryPortsCount int
	// PortScanBatchSize is the batch size for non-interfaced port
	// scanning.
	PortScanBatchSize int
	// DeepScanConcurrency is the number of concurrent deep-scan hosts.
	DeepScanConcurrency int
	// DeepScanBatchSize is the per-host deep-scan port batch size.
	DeepScanBatchSize int
}

// EstimatedFDUsage totals the FD cost of every concurrent operation
// described by ops, per spec.md §4.1's FD-cost model.
func (ops PipelineOps) EstimatedFDUsage() int {
	arpFDs := ops.ARPSubnetCount * 2

	portsPerHost := min(ops.PortScanBatchSize, ops.DiscoveryPortsCount)
	nonInterfacedFDs := ops.NonInterfacedScanConcurrency * portsPerHost

	deepScanTCPFDs := ops.DeepScanConcurrency * ops.DeepScanBatchSize

	endpointBatch := min(ops.DeepScanBatchSize/2, 50)
	deepScanEndpointFDs := ops.DeepScanConcurrency * endpointBatch

	deepScanUDPFDs := ops.DeepScanConcurrency * 10

	return arpFDs + nonInterfacedFDs + deepScanTCPFDs + deepScanEndpointFDs + deepScanUDPFDs
}

// ConcurrencyParams is the budgeter's output: how many hosts to scan
// concurrently and how many ports to batch per host, calculated
// together since either alone can exceed the FD limit the other
// leaves available.
type ConcurrencyParams struct {
	ConcurrentScans int
	PortBatchSize   int
}

// FDLimit reads the process's current soft RLIMIT_NOFILE. Implemented
// directly on golang.org/x/sys/unix.Getrlimit: no pack dependency wraps
// rlimit reads more cleanly, and the teacher doesn't touch FDs at all —
// justified as a standard-library (well, x/sys, which is as close to
// stdlib as Go gets for this) use in DESIGN.md.
func FDLimit() (int, error) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return 0, errs.NewCritical(fmt.Errorf("read RLIMIT_NOFILE: %w", err))
	}
	return int(rlimit.Cur), nil
}

// OptimalConcurrentScans computes concurrent host count and port batch
// size from the process's current FD limit, honoring a user override
// for either value. concurrencyConfigValue equal to 0 or to
// defaultConcurrencySentinel (15) means "no override, compute
// automatically" — any other positive value pins concurrent scans
// regardless of the FD budget. portBatchConfigValue caps the computed
// batch size when positive; 0 leaves the computed value as is.
func OptimalConcurrentScans(concurrencyConfigValue, portBatchConfigValue int) (ConcurrencyParams, error) {
	fdLimit, err := FDLimit()
	if err != nil {
		return ConcurrencyParams{}, err
	}

	available := fdLimit - reservedFDs
	if available < 0 {
		available = 0
	}

	targetConcurrentHosts := targetConcurrentHostsForAvailable(available)

	availablePerHost := available / targetConcurrentHosts
	portBatchPerHost := availablePerHost - (endpointFDsPerHost + overheadPerHost)
	if portBatchPerHost < 0 {
		portBatchPerHost = 0
	}

	portBatchBounded := clamp(portBatchPerHost, 10, 200)
	portBatchEffective := portBatchBounded
	if portBatchConfigValue > 0 {
		portBatchEffective = min(portBatchBounded, portBatchConfigValue)
	}

	fdsPerHost := portBatchEffective + endpointFDsPerHost + overheadPerHost
	if fdsPerHost <= 0 {
		fdsPerHost = 1
	}
	actualConcurrent := available / fdsPerHost
	optimalConcurrent := clamp(actualConcurrent, 1, MaxConcurrentScans)

	concurrentScans := optimalConcurrent
	if concurrencyConfigValue > 0 && concurrencyConfigValue != defaultConcurrencySentinel {
		concurrentScans = concurrencyConfigValue
	}

	return ConcurrencyParams{
		ConcurrentScans: concurrentScans,
		PortBatchSize:   portBatchEffective,
	}, nil
}

// Raise recomputes concurrency after the ARP phase releases its FD
// reservation, never lowering prev's value (spec.md §4.1
// "Recomputation": concurrency may be raised, never lowered, once ARP
// ends).
func Raise(prev ConcurrencyParams, concurrencyConfigValue, portBatchConfigValue int) (ConcurrencyParams, error) {
	next, err := OptimalConcurrentScans(concurrencyConfigValue, portBatchConfigValue)
	if err != nil {
		return prev, err
	}
	if next.ConcurrentScans < prev.ConcurrentScans {
		next.ConcurrentScans = prev.ConcurrentScans
	}
	if next.PortBatchSize < prev.PortBatchSize {
		next.PortBatchSize = prev.PortBatchSize
	}
	return next, nil
}

func targetConcurrentHostsForAvailable(available int) int {
	switch {
	case available < 500:
		return 5
	case available < 2000:
		return 15
	case available < 5000:
		return 30
	default:
		return 50
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
