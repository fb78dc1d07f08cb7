package session

import (
	"context"
	"testing"
	"time"

	"netwalk/internal/budgeter"
	"netwalk/internal/buffer"
	"netwalk/internal/deepscan"
	"netwalk/internal/domain"
	"netwalk/internal/scanctl"
)

func newTestRunner(t *testing.T) (*Runner, *fakeReporter) {
	t.Helper()
	reporter := &fakeReporter{}
	r := New(buffer.New(), scanctl.New(50), nil, nil, reporter)
	r.gracePeriod = 30 * time.Millisecond
	r.tickInterval = 5 * time.Millisecond
	r.initialBudget = func(int, int) (budgeter.ConcurrencyParams, error) {
		return budgeter.ConcurrencyParams{ConcurrentScans: 4, PortBatchSize: 50}, nil
	}
	r.raiseConcurrency = func(prev budgeter.ConcurrencyParams, _, _ int) (budgeter.ConcurrencyParams, error) {
		return prev, nil
	}
	return r, reporter
}

func TestPartitionARPUnavailableFallsBackToNonInterfaced(t *testing.T) {
	r, _ := newTestRunner(t)
	r.arpAvailable = func(string) bool { return false }

	targets := []SubnetTarget{{Subnet: domain.Subnet{CIDR: "10.0.0.0/30"}, Interface: "eth0"}}
	interfaced, nonInterfaced := r.partition(targets)

	if len(interfaced) != 0 {
		t.Errorf("len(interfaced) = %d, want 0 when ARP is unavailable", len(interfaced))
	}
	if len(nonInterfaced) != 1 {
		t.Errorf("len(nonInterfaced) = %d, want 1", len(nonInterfaced))
	}
}

func TestPartitionNoInterfaceNameIsNonInterfaced(t *testing.T) {
	r, _ := newTestRunner(t)
	r.arpAvailable = func(string) bool { return true }

	targets := []SubnetTarget{{Subnet: domain.Subnet{CIDR: "10.0.0.0/30"}}}
	interfaced, nonInterfaced := r.partition(targets)

	if len(interfaced) != 0 || len(nonInterfaced) != 1 {
		t.Errorf("got interfaced=%d nonInterfaced=%d, want 0/1", len(interfaced), len(nonInterfaced))
	}
}

func TestRunCancellationReturnsCancelled(t *testing.T) {
	r, _ := newTestRunner(t)
	r.arpAvailable = func(string) bool { return false }
	r.runDeepScan = func(ctx context.Context, _ *deepscan.Scanner, _ deepscan.Request) (deepscan.Outcome, error) {
		<-ctx.Done()
		return deepscan.Outcome{Cancelled: true}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	req := Request{
		Subnets: []SubnetTarget{{Subnet: domain.Subnet{CIDR: "10.0.0.0/29"}}},
	}
	result := r.Run(ctx, req)
	if result.State != StateCancelled {
		t.Fatalf("Run() State = %s, want cancelled", result.State)
	}
}

func TestRunCompletesAndReportsMonotonicProgress(t *testing.T) {
	r, reporter := newTestRunner(t)
	r.arpAvailable = func(string) bool { return false }
	r.runDeepScan = func(_ context.Context, _ *deepscan.Scanner, req deepscan.Request) (deepscan.Outcome, error) {
		host := domain.NewHost(req.Subnet.NetworkID, req.IP.String())
		return deepscan.Outcome{Host: &host}, nil
	}

	req := Request{
		Subnets: []SubnetTarget{{Subnet: domain.Subnet{CIDR: "10.0.0.0/29"}}},
	}
	result := r.Run(context.Background(), req)
	if result.State != StateComplete {
		t.Fatalf("Run() State = %s, want complete", result.State)
	}

	if len(reporter.updates) == 0 {
		t.Fatal("no progress updates reported")
	}
	last := reporter.updates[len(reporter.updates)-1]
	if last.Percent != 100 || last.State != StateComplete {
		t.Errorf("final update = %+v, want Percent=100 State=complete", last)
	}
	for i := 1; i < len(reporter.updates); i++ {
		if reporter.updates[i].Percent < reporter.updates[i-1].Percent {
			t.Fatalf("progress decreased: updates[%d]=%d < updates[%d]=%d", i, reporter.updates[i].Percent, i-1, reporter.updates[i-1].Percent)
		}
	}
}

func TestRunWithNoCandidatesStillCompletesAfterGracePeriod(t *testing.T) {
	r, _ := newTestRunner(t)
	// An explicit, non-empty Subnets list that yields zero expandable
	// addresses keeps resolveSubnets from falling into its own-interface
	// enumeration branch (which would sweep this machine's real network).
	req := Request{Subnets: []SubnetTarget{{Subnet: domain.Subnet{CIDR: "2001:db8::/32"}}}}
	result := r.Run(context.Background(), req)
	if result.State != StateComplete {
		t.Fatalf("Run() State = %s, want complete", result.State)
	}
}
