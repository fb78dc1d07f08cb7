package budgeter

import "testing"

func TestEstimatedFDUsage(t *testing.T) {
	ops := PipelineOps{
		ARPSubnetCount:                2,
		NonInterfacedScanConcurrency:  10,
		DiscoveryPortsCount:           7,
		PortScanBatchSize:             20,
		DeepScanConcurrency:           15,
		DeepScanBatchSize:             100,
	}

	got := ops.EstimatedFDUsage()
	// arp: 2*2=4; non-interfaced: 10*min(20,7)=70; tcp: 15*100=1500;
	// endpoint: 15*min(50,50)=750; udp: 15*10=150 => 4+70+1500+750+150=2474
	want := 2474
	if got != want {
		t.Errorf("EstimatedFDUsage() = %d, want %d", got, want)
	}
}

func TestTargetConcurrentHostsTiers(t *testing.T) {
	tests := []struct {
		available int
		want      int
	}{
		{100, 5},
		{499, 5},
		{500, 15},
		{1999, 15},
		{2000, 30},
		{4999, 30},
		{5000, 50},
		{100000, 50},
	}
	for _, tt := range tests {
		if got := targetConcurrentHostsForAvailable(tt.available); got != tt.want {
			t.Errorf("targetConcurrentHostsForAvailable(%d) = %d, want %d", tt.available, got, tt.want)
		}
	}
}

func TestOptimalConcurrentScansRespectsOverride(t *testing.T) {
	params, err := OptimalConcurrentScans(8, 300)
	if err != nil {
		t.Fatalf("OptimalConcurrentScans() error = %v", err)
	}
	if params.ConcurrentScans != 8 {
		t.Errorf("ConcurrentScans = %d, want 8 (user override)", params.ConcurrentScans)
	}
}

func TestOptimalConcurrentScansAutomaticIsBounded(t *testing.T) {
	params, err := OptimalConcurrentScans(defaultConcurrencySentinel, 300)
	if err != nil {
		t.Fatalf("OptimalConcurrentScans() error = %v", err)
	}
	if params.ConcurrentScans < 1 || params.ConcurrentScans > 50 {
		t.Errorf("ConcurrentScans = %d, want in [1, 50]", params.ConcurrentScans)
	}
	if params.PortBatchSize < 10 || params.PortBatchSize > 200 {
		t.Errorf("PortBatchSize = %d, want in [10, 200]", params.PortBatchSize)
	}
}

func TestRaiseNeverLowers(t *testing.T) {
	prev := ConcurrencyParams{ConcurrentScans: 40, PortBatchSize: 150}
	// Force a low automatic result by using a tiny port batch override,
	// which still must not lower the previous concurrency.
	next, err := Raise(prev, defaultConcurrencySentinel, 10)
	if err != nil {
		t.Fatalf("Raise() error = %v", err)
	}
	if next.ConcurrentScans < prev.ConcurrentScans {
		t.Errorf("Raise() ConcurrentScans = %d, want >= %d", next.ConcurrentScans, prev.ConcurrentScans)
	}
	if next.PortBatchSize < prev.PortBatchSize {
		t.Errorf("Raise() PortBatchSize = %d, want >= %d", next.PortBatchSize, prev.PortBatchSize)
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(5, 10, 200); got != 10 {
		t.Errorf("clamp(5, 10, 200) = %d, want 10", got)
	}
	if got := clamp(300, 10, 200); got != 200 {
		t.Errorf("clamp(300, 10, 200) = %d, want 200", got)
	}
	if got := clamp(50, 10, 200); got != 50 {
		t.Errorf("clamp(50, 10, 200) = %d, want 50", got)
	}
}
