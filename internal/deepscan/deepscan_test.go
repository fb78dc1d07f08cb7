package deepscan

import (
	"testing"

	"netwalk/internal/domain"
	"netwalk/internal/endpoint"
)

func TestRemainingPortsExcludesAlreadyOpen(t *testing.T) {
	already := map[int]bool{22: true, 80: true}
	remaining := remainingPorts(already)
	if len(remaining) != 65533 {
		t.Fatalf("len(remaining) = %d, want 65533", len(remaining))
	}
	for _, p := range remaining {
		if p == 22 || p == 80 {
			t.Fatalf("remainingPorts() included already-open port %d", p)
		}
	}
}

func TestEndpointCandidatesUnionsAndDedupes(t *testing.T) {
	open := map[int]bool{80: true, 443: true}
	candidates := endpointCandidates(open, []int{443, 8080})

	seen := make(map[int]int)
	for _, c := range candidates {
		seen[c.Port]++
	}
	if seen[443] != 1 {
		t.Errorf("port 443 appeared %d times, want 1 (deduped across open+endpoint-only)", seen[443])
	}
	if len(seen) != 3 {
		t.Errorf("len(candidates) = %d, want 3 distinct ports", len(seen))
	}
}

func TestMatchServicesAssignsWellKnownKind(t *testing.T) {
	services := matchServices(map[int]bool{22: true}, nil, nil)
	if len(services) != 1 {
		t.Fatalf("len(services) = %d, want 1", len(services))
	}
	if services[0].Kind != domain.ServiceSSH {
		t.Errorf("Kind = %s, want ssh", services[0].Kind)
	}
}

func TestMatchServicesUnknownPortFallsBackToUnknownTCP(t *testing.T) {
	services := matchServices(map[int]bool{54321: true}, nil, nil)
	if len(services) != 1 || services[0].Kind != domain.ServiceUnknownTCP {
		t.Fatalf("got %+v, want one unknown-tcp service", services)
	}
}

func TestMatchServicesEndpointEvidenceSetsName(t *testing.T) {
	results := []endpoint.Result{
		{Port: 80, Scheme: "http", Headers: map[string]string{"server": "nginx"}},
	}
	services := matchServices(map[int]bool{80: true}, nil, results)
	var http *domain.Service
	for i := range services {
		if services[i].Kind == domain.ServiceHTTP {
			http = &services[i]
		}
	}
	if http == nil {
		t.Fatal("no http service found")
	}
	if http.Name != "nginx" {
		t.Errorf("Name = %q, want nginx", http.Name)
	}
}

func TestStatusFromSNMP(t *testing.T) {
	cases := map[int]domain.IfEntryStatus{1: domain.IfStatusUp, 2: domain.IfStatusDown, 3: domain.IfStatusTesting, 99: domain.IfStatusDown}
	for in, want := range cases {
		if got := statusFromSNMP(in); got != want {
			t.Errorf("statusFromSNMP(%d) = %s, want %s", in, got, want)
		}
	}
}

func TestDisplayNameStripsDomainSuffix(t *testing.T) {
	if got := displayName("host1.lan.example.com", "10.0.0.5"); got != "host1" {
		t.Errorf("displayName() = %q, want host1", got)
	}
	if got := displayName("", "10.0.0.5"); got != "10.0.0.5" {
		t.Errorf("displayName() = %q, want 10.0.0.5", got)
	}
}
