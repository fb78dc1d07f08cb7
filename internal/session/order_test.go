package session

import (
	"net"
	"testing"
)

func TestTierForLastOctet(t *testing.T) {
	cases := map[int]int{
		1:   0,
		254: 0,
		2:   1,
		49:  1,
		50:  2,
		199: 2,
		200: 3,
		255: 3,
		0:   3,
	}
	for octet, want := range cases {
		if got := tierForLastOctet(octet); got != want {
			t.Errorf("tierForLastOctet(%d) = %d, want %d", octet, got, want)
		}
	}
}

func TestOrderCandidatesSortsByTierThenAddress(t *testing.T) {
	ips := []net.IP{
		net.ParseIP("10.0.0.200"),
		net.ParseIP("10.0.0.1"),
		net.ParseIP("10.0.0.60"),
		net.ParseIP("10.0.0.2"),
		net.ParseIP("10.0.0.254"),
	}
	ordered := orderCandidates(ips)

	want := []string{"10.0.0.1", "10.0.0.254", "10.0.0.2", "10.0.0.60", "10.0.0.200"}
	if len(ordered) != len(want) {
		t.Fatalf("len(ordered) = %d, want %d", len(ordered), len(want))
	}
	for i, ip := range ordered {
		if ip.String() != want[i] {
			t.Errorf("ordered[%d] = %s, want %s", i, ip, want[i])
		}
	}
}

func TestOrderCandidatesIsDeterministic(t *testing.T) {
	ips := []net.IP{
		net.ParseIP("10.0.0.90"),
		net.ParseIP("10.0.0.30"),
		net.ParseIP("10.0.0.5"),
		net.ParseIP("10.0.0.1"),
	}
	first := orderCandidates(ips)
	second := orderCandidates(ips)
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("orderCandidates is not deterministic: run1[%d]=%s run2[%d]=%s", i, first[i], i, second[i])
		}
	}
}
