package session

import (
	"bytes"
	"net"
	"sort"
)

// tierForLastOctet buckets a target's last IPv4 octet into spec.md
// §4.7's scan-order tiers: gateway-likely addresses first, then common
// static ranges, then DHCP pools, reserved addresses last. The exact
// octet boundaries are an Open Question the spec leaves to
// implementation judgment (see DESIGN.md); they follow the common
// convention of low static addresses and a .50-.199 DHCP pool.
func tierForLastOctet(octet int) int {
	switch {
	case octet == 1 || octet == 254:
		return 0 // gateway-likely
	case octet >= 2 && octet <= 49:
		return 1 // common static range
	case octet >= 50 && octet <= 199:
		return 2 // DHCP pool range
	default:
		return 3 // reserved / broadcast-adjacent
	}
}

func lastOctet(ip net.IP) int {
	ip4 := ip.To4()
	if ip4 == nil {
		return 255
	}
	return int(ip4[3])
}

// orderCandidates sorts targets into scan order: by tier, then by
// address within a tier for determinism (spec.md §5's "scan order
// within a subnet is deterministic").
func orderCandidates(ips []net.IP) []net.IP {
	ordered := make([]net.IP, len(ips))
	copy(ordered, ips)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := tierForLastOctet(lastOctet(ordered[i])), tierForLastOctet(lastOctet(ordered[j]))
		if ti != tj {
			return ti < tj
		}
		return bytes.Compare(ordered[i].To4(), ordered[j].To4()) < 0
	})
	return ordered
}
