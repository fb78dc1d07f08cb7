package session

import (
	"testing"

	"netwalk/internal/domain"
)

func TestClassifySubnetType(t *testing.T) {
	cases := map[string]domain.SubnetType{
		"docker0":  domain.SubnetDockerBridge,
		"br-abcde": domain.SubnetDockerBridge,
		"macvlan0": domain.SubnetMacVlan,
		"ipvlan1":  domain.SubnetIPVlan,
		"eth0":     domain.SubnetPhysical,
		"en0":      domain.SubnetPhysical,
	}
	for name, want := range cases {
		if got := classifySubnetType(name); got != want {
			t.Errorf("classifySubnetType(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestExpandSubnetExcludesNetworkAndBroadcastForSlash24(t *testing.T) {
	ips, err := expandSubnet("10.0.0.0/24")
	if err != nil {
		t.Fatalf("expandSubnet() error = %v", err)
	}
	if len(ips) != 254 {
		t.Fatalf("len(ips) = %d, want 254", len(ips))
	}
	for _, ip := range ips {
		if ip.String() == "10.0.0.0" || ip.String() == "10.0.0.255" {
			t.Errorf("expandSubnet included network/broadcast address %s", ip)
		}
	}
}

func TestExpandSubnetWiderThanSlash24KeepsAllAddresses(t *testing.T) {
	ips, err := expandSubnet("10.0.0.0/23")
	if err != nil {
		t.Fatalf("expandSubnet() error = %v", err)
	}
	if len(ips) != 512 {
		t.Fatalf("len(ips) = %d, want 512 (no network/broadcast exclusion above /24)", len(ips))
	}
}

func TestExpandSubnetRejectsIPv6(t *testing.T) {
	if _, err := expandSubnet("2001:db8::/32"); err == nil {
		t.Fatal("expandSubnet() with an IPv6 CIDR returned nil error, want one")
	}
}

func TestExpandSubnetRejectsGarbage(t *testing.T) {
	if _, err := expandSubnet("not-a-cidr"); err == nil {
		t.Fatal("expandSubnet() with garbage input returned nil error, want one")
	}
}
