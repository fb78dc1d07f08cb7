package portscan

import "testing"

func TestRandomMACIsLocallyAdministeredUnicast(t *testing.T) {
	mac, err := randomMAC()
	if err != nil {
		t.Fatalf("randomMAC() error = %v", err)
	}
	if len(mac) != 6 {
		t.Fatalf("randomMAC() length = %d, want 6", len(mac))
	}
	if mac[0]&0x01 != 0 {
		t.Error("randomMAC() produced a multicast address, want unicast")
	}
	if mac[0]&0x02 == 0 {
		t.Error("randomMAC() did not set the locally-administered bit")
	}
}

func TestRandomMACIsRandomized(t *testing.T) {
	a, err := randomMAC()
	if err != nil {
		t.Fatalf("randomMAC() error = %v", err)
	}
	b, err := randomMAC()
	if err != nil {
		t.Fatalf("randomMAC() error = %v", err)
	}
	if a.String() == b.String() {
		t.Error("randomMAC() returned the same address twice in a row, want distinct")
	}
}
