package snmpwalk

import "testing"

func TestParseIfTableOID(t *testing.T) {
	idx, col, ok := parseIfTableOID(".1.3.6.1.2.1.2.2.1.2.5")
	if !ok {
		t.Fatal("parseIfTableOID() ok = false, want true")
	}
	if idx != 5 || col != ifDescrCol {
		t.Errorf("parseIfTableOID() = (%d, %d), want (5, %d)", idx, col, ifDescrCol)
	}
}

func TestParseIfTableOIDRejectsShort(t *testing.T) {
	if _, _, ok := parseIfTableOID(".1.2"); ok {
		t.Error("parseIfTableOID() on a too-short OID, want ok = false")
	}
}

func TestParseLLDPOID(t *testing.T) {
	port, isSysName, isPortID, ok := parseLLDPOID(".1.0.8802.1.1.2.1.4.1.1.7.0.3.1")
	if !ok {
		t.Fatal("parseLLDPOID() ok = false, want true")
	}
	if port != 3 {
		t.Errorf("localPort = %d, want 3", port)
	}
	if !isSysName || isPortID {
		t.Errorf("isSysName=%v isPortID=%v, want true/false", isSysName, isPortID)
	}
}

func TestParseCDPOID(t *testing.T) {
	idx, isDeviceID, isPortID, ok := parseCDPOID(".1.3.6.1.4.1.9.9.23.1.2.1.1.6.4.1")
	if !ok {
		t.Fatal("parseCDPOID() ok = false, want true")
	}
	if idx != 4 {
		t.Errorf("ifIndex = %d, want 4", idx)
	}
	if !isDeviceID || isPortID {
		t.Errorf("isDeviceID=%v isPortID=%v, want true/false", isDeviceID, isPortID)
	}
}
