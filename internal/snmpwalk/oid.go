package snmpwalk

import (
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// ifTable column numbers under .1.3.6.1.2.1.2.2.1.
const (
	ifDescrCol       = 2
	ifTypeCol        = 3
	ifSpeedCol       = 5
	ifPhysAddressCol = 6
	ifAdminStatusCol = 7
	ifOperStatusCol  = 8
)

// parseIfTableOID splits an ifEntry OID (…2.2.1.<col>.<ifIndex>) into
// its column and index.
func parseIfTableOID(oid string) (index int, column int, ok bool) {
	parts := strings.Split(strings.TrimPrefix(oid, "."), ".")
	// ifEntry itself is nine arcs (1.3.6.1.2.1.2.2.1); <col>.<ifIndex>
	// follow it.
	if len(parts) < 11 {
		return 0, 0, false
	}
	col, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, 0, false
	}
	idx, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, 0, false
	}
	return idx, col, true
}

func applyIfField(entry *IfEntry, column int, pdu gosnmp.SnmpPDU) {
	switch column {
	case ifDescrCol:
		entry.Descr = stringValue(pdu)
	case ifTypeCol:
		entry.Type = intValue(pdu)
	case ifSpeedCol:
		entry.Speed = uint64(intValue(pdu))
	case ifPhysAddressCol:
		entry.PhysAddress = stringValue(pdu)
	case ifAdminStatusCol:
		entry.AdminStatus = intValue(pdu)
	case ifOperStatusCol:
		entry.OperStatus = intValue(pdu)
	}
}

// lldpRemSysName (.7) and lldpRemPortId (.8) live under
// lldpRemEntry (.1.0.8802.1.1.2.1.4.1.1), indexed by
// (timeMark, lldpRemLocalPortNum, lldpRemIndex).
const (
	lldpColSysName = 7
	lldpColPortID  = 8
)

// parseLLDPOID reads the trailing <column>.<timeMark>.<localPort>.
// <remIndex> suffix of an lldpRemEntry OID.
func parseLLDPOID(oid string) (localPort int, isSysName, isPortID bool, ok bool) {
	parts := strings.Split(strings.TrimPrefix(oid, "."), ".")
	if len(parts) < 4 {
		return 0, false, false, false
	}
	col, err := strconv.Atoi(parts[len(parts)-4])
	if err != nil {
		return 0, false, false, false
	}
	port, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, false, false, false
	}
	return port, col == lldpColSysName, col == lldpColPortID, true
}

// cdpCacheEntry columns: deviceId (.6), devicePort (.7), indexed by
// (ifIndex, cacheEntry).
const (
	cdpColDeviceID = 6
	cdpColPortID   = 7
)

func parseCDPOID(oid string) (ifIndex int, isDeviceID, isPortID bool, ok bool) {
	parts := strings.Split(strings.TrimPrefix(oid, "."), ".")
	if len(parts) < 3 {
		return 0, false, false, false
	}
	col, err := strconv.Atoi(parts[len(parts)-3])
	if err != nil {
		return 0, false, false, false
	}
	idx, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, false, false, false
	}
	return idx, col == cdpColDeviceID, col == cdpColPortID, true
}

func intValue(pdu gosnmp.SnmpPDU) int {
	switch v := pdu.Value.(type) {
	case int:
		return v
	case uint:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	default:
		return 0
	}
}
