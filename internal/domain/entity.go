// Package domain holds the discovered-truth types the rest of netwalk
// passes around: subnets, hosts, and their children, plus the generic
// BufferedEntity wrapper that tracks a value from daemon-side discovery
// through server-side confirmation.
package domain

import "github.com/google/uuid"

// SubnetType classifies a discovered subnet's network topology.
type SubnetType string

const (
	SubnetPhysical     SubnetType = "physical"
	SubnetDockerBridge SubnetType = "docker-bridge"
	SubnetMacVlan      SubnetType = "macvlan"
	SubnetIPVlan       SubnetType = "ipvlan"
	SubnetUnknown      SubnetType = "unknown"
)

// Subnet is a discovered IPv4 range. CIDR prefix length must be >= 10;
// the session runner skips anything wider before it ever reaches here.
type Subnet struct {
	ID        uuid.UUID  `json:"id"`
	NetworkID uuid.UUID  `json:"network_id"`
	CIDR      string     `json:"cidr"`
	Type      SubnetType `json:"type"`
	Name      string     `json:"name,omitempty"`
	Source    string     `json:"source"`
}

// Transport is a port's transport-layer protocol.
type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// Port is a single open (host, number, transport) tuple. The tuple is
// unique per host: re-discovering the same port updates, never
// duplicates.
type Port struct {
	Number    int       `json:"number"`
	Transport Transport `json:"transport"`
	ServiceID *int      `json:"service_id,omitempty"`
}

// ServiceKind is drawn from a closed registry matched against discovery
// evidence (banner text, HTTP headers, port number conventions). See
// internal/deepscan's service matcher.
type ServiceKind string

const (
	ServiceHTTP       ServiceKind = "http"
	ServiceHTTPS      ServiceKind = "https"
	ServiceSSH        ServiceKind = "ssh"
	ServiceDNS        ServiceKind = "dns"
	ServiceNTP        ServiceKind = "ntp"
	ServiceSNMP       ServiceKind = "snmp"
	ServiceDHCP       ServiceKind = "dhcp"
	ServiceRDP        ServiceKind = "rdp"
	ServiceVNC        ServiceKind = "vnc"
	ServiceSMB        ServiceKind = "smb"
	ServiceMQTT       ServiceKind = "mqtt"
	ServiceUnknownTCP ServiceKind = "unknown-tcp"
	ServiceUnknownUDP ServiceKind = "unknown-udp"
)

// Evidence is a single observation backing a Service match: where it
// came from (port, header name, banner) and what was seen.
type Evidence struct {
	Source string `json:"source"` // "port", "header:server", "banner", "snmp-sysdescr"
	Value  string `json:"value"`
}

// Service is a typed binding derived from one or more ports on a host.
type Service struct {
	Kind      ServiceKind `json:"kind"`
	Name      string      `json:"name,omitempty"`
	PortNums  []int       `json:"port_nums"`
	Evidence  []Evidence  `json:"evidence,omitempty"`
}

// Interface is an IP/MAC pairing on a host within a subnet.
type Interface struct {
	SubnetID uuid.UUID `json:"subnet_id"`
	IP       string    `json:"ip"`
	MAC      string    `json:"mac,omitempty"`
	Name     string    `json:"name,omitempty"`
	Position int       `json:"position"`
}

// IfEntryStatus mirrors SNMP ifAdminStatus/ifOperStatus's up/down/testing.
type IfEntryStatus string

const (
	IfStatusUp      IfEntryStatus = "up"
	IfStatusDown    IfEntryStatus = "down"
	IfStatusTesting IfEntryStatus = "testing"
)

// NeighborRef is a weak, lookup-only reference to another IfEntry or to
// a Host when only partial neighbor resolution is possible. Resolution
// itself happens server-side; the daemon only emits raw LLDP/CDP fields
// plus whatever hint it can attach locally (e.g. a MAC it also saw via
// ARP on the same subnet).
type NeighborRef struct {
	IfEntryID *uuid.UUID `json:"if_entry_id,omitempty"`
	HostID    *uuid.UUID `json:"host_id,omitempty"`
}

// IfEntry is one row of a host's SNMP ifTable, enriched with raw
// LLDP-MIB/CDP-MIB neighbor fields where a walk succeeded.
type IfEntry struct {
	IfIndex     int           `json:"if_index"`
	Descr       string        `json:"descr,omitempty"`
	Alias       string        `json:"alias,omitempty"`
	Type        int           `json:"type"`
	SpeedBPS    uint64        `json:"speed_bps"`
	AdminStatus IfEntryStatus `json:"admin_status"`
	OperStatus  IfEntryStatus `json:"oper_status"`
	PhysAddress string        `json:"phys_address,omitempty"`

	// Raw LLDP/CDP fields, unresolved.
	LLDPRemoteSysName string `json:"lldp_remote_sys_name,omitempty"`
	LLDPRemotePortID  string `json:"lldp_remote_port_id,omitempty"`
	CDPRemoteDeviceID string `json:"cdp_remote_device_id,omitempty"`
	CDPRemotePortID   string `json:"cdp_remote_port_id,omitempty"`

	Neighbor *NeighborRef `json:"neighbor,omitempty"`
}

// VirtualizationInfo captures what little a passive prober can infer
// about whether a host is a VM, and of what kind.
type VirtualizationInfo struct {
	IsVirtual bool   `json:"is_virtual"`
	Platform  string `json:"platform,omitempty"` // "vmware", "kvm", "hyper-v", ...
}

// SNMPSystem holds the four classic sysObjectID-adjacent scalars.
type SNMPSystem struct {
	Descr    string `json:"descr,omitempty"`
	ObjectID string `json:"object_id,omitempty"`
	Location string `json:"location,omitempty"`
	Contact  string `json:"contact,omitempty"`
}

// Host is the composite record a Deep Scanner produces for one IP: the
// host record proper plus everything discovered underneath it.
type Host struct {
	ID             uuid.UUID           `json:"id"`
	NetworkID      uuid.UUID           `json:"network_id"`
	Name           string              `json:"name"`
	Hostname       string              `json:"hostname,omitempty"`
	Virtualization *VirtualizationInfo `json:"virtualization,omitempty"`
	SNMP           *SNMPSystem         `json:"snmp,omitempty"`
	Hidden         bool                `json:"hidden"`

	Interfaces []Interface `json:"interfaces,omitempty"`
	Ports      []Port      `json:"ports,omitempty"`
	Services   []Service   `json:"services,omitempty"`
	IfEntries  []IfEntry   `json:"if_entries,omitempty"`
}

// NewHost builds a Host with a fresh daemon-assigned pending ID. Child
// entities carry no host reference of their own; the composite is
// addressed as a whole, per spec's "placeholder host-id of nil" rule —
// the server assigns real linkage on create.
func NewHost(networkID uuid.UUID, name string) Host {
	return Host{
		ID:        uuid.New(),
		NetworkID: networkID,
		Name:      name,
	}
}

// NewSubnet builds a Subnet with a fresh daemon-assigned pending ID.
func NewSubnet(networkID uuid.UUID, cidr string, typ SubnetType, source string) Subnet {
	return Subnet{
		ID:        uuid.New(),
		NetworkID: networkID,
		CIDR:      cidr,
		Type:      typ,
		Source:    source,
	}
}
