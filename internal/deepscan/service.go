package deepscan

import (
	"strconv"
	"strings"

	"netwalk/internal/domain"
	"netwalk/internal/endpoint"
	"netwalk/internal/snmpwalk"
)

// wellKnownPorts maps ports to a default ServiceKind, the fallback
// evidence source when no stronger signal (HTTP header, banner) is
// available, continuing the teacher's own wellKnownPorts table idiom
// in internal/adapter/nmap.go.
var wellKnownPorts = map[int]domain.ServiceKind{
	22:   domain.ServiceSSH,
	53:   domain.ServiceDNS,
	67:   domain.ServiceDHCP,
	80:   domain.ServiceHTTP,
	123:  domain.ServiceNTP,
	161:  domain.ServiceSNMP,
	443:  domain.ServiceHTTPS,
	445:  domain.ServiceSMB,
	1883: domain.ServiceMQTT,
	3389: domain.ServiceRDP,
	5900: domain.ServiceVNC,
	8080: domain.ServiceHTTP,
	8443: domain.ServiceHTTPS,
}

// matchServices builds the Service registry for one host from its open
// ports and endpoint evidence, per spec.md §4.6 step 7 ("feed open
// ports and endpoint responses into the Service registry to yield
// typed services with kinds").
func matchServices(openTCP, openUDP map[int]bool, endpointResults []endpoint.Result) []domain.Service {
	byKind := make(map[domain.ServiceKind]*domain.Service)

	addPort := func(port int, transport domain.Transport, kind domain.ServiceKind, evidence domain.Evidence) {
		svc, ok := byKind[kind]
		if !ok {
			svc = &domain.Service{Kind: kind}
			byKind[kind] = svc
		}
		svc.PortNums = appendUnique(svc.PortNums, port)
		svc.Evidence = append(svc.Evidence, evidence)
		_ = transport
	}

	for port := range openTCP {
		kind := wellKnownPorts[port]
		if kind == "" {
			kind = domain.ServiceUnknownTCP
		}
		addPort(port, domain.TransportTCP, kind, domain.Evidence{Source: "port", Value: strconv.Itoa(port)})
	}
	for port := range openUDP {
		kind := wellKnownPorts[port]
		if kind == "" {
			kind = domain.ServiceUnknownUDP
		}
		addPort(port, domain.TransportUDP, kind, domain.Evidence{Source: "port", Value: strconv.Itoa(port)})
	}

	for _, result := range endpointResults {
		kind := domain.ServiceHTTP
		if result.Scheme == "https" {
			kind = domain.ServiceHTTPS
		}
		svc, ok := byKind[kind]
		if !ok {
			svc = &domain.Service{Kind: kind}
			byKind[kind] = svc
		}
		svc.PortNums = appendUnique(svc.PortNums, result.Port)
		if server, ok := result.Headers["server"]; ok {
			svc.Evidence = append(svc.Evidence, domain.Evidence{Source: "header:server", Value: server})
			svc.Name = server
		}
	}

	services := make([]domain.Service, 0, len(byKind))
	for _, svc := range byKind {
		services = append(services, *svc)
	}
	return services
}

func appendUnique(ports []int, port int) []int {
	for _, p := range ports {
		if p == port {
			return ports
		}
	}
	return append(ports, port)
}

// buildHost assembles the composite host record spec.md §4.6 step 8
// describes: host + ports + services + if-entries, addressed as a
// whole with a daemon-assigned pending ID (child entities carry no
// separate host reference; the server links them on create).
func buildHost(req Request, hostname string, system snmpwalk.SystemInfo, openTCP, openUDP map[int]bool, ifEntries []snmpwalk.IfEntry, endpointResults []endpoint.Result) *domain.Host {
	host := domain.NewHost(req.Subnet.NetworkID, displayName(hostname, req.IP.String()))
	host.Hostname = hostname

	if system.Descr != "" || system.ObjectID != "" {
		host.SNMP = &domain.SNMPSystem{
			Descr:    system.Descr,
			ObjectID: system.ObjectID,
			Location: system.Location,
			Contact:  system.Contact,
		}
	}

	host.Interfaces = []domain.Interface{{
		SubnetID: req.Subnet.ID,
		IP:       req.IP.String(),
		MAC:      req.MAC,
		Position: 0,
	}}

	for port := range openTCP {
		host.Ports = append(host.Ports, domain.Port{Number: port, Transport: domain.TransportTCP})
	}
	for port := range openUDP {
		host.Ports = append(host.Ports, domain.Port{Number: port, Transport: domain.TransportUDP})
	}

	host.Services = matchServices(openTCP, openUDP, endpointResults)

	for _, e := range ifEntries {
		host.IfEntries = append(host.IfEntries, domain.IfEntry{
			IfIndex:           e.Index,
			Descr:             e.Descr,
			Type:              e.Type,
			SpeedBPS:          e.Speed,
			AdminStatus:       statusFromSNMP(e.AdminStatus),
			OperStatus:        statusFromSNMP(e.OperStatus),
			PhysAddress:       e.PhysAddress,
			LLDPRemoteSysName: e.LLDPRemoteSysName,
			LLDPRemotePortID:  e.LLDPRemotePortID,
			CDPRemoteDeviceID: e.CDPDeviceID,
			CDPRemotePortID:   e.CDPPortID,
		})
	}

	return &host
}

func displayName(hostname, ip string) string {
	if hostname != "" {
		if idx := strings.Index(hostname, "."); idx > 0 {
			return hostname[:idx]
		}
		return hostname
	}
	return ip
}

// statusFromSNMP maps RFC 1213 ifAdminStatus/ifOperStatus integers
// (1=up, 2=down, 3=testing) to domain.IfEntryStatus.
func statusFromSNMP(value int) domain.IfEntryStatus {
	switch value {
	case 1:
		return domain.IfStatusUp
	case 3:
		return domain.IfStatusTesting
	default:
		return domain.IfStatusDown
	}
}
