package portscan

import (
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/beevik/ntp"
	"github.com/gosnmp/gosnmp"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/miekg/dns"
)

// MaxUDPConcurrency caps concurrent UDP probes regardless of the
// general scan batch size, per spec.md §4.4 ("concurrency capped at 10
// regardless of general batch size").
const MaxUDPConcurrency = 10

// udpProbeTimeout bounds the DNS resolver probe, the one UDP protocol
// here with no longer timeout named in spec.md §5.
const udpProbeTimeout = 800 * time.Millisecond

// protocolProbeTimeout bounds each SNTP query and each SNMP GET, per
// spec.md §5's Timeouts line ("SNMP get 2 s; SNTP 2 s").
const protocolProbeTimeout = 2 * time.Second

// dhcpAttemptTimeout bounds each individual DHCP receive window;
// dhcpMaxAttempts caps how many discover/receive rounds ProbeDHCP
// runs, per spec.md §5 ("DHCP recv 2 s x up to 3 attempts").
const dhcpAttemptTimeout = 2 * time.Second
const dhcpMaxAttempts = 3

// ProbeDNS reports whether ip:53 resolves a well-known name, per
// spec.md §4.4 ("resolver lookup of a known name; success ⇒ open").
// Grounded on miekg/dns's low-level dns.Client, a library the wider
// retrieval pack already carries (not a teacher dependency); ProbeDNS
// is its only user here, since reverse lookups go through net.Resolver.
func ProbeDNS(ctx context.Context, ip net.IP) bool {
	client := &dns.Client{Timeout: udpProbeTimeout}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn("example.com"), dns.TypeA)

	addr := net.JoinHostPort(ip.String(), "53")
	resp, _, err := client.ExchangeContext(ctx, msg, addr)
	return err == nil && resp != nil
}

// ProbeNTP reports whether ip:123 answers an SNTP query with a
// plausible (non-zero) timestamp, per spec.md §4.4.
func ProbeNTP(ip net.IP) bool {
	resp, err := ntp.QueryWithOptions(ip.String(), ntp.QueryOptions{Timeout: protocolProbeTimeout})
	if err != nil || resp == nil {
		return false
	}
	return !resp.Time.IsZero()
}

// ProbeSNMP reports whether ip:161 answers a v2c GET of sysDescr.0
// with any varbind, per spec.md §4.4.
func ProbeSNMP(ip net.IP, community string) bool {
	if community == "" {
		community = "public"
	}
	client := &gosnmp.GoSNMP{
		Target:    ip.String(),
		Port:      161,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   protocolProbeTimeout,
		Retries:   0,
	}
	if err := client.Connect(); err != nil {
		return false
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{".1.3.6.1.2.1.1.1.0"})
	if err != nil || result == nil {
		return false
	}
	return len(result.Variables) > 0
}

// ProbeDHCP sends a DISCOVER to a candidate gateway and reports
// whether an OFFER or ACK with a matching transaction ID arrives, per
// spec.md §4.4 ("only if target is a routing gateway... matching XID
// from the target IP ⇒ open"). Callers are responsible for restricting
// this probe to addresses already believed to be gateways — the broad
// DHCP broadcast this implies is not safe to run against every host.
func ProbeDHCP(ctx context.Context, iface string, targetIP net.IP) (bool, error) {
	conn, err := net.ListenPacket("udp4", ":68")
	if err != nil {
		return false, fmt.Errorf("listen for dhcp replies: %w", err)
	}
	defer conn.Close()

	hwAddr, err := randomMAC()
	if err != nil {
		return false, err
	}

	discover, err := dhcpv4.NewDiscovery(hwAddr)
	if err != nil {
		return false, fmt.Errorf("build dhcp discover: %w", err)
	}
	xid := discover.TransactionID

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: 67}
	pc := conn.(*net.UDPConn)
	if _, err := pc.WriteTo(discover.ToBytes(), broadcastAddr); err != nil {
		return false, fmt.Errorf("broadcast dhcp discover: %w", err)
	}

	unicastAddr := &net.UDPAddr{IP: targetIP, Port: 67}
	if _, err := pc.WriteTo(discover.ToBytes(), unicastAddr); err != nil {
		return false, nil //nolint:nilerr // unicast is best-effort, broadcast already sent
	}

	return waitForDHCPReply(ctx, pc, targetIP, xid, dhcpMaxAttempts)
}

// waitForDHCPReply reads up to maxAttempts times, each bounded by its
// own dhcpAttemptTimeout deadline, continuing past a reply that
// doesn't match targetIP/xid rather than giving up on it, per
// spec.md §5 ("recv 2 s x up to 3 attempts").
func waitForDHCPReply(ctx context.Context, pc *net.UDPConn, targetIP net.IP, xid dhcpv4.TransactionID, maxAttempts int) (bool, error) {
	buf := make([]byte, 1500)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return false, nil
		}
		_ = pc.SetReadDeadline(time.Now().Add(dhcpAttemptTimeout))
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return false, nil
		}
		udpFrom, ok := from.(*net.UDPAddr)
		if !ok || !udpFrom.IP.Equal(targetIP) {
			continue
		}
		reply, err := dhcpv4.FromBytes(buf[:n])
		if err != nil {
			continue
		}
		if reply.TransactionID != xid {
			continue
		}
		switch reply.MessageType() {
		case dhcpv4.MessageTypeOffer, dhcpv4.MessageTypeAck:
			return true, nil
		}
	}
	return false, nil
}

func randomMAC() (net.HardwareAddr, error) {
	buf := make([]byte, 6)
	if _, err := cryptorand.Read(buf); err != nil {
		return nil, err
	}
	buf[0] = (buf[0] | 0x02) & 0xfe // locally administered, unicast
	return net.HardwareAddr(buf), nil
}
