package arpscan

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func TestInterPacketPacing(t *testing.T) {
	if got := interPacketPacing(0); got != 0 {
		t.Errorf("interPacketPacing(0) = %v, want 0", got)
	}
	got := interPacketPacing(1000)
	want := time.Duration(1_000_000/1000) * time.Microsecond
	if got != want {
		t.Errorf("interPacketPacing(1000) = %v, want %v", got, want)
	}
}

func TestBuildRequestSerializesARPRequest(t *testing.T) {
	srcMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	srcIP := net.ParseIP("192.168.1.10")
	dstIP := net.ParseIP("192.168.1.20")

	frame, err := buildRequest(srcMAC, srcIP, dstIP)
	if err != nil {
		t.Fatalf("buildRequest() error = %v", err)
	}

	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		t.Fatal("expected an ARP layer in serialized frame")
	}
	arp := arpLayer.(*layers.ARP)
	if arp.Operation != layers.ARPRequest {
		t.Errorf("Operation = %v, want ARPRequest", arp.Operation)
	}
	if net.IP(arp.DstProtAddress).String() != dstIP.String() {
		t.Errorf("DstProtAddress = %v, want %v", net.IP(arp.DstProtAddress), dstIP)
	}
}

func TestParseReplyRejectsNonARP(t *testing.T) {
	srcMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	eth := layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	buf := gopacket.NewSerializeBuffer()
	_ = gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth)
	packet := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)

	if _, ok := parseReply(packet); ok {
		t.Error("parseReply() on a non-ARP packet, want ok = false")
	}
}

func TestParseReplyAcceptsARPReply(t *testing.T) {
	replyMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	replyIP := net.ParseIP("192.168.1.20").To4()
	askerMAC := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	askerIP := net.ParseIP("192.168.1.10").To4()

	eth := layers.Ethernet{SrcMAC: replyMAC, DstMAC: askerMAC, EthernetType: layers.EthernetTypeARP}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   replyMAC,
		SourceProtAddress: replyIP,
		DstHwAddress:      askerMAC,
		DstProtAddress:    askerIP,
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, &eth, &arp); err != nil {
		t.Fatalf("SerializeLayers() error = %v", err)
	}
	packet := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)

	hit, ok := parseReply(packet)
	if !ok {
		t.Fatal("parseReply() ok = false, want true")
	}
	if hit.IP.String() != "192.168.1.20" {
		t.Errorf("hit.IP = %v, want 192.168.1.20", hit.IP)
	}
	if hit.MAC.String() != replyMAC.String() {
		t.Errorf("hit.MAC = %v, want %v", hit.MAC, replyMAC)
	}
}
