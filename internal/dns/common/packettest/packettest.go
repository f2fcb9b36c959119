// Package packettest builds wire-format packets for tests.
package packettest

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

var (
	SrcIP = net.IPv4(10, 0, 0, 2)
	DstIP = net.IPv4(10, 0, 0, 53)
)

// Query packs a standard A query for name.
func Query(t testing.TB, name string) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	m.Id = 0x1234
	b, err := m.Pack()
	require.NoError(t, err)
	return b
}

// RawQuestion builds a DNS payload with a zeroed 12-byte header followed by
// body as-is. It is used to craft malformed names the packer refuses.
func RawQuestion(body ...byte) []byte {
	out := make([]byte, 12, 12+len(body))
	out[5] = 1 // QDCOUNT
	return append(out, body...)
}

// Labels encodes labels as length-prefixed wire labels terminated by a zero byte.
func Labels(labels ...string) []byte {
	var out []byte
	for _, l := range labels {
		out = append(out, byte(len(l)))
		out = append(out, l...)
	}
	return append(out, 0)
}

// UDP serializes an IPv4/UDP packet carrying payload.
func UDP(t testing.TB, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    SrcIP,
		DstIP:    DstIP,
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ip, udp, gopacket.Payload(payload))
}

// DNSQuery is UDP to port 53 carrying a packed query for name.
func DNSQuery(t testing.TB, name string) []byte {
	t.Helper()
	return UDP(t, 40000, 53, Query(t, name))
}

// TCP serializes an IPv4/TCP SYN to dstPort.
func TCP(t testing.TB, dstPort uint16) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    SrcIP,
		DstIP:    DstIP,
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: layers.TCPPort(dstPort), SYN: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ip, tcp)
}

// IPv6UDP serializes an IPv6/UDP packet carrying payload.
func IPv6UDP(t testing.TB, dstPort uint16, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolUDP,
		SrcIP:      net.ParseIP("2001:db8::2"),
		DstIP:      net.ParseIP("2001:db8::53"),
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ip, udp, gopacket.Payload(payload))
}

// Fragment serializes a non-first IPv4 fragment of a UDP datagram.
func Fragment(t testing.TB, payload []byte) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:    4,
		TTL:        64,
		Protocol:   layers.IPProtocolUDP,
		SrcIP:      SrcIP,
		DstIP:      DstIP,
		FragOffset: 185,
	}
	return serialize(t, ip, gopacket.Payload(payload))
}

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}
