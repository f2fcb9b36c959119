// Package wire locates the DNS question inside raw queued packets.
// It handles IPv4/UDP framing and the RFC 1035 question name encoding.
package wire

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

// Classify decodes the IPv4 and UDP headers of data.
//
// ok is false when data is not a decodable IPv4 packet. For IPv4 packets that
// are not UDP, are non-first fragments, or carry a truncated UDP header, the
// returned headers have Transport set to TransportOther. For UDP packets the
// Payload is a sub-slice of data.
func Classify(data []byte) (h domain.ParsedHeaders, ok bool) {
	if len(data) == 0 || data[0]>>4 != 4 {
		return domain.ParsedHeaders{}, false
	}

	var ip layers.IPv4
	if err := ip.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return domain.ParsedHeaders{}, false
	}
	h.Protocol = domain.ProtocolIPv4

	// Later fragments carry no transport header.
	if ip.Protocol != layers.IPProtocolUDP || ip.FragOffset != 0 {
		return h, true
	}

	var udp layers.UDP
	if err := udp.DecodeFromBytes(ip.Payload, gopacket.NilDecodeFeedback); err != nil {
		return h, true
	}
	h.Transport = domain.TransportUDP
	h.SrcPort = uint16(udp.SrcPort)
	h.DstPort = uint16(udp.DstPort)
	h.Payload = udp.Payload
	return h, true
}
