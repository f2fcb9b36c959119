package domain

import "errors"

// DNSPort is the UDP destination port that marks a packet as a DNS query.
const DNSPort uint16 = 53

// ErrQueueClosed is returned by a packet queue once it can no longer yield packets
// because it was closed or its source was exhausted. It signals a clean stop.
var ErrQueueClosed = errors.New("packet queue closed")

// RawPacket is a packet handed out by the verdict queue.
// ID correlates the packet with the verdict that must be returned for it.
// Data is owned by the packet and must not be modified after receive.
type RawPacket struct {
	ID   uint32
	Data []byte
}

// Protocol identifies the network layer of a packet.
type Protocol uint8

const (
	// ProtocolOther is anything that did not decode as IPv4.
	ProtocolOther Protocol = iota
	// ProtocolIPv4 marks a packet with a well-formed IPv4 header.
	ProtocolIPv4
)

// String returns a stable string representation of the protocol.
func (p Protocol) String() string {
	if p == ProtocolIPv4 {
		return "ipv4"
	}
	return "other"
}

// Transport identifies the transport layer carried by an IPv4 packet.
type Transport uint8

const (
	// TransportOther is any transport other than a decodable UDP header.
	TransportOther Transport = iota
	// TransportUDP marks a packet with a well-formed UDP header.
	TransportUDP
)

// String returns a stable string representation of the transport.
func (t Transport) String() string {
	if t == TransportUDP {
		return "udp"
	}
	return "other"
}

// ParsedHeaders is a read-only view over a RawPacket.
//
// Payload references the UDP payload inside the packet's own buffer; it is only
// valid while the RawPacket it was derived from is alive.
type ParsedHeaders struct {
	Protocol  Protocol
	Transport Transport
	SrcPort   uint16
	DstPort   uint16
	Payload   []byte
}

// IsUDP reports whether the headers describe an IPv4/UDP packet.
func (h ParsedHeaders) IsUDP() bool {
	return h.Protocol == ProtocolIPv4 && h.Transport == TransportUDP
}

// IsDNS reports whether the headers describe a UDP packet addressed to port 53.
func (h ParsedHeaders) IsDNS() bool {
	return h.IsUDP() && h.DstPort == DNSPort
}
