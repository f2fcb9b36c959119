package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/packettest"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

func TestClassify_DNSQuery(t *testing.T) {
	query := packettest.Query(t, "www.example.com")
	data := packettest.UDP(t, 40000, 53, query)

	h, ok := Classify(data)
	require.True(t, ok)
	assert.Equal(t, domain.ProtocolIPv4, h.Protocol)
	assert.Equal(t, domain.TransportUDP, h.Transport)
	assert.Equal(t, uint16(40000), h.SrcPort)
	assert.Equal(t, uint16(53), h.DstPort)
	assert.True(t, h.IsDNS())
	assert.Equal(t, query, h.Payload)

	// The payload aliases the packet buffer.
	require.NotEmpty(t, h.Payload)
	assert.Same(t, &data[len(data)-len(query)], &h.Payload[0])
}

func TestClassify(t *testing.T) {
	full := packettest.UDP(t, 40000, 53, []byte("payload"))
	badIHL := append([]byte(nil), full...)
	badIHL[0] = 0x44

	tests := []struct {
		name      string
		data      []byte
		wantOK    bool
		transport domain.Transport
		dns       bool
	}{
		{"udp other port", packettest.UDP(t, 40000, 5353, []byte("x")), true, domain.TransportUDP, false},
		{"udp from port 53", packettest.UDP(t, 53, 40000, []byte("x")), true, domain.TransportUDP, false},
		{"tcp to 53", packettest.TCP(t, 53), true, domain.TransportOther, false},
		{"non-first fragment", packettest.Fragment(t, []byte("0123456789abcdef")), true, domain.TransportOther, false},
		{"truncated udp header", full[:24], true, domain.TransportOther, false},
		{"ipv6", packettest.IPv6UDP(t, 53, []byte("x")), false, domain.TransportOther, false},
		{"empty", nil, false, domain.TransportOther, false},
		{"short ipv4 header", full[:10], false, domain.TransportOther, false},
		{"bad ihl", badIHL, false, domain.TransportOther, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ok := Classify(tt.data)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.transport, h.Transport)
			assert.Equal(t, tt.dns, h.IsDNS())
			if !ok {
				assert.Equal(t, domain.ProtocolOther, h.Protocol)
			}
		})
	}
}

func TestClassify_EmptyUDPPayload(t *testing.T) {
	h, ok := Classify(packettest.UDP(t, 40000, 53, nil))
	require.True(t, ok)
	assert.True(t, h.IsDNS())
	assert.Empty(t, h.Payload)
}

func BenchmarkClassify(b *testing.B) {
	data := packettest.DNSQuery(b, "www.example.com")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Classify(data)
	}
}
