package filter

import (
	"errors"
	"testing"

	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

func TestDecide(t *testing.T) {
	dns := domain.ParsedHeaders{Protocol: domain.ProtocolIPv4, Transport: domain.TransportUDP, DstPort: 53}
	blocked := domain.BlockDecision{Blocked: true, MatchedRule: "example.com", Source: "config"}
	name := domain.DNSQuestion{Name: "ads.example.com"}

	tests := []struct {
		name       string
		in         Inspection
		wantV      domain.Verdict
		wantReason domain.Reason
	}{
		{"not ipv4", Inspection{}, domain.VerdictAccept, domain.ReasonNotIPv4},
		{"not ipv4 ignores match", Inspection{Decision: blocked}, domain.VerdictAccept, domain.ReasonNotIPv4},
		{"tcp", Inspection{Headers: domain.ParsedHeaders{Protocol: domain.ProtocolIPv4}}, domain.VerdictAccept, domain.ReasonNotUDP},
		{"udp other port", Inspection{Headers: domain.ParsedHeaders{Protocol: domain.ProtocolIPv4, Transport: domain.TransportUDP, DstPort: 5353}}, domain.VerdictAccept, domain.ReasonNotDNS},
		{"source port 53 only", Inspection{Headers: domain.ParsedHeaders{Protocol: domain.ProtocolIPv4, Transport: domain.TransportUDP, SrcPort: 53, DstPort: 40000}}, domain.VerdictAccept, domain.ReasonNotDNS},
		{"sampled out", Inspection{Headers: dns, Skipped: true, Decision: blocked}, domain.VerdictAccept, domain.ReasonSampledOut},
		{"decode error", Inspection{Headers: dns, Question: domain.DNSQuestion{Err: errors.New("bad")}}, domain.VerdictAccept, domain.ReasonDecodeError},
		{"blocked", Inspection{Headers: dns, Question: name, Decision: blocked}, domain.VerdictDrop, domain.ReasonBlocked},
		{"allowed", Inspection{Headers: dns, Question: name}, domain.VerdictAccept, domain.ReasonAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, r := Decide(tt.in)
			if v != tt.wantV || r != tt.wantReason {
				t.Fatalf("Decide() = (%v, %v), want (%v, %v)", v, r, tt.wantV, tt.wantReason)
			}
		})
	}
}
