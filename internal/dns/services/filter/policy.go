package filter

import "github.com/haukened/nfq-dnsfilter/internal/dns/domain"

// Inspection collects what the pipeline learned about one packet.
// Later fields are only meaningful when the earlier stages let the packet through.
type Inspection struct {
	Headers  domain.ParsedHeaders
	Skipped  bool
	Question domain.DNSQuestion
	Decision domain.BlockDecision
}

// Decide maps an inspection to a verdict. Only a successful match drops;
// every other outcome, including errors, accepts.
func Decide(in Inspection) (domain.Verdict, domain.Reason) {
	switch {
	case in.Headers.Protocol != domain.ProtocolIPv4:
		return domain.VerdictAccept, domain.ReasonNotIPv4
	case in.Headers.Transport != domain.TransportUDP:
		return domain.VerdictAccept, domain.ReasonNotUDP
	case in.Headers.DstPort != domain.DNSPort:
		return domain.VerdictAccept, domain.ReasonNotDNS
	case in.Skipped:
		return domain.VerdictAccept, domain.ReasonSampledOut
	case !in.Question.OK():
		return domain.VerdictAccept, domain.ReasonDecodeError
	case in.Decision.IsBlocked():
		return domain.VerdictDrop, domain.ReasonBlocked
	default:
		return domain.VerdictAccept, domain.ReasonAllowed
	}
}
