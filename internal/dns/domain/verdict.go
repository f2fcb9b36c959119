package domain

import "fmt"

// Verdict is the decision returned to the kernel for a queued packet.
type Verdict uint8

const (
	// VerdictAccept lets the packet continue through the kernel path.
	VerdictAccept Verdict = iota
	// VerdictDrop discards the packet.
	VerdictDrop
)

// String returns a stable string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "accept"
	case VerdictDrop:
		return "drop"
	default:
		return fmt.Sprintf("Verdict(%d)", v)
	}
}

// Reason records which branch of the filtering pipeline produced a verdict.
// Values are stable strings so they can be used as log fields and metric labels.
type Reason string

const (
	ReasonNotIPv4     Reason = "not_ipv4"
	ReasonNotUDP      Reason = "not_udp"
	ReasonNotDNS      Reason = "not_dns"
	ReasonSampledOut  Reason = "sampled_out"
	ReasonDecodeError Reason = "decode_error"
	ReasonBlocked     Reason = "blocked"
	ReasonAllowed     Reason = "allowed"
	ReasonPanic       Reason = "panic"
	ReasonShed        Reason = "shed"
)
