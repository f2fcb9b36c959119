package filter

import "github.com/haukened/nfq-dnsfilter/internal/dns/domain"

// Matcher decides whether a decoded question name is blocked.
type Matcher interface {
	Decide(name string) domain.BlockDecision
}

// RandomSource yields uniform values in [0, 1). Implementations must be safe
// for concurrent use.
type RandomSource interface {
	Float64() float64
}
