package bloom

import (
	"math"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist"
)

// defaultFPRate applies when the configured rate is outside (0,1).
const defaultFPRate = 0.01

// sizer implements blocklist.BloomSizer on top of bitsbloom.EstimateParameters.
// An empty rule set is sized as one rule so the filter is never zero-width.
type sizer struct{}

// NewSizer returns a BloomSizer implementation.
func NewSizer() blocklist.BloomSizer { return sizer{} }

func (sizer) Size(rules uint64, fpRate float64) (uint64, uint8) {
	if rules == 0 {
		rules = 1
	}
	if !(fpRate > 0 && fpRate < 1) {
		fpRate = defaultFPRate
	}
	m, k := bitsbloom.EstimateParameters(uint(rules), fpRate)
	m = max(m, 1)
	k = min(max(k, 1), math.MaxUint8)
	return uint64(m), uint8(k)
}
