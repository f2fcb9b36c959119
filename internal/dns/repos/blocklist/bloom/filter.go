package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist"
)

// filter wraps a bits-and-blooms BloomFilter keyed by domain names.
// Add is not safe to call concurrently with MightContain: filters are filled
// completely before the repository publishes them, then only read.
type filter struct {
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key string) {
	f.bf.AddString(key)
}

func (f *filter) MightContain(key string) bool {
	return f.bf.TestString(key)
}

var _ blocklist.BloomFilter = (*filter)(nil)
