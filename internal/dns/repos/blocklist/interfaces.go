package blocklist

import "github.com/haukened/nfq-dnsfilter/internal/dns/domain"

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// BloomFilter is the minimal interface the repository needs from Bloom filters.
// A filter is filled completely before it is published to readers.
type BloomFilter interface {
	Add(key string)
	MightContain(key string) bool
}

// BloomFactory builds filters sized for a dataset.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches block decisions by normalized name with basic metrics.
type DecisionCache interface {
	Get(name string) (domain.BlockDecision, bool)
	Put(name string, d domain.BlockDecision)
	Len() int
	Purge()
	Stats() CacheStats
}

// Store is the authoritative rule index.
//
// GetFirstMatch returns the most specific rule that name equals or is a
// subdomain of. RebuildAll replaces the whole rule set as one snapshot.
type Store interface {
	GetFirstMatch(name string) (domain.BlockRule, bool, error)
	RebuildAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error
	Stats() StoreStats
	Close() error
}

// Repository is the composition layer that wires bloom → cache → store.
// Decide returns a value-type BlockDecision for a query name; the name is
// normalized by the repository. UpdateAll rebuilds the store, refreshes the
// Bloom filter, and clears the cache.
type Repository interface {
	Decide(name string) domain.BlockDecision
	UpdateAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error
	RepoStats() RepoStats
	RuleCount() int
	CacheHits() uint64
	CacheMisses() uint64
	Close() error
}
