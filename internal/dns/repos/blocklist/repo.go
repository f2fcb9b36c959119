package blocklist

import (
	"sync"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/log"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/utils"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

// repository implements the Repository interface by composing a Store,
// a Bloom filter (via factory), and a DecisionCache. It applies a bloom → cache → store pipeline
// on reads and performs atomic snapshot updates on writes.
type repository struct {
	mu         sync.RWMutex
	store      Store
	cache      DecisionCache
	bloom      BloomFilter
	factory    BloomFactory
	fpRate     float64
	normalizer utils.Normalizer
	logger     log.Logger
	lastUpdate int64
}

// Options configures NewRepository.
type Options struct {
	Store   Store
	Cache   DecisionCache
	Factory BloomFactory
	// FPRate is the target false-positive rate for the Bloom filter when rebuilding.
	FPRate float64
	// Normalizer is applied to query names; rules must be normalized the same way when loaded.
	Normalizer utils.Normalizer
	Logger     log.Logger
}

// NewRepository constructs a Repository. Until UpdateAll succeeds the
// repository has no Bloom filter and every lookup reaches the store.
func NewRepository(opts Options) Repository {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &repository{
		store:      opts.Store,
		cache:      opts.Cache,
		factory:    opts.Factory,
		fpRate:     opts.FPRate,
		normalizer: opts.Normalizer,
		logger:     logger,
	}
}

// Decide returns a BlockDecision for the provided domain name.
// Policy: on internal errors, prefer Allow (not blocked).
func (r *repository) Decide(name string) domain.BlockDecision {
	cn := r.normalizer.Normalize(name)
	if cn == "" {
		return domain.NotBlocked()
	}
	// 1) checkBloom: early-allow if definitively negative
	if !r.checkBloom(cn) {
		return domain.NotBlocked()
	}
	// 2) checkCache
	if d, ok := r.checkCache(cn); ok {
		return d
	}
	// 3) checkStore
	dec := r.checkStore(cn)
	// 4) updateCache
	r.updateCache(cn, dec)
	return dec
}

// UpdateAll performs an atomic snapshot update across store, bloom, and cache.
func (r *repository) UpdateAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error {
	// 1) Rebuild the store first.
	if err := r.store.RebuildAll(rules, version, updatedUnix); err != nil {
		return err
	}

	// 2) Build a fresh Bloom filter sized for the dataset.
	bf := r.factory.New(uint64(len(rules)), r.fpRate)
	for _, ru := range rules {
		bf.Add(ru.Name)
	}

	// 3) Swap bloom and purge decision cache under lock.
	r.mu.Lock()
	r.bloom = bf
	r.cache.Purge()
	r.lastUpdate = updatedUnix
	r.mu.Unlock()

	r.logger.Info(map[string]any{"rules": len(rules), "version": version}, "blocklist loaded")
	return nil
}

// checkBloom returns true if we should consult the store (maybe-positive),
// or false if we can early-allow (definitely negative). If no bloom is loaded,
// returns true to allow authoritative checking.
func (r *repository) checkBloom(cn string) bool {
	r.mu.RLock()
	bf := r.bloom
	r.mu.RUnlock()
	if bf == nil {
		return true
	}
	maybe := false
	// test label-boundary suffixes, most-specific → TLD
	utils.WalkSuffixes(cn, func(s string) bool {
		maybe = bf.MightContain(s)
		return !maybe
	})
	return maybe
}

// checkCache returns a cached decision when present.
func (r *repository) checkCache(cn string) (domain.BlockDecision, bool) {
	r.mu.RLock()
	d, ok := r.cache.Get(cn)
	r.mu.RUnlock()
	return d, ok
}

// checkStore consults the authoritative store and materializes a decision.
// On any error or miss, returns Allow (NotBlocked).
func (r *repository) checkStore(cn string) domain.BlockDecision {
	rule, ok, err := r.store.GetFirstMatch(cn)
	if err != nil {
		r.logger.Warn(map[string]any{"name": cn, "error": err}, "blocklist store lookup failed, allowing")
		return domain.NotBlocked()
	}
	if ok {
		return domain.BlockedBy(rule)
	}
	return domain.NotBlocked()
}

// updateCache writes the final decision. The cache is internally synchronized;
// the read lock only orders Put against the Purge in UpdateAll.
func (r *repository) updateCache(cn string, dec domain.BlockDecision) {
	r.mu.RLock()
	r.cache.Put(cn, dec)
	r.mu.RUnlock()
}

// RepoStats returns cache and store counters.
func (r *repository) RepoStats() RepoStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RepoStats{
		Cache:      r.cache.Stats(),
		Store:      r.store.Stats(),
		LastUpdate: r.lastUpdate,
	}
}

// RuleCount reports the number of stored rules.
func (r *repository) RuleCount() int { return int(r.store.Stats().Rules) }

// CacheHits reports decision cache hits.
func (r *repository) CacheHits() uint64 { return r.RepoStats().Cache.Hits }

// CacheMisses reports decision cache misses.
func (r *repository) CacheMisses() uint64 { return r.RepoStats().Cache.Misses }

// Close releases the store.
func (r *repository) Close() error { return r.store.Close() }
