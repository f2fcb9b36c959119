// Package memory holds the blocklist in a map for the lifetime of the process.
package memory

import (
	"sync/atomic"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/utils"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist"
)

type snapshot struct {
	rules       map[string]domain.BlockRule
	version     uint64
	updatedUnix int64
}

// memoryStore implements blocklist.Store over an immutable map snapshot that
// is swapped atomically on RebuildAll.
type memoryStore struct {
	snap atomic.Pointer[snapshot]
}

// New returns an empty store.
func New() blocklist.Store {
	s := &memoryStore{}
	s.snap.Store(&snapshot{rules: map[string]domain.BlockRule{}})
	return s
}

func (s *memoryStore) GetFirstMatch(name string) (domain.BlockRule, bool, error) {
	rules := s.snap.Load().rules
	var (
		found domain.BlockRule
		ok    bool
	)
	utils.WalkSuffixes(name, func(suffix string) bool {
		found, ok = rules[suffix]
		return !ok
	})
	return found, ok, nil
}

func (s *memoryStore) RebuildAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error {
	m := make(map[string]domain.BlockRule, len(rules))
	for _, r := range rules {
		if _, dup := m[r.Name]; dup {
			continue
		}
		m[r.Name] = r
	}
	s.snap.Store(&snapshot{rules: m, version: version, updatedUnix: updatedUnix})
	return nil
}

func (s *memoryStore) Stats() blocklist.StoreStats {
	snap := s.snap.Load()
	return blocklist.StoreStats{
		Version:     snap.version,
		UpdatedUnix: snap.updatedUnix,
		Rules:       uint64(len(snap.rules)),
	}
}

func (s *memoryStore) Close() error { return nil }

var _ blocklist.Store = (*memoryStore)(nil)
