package blocklist

// CacheStats describes the decision cache. Counters are read without
// stopping lookups, so a snapshot may be slightly skewed between fields.
type CacheStats struct {
	Capacity  int // 0 when the cache is disabled
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRatio is Hits over lookups, or 0 before the first lookup.
func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// StoreStats describes the published rule snapshot.
type StoreStats struct {
	Version     uint64 // incremented on every start; 0 before the first publish
	UpdatedUnix int64
	Rules       uint64
}

// RepoStats combines cache and store stats with the time of the last
// successful UpdateAll.
type RepoStats struct {
	Cache      CacheStats
	Store      StoreStats
	LastUpdate int64 // unix seconds
}
