package blocklist_test

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/utils"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist/bloom"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist/bolt"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist/lru"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist/memory"
)

func benchRules(n int, suffix string) []domain.BlockRule {
	out := make([]domain.BlockRule, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.BlockRule{
			Name:    fmt.Sprintf("p%05d.%s", i, suffix),
			Source:  "bench",
			AddedAt: time.Unix(1, 0),
		})
	}
	return out
}

func buildRepo(b *testing.B, st blocklist.Store, cacheSize int, rules []domain.BlockRule) blocklist.Repository {
	b.Helper()
	cache, err := lru.New(cacheSize)
	if err != nil {
		b.Fatalf("lru.New: %v", err)
	}
	repo := blocklist.NewRepository(blocklist.Options{
		Store:      st,
		Cache:      cache,
		Factory:    bloom.NewFactory(),
		FPRate:     0.01,
		Normalizer: utils.Normalizer{FoldCase: true, TrimTrailingDot: true},
	})
	if err := repo.UpdateAll(rules, 1, time.Now().Unix()); err != nil {
		b.Fatalf("UpdateAll: %v", err)
	}
	b.Cleanup(func() { _ = repo.Close() })
	return repo
}

func benchStores(b *testing.B) map[string]func() blocklist.Store {
	return map[string]func() blocklist.Store{
		"memory": func() blocklist.Store { return memory.New() },
		"bolt": func() blocklist.Store {
			st, err := bolt.New(filepath.Join(b.TempDir(), "bl.db"))
			if err != nil {
				b.Fatalf("bolt.New: %v", err)
			}
			return st
		},
	}
}

// Most queries miss the blocklist; the Bloom filter should answer them.
func BenchmarkRepo_Decide_BloomNegative(b *testing.B) {
	for name, mk := range benchStores(b) {
		b.Run(name, func(b *testing.B) {
			repo := buildRepo(b, mk(), 0, benchRules(10_000, "ads.test"))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if repo.Decide("www.allowed.example").Blocked {
					b.Fatal("unexpected block")
				}
			}
		})
	}
}

func BenchmarkRepo_Decide_CachedPositive(b *testing.B) {
	for name, mk := range benchStores(b) {
		b.Run(name, func(b *testing.B) {
			repo := buildRepo(b, mk(), 1024, benchRules(10_000, "ads.test"))
			q := "cdn.p00042.ads.test"
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if !repo.Decide(q).Blocked {
					b.Fatal("expected block")
				}
			}
		})
	}
}

func BenchmarkRepo_Decide_UncachedPositive(b *testing.B) {
	for name, mk := range benchStores(b) {
		b.Run(name, func(b *testing.B) {
			repo := buildRepo(b, mk(), 0, benchRules(10_000, "ads.test"))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				q := fmt.Sprintf("x.p%05d.ads.test", i%10_000)
				if !repo.Decide(q).Blocked {
					b.Fatal("expected block")
				}
			}
		})
	}
}

// Mixed traffic: roughly 10% blocked names, the rest allowed.
func BenchmarkRepo_Decide_MixedParallel(b *testing.B) {
	repo := buildRepo(b, memory.New(), 4096, benchRules(50_000, "ads.test"))
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := rand.IntN(50_000)
			if i%10 == 0 {
				_ = repo.Decide(fmt.Sprintf("p%05d.ads.test", i))
			} else {
				_ = repo.Decide(fmt.Sprintf("host%d.example.org", i))
			}
		}
	})
}
