package lru

import (
	"strconv"
	"testing"

	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

func blockedBy(name string) domain.BlockDecision {
	return domain.BlockedBy(domain.BlockRule{Name: name, Source: "config"})
}

func BenchmarkCache_Hit(b *testing.B) {
	c, err := New(1024)
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	c.Put("pixel.tracker.example.com", blockedBy("tracker.example.com"))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := c.Get("pixel.tracker.example.com"); !ok {
			b.Fatal("unexpected miss")
		}
	}
}

func BenchmarkCache_Miss(b *testing.B) {
	c, err := New(1024)
	if err != nil {
		b.Fatalf("New: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := c.Get("www.example.org"); ok {
			b.Fatal("unexpected hit")
		}
	}
}

// Small cache under a stream of distinct names: every Put evicts.
func BenchmarkCache_Churn(b *testing.B) {
	c, err := New(64)
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	names := make([]string, 4096)
	for i := range names {
		names[i] = "host" + strconv.Itoa(i) + ".cdn.example.net"
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := names[i%len(names)]
		if _, ok := c.Get(n); !ok {
			c.Put(n, domain.NotBlocked())
		}
	}
}

// Workers share one cache; 80% of lookups hit.
func BenchmarkCache_ParallelMixed(b *testing.B) {
	c, err := New(10_000)
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	for i := 0; i < 8_000; i++ {
		n := "q" + strconv.Itoa(i) + ".example.com"
		if i%2 == 0 {
			c.Put(n, blockedBy("example.com"))
		} else {
			c.Put(n, domain.NotBlocked())
		}
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%5 == 0 {
				_, _ = c.Get("miss" + strconv.Itoa(i) + ".example.org")
			} else {
				_, _ = c.Get("q" + strconv.Itoa(i%8_000) + ".example.com")
			}
			i++
		}
	})
}
