package filter

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// globalRand draws from math/rand/v2's goroutine-safe top-level generator.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Sampler decides per packet whether a DNS query is inspected.
// Each call is an independent draw; a packet is skipped when the draw is
// below the skip probability.
type Sampler struct {
	skip float64
	src  RandomSource
}

// NewSampler returns a Sampler that skips with probability p in [0, 1].
// A nil src uses the package-level generator.
func NewSampler(p float64, src RandomSource) (*Sampler, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return nil, fmt.Errorf("skip probability %v out of range [0,1]", p)
	}
	if src == nil {
		src = globalRand{}
	}
	return &Sampler{skip: p, src: src}, nil
}

// Inspect reports whether the current packet should be inspected.
func (s *Sampler) Inspect() bool {
	switch {
	case s.skip <= 0:
		return true
	case s.skip >= 1:
		return false
	}
	return s.src.Float64() >= s.skip
}

// SkipProbability returns the configured p.
func (s *Sampler) SkipProbability() float64 { return s.skip }
