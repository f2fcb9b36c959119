// Package scheduler runs the receive → inspect → verdict loop with a
// configurable concurrency strategy.
package scheduler

import (
	"errors"
	"fmt"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/log"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/metrics"
)

// Strategy names a concurrency strategy.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategySpawn      Strategy = "spawn"
	StrategyPool       Strategy = "pool"
	StrategyDispatch   Strategy = "dispatch"
)

// Backpressure selects what the dispatch strategy does with a packet when
// its backlog is full.
type Backpressure string

const (
	// BackpressureBlock stops receiving until a worker frees a slot.
	BackpressureBlock Backpressure = "block"
	// BackpressureBypass accepts the packet without inspecting it.
	BackpressureBypass Backpressure = "bypass"
	// BackpressureDrop drops the packet without inspecting it.
	BackpressureDrop Backpressure = "drop"
)

// Options configures New. Queue and Processor are required.
type Options struct {
	Strategy     Strategy
	Workers      int
	Backlog      int
	Backpressure Backpressure
	Queue        Queue
	Processor    Processor
	Recorder     metrics.Recorder
	Logger       log.Logger
}

// New builds the Runner for opts.Strategy.
func New(opts Options) (Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("scheduler requires a queue")
	}
	if opts.Processor == nil {
		return nil, errors.New("scheduler requires a processor")
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	g := &guard{q: opts.Queue, proc: opts.Processor, recorder: opts.Recorder, logger: opts.Logger}

	switch opts.Strategy {
	case StrategySequential:
		return &sequential{g: g}, nil
	case StrategySpawn:
		return &spawn{g: g}, nil
	case StrategyPool:
		if opts.Workers < 1 {
			return nil, fmt.Errorf("pool strategy needs at least one worker, got %d", opts.Workers)
		}
		return &pool{g: g, workers: opts.Workers}, nil
	case StrategyDispatch:
		if opts.Workers < 1 {
			return nil, fmt.Errorf("dispatch strategy needs at least one worker, got %d", opts.Workers)
		}
		if opts.Backlog < 1 {
			return nil, fmt.Errorf("dispatch strategy needs a backlog of at least one, got %d", opts.Backlog)
		}
		bp := opts.Backpressure
		if bp == "" {
			bp = BackpressureBlock
		}
		switch bp {
		case BackpressureBlock, BackpressureBypass, BackpressureDrop:
		default:
			return nil, fmt.Errorf("unknown backpressure mode %q", bp)
		}
		return &dispatch{g: g, workers: opts.Workers, backlog: opts.Backlog, backpressure: bp}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", opts.Strategy)
	}
}
