package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

// sequential handles one packet at a time on the calling goroutine.
type sequential struct{ g *guard }

func (s *sequential) Run(ctx context.Context) error {
	for {
		pkt, err := s.g.receive(ctx)
		if err != nil {
			return stopError(ctx, err)
		}
		s.g.handle(pkt)
	}
}

// spawn starts one goroutine per packet. The number of goroutines is not
// bounded.
type spawn struct{ g *guard }

func (s *spawn) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		pkt, err := s.g.receive(ctx)
		if err != nil {
			return stopError(ctx, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.g.handle(pkt)
		}()
	}
}

// pool runs a fixed number of workers that each receive, process and send.
// Every worker takes the receive lock again for each packet and the verdict
// lock again for each verdict, so workers overlap only while inspecting.
// dispatch separates receiving and sending from the workers instead.
type pool struct {
	g       *guard
	workers int
}

func (p *pool) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		eg.Go(func() error {
			for {
				pkt, err := p.g.receive(ctx)
				if err != nil {
					return stopError(ctx, err)
				}
				p.g.handle(pkt)
			}
		})
	}
	return eg.Wait()
}

type result struct {
	id uint32
	v  domain.Verdict
}

// dispatch owns the queue with one receiver and one sender goroutine and
// hands packets to workers over a bounded backlog.
type dispatch struct {
	g            *guard
	workers      int
	backlog      int
	backpressure Backpressure
}

func (d *dispatch) Run(ctx context.Context) error {
	tasks := make(chan domain.RawPacket, d.backlog)
	results := make(chan result, d.backlog)

	var workers sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for pkt := range tasks {
				results <- result{id: pkt.ID, v: d.g.process(pkt)}
			}
		}()
	}

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for r := range results {
			d.g.send(r.id, r.v)
		}
	}()

	err := d.receive(ctx, tasks, results)
	close(tasks)
	workers.Wait()
	close(results)
	<-sent
	return err
}

// receive feeds tasks until the queue stops. When the backlog is full the
// configured backpressure decides between waiting and shedding the packet.
func (d *dispatch) receive(ctx context.Context, tasks chan<- domain.RawPacket, results chan<- result) error {
	for {
		pkt, err := d.g.receive(ctx)
		if err != nil {
			return stopError(ctx, err)
		}
		if d.backpressure == BackpressureBlock {
			tasks <- pkt
			continue
		}
		select {
		case tasks <- pkt:
		default:
			v := domain.VerdictAccept
			if d.backpressure == BackpressureDrop {
				v = domain.VerdictDrop
			}
			d.g.recorder.ObserveVerdict(v, domain.ReasonShed, 0)
			d.g.logger.Debug(map[string]any{"id": pkt.ID, "verdict": v.String()}, "backlog full, shedding packet")
			results <- result{id: pkt.ID, v: v}
		}
	}
}
