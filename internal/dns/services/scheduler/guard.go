package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/log"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/metrics"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

// guard serializes queue access. Receives and verdicts use separate locks so
// a worker sending a verdict never waits on a blocked receive. Neither lock
// is held while a packet is processed.
type guard struct {
	q        Queue
	proc     Processor
	recorder metrics.Recorder
	logger   log.Logger
	recvMu   sync.Mutex
	sendMu   sync.Mutex
}

func (g *guard) receive(ctx context.Context) (domain.RawPacket, error) {
	pkt, err := g.lockedReceive(ctx)
	if err == nil {
		g.recorder.InFlight(1)
	}
	return pkt, err
}

func (g *guard) lockedReceive(ctx context.Context) (domain.RawPacket, error) {
	g.recvMu.Lock()
	defer g.recvMu.Unlock()
	return g.q.Receive(ctx)
}

// send delivers a verdict. Failures are logged and counted; the packet is
// considered finished either way.
func (g *guard) send(id uint32, v domain.Verdict) {
	defer g.recorder.InFlight(-1)
	if err := g.lockedSend(id, v); err != nil {
		g.recorder.VerdictError()
		g.logger.Warn(map[string]any{"id": id, "verdict": v.String(), "error": err}, "failed to set verdict")
	}
}

func (g *guard) lockedSend(id uint32, v domain.Verdict) error {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	return g.q.SetVerdict(id, v)
}

// process runs the processor and turns a panic into an Accept.
func (g *guard) process(pkt domain.RawPacket) (v domain.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			g.recorder.Panic()
			g.recorder.ObserveVerdict(domain.VerdictAccept, domain.ReasonPanic, 0)
			g.logger.Error(map[string]any{"id": pkt.ID, "panic": fmt.Sprint(r)}, "packet processing panicked, accepting")
			v = domain.VerdictAccept
		}
	}()
	return g.proc.Process(pkt)
}

// handle processes pkt and sends its verdict.
func (g *guard) handle(pkt domain.RawPacket) {
	g.send(pkt.ID, g.process(pkt))
}

// stopError classifies a receive error: a closed queue or a finished context
// is a clean stop (nil), anything else is fatal.
func stopError(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrQueueClosed) {
		return nil
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return fmt.Errorf("receive packet: %w", err)
}
