package scheduler

import (
	"context"

	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

// Queue is the packet source and verdict sink. Receive blocks until a packet
// is available, ctx is done, or the queue fails; it returns
// domain.ErrQueueClosed once the source is exhausted.
type Queue interface {
	Receive(ctx context.Context) (domain.RawPacket, error)
	SetVerdict(id uint32, v domain.Verdict) error
}

// Processor computes the verdict for one packet.
type Processor interface {
	Process(pkt domain.RawPacket) domain.Verdict
}

// Runner drives packets from a Queue through a Processor until the queue
// closes, ctx is cancelled, or receiving fails.
type Runner interface {
	Run(ctx context.Context) error
}
