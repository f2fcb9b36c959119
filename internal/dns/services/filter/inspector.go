// Package filter turns queued packets into verdicts.
package filter

import (
	"errors"
	"sync"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/clock"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/log"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/metrics"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/utils"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
	"github.com/haukened/nfq-dnsfilter/internal/dns/gateways/wire"
)

// DefaultNameBuffer bounds a decoded question name.
const DefaultNameBuffer = 256

// Options configures NewInspector. Matcher and Sampler are required.
type Options struct {
	Matcher    Matcher
	Sampler    *Sampler
	Recorder   metrics.Recorder
	Clock      clock.Clock
	Logger     log.Logger
	NameBuffer int
}

// Inspector runs classify → sample → decode → match → policy for one packet.
// It is safe for concurrent use.
type Inspector struct {
	matcher  Matcher
	sampler  *Sampler
	recorder metrics.Recorder
	clock    clock.Clock
	logger   log.Logger
	bufs     sync.Pool
}

// NewInspector validates opts and fills in defaults.
func NewInspector(opts Options) (*Inspector, error) {
	if opts.Matcher == nil {
		return nil, errors.New("inspector requires a matcher")
	}
	if opts.Sampler == nil {
		return nil, errors.New("inspector requires a sampler")
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NewNoop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	size := opts.NameBuffer
	if size <= 0 {
		size = DefaultNameBuffer
	}
	i := &Inspector{
		matcher:  opts.Matcher,
		sampler:  opts.Sampler,
		recorder: opts.Recorder,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	i.bufs.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return i, nil
}

// Process computes the verdict for pkt.
func (i *Inspector) Process(pkt domain.RawPacket) domain.Verdict {
	start := i.clock.Now()
	in := i.inspect(pkt)
	v, reason := Decide(in)
	i.recorder.ObserveVerdict(v, reason, i.clock.Since(start))

	if v == domain.VerdictDrop {
		i.logger.Info(map[string]any{
			"id":     pkt.ID,
			"name":   in.Question.Name,
			"apex":   utils.GetApexDomain(in.Question.Name),
			"rule":   in.Decision.MatchedRule,
			"source": in.Decision.Source,
		}, "dns query blocked")
		return v
	}
	fields := map[string]any{"id": pkt.ID, "verdict": v.String(), "reason": string(reason)}
	if in.Question.Name != "" {
		fields["name"] = in.Question.Name
	}
	if in.Question.Err != nil {
		fields["error"] = in.Question.Err
	}
	i.logger.Debug(fields, "packet verdict")
	return v
}

func (i *Inspector) inspect(pkt domain.RawPacket) Inspection {
	h, _ := wire.Classify(pkt.Data)
	in := Inspection{Headers: h}
	if !h.IsDNS() {
		return in
	}
	if !i.sampler.Inspect() {
		in.Skipped = true
		return in
	}

	bp := i.bufs.Get().(*[]byte)
	in.Question = wire.QuestionName(h.Payload, *bp)
	i.bufs.Put(bp)

	if !in.Question.OK() {
		i.recorder.DecodeError(wire.ErrorKind(in.Question.Err))
		return in
	}
	in.Decision = i.matcher.Decide(in.Question.Name)
	return in
}
