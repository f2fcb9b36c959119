// Package nfq adapts a netfilter NFQUEUE binding to a pull-style packet queue.
package nfq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	nfqueue "github.com/florianl/go-nfqueue"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/log"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

// Options configures the queue binding.
type Options struct {
	QueueNum     uint16
	MaxPacketLen uint32
	MaxQueueLen  uint32
	WriteTimeout time.Duration
	// FailOpen makes the kernel accept packets instead of dropping them when
	// the queue is full.
	FailOpen bool
	// Buffer is how many delivered packets may wait for Receive.
	Buffer int
	Logger log.Logger
}

// conn is the part of *nfqueue.Nfqueue the adapter uses.
type conn interface {
	RegisterWithErrorFunc(ctx context.Context, fn nfqueue.HookFunc, errfn nfqueue.ErrorFunc) error
	SetVerdict(id uint32, verdict int) error
	Close() error
}

// openConn opens the netlink socket. Replaced in tests.
var openConn = func(cfg *nfqueue.Config) (conn, error) {
	nf, err := nfqueue.Open(cfg)
	if err != nil {
		return nil, err
	}
	// Without this, bursts surface as "recvmsg: no buffer space available".
	if err := nf.Con.SetOption(netlink.NoENOBUFS, true); err != nil {
		nf.Close()
		return nil, fmt.Errorf("set NoENOBUFS: %w", err)
	}
	return nf, nil
}

// Queue delivers queued packets through Receive and forwards verdicts to the kernel.
type Queue struct {
	nf      conn
	logger  log.Logger
	packets chan domain.RawPacket

	// gate is held shared by hook and exclusively by Close, so no packet
	// enters the buffer once Close has started draining it.
	gate      sync.RWMutex
	closeOnce sync.Once
	closed    chan struct{}

	failOnce sync.Once
	failed   chan struct{}
	failErr  error
}

// Open opens and binds the queue. Packets start flowing immediately; the
// binding stops when ctx is done or Close is called.
func Open(ctx context.Context, opts Options) (*Queue, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1
	}
	cfg := config(opts)
	nf, err := openConn(cfg)
	if err != nil {
		return nil, fmt.Errorf("error opening nfqueue %d: %w", opts.QueueNum, err)
	}

	q := &Queue{
		nf:      nf,
		logger:  opts.Logger,
		packets: make(chan domain.RawPacket, opts.Buffer),
		closed:  make(chan struct{}),
		failed:  make(chan struct{}),
	}
	if err := nf.RegisterWithErrorFunc(ctx, q.hook, q.onError); err != nil {
		nf.Close()
		return nil, fmt.Errorf("error registering nfqueue %d: %w", opts.QueueNum, err)
	}
	q.logger.Info(map[string]any{
		"queue":     opts.QueueNum,
		"fail_open": opts.FailOpen,
	}, "nfqueue bound")
	return q, nil
}

func config(opts Options) *nfqueue.Config {
	var flags uint32
	if opts.FailOpen {
		flags |= nfqueue.NfQaCfgFlagFailOpen
	}
	return &nfqueue.Config{
		NfQueue:      opts.QueueNum,
		MaxPacketLen: opts.MaxPacketLen,
		MaxQueueLen:  opts.MaxQueueLen,
		AfFamily:     unix.AF_INET,
		Copymode:     nfqueue.NfQnlCopyPacket,
		Flags:        flags,
		WriteTimeout: opts.WriteTimeout,
	}
}

// hook runs on the netlink reader goroutine. It copies the payload so the
// packet owns its bytes, then hands it to Receive. Packets arriving after
// Close are accepted directly.
func (q *Queue) hook(a nfqueue.Attribute) int {
	if a.PacketID == nil {
		q.logger.Debug(nil, "nfqueue message without packet id")
		return 0
	}
	pkt := domain.RawPacket{ID: *a.PacketID}
	if a.Payload != nil {
		pkt.Data = append([]byte(nil), (*a.Payload)...)
	}

	q.gate.RLock()
	defer q.gate.RUnlock()
	select {
	case <-q.closed:
		q.acceptUnread(pkt.ID)
		return 0
	default:
	}
	select {
	case q.packets <- pkt:
	case <-q.closed:
		q.acceptUnread(pkt.ID)
	}
	return 0
}

// acceptUnread releases a packet no caller will see.
func (q *Queue) acceptUnread(id uint32) {
	if err := q.nf.SetVerdict(id, nfqueue.NfAccept); err != nil {
		q.logger.Warn(map[string]any{"id": id, "error": err}, "failed to accept unread packet")
	}
}

// onError keeps the reader alive on transient errors and stops it otherwise.
func (q *Queue) onError(err error) int {
	if isTransient(err) {
		return 0
	}
	select {
	case <-q.closed:
		// reads fail once the socket is closed
		return 1
	default:
	}
	q.failOnce.Do(func() {
		q.failErr = err
		close(q.failed)
	})
	q.logger.Error(map[string]any{"error": err}, "netlink error")
	return 1
}

// isTransient reports read timeouts, which the netlink reader retries.
func isTransient(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return true
	}
	var oe *netlink.OpError
	return errors.As(err, &oe) && strings.Contains(oe.Error(), "i/o timeout")
}

// Receive returns the next packet. It returns domain.ErrQueueClosed after
// Close and a wrapped netlink error if the binding failed.
func (q *Queue) Receive(ctx context.Context) (domain.RawPacket, error) {
	select {
	case pkt := <-q.packets:
		return pkt, nil
	case <-q.failed:
		return domain.RawPacket{}, fmt.Errorf("nfqueue: %w", q.failErr)
	case <-q.closed:
		return domain.RawPacket{}, domain.ErrQueueClosed
	case <-ctx.Done():
		return domain.RawPacket{}, ctx.Err()
	}
}

// SetVerdict sends the verdict for packet id.
func (q *Queue) SetVerdict(id uint32, v domain.Verdict) error {
	nv, err := nfVerdict(v)
	if err != nil {
		return err
	}
	if err := q.nf.SetVerdict(id, nv); err != nil {
		return fmt.Errorf("set verdict %s for packet %d: %w", v, id, err)
	}
	return nil
}

func nfVerdict(v domain.Verdict) (int, error) {
	switch v {
	case domain.VerdictAccept:
		return nfqueue.NfAccept, nil
	case domain.VerdictDrop:
		return nfqueue.NfDrop, nil
	default:
		return 0, fmt.Errorf("unknown verdict %d", v)
	}
}

// Close accepts every buffered packet nobody received, then unbinds the
// queue. Pending and future Receive calls return domain.ErrQueueClosed.
func (q *Queue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		close(q.closed)

		q.gate.Lock()
		drained := q.drain()
		q.gate.Unlock()
		if drained > 0 {
			q.logger.Info(map[string]any{"packets": drained}, "accepted unread packets on close")
		}

		err = q.nf.Close()
		if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
			err = nil
		}
	})
	return err
}

func (q *Queue) drain() int {
	n := 0
	for {
		select {
		case pkt := <-q.packets:
			q.acceptUnread(pkt.ID)
			n++
		default:
			return n
		}
	}
}
