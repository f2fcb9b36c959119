// Package metrics records verdict pipeline counters on a private Prometheus
// registry and optionally exposes them over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/log"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

const namespace = "nfq_dnsfilter"

// Recorder is the narrow surface the packet path writes to.
type Recorder interface {
	ObserveVerdict(v domain.Verdict, r domain.Reason, elapsed time.Duration)
	DecodeError(kind string)
	VerdictError()
	Panic()
	InFlight(delta int)
}

// BlocklistStats is polled at scrape time.
type BlocklistStats interface {
	RuleCount() int
	CacheHits() uint64
	CacheMisses() uint64
}

// Metrics is the Prometheus-backed Recorder.
type Metrics struct {
	registry     *prometheus.Registry
	verdicts     *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	latency      prometheus.Histogram
	verdictErrs  prometheus.Counter
	panics       prometheus.Counter
	inFlight     prometheus.Gauge
}

// New creates all collectors on a fresh registry together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Verdicts returned to the kernel, by verdict and reason.",
		}, []string{"verdict", "reason"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "DNS question names that failed to decode, by kind.",
		}, []string{"kind"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inspection_seconds",
			Help:      "Time spent computing a verdict for one packet.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		verdictErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdict_errors_total",
			Help:      "Verdicts that could not be delivered to the queue.",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Packets whose processing panicked and were accepted.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight",
			Help:      "Packets received whose verdict has not been sent yet.",
		}),
	}
	m.registry.MustRegister(
		m.verdicts,
		m.decodeErrors,
		m.latency,
		m.verdictErrs,
		m.panics,
		m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveVerdict(v domain.Verdict, r domain.Reason, elapsed time.Duration) {
	m.verdicts.WithLabelValues(v.String(), string(r)).Inc()
	if elapsed > 0 {
		m.latency.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) DecodeError(kind string) { m.decodeErrors.WithLabelValues(kind).Inc() }

func (m *Metrics) VerdictError() { m.verdictErrs.Inc() }

func (m *Metrics) Panic() { m.panics.Inc() }

func (m *Metrics) InFlight(delta int) { m.inFlight.Add(float64(delta)) }

// RegisterBlocklist exposes blocklist size and decision cache counters.
func (m *Metrics) RegisterBlocklist(stats BlocklistStats) error {
	rules := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "blocklist_rules",
		Help:      "Number of rules loaded into the blocklist.",
	}, func() float64 { return float64(stats.RuleCount()) })
	hits := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocklist_cache_hits_total",
		Help:      "Blocklist decision cache hits.",
	}, func() float64 { return float64(stats.CacheHits()) })
	misses := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocklist_cache_misses_total",
		Help:      "Blocklist decision cache misses.",
	}, func() float64 { return float64(stats.CacheMisses()) })
	for _, c := range []prometheus.Collector{rules, hits, misses} {
		if err := m.registry.Register(c); err != nil {
			return fmt.Errorf("register blocklist metrics: %w", err)
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the exporter on listen until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, listen, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(map[string]any{"listen": listen, "path": path}, "metrics exporter listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics exporter: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics exporter shutdown: %w", err)
		}
		return nil
	}
}

type noop struct{}

// NewNoop returns a Recorder that discards everything.
func NewNoop() Recorder { return noop{} }

func (noop) ObserveVerdict(domain.Verdict, domain.Reason, time.Duration) {}
func (noop) DecodeError(string)                                          {}
func (noop) VerdictError()                                               {}
func (noop) Panic()                                                      {}
func (noop) InFlight(int)                                                {}
