package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/clock"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/log"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/metrics"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/utils"
	"github.com/haukened/nfq-dnsfilter/internal/dns/config"
	"github.com/haukened/nfq-dnsfilter/internal/dns/gateways/nfq"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist/bloom"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist/bolt"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist/lru"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist/memory"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist/parsers"
	"github.com/haukened/nfq-dnsfilter/internal/dns/services/filter"
	"github.com/haukened/nfq-dnsfilter/internal/dns/services/scheduler"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "nfq-dnsfilterd"
)

// packetQueue is the queue the scheduler drives plus shutdown.
type packetQueue interface {
	scheduler.Queue
	Close() error
}

// openQueue binds the kernel queue. Tests replace it with an in-memory queue.
var openQueue = func(ctx context.Context, opts nfq.Options) (packetQueue, error) {
	return nfq.Open(ctx, opts)
}

// Application holds all the components of the filter agent
type Application struct {
	config    *config.AppConfig
	blocklist blocklist.Repository
	metrics   *metrics.Metrics
	inspector *filter.Inspector
	logger    log.Logger
}

func main() {
	configPath, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":  version,
		"env":      cfg.Env,
		"queue":    cfg.Queue.Num,
		"strategy": cfg.Filter.Strategy,
		"workers":  cfg.Filter.Workers,
		"store":    cfg.Blocklist.Store,
	}, "Starting "+appName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	app, err := buildApplication(ctx, cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Filter failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// parseFlags returns the -config path.
func parseFlags(args []string, output io.Writer) (string, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(output)
	configPath := fs.String("config", "", "path to a YAML configuration file (optional)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *configPath, nil
}

// buildApplication loads the blocklist and wires the inspection pipeline.
// The kernel queue is bound later by Run.
func buildApplication(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	repo, err := buildBlocklist(ctx, cfg, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build blocklist: %w", err)
	}

	m := metrics.New()
	if err := m.RegisterBlocklist(repo); err != nil {
		repo.Close()
		return nil, err
	}

	sampler, err := filter.NewSampler(cfg.Filter.SkipProbability, nil)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to build sampler: %w", err)
	}

	inspector, err := filter.NewInspector(filter.Options{
		Matcher:    repo,
		Sampler:    sampler,
		Recorder:   m,
		Clock:      clk,
		Logger:     logger,
		NameBuffer: cfg.Filter.NameBuffer,
	})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to build inspector: %w", err)
	}

	return &Application{
		config:    cfg,
		blocklist: repo,
		metrics:   m,
		inspector: inspector,
		logger:    logger,
	}, nil
}

// buildBlocklist creates the store, loads every configured source and
// publishes the rules.
func buildBlocklist(ctx context.Context, cfg *config.AppConfig, clk clock.Clock, logger log.Logger) (blocklist.Repository, error) {
	bl := cfg.Blocklist

	var store blocklist.Store
	switch bl.Store {
	case "bolt":
		s, err := bolt.New(bl.DB)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		store = memory.New()
	}

	cache, err := lru.New(bl.CacheSize)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	normalizer := utils.Normalizer{FoldCase: bl.FoldCase, TrimTrailingDot: bl.TrimTrailingDot}
	repo := blocklist.NewRepository(blocklist.Options{
		Store:      store,
		Cache:      cache,
		Factory:    bloom.NewFactory(),
		FPRate:     bl.FPRate,
		Normalizer: normalizer,
		Logger:     logger,
	})

	rules, err := parsers.LoadAll(ctx, parsers.LoadOptions{
		Domains:    bl.Domains,
		Files:      bl.Files,
		Normalizer: normalizer,
		Clock:      clk,
		Logger:     logger,
	})
	if err != nil {
		repo.Close()
		return nil, err
	}

	now := clk.Now()
	version := repo.RepoStats().Store.Version + 1
	if err := repo.UpdateAll(rules, version, now.Unix()); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to publish blocklist: %w", err)
	}

	logger.Info(map[string]any{
		"store":      bl.Store,
		"rules":      repo.RuleCount(),
		"cache_size": bl.CacheSize,
		"fold_case":  bl.FoldCase,
		"trim_dot":   bl.TrimTrailingDot,
		"inline":     len(bl.Domains),
		"files":      len(bl.Files),
		"bloom_fp":   bl.FPRate,
	}, "Blocklist initialized")
	return repo, nil
}

// Run binds the queue and filters packets until ctx is cancelled, the queue
// closes, or a fatal error occurs. Every received packet has its verdict
// sent before Run returns.
func (app *Application) Run(ctx context.Context) error {
	qc := app.config.Queue
	q, err := openQueue(ctx, nfq.Options{
		QueueNum:     qc.Num,
		MaxPacketLen: qc.MaxPacketLen,
		MaxQueueLen:  qc.MaxQueueLen,
		WriteTimeout: qc.WriteTimeout,
		FailOpen:     qc.FailOpen,
		Buffer:       app.config.Filter.Backlog,
		Logger:       app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}

	fc := app.config.Filter
	runner, err := scheduler.New(scheduler.Options{
		Strategy:     scheduler.Strategy(fc.Strategy),
		Workers:      fc.Workers,
		Backlog:      fc.Backlog,
		Backpressure: scheduler.Backpressure(fc.Backpressure),
		Queue:        q,
		Processor:    app.inspector,
		Recorder:     app.metrics,
		Logger:       app.logger,
	})
	if err != nil {
		q.Close()
		return fmt.Errorf("failed to build scheduler: %w", err)
	}

	app.logger.Info(map[string]any{
		"queue":        qc.Num,
		"strategy":     fc.Strategy,
		"workers":      fc.Workers,
		"backlog":      fc.Backlog,
		"backpressure": fc.Backpressure,
		"skip_prob":    fc.SkipProbability,
	}, "Filter started")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	if mc := app.config.Metrics; mc.Listen != "" {
		eg.Go(func() error { return app.metrics.Serve(ctx, mc.Listen, mc.Path) })
	}
	eg.Go(func() error {
		defer cancel()
		return runner.Run(ctx)
	})
	err = eg.Wait()

	if cerr := q.Close(); cerr != nil {
		app.logger.Warn(map[string]any{"error": cerr}, "Error closing queue")
	}
	if err != nil {
		return err
	}
	app.logger.Info(nil, "Filter stopped")
	return nil
}

// Close releases the blocklist store.
func (app *Application) Close() {
	if err := app.blocklist.Close(); err != nil {
		app.logger.Warn(map[string]any{"error": err}, "Error closing blocklist")
	}
}
