// Package app initializes and holds long-lived application services, acting
// as the dependency container for CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/university-rankings/internal/archive"
	"github.com/JakeFAU/university-rankings/internal/cachestate"
	"github.com/JakeFAU/university-rankings/internal/catalog"
	"github.com/JakeFAU/university-rankings/internal/clock/system"
	"github.com/JakeFAU/university-rankings/internal/config"
	"github.com/JakeFAU/university-rankings/internal/extract"
	"github.com/JakeFAU/university-rankings/internal/fetcher"
	collyfetcher "github.com/JakeFAU/university-rankings/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/university-rankings/internal/fetcher/headless"
	"github.com/JakeFAU/university-rankings/internal/id/uuid"
	"github.com/JakeFAU/university-rankings/internal/ingest"
	"github.com/JakeFAU/university-rankings/internal/metrics"
	"github.com/JakeFAU/university-rankings/internal/policy/ratelimit"
	"github.com/JakeFAU/university-rankings/internal/progress"
	"github.com/JakeFAU/university-rankings/internal/progress/sinks"
	"github.com/JakeFAU/university-rankings/internal/ranking"
	"github.com/JakeFAU/university-rankings/internal/storage/gcs"
	"github.com/JakeFAU/university-rankings/internal/storage/local"
	"github.com/JakeFAU/university-rankings/internal/storage/memory"
	"github.com/JakeFAU/university-rankings/internal/storage/postgres"
)

const closeTimeout = 10 * time.Second

// App holds the shared, long-lived services for one CLI invocation.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	clock        ranking.Clock
	store        ranking.Repository
	sources      []ranking.Source
	registry     *extract.Registry
	tracker      *cachestate.Tracker
	orchestrator *ingest.Orchestrator
	hub          *progress.Hub
	registerer   *prometheus.Registry
	metrics      *metrics.Collectors
	closers      []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	store   ranking.Repository
	fetcher fetcher.Fetcher
	clock   ranking.Clock
}

// WithStore replaces the configured store.
func WithStore(s ranking.Repository) Option {
	return func(o *options) { o.store = s }
}

// WithFetcher replaces every page fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithClock replaces the system clock.
func WithClock(c ranking.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New wires every service from cfg. It fails fast if a configured backend
// cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{
		cfg:        cfg,
		logger:     logger,
		clock:      o.clock,
		registry:   extract.DefaultRegistry(),
		registerer: prometheus.NewRegistry(),
	}
	if a.clock == nil {
		a.clock = system.New()
	}
	a.metrics = metrics.New(a.registerer)

	if err := a.init(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, o options) error {
	sources, err := catalog.Defaults()
	if err != nil {
		return fmt.Errorf("load source catalogue: %w", err)
	}
	if a.sources, err = catalog.WithFrequencies(sources, a.cfg.Frequencies()); err != nil {
		return fmt.Errorf("apply source overrides: %w", err)
	}

	a.store = o.store
	if a.store == nil {
		if a.store, err = a.openStore(ctx); err != nil {
			return err
		}
	}
	a.tracker = cachestate.NewTracker(a.store, a.clock)

	scraper, err := a.buildScraper(ctx, o.fetcher)
	if err != nil {
		return err
	}

	hub, err := a.buildHub(ctx)
	if err != nil {
		return err
	}
	a.hub = hub

	a.orchestrator = ingest.New(a.store, scraper, a.registry,
		ingest.WithClock(a.clock),
		ingest.WithIDGenerator(uuid.New()),
		ingest.WithEmitter(hub),
		ingest.WithLogger(a.logger.Named("ingest")),
	)
	return nil
}

func (a *App) openStore(ctx context.Context) (ranking.Repository, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("using in-memory store; data will not outlive this process")
		return memory.New(a.clock), nil
	}
	a.logger.Info("connecting to postgres")
	store, err := postgres.Open(ctx, postgres.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.MaxConnLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	return store, nil
}

func (a *App) buildScraper(ctx context.Context, override fetcher.Fetcher) (*extract.Scraper, error) {
	logger := a.logger.Named("fetch")
	limiter := ratelimit.New(ratelimit.Config{
		Delay:    a.cfg.Delay(),
		Observer: a.metrics.ObservePolitenessWait,
		Logger:   logger,
	})
	opts := []extract.Option{extract.WithLimiter(limiter), extract.WithLogger(logger)}

	static := override
	if static == nil {
		static = collyfetcher.New(collyfetcher.Config{
			UserAgent:     a.cfg.Fetch.UserAgent,
			RespectRobots: a.cfg.Fetch.RespectRobots,
			Timeout:       a.cfg.Timeout(),
		}, logger)

		if len(a.cfg.Fetch.HeadlessSources) > 0 {
			headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
				MaxParallel:       a.cfg.Fetch.HeadlessParallel,
				UserAgent:         a.cfg.Fetch.UserAgent,
				NavigationTimeout: a.cfg.Timeout(),
			}, logger.Named("headless"))
			if err != nil {
				return nil, fmt.Errorf("initialize headless fetcher: %w", err)
			}
			a.closers = append(a.closers, func() error {
				headless.Close()
				return nil
			})
			for _, code := range a.cfg.Fetch.HeadlessSources {
				opts = append(opts, extract.WithFetcherFor(code, headless))
			}
		}
	}

	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}
	if archiver != nil {
		opts = append(opts, extract.WithArchiver(archiver))
	}
	return extract.NewScraper(static, opts...), nil
}

func (a *App) buildArchiver(ctx context.Context) (*archive.Archiver, error) {
	var blobs archive.BlobStore
	switch a.cfg.Archive.Backend {
	case config.ArchiveLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Archive.Dir})
		if err != nil {
			return nil, fmt.Errorf("initialize local archive: %w", err)
		}
		a.logger.Info("archiving pages locally", zap.String("dir", a.cfg.Archive.Dir))
		blobs = store
	case config.ArchiveGCS:
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Archive.Bucket, Endpoint: a.cfg.Archive.Endpoint})
		if err != nil {
			return nil, fmt.Errorf("initialize gcs archive: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Info("archiving pages to gcs", zap.String("bucket", a.cfg.Archive.Bucket))
		blobs = store
	default:
		return nil, nil
	}
	return archive.New(blobs, a.cfg.Archive.Prefix, a.clock, a.logger.Named("archive")), nil
}

func (a *App) buildHub(ctx context.Context) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return nil, fmt.Errorf("register run metrics: %w", err)
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress")), promSink}

	if a.cfg.PubSub.Enabled {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		pubSink, err := sinks.NewPubSubSink(client.Publisher(a.cfg.PubSub.TopicName))
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub sink: %w", err)
		}
		a.logger.Info("publishing run events", zap.String("topic", a.cfg.PubSub.TopicName))
		hubSinks = append(hubSinks, pubSink)
	}
	return progress.NewHub(progress.Config{Logger: a.logger.Named("hub")}, hubSinks...), nil
}

// EnsureSources registers the default catalogue and returns how many sources
// were new.
func (a *App) EnsureSources(ctx context.Context) (int, error) {
	return catalog.Ensure(ctx, a.store, a.sources)
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config { return a.cfg }

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger { return a.logger }

// GetStore returns the configured repository.
func (a *App) GetStore() ranking.Repository { return a.store }

// GetRegistry returns the extractor registry.
func (a *App) GetRegistry() *extract.Registry { return a.registry }

// GetTracker returns the cache tracker.
func (a *App) GetTracker() *cachestate.Tracker { return a.tracker }

// GetOrchestrator returns the ingest orchestrator.
func (a *App) GetOrchestrator() *ingest.Orchestrator { return a.orchestrator }

// GetGatherer exposes the metrics registry for the ops server.
func (a *App) GetGatherer() prometheus.Gatherer { return a.registerer }

// GetMetrics returns the HTTP and politeness collectors.
func (a *App) GetMetrics() *metrics.Collectors { return a.metrics }

// Close flushes pending events and shuts down every service in reverse
// order of creation. It is safe to call on a partially built App.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("flush progress events", zap.Error(err))
		}
		if dropped := a.hub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped", zap.Int64("count", dropped))
		}
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("close services", zap.Error(err))
	}
	if a.store != nil {
		a.store.Close()
	}
}
