// Package app builds the service's dependency graph and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/country-directory/internal/api"
	"github.com/JakeFAU/country-directory/internal/clock/system"
	"github.com/JakeFAU/country-directory/internal/config"
	"github.com/JakeFAU/country-directory/internal/country"
	"github.com/JakeFAU/country-directory/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/country-directory/internal/fetcher/colly"
	"github.com/JakeFAU/country-directory/internal/hash/sha256"
	"github.com/JakeFAU/country-directory/internal/id/uuid"
	"github.com/JakeFAU/country-directory/internal/lookup"
	"github.com/JakeFAU/country-directory/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/country-directory/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/country-directory/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/country-directory/internal/queue/memory"
	"github.com/JakeFAU/country-directory/internal/storage/memory"
	"github.com/JakeFAU/country-directory/internal/telemetry"
	"github.com/JakeFAU/country-directory/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// ErrEngineStopped is reported by Ready when the crawl engine is not running.
var ErrEngineStopped = errors.New("crawl engine not running")

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	queue          *queueMemory.Queue
	dispatch       *dispatcher.Dispatcher
	orchestrator   *lookup.Orchestrator
	apiServer      *api.Server
	publisherClose func() error
	tracerShutdown func(context.Context) error

	running      atomic.Bool
	engineCancel context.CancelFunc
	engineDone   chan struct{}
}

// Build creates the application's dependencies. The crawl engine is not
// started until Start is called.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}

	traceOpts, err := setupTraceExport(app)
	if err != nil {
		return nil, err
	}
	tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("directory", cfg.Directory.BaseURL),
		zap.Int("workers", cfg.Crawler.Workers),
	)

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	app.queue = queueMemory.NewQueue(cfg.Crawler.QueueDepth)
	app.dispatch, err = setupDispatcher(app)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	app.orchestrator = lookup.New(
		memory.NewResultStore(),
		app.dispatch,
		publisher,
		sha256.New(),
		clock,
		uuid.New(),
		lookup.Config{
			BaseURL:      cfg.Directory.BaseURL,
			Timeout:      cfg.LookupTimeout(),
			PollInterval: cfg.PollInterval(),
			Topic:        topicName(cfg),
		},
		logger.Named("lookup"),
	)

	app.apiServer = api.NewServer(app.orchestrator, app.Ready, cfg, logger.Named("api"))
	return app, nil
}

func setupTraceExport(app *App) ([]telemetry.Option, error) {
	if app.cfg.Telemetry.ProjectID == "" {
		app.logger.Warn("No telemetry project configured, spans are not exported")
		return nil, nil
	}
	exporter, err := telemetry.NewCloudTraceExporter(app.cfg.Telemetry.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("trace exporter init failed: %w", err)
	}
	app.logger.Info("Cloud Trace exporter initialized", zap.String("project", app.cfg.Telemetry.ProjectID))
	return []telemetry.Option{telemetry.WithBatcher(exporter)}, nil
}

func topicName(cfg config.Config) string {
	if cfg.PubSub.TopicName != "" {
		return cfg.PubSub.TopicName
	}
	return "lookups"
}

func setupPublisher(ctx context.Context, app *App) (country.Publisher, error) {
	if app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub project configured, keeping completion events in memory")
		return memorypublisher.New(memorypublisher.DefaultCapacity), nil
	}
	topic := topicName(app.cfg)
	pub, closeFn, err := gcppublisher.Connect(ctx, app.cfg.PubSub.ProjectID, topic)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.publisherClose = closeFn
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", topic),
	)
	return pub, nil
}

func setupDispatcher(app *App) (*dispatcher.Dispatcher, error) {
	fetcher, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:   app.cfg.Directory.UserAgent,
		Timeout:     app.cfg.RequestTimeout(),
		Parallelism: app.cfg.Crawler.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("fetcher init failed: %w", err)
	}
	throttle := ratelimit.New(ratelimit.Config{MinDelay: app.cfg.CrawlDelay()})
	clock := system.New()

	workers := make([]*worker.Worker, 0, app.cfg.Crawler.Workers)
	for i := range app.cfg.Crawler.Workers {
		workers = append(workers, worker.New(
			app.queue,
			fetcher,
			throttle,
			clock,
			app.logger.Named("worker").With(zap.Int("worker", i)),
		))
	}
	app.logger.Info("crawl engine configured",
		zap.Int("workers", len(workers)),
		zap.Int("queue_depth", app.cfg.Crawler.QueueDepth),
		zap.Duration("delay", app.cfg.CrawlDelay()),
		zap.Duration("request_timeout", app.cfg.RequestTimeout()),
	)
	return dispatcher.New(app.queue, workers, dispatcher.Config{DispatchTimeout: app.cfg.DispatchTimeout()}), nil
}

// Start runs the crawl engine in the background. The engine gets its own
// context so it outlives the requests that feed it.
func (a *App) Start(ctx context.Context) {
	if a.running.Swap(true) {
		return
	}
	engineCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.engineCancel = cancel
	a.engineDone = make(chan struct{})
	go func() {
		defer close(a.engineDone)
		a.logger.Info("dispatcher started")
		a.dispatch.Run(engineCtx)
		a.logger.Info("dispatcher stopped")
	}()
}

// Ready reports whether lookups can be served.
func (a *App) Ready() error {
	if !a.running.Load() {
		return ErrEngineStopped
	}
	return nil
}

// Lookup answers a single query through the orchestrator.
func (a *App) Lookup(ctx context.Context, q country.Query) ([]country.Record, error) {
	records, err := a.orchestrator.Lookup(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}
	return records, nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Serve starts the engine and the HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close stops the engine and releases external clients. Safe to call once
// after Build, whether or not Start ran.
func (a *App) Close(ctx context.Context) error {
	a.queue.Close()
	if a.running.Swap(false) {
		a.engineCancel()
		select {
		case <-a.engineDone:
		case <-ctx.Done():
			a.logger.Warn("crawl engine did not stop before shutdown deadline")
		}
	}
	if a.publisherClose != nil {
		if err := a.publisherClose(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	return nil
}
