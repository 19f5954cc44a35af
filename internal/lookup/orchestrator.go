package lookup

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/country-directory/internal/country"
	"github.com/JakeFAU/country-directory/internal/crawler"
	"github.com/JakeFAU/country-directory/internal/metrics"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultPollInterval   = 100 * time.Millisecond
	defaultPublishTimeout = 5 * time.Second

	tracerName = "github.com/JakeFAU/country-directory/internal/lookup"
)

// Config controls Orchestrator behavior.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	PollInterval   time.Duration
	Topic          string
	PublishTimeout time.Duration
}

// Orchestrator coordinates lookups between callers and the crawl engine.
type Orchestrator struct {
	store     country.ResultStore
	engine    crawler.Submitter
	publisher country.Publisher
	hasher    country.Hasher
	clock     country.Clock
	ids       country.IDGenerator
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New constructs an Orchestrator. publisher and hasher may be nil, in which
// case completion events are not emitted.
func New(
	store country.ResultStore,
	engine crawler.Submitter,
	publisher country.Publisher,
	hasher country.Hasher,
	clock country.Clock,
	ids country.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     store,
		engine:    engine,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Lookup answers a query with the matching country records. Every error it
// returns is a *country.Failure.
func (o *Orchestrator) Lookup(ctx context.Context, q country.Query) ([]country.Record, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "lookup.Lookup")
	defer span.End()

	criterion, err := country.Select(q)
	if err != nil {
		status := statusOf(err)
		span.SetAttributes(attribute.Int("country.status", status))
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveLookup("", status, time.Since(start))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("country.field", string(criterion.Field)),
		attribute.String("country.value", criterion.Value),
	)

	out := o.await(ctx, criterion)
	status := out.Status()
	span.SetAttributes(
		attribute.Int("country.status", status),
		attribute.Int("country.records", len(out.Records)),
	)
	metrics.ObserveLookup(string(criterion.Field), status, time.Since(start))
	if !out.OK() {
		span.SetStatus(codes.Error, out.Failure.Message)
		return nil, out.Failure
	}
	return out.Records, nil
}

// await polls the store for criterion's key, dispatching a task whenever the
// key is missing, until an outcome arrives or the budget is spent.
func (o *Orchestrator) await(ctx context.Context, criterion country.Criterion) country.Outcome {
	key := criterion.Key()
	budget := time.NewTimer(o.cfg.Timeout)
	defer budget.Stop()
	poll := time.NewTicker(o.cfg.PollInterval)
	defer poll.Stop()

	for {
		out, state := o.store.Take(key)
		switch state {
		case country.StateResolved:
			metrics.SetResultStoreEntries(o.store.Len())
			return out
		case country.StateMissing:
			if failure := o.dispatch(ctx, criterion); failure != nil {
				return country.Failed(failure)
			}
		case country.StatePending:
		}

		select {
		case <-ctx.Done():
			o.logger.Debug("lookup abandoned by caller", zap.String("key", key), zap.Error(ctx.Err()))
			return country.Failed(country.Timeout())
		case <-budget.C:
			o.logger.Info("lookup exceeded time budget",
				zap.String("key", key),
				zap.Duration("budget", o.cfg.Timeout),
			)
			return country.Failed(country.Timeout())
		case <-poll.C:
		}
	}
}

// dispatch starts a crawl task for criterion unless one is already pending.
func (o *Orchestrator) dispatch(ctx context.Context, criterion country.Criterion) *country.Failure {
	key := criterion.Key()
	if !o.store.Begin(key) {
		metrics.ObserveDispatch(metrics.DispatchJoined)
		return nil
	}

	taskID, err := o.ids.NewID()
	if err == nil {
		item := crawler.QueueItem{
			TaskID:    taskID,
			Task:      crawler.NewTask(o.cfg.BaseURL, criterion),
			Handler:   o.completionHandler(key),
			Submitted: o.clock.Now(),
		}
		// the enqueue is bounded by the engine, not by the caller
		err = o.engine.Submit(context.WithoutCancel(ctx), item)
	}
	if err != nil {
		o.store.Release(key)
		metrics.ObserveDispatch(metrics.DispatchFailed)
		metrics.SetResultStoreEntries(o.store.Len())
		o.logger.Error("dispatch crawl task failed", zap.String("key", key), zap.Error(err))
		return country.InternalError(country.MsgDispatch)
	}

	metrics.ObserveDispatch(metrics.DispatchStarted)
	metrics.SetResultStoreEntries(o.store.Len())
	o.logger.Debug("dispatched crawl task", zap.String("key", key), zap.String("task_id", taskID))
	return nil
}

func (o *Orchestrator) completionHandler(key string) crawler.CompletionHandler {
	return func(c crawler.Completion) {
		if err := o.store.Resolve(key, c.Result.Outcome); err != nil {
			o.logger.Error("resolve result failed",
				zap.String("key", key),
				zap.String("task_id", c.TaskID),
				zap.Error(err),
			)
			return
		}
		metrics.SetResultStoreEntries(o.store.Len())
		o.publishCompletion(c)
	}
}

func (o *Orchestrator) publishCompletion(c crawler.Completion) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	hash := ""
	if o.hasher != nil && c.Result.Outcome.OK() {
		h, err := o.hasher.Hash(c.Result.Body)
		if err != nil {
			o.logger.Warn("hash payload failed", zap.String("task_id", c.TaskID), zap.Error(err))
		}
		hash = h
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PublishTimeout)
	defer cancel()
	id, err := o.publisher.Publish(ctx, o.cfg.Topic, newCompletedEvent(c, hash))
	metrics.ObserveEventPublished(err == nil)
	if err != nil {
		o.logger.Warn("publish completion event failed",
			zap.String("task_id", c.TaskID),
			zap.String("topic", o.cfg.Topic),
			zap.Error(err),
		)
		return
	}
	o.logger.Debug("completion event published", zap.String("task_id", c.TaskID), zap.String("message_id", id))
}

func statusOf(err error) int {
	var failure *country.Failure
	if errors.As(err, &failure) {
		return failure.Status
	}
	return country.InternalError(country.MsgUnexpected).Status
}
