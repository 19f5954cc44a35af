// Package worker implements the crawl engine's task execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/country-directory/internal/country"
	"github.com/JakeFAU/country-directory/internal/crawler"
	"github.com/JakeFAU/country-directory/internal/metrics"
)

// Worker consumes queue items, waits on the politeness throttle, and runs
// each task exactly once.
type Worker struct {
	queue    crawler.Queue
	fetcher  crawler.Fetcher
	throttle crawler.Throttle
	clock    country.Clock
	logger   *zap.Logger
}

// New constructs a Worker. A nil throttle disables politeness spacing.
func New(
	queue crawler.Queue,
	fetcher crawler.Fetcher,
	throttle crawler.Throttle,
	clock country.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		fetcher:  fetcher,
		throttle: throttle,
		clock:    clock,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task",
			zap.String("task_id", item.TaskID),
			zap.String("key", item.Task.Criterion.Key()),
		)
		w.runItem(ctx, item)
	}
}

func (w *Worker) runItem(ctx context.Context, item crawler.QueueItem) {
	var once sync.Once
	complete := func(res crawler.Result) {
		once.Do(func() { w.complete(item, res) })
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("crawl task panicked",
				zap.String("task_id", item.TaskID),
				zap.Any("panic", r),
			)
			complete(crawler.Result{
				Outcome: country.Failed(country.InternalError(country.MsgUnexpected)),
				Err:     fmt.Errorf("task panic: %v", r),
			})
		}
	}()

	if w.throttle != nil {
		if err := w.throttle.Wait(ctx, item.Task.BaseURL); err != nil {
			w.logger.Warn("throttle wait aborted", zap.String("task_id", item.TaskID), zap.Error(err))
			complete(crawler.Result{Outcome: crawler.Classify(crawler.FetchResponse{}, err), Err: err})
			return
		}
	}
	if w.fetcher == nil {
		complete(crawler.Result{
			Outcome: country.Failed(country.InternalError(country.MsgUnexpected)),
			Err:     errors.New("no fetcher configured"),
		})
		return
	}
	complete(item.Task.Run(ctx, w.fetcher, item.TaskID))
}

func (w *Worker) complete(item crawler.QueueItem, res crawler.Result) {
	field := string(item.Task.Criterion.Field)
	status := res.Outcome.Status()
	metrics.ObserveCrawlTask(field, status, res.Duration)

	fields := []zap.Field{
		zap.String("task_id", item.TaskID),
		zap.String("key", item.Task.Criterion.Key()),
		zap.String("url", res.URL),
		zap.Int("status", status),
		zap.Duration("duration", res.Duration),
	}
	switch {
	case res.Err != nil:
		w.logger.Warn("crawl task failed", append(fields, zap.Error(res.Err))...)
	case res.StatusCode >= http.StatusMultipleChoices:
		fields = append(fields, zap.Int("upstream_status", res.StatusCode))
		if detail := crawler.UpstreamDetail(res.Body); detail != "" {
			fields = append(fields, zap.String("upstream_detail", detail))
		}
		w.logger.Info("crawl task got non-success response", fields...)
	default:
		w.logger.Debug("crawl task completed", append(fields, zap.Int("records", len(res.Outcome.Records)))...)
	}

	if item.Handler == nil {
		return
	}
	item.Handler(crawler.Completion{
		TaskID:     item.TaskID,
		Criterion:  item.Task.Criterion,
		Result:     res,
		Submitted:  item.Submitted,
		FinishedAt: w.now(),
	})
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now()
}
