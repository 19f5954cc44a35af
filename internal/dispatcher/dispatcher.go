// Package dispatcher manages worker fan-out over the crawl queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/country-directory/internal/crawler"
	"github.com/JakeFAU/country-directory/internal/worker"
)

// Config controls how long Submit may block on a full queue.
type Config struct {
	DispatchTimeout time.Duration
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []*worker.Worker
	cfg     Config
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []*worker.Worker, cfg Config) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		cfg:     cfg,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit hands a task to the engine. It fails when the queue stays full for
// longer than the dispatch timeout or has been closed.
func (d *Dispatcher) Submit(ctx context.Context, item crawler.QueueItem) error {
	if d.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.DispatchTimeout)
		defer cancel()
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
