package crawler

import (
	"context"
	"errors"
)

// ErrQueueClosed is returned by a Queue once it has been closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Queue provides enqueue/dequeue semantics for crawl tasks.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Throttle enforces the politeness delay between outbound requests.
type Throttle interface {
	Wait(ctx context.Context, url string) error
}

// Submitter hands tasks to the crawl engine.
type Submitter interface {
	Submit(ctx context.Context, item QueueItem) error
}
