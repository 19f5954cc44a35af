// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"

	"github.com/JakeFAU/country-directory/internal/country"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	TaskID  string
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Result is what a Task produces: the classified outcome plus the raw
// exchange details kept for logging and completion events.
type Result struct {
	Outcome    country.Outcome
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Err        error
}

// Completion is delivered to a CompletionHandler exactly once per task.
type Completion struct {
	TaskID     string
	Criterion  country.Criterion
	Result     Result
	Submitted  time.Time
	FinishedAt time.Time
}

// CompletionHandler receives a task's completion on the engine's goroutine.
type CompletionHandler func(Completion)

// QueueItem wraps a task ready to run.
type QueueItem struct {
	TaskID    string
	Task      Task
	Handler   CompletionHandler
	Submitted time.Time
}
