package lookup

import (
	"time"

	"github.com/JakeFAU/country-directory/internal/crawler"
)

// CompletedEvent is published once per finished crawl task.
type CompletedEvent struct {
	Type          string    `json:"type"`
	TaskID        string    `json:"task_id"`
	Key           string    `json:"key"`
	Field         string    `json:"field"`
	Value         string    `json:"value"`
	URL           string    `json:"url,omitempty"`
	Status        int       `json:"status"`
	Detail        string    `json:"detail,omitempty"`
	RecordCount   int       `json:"record_count"`
	PayloadSHA256 string    `json:"payload_sha256,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	SubmittedAt   time.Time `json:"submitted_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

const eventTypeCompleted = "LookupCompleted"

func newCompletedEvent(c crawler.Completion, hash string) CompletedEvent {
	out := c.Result.Outcome
	ev := CompletedEvent{
		Type:          eventTypeCompleted,
		TaskID:        c.TaskID,
		Key:           c.Criterion.Key(),
		Field:         string(c.Criterion.Field),
		Value:         c.Criterion.Value,
		URL:           c.Result.URL,
		Status:        out.Status(),
		RecordCount:   len(out.Records),
		PayloadSHA256: hash,
		DurationMs:    c.Result.Duration.Milliseconds(),
		SubmittedAt:   c.Submitted,
		CompletedAt:   c.FinishedAt,
	}
	if out.Failure != nil {
		ev.Detail = out.Failure.Message
	}
	return ev
}
