package country

import (
	"context"
	"time"
)

// EntryState describes what the result store holds for a key.
type EntryState int

// Entry states reported by ResultStore.Take.
const (
	StateMissing EntryState = iota
	StatePending
	StateResolved
)

func (s EntryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	default:
		return "missing"
	}
}

// ResultStore is the shared holding area between the crawl engine's completion
// handlers and the polling orchestrator.
type ResultStore interface {
	Begin(key string) bool
	Resolve(key string, outcome Outcome) error
	Take(key string) (Outcome, EntryState)
	Release(key string)
	Len() int
}

// Publisher pushes lookup completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes payload digests for completion events.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl task IDs.
type IDGenerator interface {
	NewID() (string, error)
}
