// Package memory provides a local event sink used when Pub/Sub is not
// configured, and as a test double.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// DefaultCapacity bounds how many events a Publisher retains.
const DefaultCapacity = 256

// Publisher keeps the most recent published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	capacity int
	total    int
	err      error
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// New returns a memory Publisher retaining up to capacity events. A
// non-positive capacity selects DefaultCapacity.
func New(capacity int) *Publisher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Publisher{capacity: capacity}
}

// Publish records the message and returns a pseudo ID. The oldest event is
// evicted once the publisher is full.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish canceled: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.total++
	id := fmt.Sprintf("memory-%d", p.total)
	if len(p.messages) == p.capacity {
		p.messages = p.messages[1:]
	}
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// FailWith makes subsequent publishes return err. Pass nil to recover.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Messages returns the retained publishes, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
