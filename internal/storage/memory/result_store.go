// Package memory provides the process-local result store.
package memory

import (
	"errors"
	"sync"

	"github.com/JakeFAU/country-directory/internal/country"
)

// ErrNotPending is returned when resolving a key that has no pending entry.
var ErrNotPending = errors.New("result store: key is not pending")

type entry struct {
	resolved bool
	outcome  country.Outcome
}

// ResultStore maps criteria keys to pending or resolved outcomes.
// Entries are single use: Take removes a resolved entry.
type ResultStore struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewResultStore constructs a ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{
		entries: make(map[string]entry),
	}
}

// Begin marks key pending and reports true when no entry existed.
func (s *ResultStore) Begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; exists {
		return false
	}
	s.entries[key] = entry{}
	return true
}

// Resolve records the outcome of the task that owns key.
func (s *ResultStore) Resolve(key string, outcome country.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.resolved {
		return ErrNotPending
	}
	s.entries[key] = entry{resolved: true, outcome: outcome}
	return nil
}

// Take removes and returns a resolved outcome.
func (s *ResultStore) Take(key string) (country.Outcome, country.EntryState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	switch {
	case !ok:
		return country.Outcome{}, country.StateMissing
	case !e.resolved:
		return country.Outcome{}, country.StatePending
	default:
		delete(s.entries, key)
		return e.outcome, country.StateResolved
	}
}

// Release drops a pending entry whose task never started.
func (s *ResultStore) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && !e.resolved {
		delete(s.entries, key)
	}
}

// Len returns the number of pending and resolved entries.
func (s *ResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
