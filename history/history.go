// Package history provides conversation memory for individual generation
// units. Workflows themselves never keep history (a single coherent history
// across parallel branches plus an aggregator is undefined); each unit owns
// its Store and consults it only when the per-call UseHistory flag allows.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/fanflow/core"
)

// Record is a single remembered conversation turn.
type Record struct {
	ID        string       // Stable identifier for the turn
	Content   core.Content // The remembered content (role + parts)
	CreatedAt time.Time
}

// Store abstracts conversation memory so durable backends can replace the
// in-memory default.
type Store interface {
	// Append adds contents as new records in order.
	Append(contents ...core.Content)

	// Contents returns the remembered contents in insertion order.
	Contents() []core.Content

	// Len reports the number of remembered records.
	Len() int

	// Clear discards all remembered records.
	Clear()
}

// InMemory is a volatile Store implementation keeping records in a process
// local slice. It is safe for concurrent access and best suited for tests or
// short-lived units. Returned contents are copies of the internal slice so
// callers cannot mutate remembered state.
type InMemory struct {
	mu      sync.RWMutex
	maxLen  int
	records []Record
}

// NewInMemory constructs an empty in-memory history store. A maxLen > 0
// bounds memory to the most recent maxLen records.
func NewInMemory(maxLen int) *InMemory {
	return &InMemory{maxLen: maxLen}
}

// Append implements Store.
func (s *InMemory) Append(contents ...core.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, c := range contents {
		s.records = append(s.records, Record{
			ID:        uuid.NewString(),
			Content:   c,
			CreatedAt: now,
		})
	}
	if s.maxLen > 0 && len(s.records) > s.maxLen {
		s.records = s.records[len(s.records)-s.maxLen:]
	}
}

// Contents implements Store.
func (s *InMemory) Contents() []core.Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contents := make([]core.Content, len(s.records))
	for i, r := range s.records {
		contents[i] = r.Content
	}
	return contents
}

// Len implements Store.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear implements Store.
func (s *InMemory) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

// Records returns a copy of the raw records including ids and timestamps.
func (s *InMemory) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]Record, len(s.records))
	copy(records, s.records)
	return records
}
