package history

import (
	"context"
	"sync"
)

// DefaultMemCapacity bounds a MemStore when the caller passes a
// non-positive capacity.
const DefaultMemCapacity = 1024

// MemStore is a [Store] keeping the newest records in a fixed-size ring.
// It is the default backend and the one tests use.
type MemStore struct {
	mu   sync.Mutex
	ring []Record
	next int
	full bool
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates a MemStore retaining the newest capacity records.
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultMemCapacity
	}
	return &MemStore{ring: make([]Record, capacity)}
}

// Append archives rec, evicting the oldest record when the ring is full.
func (s *MemStore) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = *rec
	s.next++
	if s.next == len(s.ring) {
		s.next = 0
		s.full = true
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *MemStore) Recent(ctx context.Context, clientID string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.full {
		n = len(s.ring)
	}
	var out []Record
	for i := 0; i < n && (limit <= 0 || len(out) < limit); i++ {
		// Walk backwards from the most recent slot.
		idx := (s.next - 1 - i + len(s.ring)) % len(s.ring)
		rec := s.ring[idx]
		if clientID != "" && rec.ClientID != clientID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemStore) Close() error { return nil }
