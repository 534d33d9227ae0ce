package feedback

import (
	"context"
	"sync"
)

// Store persists feedback records. Implementations are constructed once at
// process start and shared by every request until Close.
type Store interface {
	Save(ctx context.Context, record Record) error
	Close() error
}

// MemoryStore keeps records in insertion order, suitable for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make([]Record, 0, 16)}
}

func (s *MemoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	return nil
}

// Records returns a copy of everything saved so far.
func (s *MemoryStore) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]Record, len(s.records))
	copy(copied, s.records)
	return copied
}

func (s *MemoryStore) Close() error { return nil }
