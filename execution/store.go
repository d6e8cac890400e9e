package execution

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/BaSui01/crewflow/types"
)

// Store persists execution records. Implementations must be safe for
// concurrent use; the manager writes from worker goroutines while callers
// poll.
type Store interface {
	// Put inserts or replaces a record.
	Put(ctx context.Context, rec *Record) error
	// Get returns the record by ID, or a NOT_FOUND error.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	// Delete removes the record. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}

// notFound builds the canonical missing-record error.
func notFound(id uuid.UUID) error {
	return types.Errorf(types.ErrNotFound, "execution %s not found", id).WithComponent("execution_store")
}

// MemoryStore keeps records in process memory. It is the default store;
// records do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*Record)}
}

// Put stores a copy of the record.
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Get returns a copy of the record.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, notFound(id)
	}
	return rec.Clone(), nil
}

// Delete removes the record if present.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}
