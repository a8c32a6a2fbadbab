package records

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps call records in process for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []CallRecord
	pingErr error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) InsertCallRecord(_ context.Context, rec CallRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prepare(&rec, time.Now().UTC())
	rec.ID = uuid.NewString()
	s.records = append(s.records, rec)
	return rec.ID, nil
}

// Records returns a copy of everything stored so far, oldest first.
func (s *InMemoryStore) Records() []CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CallRecord, len(s.records))
	copy(out, s.records)
	return out
}

// SetPingError makes Ping fail with err until it is reset with nil.
func (s *InMemoryStore) SetPingError(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

func (s *InMemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pingErr
}

func (s *InMemoryStore) Close() error { return nil }
