package idempotency

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type memoryRecord struct {
	state     string
	expiresAt time.Time
}

// MemoryStore keeps claims in process memory. Suitable for a single instance
// and for tests; multi-instance deployments use the Redis or Postgres store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, key string, now time.Time, inFlightTTL time.Duration) (ClaimState, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return ClaimUnknown, errors.New("idempotency: key is required")
	}
	if inFlightTTL <= 0 {
		inFlightTTL = DefaultInFlightTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok && now.Before(rec.expiresAt) {
		if rec.state == StateCompleted {
			return ClaimCompleted, nil
		}
		return ClaimInFlight, nil
	}

	s.records[key] = memoryRecord{state: StateProcessing, expiresAt: now.Add(inFlightTTL)}
	return ClaimAcquired, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, key string, now time.Time, retention time.Duration) error {
	if retention <= 0 {
		retention = DefaultRetention
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[strings.TrimSpace(key)] = memoryRecord{state: StateCompleted, expiresAt: now.Add(retention)}
	return nil
}

// Abandon implements Store. Completed records are kept.
func (s *MemoryStore) Abandon(_ context.Context, key string) error {
	key = strings.TrimSpace(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok && rec.state == StateProcessing {
		delete(s.records, key)
	}
	return nil
}

// CleanupExpired implements Store.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, rec := range s.records {
		if !now.Before(rec.expiresAt) {
			delete(s.records, k)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
