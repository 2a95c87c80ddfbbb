package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps batches in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string]Batch
	results map[string][]Record
	jobs    map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[string]Batch),
		results: make(map[string][]Record),
		jobs:    make(map[string]struct{}),
	}
}

// CreateBatch registers a new batch.
func (s *MemoryStore) CreateBatch(_ context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; ok {
		return fmt.Errorf("%w: batch %s", ErrConflict, b.ID)
	}
	s.batches[b.ID] = b
	return nil
}

// SaveResult stores one result of a batch.
func (s *MemoryStore) SaveResult(_ context.Context, r Record) error { //nolint:gocritic // hugeParam: Record is passed by value
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[r.BatchID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, r.BatchID)
	}
	if _, ok := s.jobs[r.JobID]; ok {
		return fmt.Errorf("%w: job %s", ErrConflict, r.JobID)
	}
	s.jobs[r.JobID] = struct{}{}
	s.results[r.BatchID] = append(s.results[r.BatchID], r)
	return nil
}

// Batch returns a registered batch or ErrNotFound.
func (s *MemoryStore) Batch(_ context.Context, id string) (Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return Batch{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}

// Results returns the stored results of a batch in job order.
func (s *MemoryStore) Results(_ context.Context, batchID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.batches[batchID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, batchID)
	}
	out := append([]Record(nil), s.results[batchID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
