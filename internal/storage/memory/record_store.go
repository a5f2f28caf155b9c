// Package memory provides in-memory stores for development and testing.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
)

// RecordStore keeps catalog records in a map. Updates are field-level and
// unsynchronized across callers beyond the map lock, matching the document store.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]enrich.Record
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]enrich.Record)}
}

// Put creates or replaces a record, standing in for catalog ingestion.
func (s *RecordStore) Put(_ context.Context, rec enrich.Record) error {
	if rec.ID == "" {
		return errors.New("record id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Get fetches a record by ID.
func (s *RecordStore) Get(_ context.Context, id string) (enrich.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return enrich.Record{}, enrich.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Update writes the set fields of update onto an existing record.
func (s *RecordStore) Update(_ context.Context, id string, update enrich.RecordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return enrich.ErrNotFound
	}
	s.records[id] = update.ApplyTo(rec)
	return nil
}

func cloneRecord(rec enrich.Record) enrich.Record {
	if rec.Tags != nil {
		rec.Tags = append([]string{}, rec.Tags...)
	}
	if rec.Metadata != nil {
		md := *rec.Metadata
		rec.Metadata = &md
	}
	return rec
}
