// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jmcleod/visica/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu      sync.RWMutex
	records map[string]*storage.Record
	// byLookup maps a lookup ID to the set of record IDs carrying it.
	byLookup map[string]map[string]struct{}
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{
		records:  make(map[string]*storage.Record),
		byLookup: make(map[string]map[string]struct{}),
	}
}

// put stores record and indexes it, replacing any record with the same ID.
// Callers hold r.mu.
func (r *Repository) put(record *storage.Record) {
	r.drop(record.ID)
	r.records[record.ID] = record.Clone()
	ids, ok := r.byLookup[record.LookupID]
	if !ok {
		ids = make(map[string]struct{})
		r.byLookup[record.LookupID] = ids
	}
	ids[record.ID] = struct{}{}
}

// drop removes id and its index entry. Callers hold r.mu.
func (r *Repository) drop(id string) {
	existing, ok := r.records[id]
	if !ok {
		return
	}
	delete(r.records, id)
	ids := r.byLookup[existing.LookupID]
	delete(ids, id)
	if len(ids) == 0 {
		delete(r.byLookup, existing.LookupID)
	}
}

func (r *Repository) Create(_ context.Context, record *storage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ID]; ok {
		return fmt.Errorf("%s: %w", record.ID, storage.ErrDuplicate)
	}
	if len(r.byLookup[record.LookupID]) > 0 {
		return fmt.Errorf("lookup id: %w", storage.ErrDuplicate)
	}
	r.put(record)
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (*storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (r *Repository) FindByLookupID(_ context.Context, lookupID string) ([]*storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*storage.Record
	for id := range r.byLookup[lookupID] {
		out = append(out, r.records[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) List(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Repository) PutCAS(_ context.Context, record *storage.Record, expectedVersion uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.records[record.ID]
	if !ok {
		return fmt.Errorf("%s: %w", record.ID, storage.ErrNotFound)
	}
	if existing.Version != expectedVersion {
		return storage.ErrCASFailed
	}
	r.put(record)
	return nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	r.drop(id)
	return nil
}

// Insert stores record without the lookup-uniqueness check. It exists so
// tests can reproduce a store whose uniqueness constraint has been violated.
func (r *Repository) Insert(record *storage.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(record)
}
