// Package storage provides the storage abstraction layer for account records.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for the requested ID.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a record with the same ID or lookup ID already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// Record is the persisted form of an account. The passphrase is never
// stored: LookupID is its digest and Data is sealed with a key derived from it.
type Record struct {
	ID        string    `json:"id"`
	LookupID  string    `json:"lookup_id"`
	Name      string    `json:"name"`
	Data      *Envelope `json:"data"`
	Status    bool      `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   uint64    `json:"version"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Data = r.Data.Clone()
	return &cp
}

// Repository defines the interface for account record storage.
//
// Implementations enforce uniqueness of both ID and LookupID on Create.
// FindByLookupID returns every record carrying the lookup ID so callers can
// detect a broken uniqueness invariant instead of silently picking one.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	FindByLookupID(ctx context.Context, lookupID string) ([]*Record, error)
	List(ctx context.Context) ([]string, error)
	PutCAS(ctx context.Context, record *Record, expectedVersion uint64) error
	Delete(ctx context.Context, id string) error
}
