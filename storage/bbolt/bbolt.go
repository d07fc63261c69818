// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmcleod/visica/storage"
	"go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("records")
	lookupBucket  = []byte("lookup")
)

// Store implements storage.Repository backed by a BBolt database.
//
// Records are JSON-encoded under the "records" bucket keyed by ID. The
// "lookup" bucket maps each lookup ID to its record ID and is what
// enforces passphrase uniqueness.
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(lookupBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewRepository(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func getRecord(tx *bbolt.Tx, id string) (*storage.Record, error) {
	data := tx.Bucket(recordsBucket).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	var rec storage.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", id, err)
	}
	return &rec, nil
}

func putRecord(tx *bbolt.Tx, record *storage.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return tx.Bucket(recordsBucket).Put([]byte(record.ID), data)
}

func (s *Store) Create(_ context.Context, record *storage.Record) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(recordsBucket).Get([]byte(record.ID)) != nil {
			return fmt.Errorf("%s: %w", record.ID, storage.ErrDuplicate)
		}
		lookup := tx.Bucket(lookupBucket)
		if lookup.Get([]byte(record.LookupID)) != nil {
			return fmt.Errorf("lookup id: %w", storage.ErrDuplicate)
		}
		if err := lookup.Put([]byte(record.LookupID), []byte(record.ID)); err != nil {
			return err
		}
		return putRecord(tx, record)
	})
}

func (s *Store) Get(_ context.Context, id string) (*storage.Record, error) {
	var rec *storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getRecord(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) FindByLookupID(_ context.Context, lookupID string) ([]*storage.Record, error) {
	var out []*storage.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(lookupBucket).Get([]byte(lookupID))
		if id == nil {
			return nil
		}
		rec, err := getRecord(tx, string(id))
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

func (s *Store) List(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *Store) PutCAS(_ context.Context, record *storage.Record, expectedVersion uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		existing, err := getRecord(tx, record.ID)
		if err != nil {
			return err
		}
		if existing.Version != expectedVersion {
			return storage.ErrCASFailed
		}
		if existing.LookupID != record.LookupID {
			return fmt.Errorf("%s: lookup id is immutable", record.ID)
		}
		return putRecord(tx, record)
	})
}

func (s *Store) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		existing, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(lookupBucket).Delete([]byte(existing.LookupID)); err != nil {
			return err
		}
		return tx.Bucket(recordsBucket).Delete([]byte(id))
	})
}
