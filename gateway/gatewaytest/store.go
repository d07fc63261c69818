// Package gatewaytest provides in-memory fakes for exercising the gateway
// protocol without a remote record store.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmcleod/visica/account"
	"github.com/jmcleod/visica/gateway"
)

type fakeRecord struct {
	id         string
	name       string
	passphrase string
	data       string
	status     *bool
}

// Store is an in-memory gateway.RecordStore. It assigns IDs "r1", "r2", ...
// and counts calls so tests can assert which operations reached the store.
type Store struct {
	mu      sync.Mutex
	records []*fakeRecord
	nextID  int

	// Err, when set, is returned by every call.
	Err error
	// GetErr, when set, is returned by Get only.
	GetErr error

	Lookups int
	Gets    int
	Inserts int
	Patches int
	Removes int
}

var _ gateway.RecordStore = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Seed adds a record directly, bypassing uniqueness checks, and returns its ID.
// A nil status mimics a store that omits the field.
func (s *Store) Seed(name, passphrase, data string, status *bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("r%d", s.nextID)
	s.records = append(s.records, &fakeRecord{id: id, name: name, passphrase: passphrase, data: data, status: status})
	return id
}

// SetStatus flips the active flag of the record with the given ID.
func (s *Store) SetStatus(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.id == id {
			r.status = &active
		}
	}
}

// Record returns the stored name and data blob for id.
func (s *Store) Record(id string) (name, data string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.id == id {
			return r.name, r.data, true
		}
	}
	return "", "", false
}

// Mutations returns the number of insert, patch and remove calls made.
func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Inserts + s.Patches + s.Removes
}

func (s *Store) Lookup(_ context.Context, passphrase string) ([]gateway.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Lookups++
	if s.Err != nil {
		return nil, s.Err
	}
	var out []gateway.StoredRecord
	for _, r := range s.records {
		if r.passphrase == passphrase {
			out = append(out, gateway.StoredRecord{ID: r.id, Status: r.status})
		}
	}
	return out, nil
}

func (s *Store) authorized(id, passphrase string) (*fakeRecord, error) {
	for _, r := range s.records {
		if r.id == id {
			if r.passphrase != passphrase {
				return nil, account.ErrUnauthorized
			}
			return r, nil
		}
	}
	return nil, account.ErrNotFound
}

func (s *Store) Get(_ context.Context, id, passphrase string) (gateway.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gets++
	if s.Err != nil {
		return gateway.StoredRecord{}, s.Err
	}
	if s.GetErr != nil {
		return gateway.StoredRecord{}, s.GetErr
	}
	r, err := s.authorized(id, passphrase)
	if err != nil {
		return gateway.StoredRecord{}, err
	}
	return r.stored(), nil
}

func (s *Store) Insert(_ context.Context, rec gateway.NewRecord) (gateway.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Inserts++
	if s.Err != nil {
		return gateway.StoredRecord{}, s.Err
	}
	for _, r := range s.records {
		if r.passphrase == rec.Passphrase {
			return gateway.StoredRecord{}, account.ErrDuplicate
		}
	}
	s.nextID++
	status := rec.Status
	r := &fakeRecord{
		id:         fmt.Sprintf("r%d", s.nextID),
		name:       rec.Name,
		passphrase: rec.Passphrase,
		data:       rec.Data,
		status:     &status,
	}
	s.records = append(s.records, r)
	return r.stored(), nil
}

func (s *Store) Patch(_ context.Context, id, passphrase string, patch gateway.RecordPatch) (gateway.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Patches++
	if s.Err != nil {
		return gateway.StoredRecord{}, s.Err
	}
	r, err := s.authorized(id, passphrase)
	if err != nil {
		return gateway.StoredRecord{}, err
	}
	if patch.Name != nil {
		r.name = *patch.Name
	}
	if patch.Data != nil {
		r.data = *patch.Data
	}
	return r.stored(), nil
}

func (s *Store) Remove(_ context.Context, id, passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Removes++
	if s.Err != nil {
		return s.Err
	}
	if _, err := s.authorized(id, passphrase); err != nil {
		return err
	}
	for n, r := range s.records {
		if r.id == id {
			s.records = append(s.records[:n], s.records[n+1:]...)
			break
		}
	}
	return nil
}

func (r *fakeRecord) stored() gateway.StoredRecord {
	return gateway.StoredRecord{ID: r.id, Name: r.name, Data: r.data, Status: r.status}
}

// Issuer returns the configured passphrases in order, then fails.
type Issuer struct {
	mu          sync.Mutex
	Passphrases []string
	Err         error
}

// NewIssuer returns an Issuer yielding passphrases in order.
func NewIssuer(passphrases ...string) *Issuer {
	return &Issuer{Passphrases: passphrases}
}

func (i *Issuer) Issue(context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Err != nil {
		return "", i.Err
	}
	if len(i.Passphrases) == 0 {
		return "", account.ErrGeneratorUnavailable
	}
	p := i.Passphrases[0]
	i.Passphrases = i.Passphrases[1:]
	return p, nil
}
