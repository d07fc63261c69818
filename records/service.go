// Package records implements the server side of the account record store.
//
// A record is addressed by ID but every read or write must present the
// account passphrase. The passphrase is never persisted: records carry its
// lookup ID, and the data blob is sealed with a key derived from it.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	icrypto "github.com/jmcleod/visica/internal/crypto"
	"github.com/jmcleod/visica/internal/uuid"
	"github.com/jmcleod/visica/storage"
)

const (
	dataVersion    = 1
	maxCASAttempts = 3
	casRetryDelay  = 5 * time.Millisecond
	emptyData      = "{}"
)

// Account is a record as returned to an authorized caller.
type Account struct {
	ID      string
	Name    string
	Data    string
	Status  bool
	Created time.Time
	Updated time.Time
}

// Match is a lookup result. It carries only what the filter call exposes.
type Match struct {
	ID     string
	Status bool
}

// Summary is the admin view of a record. It never includes data.
type Summary struct {
	ID      string
	Name    string
	Status  bool
	Created time.Time
	Updated time.Time
}

// NewAccount is the input to Create. A nil Status creates an active record.
type NewAccount struct {
	Name       string
	Passphrase string
	Data       string
	Status     *bool
}

// Changes is the input to Update. Nil fields are left untouched.
type Changes struct {
	Name *string
	Data *string
}

// Service applies the record store rules on top of a storage.Repository.
type Service struct {
	repo storage.Repository
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService returns a Service backed by repo.
func NewService(repo storage.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a new record. A passphrase already in use is reported as
// storage.ErrDuplicate.
func (s *Service) Create(ctx context.Context, in NewAccount) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if err := validateName(in.Name); err != nil {
		return Account{}, err
	}
	if err := validatePassphrase(in.Passphrase); err != nil {
		return Account{}, err
	}
	if err := validateData(in.Data); err != nil {
		return Account{}, err
	}

	data := in.Data
	if data == "" {
		data = emptyData
	}
	status := in.Status == nil || *in.Status

	now := s.now().UTC()
	rec := &storage.Record{
		ID:        uuid.New(),
		LookupID:  icrypto.LookupID(in.Passphrase),
		Name:      in.Name,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	env, err := seal(in.Passphrase, rec.ID, data)
	if err != nil {
		return Account{}, err
	}
	rec.Data = env

	if err := s.repo.Create(ctx, rec); err != nil {
		return Account{}, fmt.Errorf("creating record: %w", err)
	}
	return toAccount(rec, data), nil
}

// Find returns every record whose passphrase matches. An empty passphrase
// matches nothing.
func (s *Service) Find(ctx context.Context, passphrase string) ([]Match, error) {
	if passphrase == "" {
		return nil, nil
	}
	recs, err := s.repo.FindByLookupID(ctx, icrypto.LookupID(passphrase))
	if err != nil {
		return nil, fmt.Errorf("finding records: %w", err)
	}
	out := make([]Match, len(recs))
	for n, rec := range recs {
		out[n] = Match{ID: rec.ID, Status: rec.Status}
	}
	return out, nil
}

// Get returns the record with the given ID if passphrase belongs to it.
func (s *Service) Get(ctx context.Context, id, passphrase string) (Account, error) {
	rec, err := s.authorize(ctx, id, passphrase)
	if err != nil {
		return Account{}, err
	}
	data, err := open(passphrase, rec)
	if err != nil {
		return Account{}, err
	}
	return toAccount(rec, data), nil
}

// Update applies changes to the record. Banned records are refused.
// Concurrent writers are resolved by compare-and-swap; the last successful
// writer wins.
func (s *Service) Update(ctx context.Context, id, passphrase string, changes Changes) (Account, error) {
	if changes.Name == nil && changes.Data == nil {
		return Account{}, validationErrorf("nothing to update")
	}
	if changes.Name != nil {
		if err := validateName(*changes.Name); err != nil {
			return Account{}, err
		}
	}
	if changes.Data != nil {
		if err := validateData(*changes.Data); err != nil {
			return Account{}, err
		}
	}

	var out Account
	err := s.retryCAS(ctx, func(ctx context.Context) error {
		rec, err := s.authorize(ctx, id, passphrase)
		if err != nil {
			return err
		}
		if !rec.Status {
			return fmt.Errorf("%s: %w", id, ErrBanned)
		}

		var data string
		if changes.Data != nil {
			data = *changes.Data
			if data == "" {
				data = emptyData
			}
			if rec.Data, err = seal(passphrase, rec.ID, data); err != nil {
				return err
			}
		} else if data, err = open(passphrase, rec); err != nil {
			return err
		}
		if changes.Name != nil {
			rec.Name = *changes.Name
		}

		if err := s.put(ctx, rec); err != nil {
			return err
		}
		out = toAccount(rec, data)
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return out, nil
}

// Delete removes the record. Banned records are refused.
func (s *Service) Delete(ctx context.Context, id, passphrase string) error {
	rec, err := s.authorize(ctx, id, passphrase)
	if err != nil {
		return err
	}
	if !rec.Status {
		return fmt.Errorf("%s: %w", id, ErrBanned)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// SetStatus bans (active=false) or reinstates a record. It is an operator
// action and takes no passphrase.
func (s *Service) SetStatus(ctx context.Context, id string, active bool) (Summary, error) {
	var out Summary
	err := s.retryCAS(ctx, func(ctx context.Context) error {
		rec, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status != active {
			rec.Status = active
			if err := s.put(ctx, rec); err != nil {
				return err
			}
		}
		out = toSummary(rec)
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return out, nil
}

// List returns a summary of every record ordered by ID.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	ids, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		rec, err := s.repo.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue // deleted since List
		}
		if err != nil {
			return nil, err
		}
		out = append(out, toSummary(rec))
	}
	return out, nil
}

// put writes rec over the version it was read at.
func (s *Service) put(ctx context.Context, rec *storage.Record) error {
	expected := rec.Version
	rec.Version++
	rec.UpdatedAt = s.now().UTC()
	if err := s.repo.PutCAS(ctx, rec, expected); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// retryCAS runs fn again when it loses a compare-and-swap race. Any other
// error is returned as is.
func (s *Service) retryCAS(ctx context.Context, fn retry.RetryFunc) error {
	backoff := retry.WithMaxRetries(maxCASAttempts-1, retry.NewConstant(casRetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, storage.ErrCASFailed) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// authorize loads the record and checks passphrase against its lookup ID.
// An unknown ID is storage.ErrNotFound; a wrong passphrase is ErrUnauthorized.
func (s *Service) authorize(ctx context.Context, id, passphrase string) (*storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, validationErrorf("record ID must not be empty")
	}
	if passphrase == "" {
		return nil, ErrUnauthorized
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !icrypto.MatchLookupID(rec.LookupID, icrypto.LookupID(passphrase)) {
		return nil, ErrUnauthorized
	}
	return rec, nil
}

func seal(passphrase, id, data string) (*storage.Envelope, error) {
	key, err := icrypto.DeriveDataKey(passphrase, id)
	if err != nil {
		return nil, fmt.Errorf("deriving data key: %w", err)
	}
	defer clear(key)
	env, err := storage.SealRecord(key, []byte(data), icrypto.AADRecordData(id, dataVersion))
	if err != nil {
		return nil, fmt.Errorf("sealing data: %w", err)
	}
	return env, nil
}

func open(passphrase string, rec *storage.Record) (string, error) {
	if rec.Data == nil {
		return emptyData, nil
	}
	key, err := icrypto.DeriveDataKey(passphrase, rec.ID)
	if err != nil {
		return "", fmt.Errorf("deriving data key: %w", err)
	}
	defer clear(key)
	plain, err := storage.OpenRecord(key, rec.Data, icrypto.AADRecordData(rec.ID, dataVersion))
	if err != nil {
		return "", fmt.Errorf("opening data for %s: %w", rec.ID, err)
	}
	defer clear(plain)
	return string(plain), nil
}

func toAccount(rec *storage.Record, data string) Account {
	return Account{
		ID:      rec.ID,
		Name:    rec.Name,
		Data:    data,
		Status:  rec.Status,
		Created: rec.CreatedAt,
		Updated: rec.UpdatedAt,
	}
}

func toSummary(rec *storage.Record) Summary {
	return Summary{
		ID:      rec.ID,
		Name:    rec.Name,
		Status:  rec.Status,
		Created: rec.CreatedAt,
		Updated: rec.UpdatedAt,
	}
}
