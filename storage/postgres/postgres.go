// Package postgres implements storage.Repository backed by PostgreSQL.
//
// Each account is one row in the records table. The sealed data envelope is
// stored as individual columns to leverage native BYTEA storage for the nonce
// and ciphertext. A unique index on lookup_id enforces passphrase uniqueness.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/visica/storage"
)

const recordColumns = `id, lookup_id, name, data_ver, data_scheme, data_nonce, data_ciphertext,
	status, created_at, updated_at, version`

// pgxPool is the subset of *pgxpool.Pool the store uses.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

var _ pgxPool = (*pgxpool.Pool)(nil)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool pgxPool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool pgxPool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ---------------------------------------------------------------------------
// Repository interface implementation
// ---------------------------------------------------------------------------

func (s *Store) Create(ctx context.Context, record *storage.Record) error {
	env := envelopeOrEmpty(record.Data)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO records (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		record.ID, record.LookupID, record.Name,
		env.Ver, env.Scheme, env.Nonce, env.Ciphertext,
		record.Status, record.CreatedAt, record.UpdatedAt, record.Version)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", record.ID, storage.ErrDuplicate)
	}
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*storage.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) FindByLookupID(ctx context.Context, lookupID string) ([]*storage.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM records WHERE lookup_id = $1 ORDER BY id`, lookupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*storage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) PutCAS(ctx context.Context, record *storage.Record, expectedVersion uint64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var currentVersion uint64
	var lookupID string
	err = tx.QueryRow(ctx,
		`SELECT version, lookup_id FROM records WHERE id = $1 FOR UPDATE`,
		record.ID).Scan(&currentVersion, &lookupID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", record.ID, storage.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if currentVersion != expectedVersion {
		return storage.ErrCASFailed
	}
	if lookupID != record.LookupID {
		return fmt.Errorf("%s: lookup id is immutable", record.ID)
	}

	env := envelopeOrEmpty(record.Data)
	_, err = tx.Exec(ctx,
		`UPDATE records SET name = $2, data_ver = $3, data_scheme = $4, data_nonce = $5,
		 data_ciphertext = $6, status = $7, updated_at = $8, version = $9
		 WHERE id = $1`,
		record.ID, record.Name, env.Ver, env.Scheme, env.Nonce, env.Ciphertext,
		record.Status, record.UpdatedAt, record.Version)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func scanRecord(row pgx.Row) (*storage.Record, error) {
	var rec storage.Record
	var env storage.Envelope
	err := row.Scan(&rec.ID, &rec.LookupID, &rec.Name,
		&env.Ver, &env.Scheme, &env.Nonce, &env.Ciphertext,
		&rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &rec.Version)
	if err != nil {
		return nil, err
	}
	rec.Data = &env
	return &rec, nil
}

func envelopeOrEmpty(env *storage.Envelope) *storage.Envelope {
	if env == nil {
		return &storage.Envelope{Nonce: []byte{}, Ciphertext: []byte{}}
	}
	return env
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
