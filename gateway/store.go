package gateway

import "context"

// StoredRecord is an account record as the remote store returns it. Data is
// the JSON-serialized blob; Status is nil when the store omitted it.
type StoredRecord struct {
	ID     string
	Name   string
	Data   string
	Status *bool
}

// Active reports whether the record is active. An absent status is active.
func (r StoredRecord) Active() bool {
	return r.Status == nil || *r.Status
}

// NewRecord is the payload of a create call. The passphrase travels in the
// payload itself, which is why creation needs no separate authorization.
type NewRecord struct {
	Name       string
	Passphrase string
	Data       string
	Status     bool
}

// RecordPatch carries the fields to change. Nil fields are left untouched.
type RecordPatch struct {
	Name *string
	Data *string
}

// RecordStore is the remote keyed collection holding one record per account.
//
// Lookup is the only call keyed by passphrase. Every other call addresses a
// record by ID and re-presents the passphrase as its authorization, so the
// store re-validates the credential on each operation.
//
// Implementations report failures with the account package's sentinel
// errors: ErrUnauthorized when the credential is rejected, ErrNotFound when
// the ID does not exist, ErrForbidden when the record is banned,
// ErrDuplicate on a passphrase collision, and ErrStoreUnavailable for
// transport failures.
type RecordStore interface {
	Lookup(ctx context.Context, passphrase string) ([]StoredRecord, error)
	Get(ctx context.Context, id, passphrase string) (StoredRecord, error)
	Insert(ctx context.Context, rec NewRecord) (StoredRecord, error)
	Patch(ctx context.Context, id, passphrase string, patch RecordPatch) (StoredRecord, error)
	Remove(ctx context.Context, id, passphrase string) error
}
