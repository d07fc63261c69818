package account

import "errors"

var (
	// ErrGeneratorUnavailable indicates the passphrase generator failed or returned no candidates.
	ErrGeneratorUnavailable = errors.New("passphrase generator unavailable")
	// ErrNotFound indicates no account matches the presented passphrase.
	ErrNotFound = errors.New("no account found for passphrase")
	// ErrAmbiguousCredential indicates more than one account matches a passphrase.
	ErrAmbiguousCredential = errors.New("passphrase matches more than one account")
	// ErrUnauthorized indicates the store rejected the passphrase on an authorized call.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates a banned account attempted a mutation.
	ErrForbidden = errors.New("account is banned")
	// ErrStoreUnavailable indicates a transport-level failure talking to the record store.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrInvalidInput indicates a request was rejected before reaching the store.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicate indicates the store refused a record whose passphrase is already in use.
	ErrDuplicate = errors.New("passphrase already in use")
)
