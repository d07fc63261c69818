// Package gateway implements the passphrase access protocol.
//
// Every operation other than Create runs in two phases: the passphrase is
// first resolved to a record ID, then the action is performed on that ID with
// the passphrase presented again for authorization. No "passphrase is valid"
// result is cached between calls.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jmcleod/visica/account"
	"github.com/jmcleod/visica/issuer"
)

// Gateway performs account operations against a RecordStore.
type Gateway struct {
	store  RecordStore
	issuer issuer.Issuer
	logger *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the structured logger. Passphrases are never logged;
// accounts are identified by record ID only.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// New returns a Gateway. The issuer is only used by Create.
func New(store RecordStore, iss issuer.Issuer, opts ...Option) *Gateway {
	g := &Gateway{store: store, issuer: iss}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	g.logger = g.logger.With("component", "gateway")
	return g
}

// Create issues a new passphrase and inserts an active account with the
// given name and data. It returns the new record ID and the passphrase.
func (g *Gateway) Create(ctx context.Context, name string, initial account.Data) (string, string, error) {
	if strings.TrimSpace(name) == "" {
		return "", "", fmt.Errorf("%w: name is required", account.ErrInvalidInput)
	}

	passphrase, err := g.issuer.Issue(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "passphrase issue failed", "error", err)
		return "", "", err
	}

	blob, err := account.EncodeData(initial)
	if err != nil {
		return "", "", err
	}

	rec, err := g.store.Insert(ctx, NewRecord{
		Name:       name,
		Passphrase: passphrase,
		Data:       blob,
		Status:     true,
	})
	if err != nil {
		err = classify(err)
		g.logger.WarnContext(ctx, "create failed", "error", err)
		return "", "", fmt.Errorf("creating account: %w", err)
	}
	if rec.ID == "" {
		return "", "", fmt.Errorf("creating account: %w: store returned no id", account.ErrStoreUnavailable)
	}

	g.logger.InfoContext(ctx, "account created", "record_id", rec.ID)
	return rec.ID, passphrase, nil
}

// Resolve maps a passphrase to the ID of the one account carrying it.
func (g *Gateway) Resolve(ctx context.Context, passphrase string) (string, error) {
	rec, err := g.resolve(ctx, passphrase)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// resolve returns the single matching lookup entry. Zero matches is
// ErrNotFound; several is ErrAmbiguousCredential. The first match is never
// chosen arbitrarily.
func (g *Gateway) resolve(ctx context.Context, passphrase string) (StoredRecord, error) {
	if passphrase == "" {
		return StoredRecord{}, account.ErrNotFound
	}
	matches, err := g.store.Lookup(ctx, passphrase)
	if err != nil {
		return StoredRecord{}, fmt.Errorf("resolving passphrase: %w", classify(err))
	}
	switch len(matches) {
	case 0:
		return StoredRecord{}, account.ErrNotFound
	case 1:
		if matches[0].ID == "" {
			return StoredRecord{}, fmt.Errorf("resolving passphrase: %w: match has no id", account.ErrStoreUnavailable)
		}
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for n, m := range matches {
			ids[n] = m.ID
		}
		g.logger.ErrorContext(ctx, "passphrase uniqueness violated", "record_ids", ids)
		return StoredRecord{}, fmt.Errorf("%w: %d records", account.ErrAmbiguousCredential, len(matches))
	}
}

// View resolves the passphrase and fetches the full account with the
// passphrase re-presented.
func (g *Gateway) View(ctx context.Context, passphrase string) (account.Account, error) {
	match, err := g.resolve(ctx, passphrase)
	if err != nil {
		return account.Account{}, err
	}
	rec, err := g.store.Get(ctx, match.ID, passphrase)
	if err != nil {
		err = classify(err)
		g.logger.WarnContext(ctx, "authorized fetch failed", "record_id", match.ID, "error", err)
		return account.Account{}, fmt.Errorf("fetching account: %w", err)
	}
	return toAccount(rec)
}

// Update applies patch to the account owning passphrase. Banned accounts are
// refused before any store mutation is issued.
func (g *Gateway) Update(ctx context.Context, passphrase string, patch account.Patch) (account.Account, error) {
	if patch.Empty() {
		return account.Account{}, fmt.Errorf("%w: nothing to update", account.ErrInvalidInput)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return account.Account{}, fmt.Errorf("%w: name must not be empty", account.ErrInvalidInput)
	}

	match, err := g.resolve(ctx, passphrase)
	if err != nil {
		return account.Account{}, err
	}
	if !match.Active() {
		g.logger.WarnContext(ctx, "update refused for banned account", "record_id", match.ID)
		return account.Account{}, account.ErrForbidden
	}

	rp := RecordPatch{Name: patch.Name}
	if patch.Data != nil {
		blob, err := account.EncodeData(patch.Data)
		if err != nil {
			return account.Account{}, err
		}
		rp.Data = &blob
	}

	rec, err := g.store.Patch(ctx, match.ID, passphrase, rp)
	if err != nil {
		err = classify(err)
		g.logger.WarnContext(ctx, "update failed", "record_id", match.ID, "error", err)
		return account.Account{}, fmt.Errorf("updating account: %w", err)
	}
	g.logger.InfoContext(ctx, "account updated", "record_id", match.ID)
	return toAccount(rec)
}

// Delete removes the account owning passphrase. Banned accounts are refused
// the same way Update refuses them.
func (g *Gateway) Delete(ctx context.Context, passphrase string) error {
	match, err := g.resolve(ctx, passphrase)
	if err != nil {
		return err
	}
	if !match.Active() {
		g.logger.WarnContext(ctx, "delete refused for banned account", "record_id", match.ID)
		return account.ErrForbidden
	}
	if err := g.store.Remove(ctx, match.ID, passphrase); err != nil {
		err = classify(err)
		g.logger.WarnContext(ctx, "delete failed", "record_id", match.ID, "error", err)
		return fmt.Errorf("deleting account: %w", err)
	}
	g.logger.InfoContext(ctx, "account deleted", "record_id", match.ID)
	return nil
}

func toAccount(rec StoredRecord) (account.Account, error) {
	data, err := account.DecodeData(rec.Data)
	if err != nil {
		return account.Account{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	return account.Account{
		ID:     rec.ID,
		Name:   rec.Name,
		Data:   data,
		Status: rec.Active(),
	}, nil
}

var knownErrors = []error{
	account.ErrNotFound,
	account.ErrAmbiguousCredential,
	account.ErrUnauthorized,
	account.ErrForbidden,
	account.ErrStoreUnavailable,
	account.ErrInvalidInput,
	account.ErrDuplicate,
	context.Canceled,
	context.DeadlineExceeded,
}

// classify keeps taxonomy errors as they are and treats anything else a
// store returns as a transport failure.
func classify(err error) error {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", account.ErrStoreUnavailable, err)
}
