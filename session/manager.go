// Package session keeps the active passphrase across process restarts and
// restores the signed-in account at startup.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/visica/account"
)

var (
	// ErrActionInFlight is returned when an action is started while the same
	// action is still running.
	ErrActionInFlight = errors.New("action already in progress")
	// ErrNotSignedIn is returned by actions that need an authenticated session.
	ErrNotSignedIn = errors.New("not signed in")
)

// Gateway is the subset of the access protocol the session drives.
type Gateway interface {
	Create(ctx context.Context, name string, initial account.Data) (string, string, error)
	View(ctx context.Context, passphrase string) (account.Account, error)
	Update(ctx context.Context, passphrase string, patch account.Patch) (account.Account, error)
	Delete(ctx context.Context, passphrase string) error
}

type action int

const (
	actionRestore action = iota
	actionSignIn
	actionCreate
	actionSave
	actionDelete
	numActions
)

// Manager owns the session: the durable slot, the in-memory passphrase and
// the authenticated account state.
type Manager struct {
	gw     Gateway
	slot   Slot
	logger *slog.Logger
	state  account.State

	mu         sync.Mutex
	passphrase *memguard.Enclave

	inflight [numActions]atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager returns an anonymous Manager.
func NewManager(gw Gateway, slot Slot, opts ...Option) *Manager {
	m := &Manager{gw: gw, slot: slot}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m.logger = m.logger.With("component", "session")
	return m
}

func (m *Manager) begin(a action) (func(), error) {
	if !m.inflight[a].CompareAndSwap(false, true) {
		return nil, ErrActionInFlight
	}
	return func() { m.inflight[a].Store(false) }, nil
}

// Restore attempts silent sign-in with the persisted passphrase. It never
// fails: any problem reading the slot or viewing the account invalidates the
// stored credential and leaves the session anonymous.
func (m *Manager) Restore(ctx context.Context) (account.Account, bool) {
	done, err := m.begin(actionRestore)
	if err != nil {
		return account.Account{}, false
	}
	defer done()

	passphrase, ok, err := m.slot.Get()
	if err != nil {
		m.logger.WarnContext(ctx, "session slot unreadable", "error", err)
		m.invalidate(ctx)
		return account.Account{}, false
	}
	if !ok || passphrase == "" {
		return account.Account{}, false
	}

	acct, err := m.gw.View(ctx, passphrase)
	if err != nil {
		m.logger.InfoContext(ctx, "stored passphrase no longer valid", "error", err)
		m.invalidate(ctx)
		return account.Account{}, false
	}

	m.hold(passphrase)
	m.state.Set(acct)
	m.logger.DebugContext(ctx, "session restored", "record_id", acct.ID)
	return acct, true
}

func (m *Manager) invalidate(ctx context.Context) {
	if err := m.Clear(); err != nil {
		m.logger.WarnContext(ctx, "clearing session slot failed", "error", err)
	}
}

// Persist writes passphrase to the durable slot, replacing any previous
// value, and holds it in memory for the rest of the session.
func (m *Manager) Persist(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("%w: empty passphrase", account.ErrInvalidInput)
	}
	if err := m.slot.Set(passphrase); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	m.hold(passphrase)
	return nil
}

// Clear erases the durable slot and forgets the session.
func (m *Manager) Clear() error {
	m.mu.Lock()
	m.passphrase = nil
	m.mu.Unlock()
	m.state.Reset()
	return m.slot.Clear()
}

func (m *Manager) hold(passphrase string) {
	enclave := memguard.NewEnclave([]byte(passphrase))
	m.mu.Lock()
	m.passphrase = enclave
	m.mu.Unlock()
}

// Passphrase returns the passphrase of the signed-in account.
func (m *Manager) Passphrase() (string, error) {
	m.mu.Lock()
	enclave := m.passphrase
	m.mu.Unlock()
	if enclave == nil {
		return "", ErrNotSignedIn
	}
	buf, err := enclave.Open()
	if err != nil {
		return "", fmt.Errorf("opening passphrase enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// Current returns a copy of the signed-in account.
func (m *Manager) Current() (account.Account, bool) {
	return m.state.Snapshot()
}

// SignIn views the account owning passphrase and, on success, persists the
// passphrase. A failed sign-in leaves the session untouched.
func (m *Manager) SignIn(ctx context.Context, passphrase string) (account.Account, error) {
	done, err := m.begin(actionSignIn)
	if err != nil {
		return account.Account{}, err
	}
	defer done()

	acct, err := m.gw.View(ctx, passphrase)
	if err != nil {
		return account.Account{}, err
	}
	if err := m.Persist(passphrase); err != nil {
		return account.Account{}, err
	}
	m.state.Set(acct)
	m.logger.InfoContext(ctx, "signed in", "record_id", acct.ID)
	return acct, nil
}

// CreateAccount creates an account named name with the default data keys and
// signs into it. The new passphrase is returned so it can be shown once.
func (m *Manager) CreateAccount(ctx context.Context, name string) (account.Account, string, error) {
	done, err := m.begin(actionCreate)
	if err != nil {
		return account.Account{}, "", err
	}
	defer done()

	data := account.DefaultData(nil)
	id, passphrase, err := m.gw.Create(ctx, name, data)
	if err != nil {
		return account.Account{}, "", err
	}
	if err := m.Persist(passphrase); err != nil {
		return account.Account{}, "", err
	}
	acct := account.Account{ID: id, Name: name, Data: data, Status: true}
	m.state.Set(acct)
	m.logger.InfoContext(ctx, "account created", "record_id", id)
	return acct, passphrase, nil
}

// Save writes edited back to the store when it differs from the current
// account. An unchanged account is returned as is without a store call.
func (m *Manager) Save(ctx context.Context, edited account.Account) (account.Account, error) {
	done, err := m.begin(actionSave)
	if err != nil {
		return account.Account{}, err
	}
	defer done()

	original, ok := m.state.Snapshot()
	if !ok {
		return account.Account{}, ErrNotSignedIn
	}
	if !account.Changed(original, edited) {
		return original, nil
	}
	passphrase, err := m.Passphrase()
	if err != nil {
		return account.Account{}, err
	}

	updated, err := m.gw.Update(ctx, passphrase, account.Diff(original, edited))
	if err != nil {
		return account.Account{}, err
	}
	m.state.Set(updated)
	return updated, nil
}

// DeleteAccount deletes the signed-in account and clears the session.
func (m *Manager) DeleteAccount(ctx context.Context) error {
	done, err := m.begin(actionDelete)
	if err != nil {
		return err
	}
	defer done()

	passphrase, err := m.Passphrase()
	if err != nil {
		return err
	}
	if err := m.gw.Delete(ctx, passphrase); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "account deleted")
	return m.Clear()
}

// SignOut forgets the session without touching the account.
func (m *Manager) SignOut() error {
	return m.Clear()
}
