package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// SlotKey is the fixed key the active passphrase is stored under.
const SlotKey = "Visica_passphrase"

var slotBucket = []byte("session")

// Slot is the local durable key-value slot holding the active passphrase.
// Presence means a restore should be attempted; absence means anonymous.
// Set overwrites. Clear is idempotent.
type Slot interface {
	Get() (string, bool, error)
	Set(passphrase string) error
	Clear() error
}

// MemorySlot is a Slot that lives only as long as the process.
type MemorySlot struct {
	mu    sync.Mutex
	value string
	set   bool
}

var _ Slot = (*MemorySlot)(nil)

func (s *MemorySlot) Get() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.set, nil
}

func (s *MemorySlot) Set(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.set = passphrase, true
	return nil
}

func (s *MemorySlot) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.set = "", false
	return nil
}

// BoltSlot keeps the passphrase in a BBolt file so it survives restarts.
type BoltSlot struct {
	db *bbolt.DB
}

var _ Slot = (*BoltSlot)(nil)

// OpenBoltSlot opens (creating if needed) the slot file at path.
func OpenBoltSlot(path string) (*BoltSlot, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(slotBucket)
		return err
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("creating session bucket: %w", err), db.Close())
	}
	return &BoltSlot{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltSlot) Close() error {
	return s.db.Close()
}

func (s *BoltSlot) Get() (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(slotBucket).Get([]byte(SlotKey))
		if v != nil {
			value, ok = string(v), true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("reading session slot: %w", err)
	}
	return value, ok, nil
}

func (s *BoltSlot) Set(passphrase string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(slotBucket).Put([]byte(SlotKey), []byte(passphrase))
	})
}

func (s *BoltSlot) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(slotBucket).Delete([]byte(SlotKey))
	})
}
