package account

import "sync"

// State holds the authenticated account for the duration of a session.
// The zero value is anonymous. Snapshots handed out are copies, so callers
// can edit them freely and compare against the original with Changed.
type State struct {
	mu      sync.RWMutex
	current *Account
}

// Snapshot returns a copy of the current account and whether one is set.
func (s *State) Snapshot() (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Account{}, false
	}
	return s.current.Clone(), true
}

// Set replaces the current account.
func (s *State) Set(a Account) {
	cp := a.Clone()
	s.mu.Lock()
	s.current = &cp
	s.mu.Unlock()
}

// Reset returns the state to anonymous.
func (s *State) Reset() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Authenticated reports whether an account is loaded.
func (s *State) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}
