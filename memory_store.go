package authcore

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryAccountStore is an in-process AccountStore for tests, examples and
// single-node demos. Accounts are lost on restart.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	byID     map[string]Account
	byEmail  map[string]string
	byHandle map[string]string
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		byID:     make(map[string]Account),
		byEmail:  make(map[string]string),
		byHandle: make(map[string]string),
	}
}

func (s *MemoryAccountStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	a := s.byID[id]
	return &a, nil
}

func (s *MemoryAccountStore) FindByID(_ context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &a, nil
}

func (s *MemoryAccountStore) Save(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(account.Email)
	if owner, ok := s.byEmail[email]; ok && owner != account.ID {
		return ErrDuplicateAccount
	}
	if owner, ok := s.byHandle[account.Username]; ok && owner != account.ID {
		return ErrDuplicateAccount
	}

	if prev, ok := s.byID[account.ID]; ok {
		delete(s.byEmail, strings.ToLower(prev.Email))
		delete(s.byHandle, prev.Username)
	}

	stored := *account
	stored.Email = email
	s.byID[account.ID] = stored
	s.byEmail[email] = account.ID
	s.byHandle[account.Username] = account.ID
	return nil
}

func (s *MemoryAccountStore) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, byName := s.byHandle[username]
	_, byEmail := s.byEmail[strings.ToLower(email)]
	return byName || byEmail, nil
}

func (s *MemoryAccountStore) RecordLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.LastLoginAt = at
	a.UpdatedAt = at
	s.byID[id] = a
	return nil
}

func (s *MemoryAccountStore) CompareAndSetPasswordHash(_ context.Context, id, expected, next string, at time.Time) (bool, error) {
	return s.update(id, func(a *Account) bool {
		if a.PasswordHash != expected {
			return false
		}
		a.PasswordHash = next
		a.UpdatedAt = at
		return true
	})
}

func (s *MemoryAccountStore) CompareAndSetRole(_ context.Context, id, expected, next string, at time.Time) (bool, error) {
	return s.update(id, func(a *Account) bool {
		if a.Role != expected {
			return false
		}
		a.Role = next
		a.UpdatedAt = at
		return true
	})
}

func (s *MemoryAccountStore) update(id string, apply func(*Account) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return false, ErrAccountNotFound
	}
	if !apply(&a) {
		return false, nil
	}
	s.byID[id] = a
	return true, nil
}
