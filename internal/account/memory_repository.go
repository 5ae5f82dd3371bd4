package account

import (
	"context"
	"strings"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryRepository builds an in-memory account store for development and tests.
func NewMemoryRepository(seed ...Account) Repository {
	r := &memoryRepository{accounts: make(map[string]Account)}
	for _, acc := range seed {
		r.accounts[acc.ID] = acc
	}
	return r
}

func (r *memoryRepository) Create(_ context.Context, acc Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Phone == acc.Phone {
			return ErrPhoneTaken
		}
		if acc.Username != "" && strings.EqualFold(existing.Username, acc.Username) {
			return ErrUsernameTaken
		}
	}
	r.accounts[acc.ID] = acc
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acc, nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, acc := range r.accounts {
		if acc.Phone == phone {
			return acc, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryRepository) UsernameExists(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, acc := range r.accounts {
		if acc.Username != "" && strings.EqualFold(acc.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) ClearPushToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if acc.FCMToken == token {
		acc.FCMToken = ""
		r.accounts[id] = acc
	}
	return nil
}
