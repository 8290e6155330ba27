// Package memory is an in-process AccountStore, used by tests and single
// instance deployments that can afford to lose state on restart.
package memory

import (
	"context"
	"sync"

	la "github.com/fjrd84/linkauth"
)

// AccountStore keeps accounts in maps guarded by one mutex. The claims map
// gives each identity key to exactly one account id.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*la.Account
	claims   map[string]string
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*la.Account),
		claims:   make(map[string]string),
	}
}

func (s *AccountStore) GetAccount(ctx context.Context, id string) (*la.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, la.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*la.Account, error) {
	return s.findByKey(ctx, la.LocalKey(email))
}

func (s *AccountStore) FindByProvider(ctx context.Context, provider la.Provider, externalID string) (*la.Account, error) {
	return s.findByKey(ctx, la.ProviderKey(provider, externalID))
}

func (s *AccountStore) findByKey(ctx context.Context, key string) (*la.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.claims[key]
	if !ok {
		return nil, la.ErrAccountNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *la.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.ID]; exists {
		return la.ErrDuplicateIdentity
	}
	return s.put(account)
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *la.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.ID]; !exists {
		return la.ErrAccountNotFound
	}
	return s.put(account)
}

// put must run under the write lock.
func (s *AccountStore) put(account *la.Account) error {
	keys := account.IdentityKeys()
	for _, k := range keys {
		if owner, ok := s.claims[k]; ok && owner != account.ID {
			return la.ErrDuplicateIdentity
		}
	}
	if old, ok := s.accounts[account.ID]; ok {
		for _, k := range old.IdentityKeys() {
			delete(s.claims, k)
		}
	}
	for _, k := range keys {
		s.claims[k] = account.ID
	}
	s.accounts[account.ID] = account.Clone()
	return nil
}

// Len reports the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
