package fs

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	la "github.com/fjrd84/linkauth"
)

// FSClaim records which account owns an identity key.
type FSClaim struct {
	Key       string    `json:"key"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountStore implements la.AccountStore with JSON files.
//
// # File Structure
//
//	{StoragePath}/
//	├── accounts/
//	│   └── {accountID}.json        # the full account document
//	└── claims/
//	    ├── local%3Aa%40b.com.json   # {"key": "local:a@b.com", "account_id": ...}
//	    └── google%3A1234.json
//
// # Concurrency Model
//
// Claim files are created with O_EXCL, so two processes sharing the
// directory can never both claim the same identity key; the loser gets
// ErrDuplicateIdentity. Account documents are replaced atomically
// (write to temp, rename). Writes within one process are serialized.
type AccountStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewAccountStore(storagePath string) *AccountStore {
	return &AccountStore{StoragePath: storagePath}
}

func (s *AccountStore) accountPath(id string) string {
	return filepath.Join(s.StoragePath, "accounts", url.PathEscape(id)+".json")
}

func (s *AccountStore) claimPath(key string) string {
	return filepath.Join(s.StoragePath, "claims", url.QueryEscape(key)+".json")
}

func (s *AccountStore) GetAccount(ctx context.Context, id string) (*la.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var acct la.Account
	found, err := readJSON(s.accountPath(id), &acct)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, la.ErrAccountNotFound
	}
	return &acct, nil
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
	var claim FSClaim
	found, err := readJSON(s.claimPath(key), &claim)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, la.ErrAccountNotFound
	}
	return s.GetAccount(ctx, claim.AccountID)
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *la.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.accountPath(account.ID)); err == nil {
		return la.ErrDuplicateIdentity
	}
	return s.write(account, nil)
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *la.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var old la.Account
	found, err := readJSON(s.accountPath(account.ID), &old)
	if err != nil {
		return err
	}
	if !found {
		return la.ErrAccountNotFound
	}
	return s.write(account, &old)
}

// write claims new keys, replaces the document, then drops released keys.
// A failed claim rolls back the claims taken so far.
func (s *AccountStore) write(account *la.Account, old *la.Account) error {
	held := map[string]bool{}
	if old != nil {
		for _, k := range old.IdentityKeys() {
			held[k] = true
		}
	}

	var taken []string
	rollback := func() {
		for _, k := range taken {
			os.Remove(s.claimPath(k))
		}
	}
	wanted := map[string]bool{}
	for _, k := range account.IdentityKeys() {
		wanted[k] = true
		if held[k] {
			continue
		}
		ok, err := s.claim(k, account.ID)
		if err != nil {
			rollback()
			return err
		}
		if !ok {
			rollback()
			return la.ErrDuplicateIdentity
		}
		taken = append(taken, k)
	}

	data, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		rollback()
		return err
	}
	if err := writeAtomicFile(s.accountPath(account.ID), data); err != nil {
		rollback()
		return err
	}

	for k := range held {
		if !wanted[k] {
			if err := os.Remove(s.claimPath(k)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

// claim takes key for accountID. A claim already owned by accountID counts
// as taken, which lets a crashed write be retried.
func (s *AccountStore) claim(key, accountID string) (bool, error) {
	data, err := json.Marshal(&FSClaim{Key: key, AccountID: accountID, CreatedAt: time.Now()})
	if err != nil {
		return false, err
	}
	ok, err := createExclusive(s.claimPath(key), data)
	if err != nil || ok {
		return ok, err
	}
	var existing FSClaim
	if found, err := readJSON(s.claimPath(key), &existing); err != nil || !found {
		return false, err
	}
	return existing.AccountID == accountID, nil
}
