//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"

	la "github.com/fjrd84/linkauth"
)

// Kind constants for Datastore entities
const (
	KindAccount = "Account"
	KindClaim   = "AccountClaim"
)

// AccountStore implements la.AccountStore using Google Cloud Datastore.
// Account writes and their claims commit in one transaction, so a claim
// taken concurrently by another account aborts the write.
type AccountStore struct {
	client    *datastore.Client
	namespace string
}

// NewAccountStore creates a new Datastore-backed AccountStore
func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{client: client, namespace: namespace}
}

func (s *AccountStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *AccountStore) GetAccount(ctx context.Context, id string) (*la.Account, error) {
	var entity AccountEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindAccount, id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, la.ErrAccountNotFound
		}
		return nil, err
	}
	return entity.ToAccount()
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*la.Account, error) {
	return s.findByKey(ctx, la.LocalKey(email))
}

func (s *AccountStore) FindByProvider(ctx context.Context, provider la.Provider, externalID string) (*la.Account, error) {
	return s.findByKey(ctx, la.ProviderKey(provider, externalID))
}

func (s *AccountStore) findByKey(ctx context.Context, identityKey string) (*la.Account, error) {
	var claim ClaimEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindClaim, identityKey), &claim); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, la.ErrAccountNotFound
		}
		return nil, err
	}
	return s.GetAccount(ctx, claim.AccountID)
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *la.Account) error {
	return s.write(ctx, account, true)
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *la.Account) error {
	return s.write(ctx, account, false)
}

func (s *AccountStore) write(ctx context.Context, account *la.Account, create bool) error {
	accountKey := s.namespacedKey(KindAccount, account.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing AccountEntity
		err := tx.Get(accountKey, &existing)
		switch {
		case err == nil && create:
			return la.ErrDuplicateIdentity
		case errors.Is(err, datastore.ErrNoSuchEntity) && !create:
			return la.ErrAccountNotFound
		case err != nil && !errors.Is(err, datastore.ErrNoSuchEntity):
			return err
		}

		held := map[string]bool{}
		if !create {
			old, err := existing.ToAccount()
			if err != nil {
				return err
			}
			for _, k := range old.IdentityKeys() {
				held[k] = true
			}
		}

		now := time.Now()
		wanted := map[string]bool{}
		for _, k := range account.IdentityKeys() {
			wanted[k] = true
			if held[k] {
				continue
			}
			claimKey := s.namespacedKey(KindClaim, k)
			var claim ClaimEntity
			err := tx.Get(claimKey, &claim)
			if err == nil && claim.AccountID != account.ID {
				return la.ErrDuplicateIdentity
			}
			if err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
				return err
			}
			if _, err := tx.Put(claimKey, &ClaimEntity{AccountID: account.ID, CreatedAt: now}); err != nil {
				return err
			}
		}
		for k := range held {
			if !wanted[k] {
				if err := tx.Delete(s.namespacedKey(KindClaim, k)); err != nil {
					return err
				}
			}
		}

		entity, err := AccountToEntity(account, accountKey, existing.Version+1)
		if err != nil {
			return err
		}
		_, err = tx.Put(accountKey, entity)
		return err
	})
	return err
}
