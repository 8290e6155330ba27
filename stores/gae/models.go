//go:build !wasm
// +build !wasm

package gae

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/datastore"
	la "github.com/fjrd84/linkauth"
)

// AccountEntity is the Datastore entity for accounts.
// Key name: the account id. The account itself is stored JSON encoded.
type AccountEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Document  []byte         `datastore:"document,noindex"`
	CreatedAt time.Time      `datastore:"created_at"`
	UpdatedAt time.Time      `datastore:"updated_at"`
	Version   int            `datastore:"version"`
}

// ClaimEntity reserves one identity key for an account.
// Key name: the identity key, e.g. "google:1234" or "local:a@b.com".
type ClaimEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	AccountID string         `datastore:"account_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *AccountEntity) ToAccount() (*la.Account, error) {
	var acct la.Account
	if err := json.Unmarshal(e.Document, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func AccountToEntity(a *la.Account, key *datastore.Key, version int) (*AccountEntity, error) {
	doc, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return &AccountEntity{
		Key:       key,
		Document:  doc,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
		Version:   version,
	}, nil
}
