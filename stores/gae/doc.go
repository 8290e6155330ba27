//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore linkauth.AccountStore.
// It supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
//   - Account: the account document, keyed by account id
//   - AccountClaim: one entity per identity key ("local:a@b.com",
//     "google:1234"), naming the account that owns it
//
// Claims are read and written in the same transaction as the account, so
// two accounts can never commit the same identity key.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewAccountStore(client, "") // default namespace
package gae
