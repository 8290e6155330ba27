// Package linkauth is an identity broker that keeps one account per end user
// no matter how they sign in.
//
// An account can be reached through a local email/password credential and
// through external identities from facebook, twitter and google. Every
// authentication event is fed to a Linker that decides whether to
// authenticate an existing account, create a new one, link the identity to
// the caller, or reject the attempt.
//
// # Architecture
//
// Account: one end user. It holds at most one local credential and at most
// one profile per external provider, plus the last bearer token issued.
//
// Linker: the pure decision rules. It never touches storage.
//
// Broker: resolves the caller from an explicit bearer token, serializes on
// the identity key with a KeyLocker, loads candidates from the AccountStore,
// asks the Linker and persists the result.
//
// # Basic Usage
//
//	import (
//	    "github.com/fjrd84/linkauth"
//	    "github.com/fjrd84/linkauth/stores/fs"
//	)
//
//	store := fs.NewAccountStore("/var/data/linkauth")
//	tokens := &linkauth.JWTService{SecretKey: secret, Issuer: "myapp"}
//	broker := linkauth.NewBroker(store, tokens)
//
//	res, err := broker.Signup(ctx, "a@b.com", "s3cr3t", "")
//	// res.Outcome == linkauth.OutcomeCreated, res.Token is a bearer token
//
// Mount the HTTP endpoints:
//
//	auth := linkauth.New(broker)
//	http.Handle("/", auth.Handler()) // serves /auth/login, /auth/signup, ...
//
// # Uniqueness
//
// An external identity or local email belongs to at most one account. Store
// backends refuse writes that would break this with ErrDuplicateIdentity,
// and the Broker holds a per-key lock across its read-decide-write sequence.
// Use stores/redis for the lock when several broker instances share a store.
package linkauth
