package linkauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStoreTimeout bounds every store call made by the Broker.
const DefaultStoreTimeout = 5 * time.Second

// Result is what every Broker operation reports back. A rejection is a
// Result with OutcomeRejected and the reason in Message, not an error.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	AccountID string  `json:"accountId,omitempty"`
	Token     string  `json:"token,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// Rejected reports whether the attempt was refused.
func (r *Result) Rejected() bool {
	return r.Outcome == OutcomeRejected
}

// Err returns the rejection as an *IdentityRejected, or nil.
func (r *Result) Err() error {
	if r.Rejected() {
		return Rejected(r.Message)
	}
	return nil
}

// Recorder receives Broker events. See the metrics package for a Prometheus one.
type Recorder interface {
	RecordDecision(operation, outcome string, elapsed time.Duration)
	RecordTokenIssued()
	RecordTokenValidation(valid bool)
	RecordStoreError(kind string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(string, string, time.Duration) {}
func (nopRecorder) RecordTokenIssued()                           {}
func (nopRecorder) RecordTokenValidation(bool)                   {}
func (nopRecorder) RecordStoreError(string)                      {}

// Broker runs authentication events end to end: it resolves the caller,
// serializes on the identity key, consults the Linker and persists the
// outcome. Every operation takes the caller's bearer token explicitly.
type Broker struct {
	Store     AccountStore
	Tokens    TokenService
	Linker    *Linker
	Locker    KeyLocker
	Validator SignupValidator

	// StoreTimeout bounds each store and lock call. Defaults to DefaultStoreTimeout.
	StoreTimeout time.Duration

	Logger  *slog.Logger
	Metrics Recorder
}

// NewBroker wires a Broker with bcrypt credentials, an in-process locker and
// default signup validation.
func NewBroker(store AccountStore, tokens TokenService) *Broker {
	b := &Broker{Store: store, Tokens: tokens}
	b.EnsureDefaults()
	return b
}

// EnsureDefaults fills unset collaborators.
func (b *Broker) EnsureDefaults() {
	if b.Linker == nil {
		b.Linker = NewLinker(NewBcryptVerifier(0))
	}
	if b.Locker == nil {
		b.Locker = NewMemoryLocker()
	}
	if b.Validator == nil {
		b.Validator = NewSignupValidator(DefaultMinPasswordLength)
	}
	if b.StoreTimeout == 0 {
		b.StoreTimeout = DefaultStoreTimeout
	}
	if b.Logger == nil {
		b.Logger = slog.Default()
	}
	if b.Metrics == nil {
		b.Metrics = nopRecorder{}
	}
}

// Login authenticates a local email/password pair.
func (b *Broker) Login(ctx context.Context, email, password string) (*Result, error) {
	return b.run(ctx, "login", "", LocalLogin{Email: NormalizeEmail(email), Password: password})
}

// Signup creates a local account, or attaches the local credential to the
// caller when callerToken is a valid token.
func (b *Broker) Signup(ctx context.Context, email, password, callerToken string) (*Result, error) {
	email = NormalizeEmail(email)
	if err := b.Validator(email, password); err != nil {
		if reason, ok := AsRejection(err); ok {
			return b.rejected("signup", reason, time.Now()), nil
		}
		return nil, err
	}
	return b.run(ctx, "signup", callerToken, LocalSignup{Email: email, Password: password})
}

// ProviderAuthenticate signs in with an external identity. With a valid
// callerToken an unknown identity is linked to the caller.
func (b *Broker) ProviderAuthenticate(ctx context.Context, profile NormalizedProfile, accessToken, callerToken string) (*Result, error) {
	if err := checkProfile(profile, accessToken); err != nil {
		return nil, err
	}
	return b.run(ctx, "provider_auth", callerToken, ProviderAuth{Profile: profile, AccessToken: accessToken})
}

// ProviderLink is ProviderAuthenticate for an explicit connect flow; the
// caller token is mandatory.
func (b *Broker) ProviderLink(ctx context.Context, profile NormalizedProfile, accessToken, callerToken string) (*Result, error) {
	if callerToken == "" {
		return nil, fmt.Errorf("%w: connect requires a caller token", ErrInvalidToken)
	}
	if err := checkProfile(profile, accessToken); err != nil {
		return nil, err
	}
	return b.run(ctx, "provider_link", callerToken, ProviderAuth{Profile: profile, AccessToken: accessToken})
}

func checkProfile(profile NormalizedProfile, accessToken string) error {
	if !profile.Provider.IsExternal() {
		return ErrUnknownProvider
	}
	if profile.ExternalID == "" {
		return malformed(profile.Provider, "id")
	}
	if accessToken == "" {
		return malformed(profile.Provider, "access token")
	}
	return nil
}

// Unlink detaches provider (or "local") from the caller's account.
func (b *Broker) Unlink(ctx context.Context, provider Provider, callerToken string) (*Result, error) {
	started := time.Now()
	if provider != ProviderLocal && !provider.IsExternal() {
		return nil, ErrUnknownProvider
	}
	callerID, err := b.validate(callerToken)
	if err != nil {
		return nil, err
	}

	unlock, err := b.lock(ctx, AccountKey(callerID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	caller, err := b.loadCaller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	decision, err := b.Linker.Unlink(caller, provider)
	if err != nil {
		return nil, err
	}
	if decision.Outcome == OutcomeRejected {
		return b.rejected("unlink", decision.Reason, started), nil
	}
	if decision.Write == WriteUpdate {
		if err := b.storeCall(ctx, "save", func(ctx context.Context) error {
			return b.Store.SaveAccount(ctx, decision.Account)
		}); err != nil {
			return nil, err
		}
	}
	b.Metrics.RecordDecision("unlink", string(OutcomeUnlinked), time.Since(started))
	b.Logger.Info("account unlinked", "account", callerID, "provider", provider)
	return &Result{Outcome: OutcomeUnlinked, AccountID: callerID, Message: "success"}, nil
}

// Profile returns the caller's account.
func (b *Broker) Profile(ctx context.Context, callerToken string) (*Account, error) {
	callerID, err := b.validate(callerToken)
	if err != nil {
		return nil, err
	}
	return b.loadCaller(ctx, callerID)
}

// Logout is stateless: tokens are not tracked server side, so there is
// nothing to revoke and the call always succeeds.
func (b *Broker) Logout(ctx context.Context, callerToken string) (*Result, error) {
	return &Result{Message: "Logged out"}, nil
}

// ResolveCaller validates a token and loads its account.
func (b *Broker) ResolveCaller(ctx context.Context, token string) (*Account, error) {
	return b.Profile(ctx, token)
}

// run is the shared path for login, signup and provider attempts.
func (b *Broker) run(ctx context.Context, op, callerToken string, attempt Attempt) (*Result, error) {
	started := time.Now()

	var callerID string
	if callerToken != "" {
		id, err := b.validate(callerToken)
		if err != nil {
			return nil, err
		}
		callerID = id
	}

	caller, match, unlock, err := b.lockParties(ctx, callerID, attempt)
	if err != nil {
		return nil, err
	}
	defer unlock()

	decision, err := b.Linker.Decide(attempt, match, caller)
	if err != nil {
		return nil, err
	}
	if decision.Outcome == OutcomeRejected {
		return b.rejected(op, decision.Reason, started), nil
	}

	acct := decision.Account
	token := callerToken
	write := decision.Write
	if decision.Outcome == OutcomeAuthenticated || decision.Outcome == OutcomeCreated {
		if token, err = b.Tokens.Issue(acct.ID); err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		b.Metrics.RecordTokenIssued()
		acct.Token = token
		if write == WriteNone {
			write = WriteUpdate
		}
	}

	err = b.storeCall(ctx, "write", func(ctx context.Context) error {
		if write == WriteCreate {
			return b.Store.CreateAccount(ctx, acct)
		}
		return b.Store.SaveAccount(ctx, acct)
	})
	if errors.Is(err, ErrDuplicateIdentity) {
		// another writer claimed the key between our read and write
		return b.rejected(op, conflictReason(attempt), started), nil
	}
	if err != nil {
		return nil, err
	}

	b.Metrics.RecordDecision(op, string(decision.Outcome), time.Since(started))
	b.Logger.Info("auth decision", "op", op, "outcome", decision.Outcome, "account", acct.ID)
	return &Result{Outcome: decision.Outcome, AccountID: acct.ID, Token: token}, nil
}

// maxLockAttempts bounds how often lockParties retries when the account
// holding the identity key changes between the peek and the lock.
const maxLockAttempts = 3

// lockParties locks the identity key together with the account keys of the
// caller and of the current holder of the identity, then loads both under
// the lock. The holder is peeked without a lock first and re-checked.
func (b *Broker) lockParties(ctx context.Context, callerID string, attempt Attempt) (caller, match *Account, unlock func(), err error) {
	for i := 0; i < maxLockAttempts; i++ {
		peek, err := b.findMatch(ctx, attempt)
		if err != nil {
			return nil, nil, nil, err
		}
		keys := []string{attempt.IdentityKey()}
		if callerID != "" {
			keys = append(keys, AccountKey(callerID))
		}
		if peek != nil {
			keys = append(keys, AccountKey(peek.ID))
		}
		unlock, err := b.lock(ctx, keys...)
		if err != nil {
			return nil, nil, nil, err
		}

		match, err = b.findMatch(ctx, attempt)
		if err != nil {
			unlock()
			return nil, nil, nil, err
		}
		if match != nil && (peek == nil || peek.ID != match.ID) {
			unlock()
			continue
		}
		if callerID != "" {
			if caller, err = b.loadCaller(ctx, callerID); err != nil {
				unlock()
				return nil, nil, nil, err
			}
		}
		return caller, match, unlock, nil
	}
	return nil, nil, nil, fmt.Errorf("%w: identity kept changing hands", ErrStoreTimeout)
}

func conflictReason(attempt Attempt) string {
	switch attempt.(type) {
	case LocalSignup:
		return ReasonEmailTaken
	case LocalLogin:
		return ReasonNoUser
	}
	return ReasonIdentityLinked
}

func (b *Broker) rejected(op, reason string, started time.Time) *Result {
	b.Metrics.RecordDecision(op, string(OutcomeRejected), time.Since(started))
	b.Logger.Info("auth rejected", "op", op, "reason", reason)
	return &Result{Outcome: OutcomeRejected, Message: reason}
}

func (b *Broker) validate(token string) (string, error) {
	if token == "" {
		b.Metrics.RecordTokenValidation(false)
		return "", fmt.Errorf("%w: missing token", ErrInvalidToken)
	}
	id, err := b.Tokens.Validate(token)
	b.Metrics.RecordTokenValidation(err == nil)
	if err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			err = fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return "", err
	}
	return id, nil
}

// loadCaller fetches the account behind a validated token. A token whose
// account no longer resolves is treated as invalid.
func (b *Broker) loadCaller(ctx context.Context, id string) (*Account, error) {
	var acct *Account
	err := b.storeCall(ctx, "get", func(ctx context.Context) error {
		var err error
		acct, err = b.Store.GetAccount(ctx, id)
		return err
	})
	if errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: unknown account", ErrInvalidToken)
	}
	return acct, err
}

func (b *Broker) findMatch(ctx context.Context, attempt Attempt) (*Account, error) {
	var match *Account
	err := b.storeCall(ctx, "find", func(ctx context.Context) error {
		var err error
		switch a := attempt.(type) {
		case LocalLogin:
			match, err = b.Store.FindByEmail(ctx, a.Email)
		case LocalSignup:
			match, err = b.Store.FindByEmail(ctx, a.Email)
		case ProviderAuth:
			match, err = b.Store.FindByProvider(ctx, a.Profile.Provider, a.Profile.ExternalID)
		}
		return err
	})
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	return match, err
}

func (b *Broker) lock(ctx context.Context, keys ...string) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, b.StoreTimeout)
	defer cancel()
	unlock, err := b.Locker.Lock(lctx, keys...)
	if err != nil {
		return nil, b.classify("lock", err)
	}
	return unlock, nil
}

// storeCall runs fn under the store timeout and maps infrastructure errors
// onto ErrStoreTimeout / ErrStoreUnavailable. Not-found and duplicate
// errors pass through untouched.
func (b *Broker) storeCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, b.StoreTimeout)
	defer cancel()
	err := fn(sctx)
	if err == nil || errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrDuplicateIdentity) {
		return err
	}
	return b.classify(op, err)
}

func (b *Broker) classify(op string, err error) error {
	if errors.Is(err, ErrStoreTimeout) || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		b.Metrics.RecordStoreError("timeout")
		b.Logger.Error("store call timed out", "op", op, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrStoreTimeout, op, err)
	}
	b.Metrics.RecordStoreError("unavailable")
	b.Logger.Error("store call failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
