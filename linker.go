package linkauth

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is the result class of an authentication event.
type Outcome string

const (
	OutcomeAuthenticated Outcome = "authenticated"
	OutcomeCreated       Outcome = "created"
	OutcomeLinked        Outcome = "linked"
	OutcomeUnlinked      Outcome = "unlinked"
	OutcomeRejected      Outcome = "rejected"
)

// WriteKind tells the broker what to persist for a decision.
type WriteKind int

const (
	WriteNone WriteKind = iota
	WriteCreate
	WriteUpdate
)

// Attempt is one authentication event fed to the linker.
type Attempt interface {
	// IdentityKey is the key the attempt competes for.
	IdentityKey() string
}

type LocalLogin struct {
	Email    string
	Password string
}

type LocalSignup struct {
	Email    string
	Password string
}

type ProviderAuth struct {
	Profile     NormalizedProfile
	AccessToken string
}

func (a LocalLogin) IdentityKey() string   { return LocalKey(a.Email) }
func (a LocalSignup) IdentityKey() string  { return LocalKey(a.Email) }
func (a ProviderAuth) IdentityKey() string { return ProviderKey(a.Profile.Provider, a.Profile.ExternalID) }

// Decision is what the linker concluded. Account is a fresh copy reflecting
// the decision; the loaded records passed in are never modified.
type Decision struct {
	Outcome Outcome
	Account *Account
	Reason  string
	Write   WriteKind
}

func reject(reason string) Decision {
	return Decision{Outcome: OutcomeRejected, Reason: reason}
}

// AlreadyLinkedReason is reported when the caller already holds a different
// active identity for the same provider.
func AlreadyLinkedReason(p Provider) string {
	return fmt.Sprintf("A different %s account is already linked.", p)
}

// Linker holds the account-linking rules. It performs no I/O.
type Linker struct {
	Credentials CredentialVerifier
	NewID       func() string
	Now         func() time.Time
}

func NewLinker(credentials CredentialVerifier) *Linker {
	return &Linker{Credentials: credentials}
}

func (l *Linker) newID() string {
	if l.NewID != nil {
		return l.NewID()
	}
	return uuid.NewString()
}

func (l *Linker) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// Decide applies the linking rules to an attempt. match is the account that
// already holds the attempt's identity key, caller is the account the request
// was authenticated as. Either may be nil.
func (l *Linker) Decide(attempt Attempt, match, caller *Account) (Decision, error) {
	switch a := attempt.(type) {
	case LocalLogin:
		return l.decideLogin(a, match), nil
	case LocalSignup:
		return l.decideSignup(a, match, caller)
	case ProviderAuth:
		return l.decideProvider(a, match, caller), nil
	}
	return Decision{}, fmt.Errorf("unsupported attempt %T", attempt)
}

func (l *Linker) decideLogin(a LocalLogin, match *Account) Decision {
	if match == nil || !match.HasLocal() {
		return reject(ReasonNoUser)
	}
	if !l.Credentials.VerifyPassword(a.Password, match.Local.PasswordDigest) {
		return reject(ReasonWrongPassword)
	}
	return Decision{Outcome: OutcomeAuthenticated, Account: match.Clone()}
}

func (l *Linker) decideSignup(a LocalSignup, match, caller *Account) (Decision, error) {
	if match != nil {
		return reject(ReasonEmailTaken), nil
	}
	if caller != nil && caller.HasLocal() {
		return reject(AlreadyLinkedReason(ProviderLocal)), nil
	}
	digest, err := l.Credentials.HashPassword(a.Password)
	if err != nil {
		return Decision{}, err
	}
	local := &LocalCredential{Email: NormalizeEmail(a.Email), PasswordDigest: digest}

	if caller != nil {
		acct := caller.Clone()
		acct.Local = local
		acct.UpdatedAt = l.now()
		return Decision{Outcome: OutcomeLinked, Account: acct, Write: WriteUpdate}, nil
	}
	now := l.now()
	acct := &Account{ID: l.newID(), Local: local, CreatedAt: now, UpdatedAt: now}
	return Decision{Outcome: OutcomeCreated, Account: acct, Write: WriteCreate}, nil
}

func (l *Linker) decideProvider(a ProviderAuth, match, caller *Account) Decision {
	p := a.Profile.Provider
	if match != nil && caller != nil && match.ID != caller.ID {
		return reject(ReasonIdentityLinked)
	}

	if match != nil {
		acct := match.Clone()
		if acct.ProviderProfile(p).Active() {
			return Decision{Outcome: OutcomeAuthenticated, Account: acct}
		}
		// dormant after an unlink: reactivate with the fresh details
		acct.SetProviderProfile(p, profileFrom(a))
		acct.UpdatedAt = l.now()
		return Decision{Outcome: OutcomeAuthenticated, Account: acct, Write: WriteUpdate}
	}

	if caller != nil {
		// a dormant id still reserves the slot for its own relink
		if existing := caller.ProviderProfile(p); existing != nil && existing.ExternalID != "" && existing.ExternalID != a.Profile.ExternalID {
			return reject(AlreadyLinkedReason(p))
		}
		acct := caller.Clone()
		acct.SetProviderProfile(p, profileFrom(a))
		acct.UpdatedAt = l.now()
		return Decision{Outcome: OutcomeLinked, Account: acct, Write: WriteUpdate}
	}

	now := l.now()
	acct := &Account{ID: l.newID(), CreatedAt: now, UpdatedAt: now}
	acct.SetProviderProfile(p, profileFrom(a))
	return Decision{Outcome: OutcomeCreated, Account: acct, Write: WriteCreate}
}

// Unlink detaches one login method from the caller. Provider ids stay
// reserved; a local unlink drops email and password together.
func (l *Linker) Unlink(caller *Account, p Provider) (Decision, error) {
	if caller == nil {
		return Decision{}, ErrInvalidToken
	}
	acct := caller.Clone()
	switch {
	case p == ProviderLocal:
		if acct.Local == nil {
			return Decision{Outcome: OutcomeUnlinked, Account: acct}, nil
		}
		if acct.HasLocal() && acct.ActiveCredentials() == 1 {
			return reject(ReasonLastCredential), nil
		}
		acct.Local = nil
	case p.IsExternal():
		sub := acct.ProviderProfile(p)
		if !sub.Active() {
			return Decision{Outcome: OutcomeUnlinked, Account: acct}, nil
		}
		if acct.ActiveCredentials() == 1 {
			return reject(ReasonLastCredential), nil
		}
		sub.AccessToken = ""
	default:
		return Decision{}, ErrUnknownProvider
	}
	acct.UpdatedAt = l.now()
	return Decision{Outcome: OutcomeUnlinked, Account: acct, Write: WriteUpdate}, nil
}

func profileFrom(a ProviderAuth) *ProviderProfile {
	return &ProviderProfile{
		ExternalID:  a.Profile.ExternalID,
		AccessToken: a.AccessToken,
		DisplayName: a.Profile.DisplayName,
		Email:       a.Profile.Email,
		Username:    a.Profile.Username,
	}
}
