package linkauth

import (
	"context"
	"strings"
	"time"
)

// Provider names a way of reaching an account.
type Provider string

const (
	ProviderLocal    Provider = "local"
	ProviderFacebook Provider = "facebook"
	ProviderTwitter  Provider = "twitter"
	ProviderGoogle   Provider = "google"
)

// ExternalProviders lists the identity providers an account can be linked to.
var ExternalProviders = []Provider{ProviderFacebook, ProviderTwitter, ProviderGoogle}

// ParseProvider validates a provider name coming from a route or config.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(name)); p {
	case ProviderLocal, ProviderFacebook, ProviderTwitter, ProviderGoogle:
		return p, nil
	}
	return "", ErrUnknownProvider
}

// IsExternal reports whether p is one of the external identity providers.
func (p Provider) IsExternal() bool {
	return p == ProviderFacebook || p == ProviderTwitter || p == ProviderGoogle
}

// LocalCredential is the email/password pair of an account.
type LocalCredential struct {
	Email          string `json:"email"`
	PasswordDigest string `json:"password"`
}

// ProviderProfile is what an account remembers about one external identity.
//
// A profile with an ExternalID but no AccessToken has been unlinked. The
// ExternalID stays reserved for the account so a later sign-in with the same
// external identity lands on the same account.
type ProviderProfile struct {
	ExternalID  string `json:"id"`
	AccessToken string `json:"token,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username,omitempty"` // twitter handle
}

// Active reports whether the profile is currently usable as a login method.
func (p *ProviderProfile) Active() bool {
	return p != nil && p.ExternalID != "" && p.AccessToken != ""
}

// Account is one end user, reachable through any of its credentials.
type Account struct {
	ID        string           `json:"id"`
	Local     *LocalCredential `json:"local,omitempty"`
	Facebook  *ProviderProfile `json:"facebook,omitempty"`
	Twitter   *ProviderProfile `json:"twitter,omitempty"`
	Google    *ProviderProfile `json:"google,omitempty"`
	Token     string           `json:"token,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ProviderProfile returns the sub-record for an external provider, or nil.
func (a *Account) ProviderProfile(p Provider) *ProviderProfile {
	switch p {
	case ProviderFacebook:
		return a.Facebook
	case ProviderTwitter:
		return a.Twitter
	case ProviderGoogle:
		return a.Google
	}
	return nil
}

// SetProviderProfile replaces the sub-record for an external provider.
func (a *Account) SetProviderProfile(p Provider, profile *ProviderProfile) {
	switch p {
	case ProviderFacebook:
		a.Facebook = profile
	case ProviderTwitter:
		a.Twitter = profile
	case ProviderGoogle:
		a.Google = profile
	}
}

// HasLocal reports whether the account has a usable email/password credential.
func (a *Account) HasLocal() bool {
	return a.Local != nil && a.Local.Email != "" && a.Local.PasswordDigest != ""
}

// ActiveCredentials counts the login methods currently usable on the account.
func (a *Account) ActiveCredentials() int {
	n := 0
	if a.HasLocal() {
		n++
	}
	for _, p := range ExternalProviders {
		if a.ProviderProfile(p).Active() {
			n++
		}
	}
	return n
}

// IdentityKeys returns the uniqueness claims the account holds: its local
// email and every external id it has ever been linked to.
func (a *Account) IdentityKeys() []string {
	var keys []string
	if a.Local != nil && a.Local.Email != "" {
		keys = append(keys, LocalKey(a.Local.Email))
	}
	for _, p := range ExternalProviders {
		if prof := a.ProviderProfile(p); prof != nil && prof.ExternalID != "" {
			keys = append(keys, ProviderKey(p, prof.ExternalID))
		}
	}
	return keys
}

// Clone returns a deep copy so decisions never mutate loaded records in place.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Local != nil {
		local := *a.Local
		out.Local = &local
	}
	for _, p := range ExternalProviders {
		if prof := a.ProviderProfile(p); prof != nil {
			cp := *prof
			out.SetProviderProfile(p, &cp)
		}
	}
	return &out
}

// AccountView is the caller-facing rendering of an account. Password digests
// are never included and unlinked providers show no id or token.
type AccountView struct {
	ID       string           `json:"id"`
	Local    *LocalView       `json:"local,omitempty"`
	Facebook *ProviderProfile `json:"facebook,omitempty"`
	Twitter  *ProviderProfile `json:"twitter,omitempty"`
	Google   *ProviderProfile `json:"google,omitempty"`
}

type LocalView struct {
	Email string `json:"email"`
}

// View renders the account for the profile endpoint.
func (a *Account) View() *AccountView {
	v := &AccountView{ID: a.ID}
	if a.Local != nil && a.Local.Email != "" {
		v.Local = &LocalView{Email: a.Local.Email}
	}
	for _, p := range ExternalProviders {
		prof := a.ProviderProfile(p)
		if prof == nil {
			continue
		}
		shown := &ProviderProfile{
			DisplayName: prof.DisplayName,
			Email:       prof.Email,
			Username:    prof.Username,
		}
		if prof.Active() {
			shown.ExternalID = prof.ExternalID
			shown.AccessToken = prof.AccessToken
		}
		switch p {
		case ProviderFacebook:
			v.Facebook = shown
		case ProviderTwitter:
			v.Twitter = shown
		case ProviderGoogle:
			v.Google = shown
		}
	}
	return v
}

// NormalizeEmail is applied to every local email before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LocalKey is the identity key for a local email credential.
func LocalKey(email string) string {
	return string(ProviderLocal) + ":" + NormalizeEmail(email)
}

// ProviderKey is the identity key for an external identity.
func ProviderKey(p Provider, externalID string) string {
	return string(p) + ":" + externalID
}

// AccountKey is the lock key guarding writes to one account.
func AccountKey(accountID string) string {
	return "account:" + accountID
}

// AccountStore persists accounts. Every backend enforces that an identity
// key (see Account.IdentityKeys) belongs to at most one account and fails
// the write with ErrDuplicateIdentity otherwise.
type AccountStore interface {
	// GetAccount returns ErrAccountNotFound when the id is unknown.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// FindByEmail looks up the account holding a local email.
	// Returns ErrAccountNotFound when none does.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	// FindByProvider looks up the account holding an external id, including
	// unlinked (dormant) ones. Returns ErrAccountNotFound when none does.
	FindByProvider(ctx context.Context, provider Provider, externalID string) (*Account, error)

	// CreateAccount inserts a new account.
	CreateAccount(ctx context.Context, account *Account) error

	// SaveAccount replaces an existing account and its identity keys in one write.
	SaveAccount(ctx context.Context, account *Account) error
}
