package linkauth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is returned for missing, malformed, expired or mis-signed bearer tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrStoreUnavailable wraps any persistence failure other than a timeout.
	ErrStoreUnavailable = errors.New("account store unavailable")

	// ErrStoreTimeout is returned when a store call exceeds its deadline. Retryable.
	ErrStoreTimeout = errors.New("account store timeout")

	// ErrMalformedProfile is returned when a provider profile lacks required fields.
	ErrMalformedProfile = errors.New("malformed provider profile")

	// ErrUnknownProvider is returned for provider names outside the supported set.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrProviderUnavailable is returned when an identity provider cannot be
	// reached or answers with a server error.
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrProviderRejected is returned when a provider refuses the access token.
	ErrProviderRejected = errors.New("identity provider rejected the access token")

	// ErrAccountNotFound is returned by stores when a lookup matches nothing.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateIdentity is returned by stores when a write would give an
	// identity key to a second account.
	ErrDuplicateIdentity = errors.New("identity already claimed by another account")
)

// Rejection reasons reported to callers verbatim.
const (
	ReasonNoUser          = "No user has been found."
	ReasonWrongPassword   = "Wrong password."
	ReasonEmailTaken      = "There already exists an account with that email."
	ReasonIdentityLinked  = "identity already linked to another account"
	ReasonLastCredential  = "Cannot unlink the only remaining login method."
	ReasonInvalidEmail    = "Please provide a valid email address."
	ReasonPasswordTooWeak = "Password is too short."
)

// IdentityRejected is a well-formed attempt the linking rules refused.
type IdentityRejected struct {
	Reason string
}

func (e *IdentityRejected) Error() string {
	return e.Reason
}

// Rejected builds an IdentityRejected error.
func Rejected(reason string) error {
	return &IdentityRejected{Reason: reason}
}

// AsRejection extracts the rejection reason from err, if it is one.
func AsRejection(err error) (string, bool) {
	var rej *IdentityRejected
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

func malformed(provider Provider, field string) error {
	return fmt.Errorf("%w: %s profile missing %s", ErrMalformedProfile, provider, field)
}
