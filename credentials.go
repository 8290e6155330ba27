package linkauth

import (
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// DefaultMinPasswordLength is used when a verifier is built without one.
const DefaultMinPasswordLength = 6

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// CredentialVerifier hashes and checks local passwords.
type CredentialVerifier interface {
	HashPassword(plaintext string) (string, error)
	VerifyPassword(plaintext, digest string) bool
}

// BcryptVerifier is the bcrypt backed CredentialVerifier.
type BcryptVerifier struct {
	Cost int
}

func NewBcryptVerifier(cost int) *BcryptVerifier {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptVerifier{Cost: cost}
}

func (v *BcryptVerifier) HashPassword(plaintext string) (string, error) {
	cost := v.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

func (v *BcryptVerifier) VerifyPassword(plaintext, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// SignupValidator checks a signup attempt before any store access.
// A non-nil error is an IdentityRejected.
type SignupValidator func(email, password string) error

// NewSignupValidator returns the default email/password checks.
func NewSignupValidator(minPasswordLength int) SignupValidator {
	if minPasswordLength <= 0 {
		minPasswordLength = DefaultMinPasswordLength
	}
	return func(email, password string) error {
		if !emailRegex.MatchString(email) {
			return Rejected(ReasonInvalidEmail)
		}
		if len(password) < minPasswordLength {
			return Rejected(ReasonPasswordTooWeak)
		}
		return nil
	}
}
