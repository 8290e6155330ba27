package linkauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenExpiry is how long an issued bearer token stays valid.
const DefaultTokenExpiry = 24 * time.Hour

// TokenService issues and checks bearer tokens carrying an account id.
type TokenService interface {
	Issue(accountID string) (string, error)
	Validate(token string) (accountID string, err error)
}

// JWTService signs HMAC JWTs with a shared secret.
type JWTService struct {
	SecretKey     string
	Issuer        string
	SigningMethod string        // HS256 (default), HS384 or HS512
	Expiry        time.Duration // defaults to DefaultTokenExpiry

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (s *JWTService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *JWTService) method() jwt.SigningMethod {
	switch s.SigningMethod {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	}
	return jwt.SigningMethodHS256
}

// Issue signs a token whose subject is the account id.
func (s *JWTService) Issue(accountID string) (string, error) {
	if s.SecretKey == "" {
		return "", fmt.Errorf("token service has no secret key")
	}
	expiry := s.Expiry
	if expiry == 0 {
		expiry = DefaultTokenExpiry
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  accountID,
		"type": "access",
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(expiry).Unix(),
	}
	if s.Issuer != "" {
		claims["iss"] = s.Issuer
	}

	token := jwt.NewWithClaims(s.method(), claims)
	signed, err := token.SignedString([]byte(s.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, algorithm, expiry and issuer and returns the
// account id. Every failure wraps ErrInvalidToken.
func (s *JWTService) Validate(tokenString string) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.SecretKey), nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", fmt.Errorf("%w: token validation failed", ErrInvalidToken)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}
	if tokenType, ok := claims["type"].(string); !ok || tokenType != "access" {
		return "", fmt.Errorf("%w: invalid token type", ErrInvalidToken)
	}
	accountID, ok := claims["sub"].(string)
	if !ok || accountID == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return accountID, nil
}
