package linkauth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	la "github.com/fjrd84/linkauth"
)

func TestJWTIssueAndValidate(t *testing.T) {
	svc := &la.JWTService{SecretKey: testSecret, Issuer: "linkauth"}
	tok, err := svc.Issue("acc-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if strings.Count(tok, ".") != 2 {
		t.Errorf("not a JWT: %q", tok)
	}
	id, err := svc.Validate(tok)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if id != "acc-1" {
		t.Errorf("account id = %q", id)
	}
}

func TestJWTValidateFailures(t *testing.T) {
	now := time.Now()
	svc := &la.JWTService{SecretKey: testSecret, Issuer: "linkauth", Expiry: time.Hour, Now: func() time.Time { return now }}
	good, _ := svc.Issue("acc-1")

	later := &la.JWTService{SecretKey: testSecret, Issuer: "linkauth", Now: func() time.Time { return now.Add(2 * time.Hour) }}
	otherSecret := &la.JWTService{SecretKey: "another-secret", Issuer: "linkauth"}
	otherIssuer := &la.JWTService{SecretKey: testSecret, Issuer: "someone-else"}

	noneToken, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "acc-1", "type": "access", "exp": now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	refreshToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "acc-1", "type": "refresh", "exp": now.Add(time.Hour).Unix(), "iss": "linkauth",
	}).SignedString([]byte(testSecret))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "acc-1", "type": "access", "iss": "linkauth",
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name  string
		svc   *la.JWTService
		token string
	}{
		{"empty", svc, ""},
		{"garbage", svc, "not.a.token"},
		{"expired", later, good},
		{"wrong secret", otherSecret, good},
		{"wrong issuer", otherIssuer, good},
		{"alg none", svc, noneToken},
		{"wrong type", svc, refreshToken},
		{"no expiry", svc, noExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.svc.Validate(tt.token); !errors.Is(err, la.ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestJWTSigningMethods(t *testing.T) {
	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		svc := &la.JWTService{SecretKey: testSecret, SigningMethod: alg}
		tok, err := svc.Issue("acc")
		if err != nil {
			t.Fatalf("%s: Issue failed: %v", alg, err)
		}
		parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
		if err != nil {
			t.Fatalf("%s: parse failed: %v", alg, err)
		}
		if parsed.Method.Alg() != alg {
			t.Errorf("alg = %s, want %s", parsed.Method.Alg(), alg)
		}
		if _, err := svc.Validate(tok); err != nil {
			t.Errorf("%s: Validate failed: %v", alg, err)
		}
	}
}

func TestJWTRequiresSecret(t *testing.T) {
	if _, err := (&la.JWTService{}).Issue("acc"); err == nil {
		t.Error("Issue without a secret should fail")
	}
}
