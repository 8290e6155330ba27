package client

import (
	"net/http"
)

// AuthTransport wraps an http.RoundTripper to add Authorization headers
type AuthTransport struct {
	Base http.RoundTripper

	// Token returns the bearer token to send, or "" to send none.
	Token func() (string, error)
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var token string
	if t.Token != nil {
		var err error
		if token, err = t.Token(); err != nil {
			return nil, err
		}
	}
	if token != "" {
		// Clone the request to avoid mutating the original
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewAuthTransport creates an AuthTransport that always sends token
func NewAuthTransport(token string) *AuthTransport {
	return &AuthTransport{
		Base:  http.DefaultTransport,
		Token: func() (string, error) { return token, nil },
	}
}
