// Package providers turns a provider access token into the normalized
// profile the broker links on. The OAuth redirect and code exchange stay
// with the caller; this package starts from the resulting *oauth2.Token.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"

	la "github.com/fjrd84/linkauth"
)

// decodeFunc reads a provider's user info response.
type decodeFunc func(data []byte) (*la.RawProfile, error)

// Provider is one external identity provider.
type Provider struct {
	Name        la.Provider
	Config      oauth2.Config
	UserInfoURL string

	decode decodeFunc
}

// newProvider fills client settings from OAUTH2_<NAME>_* variables when not given.
func newProvider(name la.Provider, clientId, clientSecret, callbackUrl string) *Provider {
	prefix := "OAUTH2_" + strings.ToUpper(string(name)) + "_"
	if clientId == "" {
		clientId = os.Getenv(prefix + "CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv(prefix + "CLIENT_SECRET")
	}
	if callbackUrl == "" {
		callbackUrl = os.Getenv(prefix + "CALLBACK_URL")
	}
	return &Provider{
		Name: name,
		Config: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
}

// FetchProfile calls the provider's user info endpoint with token and
// normalizes the answer.
func (p *Provider) FetchProfile(ctx context.Context, token *oauth2.Token) (la.NormalizedProfile, error) {
	if token == nil || token.AccessToken == "" {
		return la.NormalizedProfile{}, fmt.Errorf("%w: %s access token missing", la.ErrMalformedProfile, p.Name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return la.NormalizedProfile{}, err
	}
	resp, err := p.Config.Client(ctx, token).Do(req)
	if err != nil {
		return la.NormalizedProfile{}, fmt.Errorf("%w: %s user info: %v", la.ErrProviderUnavailable, p.Name, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return la.NormalizedProfile{}, fmt.Errorf("%w: %s user info: %v", la.ErrProviderUnavailable, p.Name, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return la.NormalizedProfile{}, fmt.Errorf("%w: %s answered %s", la.ErrProviderRejected, p.Name, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return la.NormalizedProfile{}, fmt.Errorf("%w: %s answered %s", la.ErrProviderUnavailable, p.Name, resp.Status)
	}
	raw, err := p.decode(data)
	if err != nil {
		return la.NormalizedProfile{}, fmt.Errorf("%w: %s: %v", la.ErrMalformedProfile, p.Name, err)
	}
	return la.NormalizeProfile(p.Name, raw)
}

// Authenticate fetches the profile behind token and hands it to the broker.
// A non-empty callerToken links the identity to that caller.
func (p *Provider) Authenticate(ctx context.Context, broker *la.Broker, token *oauth2.Token, callerToken string) (*la.Result, error) {
	profile, err := p.FetchProfile(ctx, token)
	if err != nil {
		return nil, err
	}
	return broker.ProviderAuthenticate(ctx, profile, token.AccessToken, callerToken)
}

func unmarshal[T any](data []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func emails(values ...string) []la.EmailValue {
	var out []la.EmailValue
	for _, v := range values {
		if v != "" {
			out = append(out, la.EmailValue{Value: v})
		}
	}
	return out
}
