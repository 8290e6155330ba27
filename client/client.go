package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	la "github.com/fjrd84/linkauth"
)

// ErrUnauthorized is returned when the server answers 401.
var ErrUnauthorized = errors.New("unauthorized")

// AuthClient is an HTTP client for the linkauth endpoints.
type AuthClient struct {
	mu         sync.Mutex
	serverURL  string
	prefix     string
	store      CredentialStore
	httpClient *http.Client
	tokenTTL   time.Duration
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithPrefix sets the path the auth routes are mounted under. Defaults to "/auth".
func WithPrefix(prefix string) ClientOption {
	return func(c *AuthClient) { c.prefix = prefix }
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.httpClient.Transport.(*AuthTransport).Base = transport
	}
}

// WithTokenTTL records how long server tokens live so expired ones are not sent.
func WithTokenTTL(ttl time.Duration) ClientOption {
	return func(c *AuthClient) { c.tokenTTL = ttl }
}

// NewAuthClient creates a client for the server at serverURL.
func NewAuthClient(serverURL string, store CredentialStore, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}
	if store == nil {
		store = NewMemoryCredentialStore()
	}
	c := &AuthClient{
		serverURL: serverURL,
		prefix:    "/auth",
		store:     store,
		tokenTTL:  la.DefaultTokenExpiry,
	}
	c.httpClient = &http.Client{Transport: &AuthTransport{Base: http.DefaultTransport, Token: c.Token}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient returns a client that sends the stored token on every request,
// for calling the protected routes of the same server.
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

// Token returns the stored token, or "" when logged out or expired.
func (c *AuthClient) Token() (string, error) {
	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil || cred.IsExpired() {
		return "", err
	}
	return cred.Token, nil
}

// IsLoggedIn returns true if there is a valid (non-expired) credential
func (c *AuthClient) IsLoggedIn() bool {
	token, err := c.Token()
	return err == nil && token != ""
}

// Login authenticates with email and password and stores the token.
func (c *AuthClient) Login(ctx context.Context, email, password string) (*la.Result, error) {
	return c.authenticate(ctx, "/login", email, password)
}

// Signup creates an account, or links the local credential to the logged
// in account.
func (c *AuthClient) Signup(ctx context.Context, email, password string) (*la.Result, error) {
	return c.authenticate(ctx, "/signup", email, password)
}

// ProviderCallback posts a provider profile. When logged in the identity is
// linked to the current account.
func (c *AuthClient) ProviderCallback(ctx context.Context, provider la.Provider, profile *la.RawProfile, accessToken string) (*la.Result, error) {
	body := la.ProviderCallback{Profile: profile, AccessToken: accessToken}
	var res la.Result
	if err := c.do(ctx, http.MethodPost, "/"+string(provider)+"/callback", body, &res); err != nil {
		return nil, err
	}
	if err := c.remember(&res, ""); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *AuthClient) authenticate(ctx context.Context, path, email, password string) (*la.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res la.Result
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return nil, err
	}
	if err := c.remember(&res, email); err != nil {
		return nil, err
	}
	return &res, nil
}

// remember stores the token of a successful result.
func (c *AuthClient) remember(res *la.Result, email string) error {
	if res.Token == "" {
		return nil
	}
	now := time.Now()
	cred := &ServerCredential{
		Token:     res.Token,
		AccountID: res.AccountID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(c.tokenTTL),
	}
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return c.store.Save()
}

// Profile fetches the logged in account.
func (c *AuthClient) Profile(ctx context.Context) (*la.AccountView, error) {
	var view la.AccountView
	if err := c.do(ctx, http.MethodGet, "/profile", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Unlink detaches provider from the logged in account.
func (c *AuthClient) Unlink(ctx context.Context, provider la.Provider) error {
	return c.do(ctx, http.MethodPost, "/unlink/"+string(provider), nil, nil)
}

// Logout tells the server and forgets the stored token.
func (c *AuthClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.do(ctx, http.MethodPost, "/logout", nil, nil); err != nil {
		return err
	}
	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}

type messageResponse struct {
	Message string `json:"message"`
}

// do sends a JSON request and decodes a 200 answer into out. Non-200
// answers become errors carrying the server's message.
func (c *AuthClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+c.prefix+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var msg messageResponse
		_ = json.Unmarshal(data, &msg)
		if resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		if resp.StatusCode == http.StatusBadRequest && msg.Message != "" {
			return la.Rejected(msg.Message)
		}
		return fmt.Errorf("request failed: HTTP %d: %s", resp.StatusCode, msg.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}
