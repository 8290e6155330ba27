// Package client talks to a linkauth server: it logs in, keeps the issued
// bearer token in a CredentialStore and attaches it to later requests.
package client

import (
	"sync"
	"time"
)

// ServerCredential is what the client remembers about one server.
type ServerCredential struct {
	Token     string    `json:"token"`
	AccountID string    `json:"account_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired returns true if the token has expired
func (c *ServerCredential) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// CredentialStore defines the interface for storing and retrieving credentials
type CredentialStore interface {
	// GetCredential retrieves a credential for a server URL
	// Returns nil, nil if no credential exists for the server
	GetCredential(serverURL string) (*ServerCredential, error)

	// SetCredential stores a credential for a server URL
	SetCredential(serverURL string, cred *ServerCredential) error

	// RemoveCredential removes a credential for a server URL
	RemoveCredential(serverURL string) error

	// Save persists any pending changes (for stores that batch writes)
	Save() error
}

// MemoryCredentialStore keeps credentials for the life of the process.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	servers map[string]*ServerCredential
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{servers: make(map[string]*ServerCredential)}
}

func (s *MemoryCredentialStore) GetCredential(serverURL string) (*ServerCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.servers[serverURL], nil
}

func (s *MemoryCredentialStore) SetCredential(serverURL string, cred *ServerCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[serverURL] = cred
	return nil
}

func (s *MemoryCredentialStore) RemoveCredential(serverURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, serverURL)
	return nil
}

func (s *MemoryCredentialStore) Save() error { return nil }
