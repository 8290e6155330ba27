package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fjrd84/linkauth/client"
)

func TestFSCredentialStore_GetSetCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewFSCredentialStore(path, "")
	if err != nil {
		t.Fatalf("NewFSCredentialStore() error = %v", err)
	}

	cred, err := store.GetCredential("http://localhost:8080")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if cred != nil {
		t.Errorf("expected nil credential, got %+v", cred)
	}

	if err := store.SetCredential("http://localhost:8080/auth/login", &client.ServerCredential{
		Token:     "test-token",
		AccountID: "acct-1",
		Email:     "a@b.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("SetCredential() error = %v", err)
	}

	// path is ignored, scheme://host is the key
	cred, err = store.GetCredential("http://localhost:8080")
	if err != nil {
		t.Fatalf("GetCredential() error = %v", err)
	}
	if cred == nil || cred.Token != "test-token" {
		t.Fatalf("expected test-token credential, got %+v", cred)
	}
}

func TestFSCredentialStore_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")

	store, err := NewFSCredentialStore(path, "")
	if err != nil {
		t.Fatalf("NewFSCredentialStore() error = %v", err)
	}
	store.SetCredential("https://auth.example.com", &client.ServerCredential{Token: "tok", AccountID: "acct-9"})
	if err := store.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("credentials file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("credentials file should be owner-only, got %v", perm)
	}

	reloaded, err := NewFSCredentialStore(path, "")
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	cred, _ := reloaded.GetCredential("https://auth.example.com")
	if cred == nil || cred.AccountID != "acct-9" {
		t.Fatalf("expected reloaded credential, got %+v", cred)
	}

	reloaded.RemoveCredential("https://auth.example.com")
	reloaded.Save()
	again, _ := NewFSCredentialStore(path, "")
	if cred, _ := again.GetCredential("https://auth.example.com"); cred != nil {
		t.Errorf("expected credential removed, got %+v", cred)
	}
}

func TestFSCredentialStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	os.WriteFile(path, []byte("{not json"), 0600)

	if _, err := NewFSCredentialStore(path, ""); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}
