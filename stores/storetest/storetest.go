// Package storetest holds the behaviour every linkauth.AccountStore backend
// must share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	la "github.com/fjrd84/linkauth"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) la.AccountStore

// Run exercises store against the AccountStore contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("FindByIdentity", func(t *testing.T) { testFindByIdentity(t, newStore(t)) })
	t.Run("DuplicateIdentity", func(t *testing.T) { testDuplicateIdentity(t, newStore(t)) })
	t.Run("SaveReleasesKeys", func(t *testing.T) { testSaveReleasesKeys(t, newStore(t)) })
	t.Run("DormantProviderStaysClaimed", func(t *testing.T) { testDormantProvider(t, newStore(t)) })
	t.Run("SaveUnknownAccount", func(t *testing.T) { testSaveUnknown(t, newStore(t)) })
	t.Run("ConcurrentCreates", func(t *testing.T) { testConcurrentCreates(t, newStore(t)) })
}

func sampleAccount(id, email string) *la.Account {
	now := time.Now().UTC().Truncate(time.Second)
	return &la.Account{
		ID:        id,
		Local:     &la.LocalCredential{Email: email, PasswordDigest: "digest-" + id},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testCreateAndGet(t *testing.T, s la.AccountStore) {
	ctx := context.Background()
	acct := sampleAccount("acc-1", "a@b.com")
	acct.Twitter = &la.ProviderProfile{ExternalID: "tw-1", AccessToken: "tok", DisplayName: "Ada", Username: "ada"}
	acct.Token = "jwt"
	if err := s.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	got, err := s.GetAccount(ctx, "acc-1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got.Local == nil || got.Local.Email != "a@b.com" || got.Local.PasswordDigest != "digest-acc-1" {
		t.Errorf("local = %+v", got.Local)
	}
	if got.Twitter == nil || *got.Twitter != *acct.Twitter {
		t.Errorf("twitter = %+v, want %+v", got.Twitter, acct.Twitter)
	}
	if got.Facebook != nil || got.Google != nil {
		t.Errorf("unexpected provider records: %+v %+v", got.Facebook, got.Google)
	}
	if got.Token != "jwt" {
		t.Errorf("token = %q", got.Token)
	}

	if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, la.ErrAccountNotFound) {
		t.Errorf("GetAccount(missing) = %v", err)
	}
}

func testFindByIdentity(t *testing.T, s la.AccountStore) {
	ctx := context.Background()
	acct := sampleAccount("acc-1", "a@b.com")
	acct.Google = &la.ProviderProfile{ExternalID: "g-1", AccessToken: "tok"}
	if err := s.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	got, err := s.FindByEmail(ctx, "A@b.com")
	if err != nil || got.ID != "acc-1" {
		t.Errorf("FindByEmail = %v, %v", got, err)
	}
	got, err = s.FindByProvider(ctx, la.ProviderGoogle, "g-1")
	if err != nil || got.ID != "acc-1" {
		t.Errorf("FindByProvider = %v, %v", got, err)
	}
	if _, err := s.FindByProvider(ctx, la.ProviderFacebook, "g-1"); !errors.Is(err, la.ErrAccountNotFound) {
		t.Errorf("id under another provider = %v", err)
	}
	if _, err := s.FindByEmail(ctx, "x@y.com"); !errors.Is(err, la.ErrAccountNotFound) {
		t.Errorf("unknown email = %v", err)
	}
}

func testDuplicateIdentity(t *testing.T, s la.AccountStore) {
	ctx := context.Background()
	first := sampleAccount("acc-1", "a@b.com")
	first.Facebook = &la.ProviderProfile{ExternalID: "fb-1", AccessToken: "tok"}
	if err := s.CreateAccount(ctx, first); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	if err := s.CreateAccount(ctx, sampleAccount("acc-2", "a@b.com")); !errors.Is(err, la.ErrDuplicateIdentity) {
		t.Errorf("second account with same email: %v", err)
	}

	second := sampleAccount("acc-3", "c@d.com")
	if err := s.CreateAccount(ctx, second); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	second.Facebook = &la.ProviderProfile{ExternalID: "fb-1", AccessToken: "tok"}
	if err := s.SaveAccount(ctx, second); !errors.Is(err, la.ErrDuplicateIdentity) {
		t.Errorf("linking a claimed facebook id: %v", err)
	}

	// the failed save must leave the other claims intact
	got, err := s.FindByEmail(ctx, "c@d.com")
	if err != nil || got.ID != "acc-3" {
		t.Errorf("acc-3 lost its email after a failed save: %v, %v", got, err)
	}
	got, err = s.FindByProvider(ctx, la.ProviderFacebook, "fb-1")
	if err != nil || got.ID != "acc-1" {
		t.Errorf("fb-1 owner = %v, %v", got, err)
	}
}

func testSaveReleasesKeys(t *testing.T, s la.AccountStore) {
	ctx := context.Background()
	acct := sampleAccount("acc-1", "a@b.com")
	acct.Google = &la.ProviderProfile{ExternalID: "g-1", AccessToken: "tok"}
	if err := s.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}

	acct.Local = nil
	if err := s.SaveAccount(ctx, acct); err != nil {
		t.Fatalf("SaveAccount failed: %v", err)
	}
	if _, err := s.FindByEmail(ctx, "a@b.com"); !errors.Is(err, la.ErrAccountNotFound) {
		t.Errorf("email still claimed after removal: %v", err)
	}
	if err := s.CreateAccount(ctx, sampleAccount("acc-2", "a@b.com")); err != nil {
		t.Errorf("released email could not be reused: %v", err)
	}
}

func testDormantProvider(t *testing.T, s la.AccountStore) {
	ctx := context.Background()
	acct := sampleAccount("acc-1", "a@b.com")
	acct.Facebook = &la.ProviderProfile{ExternalID: "fb-1", AccessToken: "tok"}
	if err := s.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	acct.Facebook.AccessToken = ""
	if err := s.SaveAccount(ctx, acct); err != nil {
		t.Fatalf("SaveAccount failed: %v", err)
	}

	got, err := s.FindByProvider(ctx, la.ProviderFacebook, "fb-1")
	if err != nil || got.ID != "acc-1" {
		t.Fatalf("dormant lookup = %v, %v", got, err)
	}
	if got.Facebook.Active() {
		t.Error("dormant profile reads back as active")
	}
}

func testSaveUnknown(t *testing.T, s la.AccountStore) {
	if err := s.SaveAccount(context.Background(), sampleAccount("ghost", "g@h.com")); !errors.Is(err, la.ErrAccountNotFound) {
		t.Errorf("SaveAccount(ghost) = %v", err)
	}
}

func testConcurrentCreates(t *testing.T, s la.AccountStore) {
	ctx := context.Background()
	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acct := sampleAccount(string(rune('a'+i))+"-acc", "race@b.com")
			errs <- s.CreateAccount(ctx, acct)
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, la.ErrDuplicateIdentity):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d creates succeeded, want 1", ok)
	}
}
