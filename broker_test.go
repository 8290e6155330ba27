package linkauth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	la "github.com/fjrd84/linkauth"
	"github.com/fjrd84/linkauth/stores/memory"
)

const testSecret = "test-secret-key"

// setupBroker returns a broker over an in-memory store with a cheap bcrypt cost.
func setupBroker(t *testing.T) (*la.Broker, *memory.AccountStore) {
	t.Helper()
	store := memory.NewAccountStore()
	b := &la.Broker{
		Store:  store,
		Tokens: &la.JWTService{SecretKey: testSecret, Issuer: "linkauth-test"},
		Linker: la.NewLinker(la.NewBcryptVerifier(4)),
	}
	b.EnsureDefaults()
	return b, store
}

func mustSignup(t *testing.T, b *la.Broker, email, password string) *la.Result {
	t.Helper()
	res, err := b.Signup(context.Background(), email, password, "")
	if err != nil {
		t.Fatalf("Signup(%s) failed: %v", email, err)
	}
	if res.Outcome != la.OutcomeCreated {
		t.Fatalf("Signup(%s) outcome = %s (%s), want created", email, res.Outcome, res.Message)
	}
	return res
}

func facebookProfile(id string) la.NormalizedProfile {
	return la.NormalizedProfile{
		Provider:    la.ProviderFacebook,
		ExternalID:  id,
		DisplayName: "Ada Lovelace",
		Email:       "ada@example.com",
	}
}

func googleProfile(id string) la.NormalizedProfile {
	return la.NormalizedProfile{
		Provider:    la.ProviderGoogle,
		ExternalID:  id,
		DisplayName: "Ada L.",
		Email:       "ada@gmail.com",
	}
}

func TestSignupThenLogin(t *testing.T) {
	b, _ := setupBroker(t)
	ctx := context.Background()

	signup := mustSignup(t, b, "a@b.com", "s3cr3t")
	if signup.AccountID == "" || signup.Token == "" {
		t.Fatalf("expected account id and token, got %+v", signup)
	}

	login, err := b.Login(ctx, "A@B.com ", "s3cr3t")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.Outcome != la.OutcomeAuthenticated {
		t.Fatalf("Login outcome = %s (%s)", login.Outcome, login.Message)
	}
	if login.AccountID != signup.AccountID {
		t.Errorf("login account %q, signup account %q", login.AccountID, signup.AccountID)
	}
	if login.Token == signup.Token {
		t.Error("login should issue a fresh token")
	}
	for _, tok := range []string{signup.Token, login.Token} {
		id, err := b.Tokens.Validate(tok)
		if err != nil {
			t.Fatalf("token did not validate: %v", err)
		}
		if id != signup.AccountID {
			t.Errorf("token resolves to %q, want %q", id, signup.AccountID)
		}
	}

	acct, err := b.Profile(ctx, login.Token)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if acct.Token != login.Token {
		t.Error("latest token should be cached on the account")
	}
}

func TestSignupRejections(t *testing.T) {
	b, store := setupBroker(t)
	ctx := context.Background()
	first := mustSignup(t, b, "a@b.com", "s3cr3t")

	other, err := b.ProviderAuthenticate(ctx, googleProfile("g-1"), "gtok", "")
	if err != nil {
		t.Fatalf("ProviderAuthenticate failed: %v", err)
	}

	tests := []struct {
		name        string
		email       string
		password    string
		callerToken string
		reason      string
	}{
		{"duplicate email", "a@b.com", "s3cr3t", "", la.ReasonEmailTaken},
		{"duplicate email differently cased", " A@B.COM", "s3cr3t", "", la.ReasonEmailTaken},
		{"duplicate email with caller token", "a@b.com", "s3cr3t", other.Token, la.ReasonEmailTaken},
		{"caller already has local", "new@b.com", "s3cr3t", first.Token, la.AlreadyLinkedReason(la.ProviderLocal)},
		{"invalid email", "not-an-email", "s3cr3t", "", la.ReasonInvalidEmail},
		{"short password", "c@d.com", "abc", "", la.ReasonPasswordTooWeak},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := b.Signup(ctx, tt.email, tt.password, tt.callerToken)
			if err != nil {
				t.Fatalf("Signup returned error: %v", err)
			}
			if !res.Rejected() {
				t.Fatalf("expected rejection, got %s", res.Outcome)
			}
			if res.Message != tt.reason {
				t.Errorf("reason = %q, want %q", res.Message, tt.reason)
			}
			if res.Token != "" {
				t.Error("rejected signup must not carry a token")
			}
		})
	}
	if store.Len() != 2 {
		t.Errorf("store has %d accounts, want 2", store.Len())
	}
}

func TestLoginRejections(t *testing.T) {
	b, _ := setupBroker(t)
	ctx := context.Background()
	mustSignup(t, b, "a@b.com", "s3cr3t")

	res, err := b.Login(ctx, "nobody@b.com", "s3cr3t")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if res.Message != la.ReasonNoUser {
		t.Errorf("unknown email reason = %q", res.Message)
	}

	res, err = b.Login(ctx, "a@b.com", "wrong")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if res.Message != la.ReasonWrongPassword {
		t.Errorf("wrong password reason = %q", res.Message)
	}
	if reason, ok := la.AsRejection(res.Err()); !ok || reason != la.ReasonWrongPassword {
		t.Errorf("AsRejection = %q, %v", reason, ok)
	}
}

func TestSignupWithCallerLinksLocal(t *testing.T) {
	b, store := setupBroker(t)
	ctx := context.Background()

	created, err := b.ProviderAuthenticate(ctx, facebookProfile("fb-1"), "fbtok", "")
	if err != nil {
		t.Fatalf("ProviderAuthenticate failed: %v", err)
	}
	linked, err := b.Signup(ctx, "a@b.com", "s3cr3t", created.Token)
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if linked.Outcome != la.OutcomeLinked {
		t.Fatalf("outcome = %s (%s), want linked", linked.Outcome, linked.Message)
	}
	if linked.AccountID != created.AccountID || linked.Token != created.Token {
		t.Errorf("link should keep the caller's account and token: %+v", linked)
	}

	login, err := b.Login(ctx, "a@b.com", "s3cr3t")
	if err != nil || login.AccountID != created.AccountID {
		t.Fatalf("login after link = %+v, %v", login, err)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d accounts, want 1", store.Len())
	}
}

func TestProviderFirstAuthCreatesOneAccount(t *testing.T) {
	b, store := setupBroker(t)
	ctx := context.Background()

	res, err := b.ProviderAuthenticate(ctx, facebookProfile("fb-1"), "fbtok", "")
	if err != nil {
		t.Fatalf("ProviderAuthenticate failed: %v", err)
	}
	if res.Outcome != la.OutcomeCreated {
		t.Fatalf("outcome = %s, want created", res.Outcome)
	}
	if store.Len() != 1 {
		t.Fatalf("store has %d accounts, want 1", store.Len())
	}
	acct, err := b.Profile(ctx, res.Token)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if acct.Local != nil || acct.Google != nil || acct.Twitter != nil {
		t.Errorf("new account should hold only the facebook record: %+v", acct)
	}
	if acct.Facebook == nil || acct.Facebook.ExternalID != "fb-1" || acct.Facebook.AccessToken != "fbtok" {
		t.Errorf("facebook record = %+v", acct.Facebook)
	}

	again, err := b.ProviderAuthenticate(ctx, facebookProfile("fb-1"), "fbtok2", "")
	if err != nil {
		t.Fatalf("second ProviderAuthenticate failed: %v", err)
	}
	if again.Outcome != la.OutcomeAuthenticated || again.AccountID != res.AccountID {
		t.Errorf("second auth = %+v", again)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d accounts after re-auth, want 1", store.Len())
	}
}

func TestRelinkAfterUnlinkRestoresAccount(t *testing.T) {
	b, store := setupBroker(t)
	ctx := context.Background()

	signup := mustSignup(t, b, "a@b.com", "s3cr3t")
	linked, err := b.ProviderAuthenticate(ctx, facebookProfile("fb-1"), "fbtok", signup.Token)
	if err != nil || linked.Outcome != la.OutcomeLinked {
		t.Fatalf("link = %+v, %v", linked, err)
	}
	if _, err := b.ProviderLink(ctx, googleProfile("g-1"), "gtok", signup.Token); err != nil {
		t.Fatalf("ProviderLink failed: %v", err)
	}

	unlinked, err := b.Unlink(ctx, la.ProviderFacebook, signup.Token)
	if err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if unlinked.Outcome != la.OutcomeUnlinked || unlinked.Message != "success" {
		t.Fatalf("unlink = %+v", unlinked)
	}

	acct, err := b.Profile(ctx, signup.Token)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	view := acct.View()
	if view.Facebook.ExternalID != "" || view.Facebook.AccessToken != "" {
		t.Errorf("unlinked facebook should show no id or token: %+v", view.Facebook)
	}
	if view.Google == nil || view.Google.ExternalID != "g-1" || view.Google.AccessToken != "gtok" {
		t.Errorf("google should be untouched: %+v", view.Google)
	}
	if view.Local == nil || view.Local.Email != "a@b.com" {
		t.Errorf("local should be untouched: %+v", view.Local)
	}

	relinked, err := b.ProviderAuthenticate(ctx, facebookProfile("fb-1"), "fbtok-new", "")
	if err != nil {
		t.Fatalf("relink failed: %v", err)
	}
	if relinked.AccountID != signup.AccountID {
		t.Errorf("relink landed on %q, want %q", relinked.AccountID, signup.AccountID)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d accounts, want 1", store.Len())
	}
	acct, _ = b.Profile(ctx, relinked.Token)
	if acct.Facebook.AccessToken != "fbtok-new" {
		t.Errorf("relink should restore the token, got %q", acct.Facebook.AccessToken)
	}
}

func TestDormantIdentityKeepsItsSlot(t *testing.T) {
	b, store := setupBroker(t)
	ctx := context.Background()

	signup := mustSignup(t, b, "a@b.com", "s3cr3t")
	if res, err := b.ProviderLink(ctx, facebookProfile("fb-1"), "fbtok", signup.Token); err != nil || res.Outcome != la.OutcomeLinked {
		t.Fatalf("link fb-1 = %+v, %v", res, err)
	}
	if _, err := b.Unlink(ctx, la.ProviderFacebook, signup.Token); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}

	res, err := b.ProviderLink(ctx, facebookProfile("fb-2"), "fbtok2", signup.Token)
	if err != nil {
		t.Fatalf("link fb-2 failed: %v", err)
	}
	if res.Outcome != la.OutcomeRejected || res.Message != la.AlreadyLinkedReason(la.ProviderFacebook) {
		t.Errorf("link fb-2 over dormant fb-1 = %+v", res)
	}

	back, err := b.ProviderAuthenticate(ctx, facebookProfile("fb-1"), "fbtok-new", "")
	if err != nil {
		t.Fatalf("ProviderAuthenticate fb-1 failed: %v", err)
	}
	if back.Outcome != la.OutcomeAuthenticated || back.AccountID != signup.AccountID {
		t.Errorf("fb-1 sign in = %+v, want authenticated on %q", back, signup.AccountID)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d accounts, want 1", store.Len())
	}
}

func TestProviderOwnedByAnotherAccountIsRejected(t *testing.T) {
	b, _ := setupBroker(t)
	ctx := context.Background()

	owner, _ := b.ProviderAuthenticate(ctx, facebookProfile("fb-1"), "fbtok", "")
	caller := mustSignup(t, b, "a@b.com", "s3cr3t")

	res, err := b.ProviderAuthenticate(ctx, facebookProfile("fb-1"), "fbtok", caller.Token)
	if err != nil {
		t.Fatalf("ProviderAuthenticate failed: %v", err)
	}
	if res.Message != la.ReasonIdentityLinked {
		t.Errorf("reason = %q, want %q", res.Message, la.ReasonIdentityLinked)
	}
	if res.AccountID == owner.AccountID {
		t.Error("caller must not be switched to the owning account")
	}

	if _, err := b.ProviderLink(ctx, facebookProfile("fb-2"), "tok", caller.Token); err != nil {
		t.Fatalf("ProviderLink failed: %v", err)
	}
	res, _ = b.ProviderLink(ctx, facebookProfile("fb-3"), "tok", caller.Token)
	if res.Message != la.AlreadyLinkedReason(la.ProviderFacebook) {
		t.Errorf("second facebook link reason = %q", res.Message)
	}
}

func TestUnlinkRules(t *testing.T) {
	b, _ := setupBroker(t)
	ctx := context.Background()

	only, _ := b.ProviderAuthenticate(ctx, googleProfile("g-1"), "gtok", "")
	res, err := b.Unlink(ctx, la.ProviderGoogle, only.Token)
	if err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if res.Message != la.ReasonLastCredential {
		t.Errorf("reason = %q, want %q", res.Message, la.ReasonLastCredential)
	}

	signup := mustSignup(t, b, "a@b.com", "s3cr3t")
	b.ProviderLink(ctx, googleProfile("g-2"), "gtok", signup.Token)
	if res, _ := b.Unlink(ctx, la.ProviderLocal, signup.Token); res.Outcome != la.OutcomeUnlinked {
		t.Fatalf("local unlink = %+v", res)
	}
	// the email is free again
	again, err := b.Signup(ctx, "a@b.com", "s3cr3t", "")
	if err != nil || again.Outcome != la.OutcomeCreated {
		t.Errorf("signup after local unlink = %+v, %v", again, err)
	}

	if _, err := b.Unlink(ctx, la.ProviderGoogle, ""); !errors.Is(err, la.ErrInvalidToken) {
		t.Errorf("unlink without token: %v", err)
	}
	if _, err := b.Unlink(ctx, la.Provider("myspace"), signup.Token); !errors.Is(err, la.ErrUnknownProvider) {
		t.Errorf("unlink unknown provider: %v", err)
	}
}

func TestCallerTokenErrors(t *testing.T) {
	b, _ := setupBroker(t)
	ctx := context.Background()

	if _, err := b.Profile(ctx, ""); !errors.Is(err, la.ErrInvalidToken) {
		t.Errorf("Profile without token: %v", err)
	}
	if _, err := b.Signup(ctx, "a@b.com", "s3cr3t", "garbage"); !errors.Is(err, la.ErrInvalidToken) {
		t.Errorf("Signup with garbage token: %v", err)
	}
	if _, err := b.ProviderLink(ctx, facebookProfile("fb-1"), "tok", ""); !errors.Is(err, la.ErrInvalidToken) {
		t.Errorf("ProviderLink without token: %v", err)
	}

	// a token for an account that no longer exists
	orphan, _ := b.Tokens.Issue("ghost")
	if _, err := b.Profile(ctx, orphan); !errors.Is(err, la.ErrInvalidToken) {
		t.Errorf("Profile with orphan token: %v", err)
	}
}

func TestMalformedProviderInput(t *testing.T) {
	b, store := setupBroker(t)
	ctx := context.Background()

	if _, err := b.ProviderAuthenticate(ctx, facebookProfile(""), "tok", ""); !errors.Is(err, la.ErrMalformedProfile) {
		t.Errorf("missing id: %v", err)
	}
	if _, err := b.ProviderAuthenticate(ctx, facebookProfile("fb-1"), "", ""); !errors.Is(err, la.ErrMalformedProfile) {
		t.Errorf("missing access token: %v", err)
	}
	bogus := facebookProfile("x")
	bogus.Provider = la.ProviderLocal
	if _, err := b.ProviderAuthenticate(ctx, bogus, "tok", ""); !errors.Is(err, la.ErrUnknownProvider) {
		t.Errorf("local as provider: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("nothing should be written, store has %d accounts", store.Len())
	}
}

func TestConcurrentSignupSameEmail(t *testing.T) {
	b, store := setupBroker(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	results := make(chan *la.Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.Signup(ctx, "race@b.com", "s3cr3t", "")
			if err != nil {
				t.Errorf("Signup failed: %v", err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for res := range results {
		switch {
		case res.Outcome == la.OutcomeCreated:
			created++
		case res.Message != la.ReasonEmailTaken:
			t.Errorf("unexpected result %+v", res)
		}
	}
	if created != 1 {
		t.Errorf("%d signups created an account, want exactly 1", created)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d accounts, want 1", store.Len())
	}
}

func TestConcurrentProviderFirstAuth(t *testing.T) {
	b, store := setupBroker(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.ProviderAuthenticate(ctx, googleProfile("g-race"), "gtok", "")
			if err != nil {
				t.Errorf("ProviderAuthenticate failed: %v", err)
				return
			}
			ids <- res.AccountID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 || store.Len() != 1 {
		t.Errorf("expected one account, got ids %v and %d stored", seen, store.Len())
	}
}

// slowStore blocks every call until its context is done.
type slowStore struct {
	*memory.AccountStore
}

func (s slowStore) FindByEmail(ctx context.Context, email string) (*la.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// brokenStore fails every lookup.
type brokenStore struct {
	*memory.AccountStore
}

func (s brokenStore) FindByEmail(ctx context.Context, email string) (*la.Account, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailuresAreNotRejections(t *testing.T) {
	b, store := setupBroker(t)
	b.Store = slowStore{store}
	b.StoreTimeout = 20 * time.Millisecond

	_, err := b.Login(context.Background(), "a@b.com", "s3cr3t")
	if !errors.Is(err, la.ErrStoreTimeout) {
		t.Errorf("slow store: got %v, want ErrStoreTimeout", err)
	}
	if la.StatusFor(err) != 503 {
		t.Errorf("timeout status = %d", la.StatusFor(err))
	}

	b.Store = brokenStore{store}
	_, err = b.Signup(context.Background(), "a@b.com", "s3cr3t", "")
	if !errors.Is(err, la.ErrStoreUnavailable) {
		t.Errorf("broken store: got %v, want ErrStoreUnavailable", err)
	}
	if la.StatusFor(err) != 500 {
		t.Errorf("unavailable status = %d", la.StatusFor(err))
	}
}

// countingRecorder tallies decisions per outcome.
type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	issued   int
}

func (r *countingRecorder) RecordDecision(op, outcome string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}
func (r *countingRecorder) RecordTokenIssued() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued++
}
func (r *countingRecorder) RecordTokenValidation(bool) {}
func (r *countingRecorder) RecordStoreError(string)    {}

func TestBrokerRecordsDecisions(t *testing.T) {
	b, _ := setupBroker(t)
	rec := &countingRecorder{outcomes: map[string]int{}}
	b.Metrics = rec
	ctx := context.Background()

	mustSignup(t, b, "a@b.com", "s3cr3t")
	b.Login(ctx, "a@b.com", "s3cr3t")
	b.Login(ctx, "a@b.com", "nope")

	if rec.outcomes["created"] != 1 || rec.outcomes["authenticated"] != 1 || rec.outcomes["rejected"] != 1 {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
	if rec.issued != 2 {
		t.Errorf("issued = %d, want 2", rec.issued)
	}
}

func TestLogoutIsStateless(t *testing.T) {
	b, _ := setupBroker(t)
	signup := mustSignup(t, b, "a@b.com", "s3cr3t")

	res, err := b.Logout(context.Background(), signup.Token)
	if err != nil || res.Message != "Logged out" {
		t.Fatalf("Logout = %+v, %v", res, err)
	}
	if _, err := b.ResolveCaller(context.Background(), signup.Token); err != nil {
		t.Errorf("token should still resolve after logout: %v", err)
	}
}
