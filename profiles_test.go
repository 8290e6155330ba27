package linkauth_test

import (
	"errors"
	"testing"

	la "github.com/fjrd84/linkauth"
)

func TestNormalizeProfile(t *testing.T) {
	emails := []la.EmailValue{{Value: ""}, {Value: "ada@example.com"}}
	tests := []struct {
		name     string
		provider la.Provider
		raw      *la.RawProfile
		want     la.NormalizedProfile
		err      error
	}{
		{
			name:     "facebook joins given and family name",
			provider: la.ProviderFacebook,
			raw:      &la.RawProfile{ID: "fb-1", Name: &la.ProfileName{GivenName: "Ada", FamilyName: "Lovelace"}, Emails: emails},
			want:     la.NormalizedProfile{Provider: la.ProviderFacebook, ExternalID: "fb-1", DisplayName: "Ada Lovelace", Email: "ada@example.com"},
		},
		{
			name:     "facebook without emails",
			provider: la.ProviderFacebook,
			raw:      &la.RawProfile{ID: "fb-1", Name: &la.ProfileName{GivenName: "Ada"}},
			err:      la.ErrMalformedProfile,
		},
		{
			name:     "facebook without name",
			provider: la.ProviderFacebook,
			raw:      &la.RawProfile{ID: "fb-1", Emails: emails},
			err:      la.ErrMalformedProfile,
		},
		{
			name:     "google uses display name",
			provider: la.ProviderGoogle,
			raw:      &la.RawProfile{ID: "g-1", DisplayName: "Ada L.", Emails: emails},
			want:     la.NormalizedProfile{Provider: la.ProviderGoogle, ExternalID: "g-1", DisplayName: "Ada L.", Email: "ada@example.com"},
		},
		{
			name:     "google without emails",
			provider: la.ProviderGoogle,
			raw:      &la.RawProfile{ID: "g-1", DisplayName: "Ada"},
			err:      la.ErrMalformedProfile,
		},
		{
			name:     "twitter keeps handle, email optional",
			provider: la.ProviderTwitter,
			raw:      &la.RawProfile{ID: "tw-1", DisplayName: "Ada", Username: "ada"},
			want:     la.NormalizedProfile{Provider: la.ProviderTwitter, ExternalID: "tw-1", DisplayName: "Ada", Username: "ada"},
		},
		{
			name:     "missing id",
			provider: la.ProviderTwitter,
			raw:      &la.RawProfile{DisplayName: "Ada"},
			err:      la.ErrMalformedProfile,
		},
		{
			name:     "nil profile",
			provider: la.ProviderGoogle,
			err:      la.ErrMalformedProfile,
		},
		{
			name:     "local is not a provider profile",
			provider: la.ProviderLocal,
			raw:      &la.RawProfile{ID: "x"},
			err:      la.ErrUnknownProvider,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := la.NormalizeProfile(tt.provider, tt.raw)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseProvider(t *testing.T) {
	for _, name := range []string{"local", "Facebook", "twitter", "GOOGLE"} {
		if _, err := la.ParseProvider(name); err != nil {
			t.Errorf("ParseProvider(%q) failed: %v", name, err)
		}
	}
	if _, err := la.ParseProvider("myspace"); !errors.Is(err, la.ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestSignupValidator(t *testing.T) {
	validate := la.NewSignupValidator(0)
	tests := []struct {
		email, password, reason string
	}{
		{"a@b.com", "s3cr3t", ""},
		{"a@b", "s3cr3t", la.ReasonInvalidEmail},
		{"", "s3cr3t", la.ReasonInvalidEmail},
		{"a@b.com", "12345", la.ReasonPasswordTooWeak},
	}
	for _, tt := range tests {
		err := validate(tt.email, tt.password)
		reason, _ := la.AsRejection(err)
		if reason != tt.reason {
			t.Errorf("validate(%q, %q) = %q, want %q", tt.email, tt.password, reason, tt.reason)
		}
	}
}

func TestBcryptVerifier(t *testing.T) {
	v := la.NewBcryptVerifier(4)
	digest, err := v.HashPassword("s3cr3t")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if digest == "s3cr3t" {
		t.Fatal("password stored in plain text")
	}
	if !v.VerifyPassword("s3cr3t", digest) {
		t.Error("correct password rejected")
	}
	if v.VerifyPassword("wrong", digest) || v.VerifyPassword("s3cr3t", "") {
		t.Error("wrong password accepted")
	}
}
