package linkauth

import "strings"

// RawProfile is the profile document an identity provider hands back after
// its handshake, in the common portable-contacts shape.
type RawProfile struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"displayName,omitempty"`
	Username    string       `json:"username,omitempty"`
	Name        *ProfileName `json:"name,omitempty"`
	Emails      []EmailValue `json:"emails,omitempty"`
}

type ProfileName struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
}

type EmailValue struct {
	Value string `json:"value"`
}

func (r *RawProfile) firstEmail() string {
	for _, e := range r.Emails {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// NormalizedProfile is the provider-independent identity the linker works with.
type NormalizedProfile struct {
	Provider    Provider
	ExternalID  string
	DisplayName string
	Email       string
	Username    string
}

// Normalizer reduces one provider's raw profile.
type Normalizer func(raw *RawProfile) (NormalizedProfile, error)

var normalizers = map[Provider]Normalizer{
	ProviderFacebook: normalizeFacebook,
	ProviderTwitter:  normalizeTwitter,
	ProviderGoogle:   normalizeGoogle,
}

// NormalizeProfile applies the provider's rules. Missing required fields
// yield ErrMalformedProfile and nothing is written.
func NormalizeProfile(provider Provider, raw *RawProfile) (NormalizedProfile, error) {
	normalize, ok := normalizers[provider]
	if !ok {
		return NormalizedProfile{}, ErrUnknownProvider
	}
	if raw == nil || strings.TrimSpace(raw.ID) == "" {
		return NormalizedProfile{}, malformed(provider, "id")
	}
	return normalize(raw)
}

func normalizeFacebook(raw *RawProfile) (NormalizedProfile, error) {
	email := raw.firstEmail()
	if email == "" {
		return NormalizedProfile{}, malformed(ProviderFacebook, "emails")
	}
	if raw.Name == nil {
		return NormalizedProfile{}, malformed(ProviderFacebook, "name")
	}
	return NormalizedProfile{
		Provider:    ProviderFacebook,
		ExternalID:  raw.ID,
		DisplayName: raw.Name.GivenName + " " + raw.Name.FamilyName,
		Email:       email,
	}, nil
}

func normalizeGoogle(raw *RawProfile) (NormalizedProfile, error) {
	email := raw.firstEmail()
	if email == "" {
		return NormalizedProfile{}, malformed(ProviderGoogle, "emails")
	}
	return NormalizedProfile{
		Provider:    ProviderGoogle,
		ExternalID:  raw.ID,
		DisplayName: raw.DisplayName,
		Email:       email,
	}, nil
}

// Twitter does not always share an email.
func normalizeTwitter(raw *RawProfile) (NormalizedProfile, error) {
	return NormalizedProfile{
		Provider:    ProviderTwitter,
		ExternalID:  raw.ID,
		DisplayName: raw.DisplayName,
		Username:    raw.Username,
		Email:       raw.firstEmail(),
	}, nil
}
