package providers

import (
	"golang.org/x/oauth2/google"

	la "github.com/fjrd84/linkauth"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type googleUser struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func NewGoogle(clientId, clientSecret, callbackUrl string) *Provider {
	p := newProvider(la.ProviderGoogle, clientId, clientSecret, callbackUrl)
	p.Config.Endpoint = google.Endpoint
	p.Config.Scopes = []string{
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	}
	p.UserInfoURL = googleUserInfoURL
	p.decode = decodeGoogle
	return p
}

func decodeGoogle(data []byte) (*la.RawProfile, error) {
	u, err := unmarshal[googleUser](data)
	if err != nil {
		return nil, err
	}
	return &la.RawProfile{
		ID:          u.ID,
		DisplayName: u.Name,
		Name:        &la.ProfileName{GivenName: u.GivenName, FamilyName: u.FamilyName},
		Emails:      emails(u.Email),
	}, nil
}
