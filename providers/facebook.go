package providers

import (
	"golang.org/x/oauth2/facebook"

	la "github.com/fjrd84/linkauth"
)

const facebookUserInfoURL = "https://graph.facebook.com/me?fields=id,first_name,last_name,email"

type facebookUser struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func NewFacebook(clientId, clientSecret, callbackUrl string) *Provider {
	p := newProvider(la.ProviderFacebook, clientId, clientSecret, callbackUrl)
	p.Config.Endpoint = facebook.Endpoint
	p.Config.Scopes = []string{"email", "public_profile"}
	p.UserInfoURL = facebookUserInfoURL
	p.decode = decodeFacebook
	return p
}

func decodeFacebook(data []byte) (*la.RawProfile, error) {
	u, err := unmarshal[facebookUser](data)
	if err != nil {
		return nil, err
	}
	return &la.RawProfile{
		ID:     u.ID,
		Name:   &la.ProfileName{GivenName: u.FirstName, FamilyName: u.LastName},
		Emails: emails(u.Email),
	}, nil
}
