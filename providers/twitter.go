package providers

import (
	"golang.org/x/oauth2"

	la "github.com/fjrd84/linkauth"
)

const twitterUserInfoURL = "https://api.twitter.com/2/users/me"

// TwitterEndpoint is the OAuth 2.0 endpoint of the Twitter (X) API.
var TwitterEndpoint = oauth2.Endpoint{
	AuthURL:   "https://twitter.com/i/oauth2/authorize",
	TokenURL:  "https://api.twitter.com/2/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

type twitterUser struct {
	Data struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"data"`
}

func NewTwitter(clientId, clientSecret, callbackUrl string) *Provider {
	p := newProvider(la.ProviderTwitter, clientId, clientSecret, callbackUrl)
	p.Config.Endpoint = TwitterEndpoint
	p.Config.Scopes = []string{"users.read", "tweet.read"}
	p.UserInfoURL = twitterUserInfoURL
	p.decode = decodeTwitter
	return p
}

// The v2 user endpoint carries no email.
func decodeTwitter(data []byte) (*la.RawProfile, error) {
	u, err := unmarshal[twitterUser](data)
	if err != nil {
		return nil, err
	}
	return &la.RawProfile{
		ID:          u.Data.ID,
		DisplayName: u.Data.Name,
		Username:    u.Data.Username,
	}, nil
}
