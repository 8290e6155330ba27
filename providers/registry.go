package providers

import (
	"fmt"

	la "github.com/fjrd84/linkauth"
)

// Registry holds the configured providers by name.
type Registry map[la.Provider]*Provider

// DefaultRegistry builds all three providers from OAUTH2_* environment variables.
func DefaultRegistry() Registry {
	return Registry{
		la.ProviderFacebook: NewFacebook("", "", ""),
		la.ProviderTwitter:  NewTwitter("", "", ""),
		la.ProviderGoogle:   NewGoogle("", "", ""),
	}
}

func (r Registry) Get(name la.Provider) (*Provider, error) {
	p, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", la.ErrUnknownProvider, name)
	}
	return p, nil
}
