package providers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	la "github.com/fjrd84/linkauth"
)

type tokenRequest struct {
	AccessToken string `json:"accessToken"`
}

// TokenHandler serves POST /{provider}/token: the body carries a provider
// access token, the server fetches the profile itself and runs the broker.
func TokenHandler(registry Registry, broker *la.Broker, extractor la.TokenExtractor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerToken := extractor.Extract(r)
		name, err := la.ParseProvider(mux.Vars(r)["provider"])
		if err != nil {
			la.WriteError(w, err)
			return
		}
		provider, err := registry.Get(name)
		if err != nil {
			la.WriteError(w, err)
			return
		}
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
			la.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "accessToken required"})
			return
		}
		res, err := provider.Authenticate(r.Context(), broker, &oauth2.Token{AccessToken: req.AccessToken, TokenType: "Bearer"}, callerToken)
		if err != nil {
			la.WriteError(w, err)
			return
		}
		la.WriteResult(w, res)
	}
}
