package linkauth

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
)

// ProviderCallback is the body a provider handshake posts once it holds the
// user's profile and access token.
type ProviderCallback struct {
	Profile     *RawProfile `json:"profile"`
	AccessToken string      `json:"accessToken"`
}

func (a *LinkAuth) parseCallback(r *http.Request) (NormalizedProfile, string, error) {
	provider, err := ParseProvider(mux.Vars(r)["provider"])
	if err != nil || !provider.IsExternal() {
		return NormalizedProfile{}, "", ErrUnknownProvider
	}
	var body ProviderCallback
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return NormalizedProfile{}, "", malformed(provider, "body")
	}
	profile, err := NormalizeProfile(provider, body.Profile)
	if err != nil {
		return NormalizedProfile{}, "", err
	}
	return profile, body.AccessToken, nil
}

// HandleProviderCallback signs in with an external identity. A valid caller
// token turns an unknown identity into a link.
func (a *LinkAuth) HandleProviderCallback(w http.ResponseWriter, r *http.Request) {
	callerToken := a.Extractor.Extract(r)
	profile, accessToken, err := a.parseCallback(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	res, err := a.Broker.ProviderAuthenticate(r.Context(), profile, accessToken, callerToken)
	if err != nil {
		WriteError(w, err)
		return
	}
	a.finishCallback(w, r, res)
}

// HandleConnect links an external identity to the caller.
func (a *LinkAuth) HandleConnect(w http.ResponseWriter, r *http.Request) {
	callerToken := a.Extractor.Extract(r)
	if callerToken == "" {
		writeUnauthorized(w)
		return
	}
	profile, accessToken, err := a.parseCallback(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	res, err := a.Broker.ProviderLink(r.Context(), profile, accessToken, callerToken)
	if err != nil {
		WriteError(w, err)
		return
	}
	a.finishCallback(w, r, res)
}

// finishCallback answers with JSON, or redirects with the token appended
// when the request named an allowed ?redirect= target.
func (a *LinkAuth) finishCallback(w http.ResponseWriter, r *http.Request, res *Result) {
	target := r.URL.Query().Get("redirect")
	if res.Rejected() || target == "" || !a.AllowRedirect(target) {
		WriteResult(w, res)
		return
	}
	u, err := url.Parse(target)
	if err != nil {
		WriteResult(w, res)
		return
	}
	q := u.Query()
	q.Set("token", res.Token)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func relativeRedirect(target string) bool {
	return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//")
}

// HandleUnlink detaches a provider, or the local credential, from the caller.
func (a *LinkAuth) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	provider, err := ParseProvider(mux.Vars(r)["provider"])
	if err != nil {
		WriteError(w, err)
		return
	}
	res, err := a.Broker.Unlink(r.Context(), provider, a.Extractor.Extract(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	if res.Rejected() {
		WriteResult(w, res)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": res.Message})
}
