package linkauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// LinkAuth exposes a Broker over HTTP.
//
// Routes, relative to the prefix passed to Routes:
//
//	POST /login                         {email, password}
//	POST /signup                        {email, password}, optional caller token
//	POST /{provider}/callback           {profile, accessToken}, optional caller token
//	POST /connect/{provider}/callback   {profile, accessToken}, caller token required
//	POST /unlink/{provider}             caller token required
//	GET  /profile                       caller token required
//	GET  /logout, POST /logout
//	GET  /tokentest                     caller token required
type LinkAuth struct {
	Broker    *Broker
	Extractor TokenExtractor

	// AllowRedirect vets the ?redirect= target of provider callbacks.
	// Defaults to same-site relative paths only.
	AllowRedirect func(target string) bool
}

func New(broker *Broker) *LinkAuth {
	return (&LinkAuth{Broker: broker}).EnsureDefaults()
}

func (a *LinkAuth) EnsureDefaults() *LinkAuth {
	a.Extractor.EnsureReasonableDefaults()
	if a.AllowRedirect == nil {
		a.AllowRedirect = relativeRedirect
	}
	if a.Broker != nil {
		a.Broker.EnsureDefaults()
	}
	return a
}

// Routes registers the auth endpoints on r.
func (a *LinkAuth) Routes(r *mux.Router) *mux.Router {
	a.EnsureDefaults()
	r.HandleFunc("/login", a.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/signup", a.HandleSignup).Methods(http.MethodPost)
	r.HandleFunc("/connect/{provider}/callback", a.HandleConnect).Methods(http.MethodPost)
	r.HandleFunc("/unlink/{provider}", a.HandleUnlink).Methods(http.MethodPost, http.MethodGet)
	r.HandleFunc("/profile", a.HandleProfile).Methods(http.MethodGet)
	r.HandleFunc("/logout", a.HandleLogout).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/tokentest", a.HandleTokenTest).Methods(http.MethodGet)
	r.HandleFunc("/{provider}/callback", a.HandleProviderCallback).Methods(http.MethodPost)
	return r
}

// Handler returns a router with the endpoints mounted under /auth.
func (a *LinkAuth) Handler() http.Handler {
	root := mux.NewRouter()
	a.Routes(root.PathPrefix("/auth").Subrouter())
	return root
}

// Middleware returns a token middleware sharing the broker's token service.
func (a *LinkAuth) Middleware() *Middleware {
	return &Middleware{Tokens: a.Broker.Tokens, Extractor: a.Extractor}
}

func (a *LinkAuth) HandleProfile(w http.ResponseWriter, r *http.Request) {
	acct, err := a.Broker.Profile(r.Context(), a.Extractor.Extract(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, acct.View())
}

func (a *LinkAuth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	res, err := a.Broker.Logout(r.Context(), a.Extractor.Extract(r))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": res.Message})
}

func (a *LinkAuth) HandleTokenTest(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Broker.Profile(r.Context(), a.Extractor.Extract(r)); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Your token is valid! You can access protected resources."})
}

// WriteResult renders a Broker result: rejections are 400 with the reason.
func WriteResult(w http.ResponseWriter, res *Result) {
	if res.Rejected() {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"message": res.Message})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, res)
}

// StatusFor maps broker errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrMalformedProfile):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, ErrProviderRejected):
		return http.StatusBadRequest
	case errors.Is(err, ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrStoreTimeout):
		return http.StatusServiceUnavailable
	}
	if _, ok := AsRejection(err); ok {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// WriteError renders err with the status StatusFor picks. Internal
// failures are logged and answered with a generic message.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusUnauthorized:
		writeUnauthorized(w)
		return
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		WriteJSON(w, status, map[string]string{"message": "Service temporarily unavailable, retry later."})
		return
	case http.StatusBadGateway:
		slog.Warn("provider request failed", "error", err)
		WriteJSON(w, status, map[string]string{"message": "Identity provider unavailable, retry later."})
		return
	case http.StatusInternalServerError:
		slog.Error("request failed", "error", err)
		WriteJSON(w, status, map[string]string{"message": "Internal server error."})
		return
	}
	WriteJSON(w, status, map[string]string{"message": err.Error()})
}

// WriteJSON writes body as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
