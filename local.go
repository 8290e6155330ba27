package linkauth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// parseCredentials accepts a JSON body or a url-encoded form.
func parseCredentials(r *http.Request) (*credentialsRequest, error) {
	req := &credentialsRequest{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("error parsing form")
		}
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
	} else if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return nil, fmt.Errorf("invalid post body")
	}
	if req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("email and password required")
	}
	return req, nil
}

// HandleLogin authenticates an email/password pair and returns a token.
func (a *LinkAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	creds, err := parseCredentials(r)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	res, err := a.Broker.Login(r.Context(), creds.Email, creds.Password)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteResult(w, res)
}

// HandleSignup creates a local account, or links the local credential to
// the caller when the request carries a valid token.
func (a *LinkAuth) HandleSignup(w http.ResponseWriter, r *http.Request) {
	// token first: the extractor restores the body it reads
	callerToken := a.Extractor.Extract(r)
	creds, err := parseCredentials(r)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	res, err := a.Broker.Signup(r.Context(), creds.Email, creds.Password, callerToken)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteResult(w, res)
}
