package linkauth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const (
	contextKeyAccountID contextKey = "linkauth_account_id"
	contextKeyToken     contextKey = "linkauth_token"
)

// maxTokenBody caps how much of a request body is buffered while looking
// for a token field.
const maxTokenBody = 1 << 20

// TokenExtractor finds the caller's bearer token on a request. Sources are
// tried in order: header, query parameter, JSON body field.
type TokenExtractor struct {
	HeaderName    string // defaults to "Authorization"
	AltHeaderName string // defaults to "x-access-token"
	QueryParam    string // defaults to "token"
	BodyField     string // defaults to "token"
}

func (e *TokenExtractor) EnsureReasonableDefaults() {
	if e.HeaderName == "" {
		e.HeaderName = "Authorization"
	}
	if e.AltHeaderName == "" {
		e.AltHeaderName = "x-access-token"
	}
	if e.QueryParam == "" {
		e.QueryParam = "token"
	}
	if e.BodyField == "" {
		e.BodyField = "token"
	}
}

// Extract returns the token or "" when the request carries none. A JSON
// body is read and then restored so handlers can decode it again.
func (e *TokenExtractor) Extract(r *http.Request) string {
	e.EnsureReasonableDefaults()

	// Bearer or JWT only; other schemes fall through to the next source
	if h := strings.TrimSpace(r.Header.Get(e.HeaderName)); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && (strings.EqualFold(parts[0], "Bearer") || strings.EqualFold(parts[0], "JWT")) {
			if tok := strings.TrimSpace(parts[1]); tok != "" {
				return tok
			}
		}
	}
	if h := strings.TrimSpace(r.Header.Get(e.AltHeaderName)); h != "" {
		return h
	}
	if q := r.URL.Query().Get(e.QueryParam); q != "" {
		return q
	}
	return e.fromBody(r)
}

func (e *TokenExtractor) fromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		// ParseForm keeps the values on r.PostForm for the handler
		if err := r.ParseForm(); err != nil {
			return ""
		}
		return r.PostForm.Get(e.BodyField)
	}
	if ct != "" && !strings.Contains(ct, "json") {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxTokenBody))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil || len(data) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return ""
	}
	if tok, ok := fields[e.BodyField].(string); ok {
		return tok
	}
	return ""
}

// Middleware puts the authenticated account id on the request context.
type Middleware struct {
	Tokens    TokenService
	Extractor TokenExtractor

	// OnUnauthorized writes the 401. Defaults to {"message":"Unauthorized"}.
	OnUnauthorized func(w http.ResponseWriter, r *http.Request, err error)
}

// ExtractAccount sets the account id when a valid token is present and
// lets the request through either way.
func (m *Middleware) ExtractAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.Extractor.Extract(r)
		if token != "" {
			if accountID, err := m.Tokens.Validate(token); err == nil {
				r = r.WithContext(withAccount(r.Context(), accountID, token))
			} else {
				slog.Debug("ignoring invalid token", "error", err)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureAccount rejects requests without a valid token.
func (m *Middleware) EnsureAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.Extractor.Extract(r)
		accountID, err := m.Tokens.Validate(token)
		if err != nil {
			m.unauthorized(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), accountID, token)))
	})
}

func (m *Middleware) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	if m.OnUnauthorized != nil {
		m.OnUnauthorized(w, r, err)
		return
	}
	writeUnauthorized(w)
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="linkauth"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
}

func withAccount(ctx context.Context, accountID, token string) context.Context {
	ctx = context.WithValue(ctx, contextKeyAccountID, accountID)
	return context.WithValue(ctx, contextKeyToken, token)
}

// AccountIDFromContext returns the account id set by Middleware, or "".
func AccountIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyAccountID).(string); ok {
		return v
	}
	return ""
}

// TokenFromContext returns the validated bearer token set by Middleware, or "".
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyToken).(string); ok {
		return v
	}
	return ""
}
