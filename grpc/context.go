// Package grpc carries linkauth bearer tokens over gRPC metadata and
// validates them in server interceptors.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeyAuthorization is the metadata key holding "Bearer <token>".
const DefaultMetadataKeyAuthorization = "authorization"

// Config holds the metadata key configuration.
type Config struct {
	// MetadataKeyAuthorization defaults to "authorization".
	MetadataKeyAuthorization string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKeyAuthorization: DefaultMetadataKeyAuthorization}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

type accountIDKey struct{}

// AccountIDFromContext returns the account id the interceptor authenticated,
// or "" when the call is unauthenticated.
func AccountIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(accountIDKey{}).(string); ok {
		return v
	}
	return ""
}

// IsAuthenticated returns true if there is an authenticated account in the context.
func IsAuthenticated(ctx context.Context) bool {
	return AccountIDFromContext(ctx) != ""
}

func withAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey{}, accountID)
}

// TokenToOutgoingContext attaches a bearer token to an outgoing call.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

// tokenFromIncoming reads the bearer token from incoming metadata.
func tokenFromIncoming(ctx context.Context, config *Config) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(config.MetadataKeyAuthorization)
	if len(values) == 0 {
		return ""
	}
	v := strings.TrimSpace(values[0])
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return v
}
