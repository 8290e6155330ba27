package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	la "github.com/fjrd84/linkauth"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Tokens validates incoming bearer tokens.
	Tokens la.TokenService

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but AccountIDFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of full method names ("/package.Service/Method")
	// that don't require auth. Only used when RequireAuth is true.
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires auth for all methods
// except the ones listed.
func NewInterceptorConfig(tokens la.TokenService, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Config:        DefaultConfig(),
		Tokens:        tokens,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(tokens la.TokenService) *InterceptorConfig {
	config := NewInterceptorConfig(tokens)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

// authenticate returns ctx carrying the account id, or an Unauthenticated
// status when the method needs auth and the token is missing or invalid.
func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	required := c.RequireAuth && !c.PublicMethods[method]
	token := tokenFromIncoming(ctx, c.Config)
	if token == "" {
		if required {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}
	accountID, err := c.Tokens.Validate(token)
	if err != nil {
		if required {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return ctx, nil
	}
	return withAccountID(ctx, accountID), nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor validating bearer tokens.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// authStream overrides the stream context with the authenticated one.
type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context { return s.ctx }

// StreamAuthInterceptor returns a gRPC stream interceptor validating bearer tokens.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
	}
}
