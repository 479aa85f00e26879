package middleware

import (
	"context"

	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/session"
)

// Auth is the authentication state of one request.
type Auth struct {
	User      *identity.User
	SessionID string
	Session   *session.Session
}

type authContextKey struct{}

// WithAuth attaches auth to ctx.
func WithAuth(ctx context.Context, auth *Auth) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the Auth attached by [RequireSession].
func AuthFromContext(ctx context.Context) (*Auth, bool) {
	auth, ok := ctx.Value(authContextKey{}).(*Auth)
	return auth, ok && auth != nil
}
