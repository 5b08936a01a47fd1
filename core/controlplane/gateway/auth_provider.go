package gateway

import (
	"context"
	"net/http"
)

// AuthContext captures request identity for auditing and save attribution.
type AuthContext struct {
	APIKey      string
	PrincipalID string
}

type authContextKey struct{}

// AuthProvider authenticates HTTP requests.
type AuthProvider interface {
	AuthenticateHTTP(r *http.Request) (*AuthContext, error)
	ResolvePrincipal(r *http.Request, requested string) (string, error)
}

// PublicPathProvider allows auth providers to skip auth for specific paths.
type PublicPathProvider interface {
	IsPublicPath(path string) bool
}

func authFromContext(ctx context.Context) *AuthContext {
	if ctx == nil {
		return nil
	}
	if raw := ctx.Value(authContextKey{}); raw != nil {
		if auth, ok := raw.(*AuthContext); ok {
			return auth
		}
	}
	return nil
}

func authFromRequest(r *http.Request) *AuthContext {
	if r == nil {
		return nil
	}
	return authFromContext(r.Context())
}
