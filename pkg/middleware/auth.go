package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/iar/pkg/auth"
	"github.com/platinummonkey/iar/pkg/contextkeys"
	"github.com/platinummonkey/iar/pkg/httputil"
	"github.com/platinummonkey/iar/pkg/observability"
)

// Authenticator resolves an Authorization header to an AuthContext. A nil
// context with a nil error means the request is anonymous.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (*auth.AuthContext, error)
}

// AuthMiddleware provides bearer token authentication. Anonymous requests
// are passed through; handlers decide between 401 and 403.
type AuthMiddleware struct {
	authenticator Authenticator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, err := m.authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Error("authentication failed")
			if errors.Is(err, auth.ErrUserResolution) {
				httputil.WriteInternalError(w)
				return
			}
			httputil.WriteUnauthorized(w, auth.AuthenticateHeader, "Authentication credentials could not be verified.")
			return
		}
		if authCtx == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		if username := authCtx.Username(); username != "" {
			ctx = observability.WithUsername(ctx, username)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts auth context from request. It is nil for
// anonymous requests.
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}
