// Package contextkeys provides centralized context key definitions
//
// All context keys shared between middleware and handlers are defined here
// so that the setter and the readers agree on one key.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithAuth(ctx, authCtx)
//	authCtx, _ := ctx.Value(contextkeys.AuthKey).(*auth.AuthContext)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.AuthContext
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: asset handlers in pkg/api
	// Type: *auth.AuthContext
	AuthKey Key = "auth_context"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}
