// Package middleware provides HTTP middleware for bearer token
// authentication.
//
// AuthMiddleware introspects the token of every request carrying one and
// stores the resulting *auth.AuthContext in the request context:
//
//	router.Use(middleware.NewAuthMiddleware(authenticator).Handler)
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		authCtx := middleware.GetAuthContext(r) // nil when anonymous
//	}
//
// Requests without a usable token continue anonymously. Introspection
// failures are answered with 401 and a "WWW-Authenticate: Bearer" challenge;
// failing to load or bind the local user is a 500.
package middleware
