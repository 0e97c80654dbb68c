// Package auth resolves OAuth2 bearer tokens to local users.
//
// A token is checked by introspection. Tokens without a subject, such as
// client-credentials tokens, authenticate without a user. Tokens whose
// subject has the form scheme:identifier map to a local user called
// scheme+identifier, created on first sight with an unusable password and
// bound to exactly one (scheme, identifier) pair:
//
//	authn := auth.NewAuthenticator(introspector, auth.NewStore(db), lookupClient, logger)
//	authCtx, err := authn.Authenticate(ctx, r.Header.Get("Authorization"))
//
// Authenticate returns (nil, nil) when no bearer token was presented or the
// token was rejected. On success the user's directory profile is fetched
// into the lookup cache for at least the token's remaining lifetime, so
// permission checks later in the request only read the cache.
//
// Model permissions (assets.view_asset and friends) are stored per user in
// user_permissions and checked with User.HasPerm.
package auth
