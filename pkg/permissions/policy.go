package permissions

import (
	"context"
	"net/http"

	"github.com/platinummonkey/iar/pkg/assets"
	"github.com/platinummonkey/iar/pkg/auth"
	"github.com/platinummonkey/iar/pkg/observability"
)

// DefaultPolicy is the register's access policy: the token must carry the
// required scopes, and the user must either hold the model permission for
// the method or be a member of group acting within their own institutions.
func DefaultPolicy(requiredScopes []string, group string, profiles ProfileReader, logger *observability.Logger) Predicate {
	return And(
		Scopes(requiredScopes...),
		Or(
			ModelPermission(),
			And(InGroup(group, profiles), InInstitution(profiles, logger)),
		),
	)
}

// mutatingMethods are the methods reported by AllowedMethods
var mutatingMethods = []string{http.MethodPut, http.MethodPatch, http.MethodDelete}

// AllowedMethods lists the modifying methods req's caller could use on
// asset. Each method is checked against a copy of req, payload included. A
// predicate error counts as not allowed.
func AllowedMethods(ctx context.Context, policy Predicate, req Request, asset *assets.Asset) []string {
	allowed := make([]string, 0, len(mutatingMethods))
	for _, method := range mutatingMethods {
		if Allowed(ctx, policy, req.WithMethod(method), asset) {
			allowed = append(allowed, method)
		}
	}
	return allowed
}

// Allowed runs both phases of policy and reports whether both pass
func Allowed(ctx context.Context, policy Predicate, req Request, asset *assets.Asset) bool {
	ok, err := policy.HasPermission(ctx, req)
	if err != nil || !ok {
		return false
	}
	ok, err = policy.HasObjectPermission(ctx, req, asset)
	return err == nil && ok
}

// Visibility works out which assets the caller may list or read. The caller
// must be in group, and then sees public assets plus private ones belonging
// to their cached institutions. Model permissions do not widen it.
func Visibility(ctx context.Context, authCtx *auth.AuthContext, group string, profiles ProfileReader) assets.Visibility {
	person := cachedPerson(ctx, profiles, Request{Auth: authCtx})
	if !person.InGroup(group) {
		return assets.Visibility{}
	}
	return assets.Visibility{InGroup: true, Institutions: person.InstIDs()}
}
