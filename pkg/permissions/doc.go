// Package permissions decides who may do what to assets.
//
// Access is expressed as a tree of predicates combined with And and Or.
// Every predicate answers twice: once for the request as a whole, before any
// record is loaded, and once for a specific asset. Leaves check token
// scopes, model permissions, directory group membership and institution
// membership; the last two read the cached directory profile only.
//
//	policy := permissions.DefaultPolicy([]string{"assetregister"}, "uis-iar-users", lookupClient, logger)
//	if !permissions.Allowed(ctx, policy, req, asset) {
//		// 403
//	}
package permissions
