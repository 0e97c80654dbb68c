// Package assets holds the information asset record, the rules deciding
// whether a record is complete, and its PostgreSQL store.
//
// # Completeness
//
// CompletenessRules is the only definition of a complete record. Each rule
// is an Expr tree that evaluates in Go (IsComplete, FailedRules) and renders
// as an equivalent SQL boolean (CompletenessSQL). The store selects the SQL
// form as the is_complete column of every read, so a listing and a single
// record never disagree.
//
// # Visibility
//
// Reads take a Visibility. Requesters outside the register's user group see
// nothing; everyone else sees public assets plus private assets of their
// own institutions, whatever model permissions they hold.
// Soft-deleted assets are never returned.
//
//	q, err := assets.ParseListQuery(r.URL.Query(), cfg.Assets.PageSize)
//	page, err := store.List(ctx, q, visibility)
package assets
