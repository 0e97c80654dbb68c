// Package database opens the PostgreSQL connection pool and applies the
// versioned schema migrations for users, their lookup bindings and assets.
//
//	db, err := database.Open(ctx, database.Options{URL: cfg.Database.URL})
//	if err := database.Migrate(ctx, db, logger); err != nil { ... }
package database
