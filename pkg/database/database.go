package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Options configures the connection pool
type Options struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// Open connects to PostgreSQL and checks the connection
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	db, err := sql.Open("postgres", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		db.SetMaxIdleConns(opts.MinConns)
	}
	if opts.MaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.MaxLifetime)
	}
	if opts.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.MaxIdleTime)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
