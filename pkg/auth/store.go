package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for a unique or primary key conflict
const uniqueViolation = "23505"

// Store persists users, their model permissions and their lookup bindings
type Store struct {
	db *sql.DB
}

// NewStore creates a new user store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetOrCreateUser returns the user called username, creating it with an
// unusable password if needed. Concurrent calls for the same new username
// create exactly one row.
func (s *Store) GetOrCreateUser(ctx context.Context, username string) (*User, error) {
	query := `
		INSERT INTO users (username, password, is_active, is_superuser, created_at)
		VALUES ($1, $2, TRUE, FALSE, $3)
		ON CONFLICT (username) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, username, UnusablePassword, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.GetUserByUsername(ctx, username)
}

// GetUserByUsername loads a user with its permissions and lookup binding
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT u.id, u.username, u.is_active, u.is_superuser, u.created_at, l.scheme, l.identifier
		FROM users u
		LEFT JOIN user_lookups l ON l.user_id = u.id
		WHERE u.username = $1
	`

	var user User
	var scheme, identifier sql.NullString
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.IsActive,
		&user.IsSuperuser,
		&user.CreatedAt,
		&scheme,
		&identifier,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if scheme.Valid && identifier.Valid {
		user.Lookup = &UserLookup{UserID: user.ID, Scheme: scheme.String, Identifier: identifier.String}
	}

	perms, err := s.permissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Permissions = perms

	return &user, nil
}

func (s *Store) permissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT codename FROM user_permissions WHERE user_id = $1 ORDER BY codename`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var codename string
		if err := rows.Scan(&codename); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, codename)
	}
	return perms, rows.Err()
}

// GetOrCreateLookup binds user to (scheme, identifier). Binding the same
// pair again returns the existing row; binding a user already bound to a
// different pair fails with ErrLookupConflict.
func (s *Store) GetOrCreateLookup(ctx context.Context, user *User, scheme, identifier string) (*UserLookup, error) {
	existing, err := s.findLookup(ctx, user.ID, scheme, identifier)
	if err != nil || existing != nil {
		return existing, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_lookups (user_id, scheme, identifier) VALUES ($1, $2, $3)`,
		user.ID, scheme, identifier,
	)
	if err == nil {
		return &UserLookup{UserID: user.ID, Scheme: scheme, Identifier: identifier}, nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return nil, fmt.Errorf("failed to create user lookup: %w", err)
	}

	// a concurrent request may have inserted the identical binding
	existing, findErr := s.findLookup(ctx, user.ID, scheme, identifier)
	if findErr != nil {
		return nil, findErr
	}
	if existing != nil {
		return existing, nil
	}
	return nil, fmt.Errorf("%w: user %s, %s:%s: %v", ErrLookupConflict, user.Username, scheme, identifier, err)
}

func (s *Store) findLookup(ctx context.Context, userID int64, scheme, identifier string) (*UserLookup, error) {
	query := `
		SELECT user_id, scheme, identifier
		FROM user_lookups
		WHERE user_id = $1 AND scheme = $2 AND identifier = $3
	`
	var l UserLookup
	err := s.db.QueryRowContext(ctx, query, userID, scheme, identifier).Scan(&l.UserID, &l.Scheme, &l.Identifier)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user lookup: %w", err)
	}
	return &l, nil
}

// GrantPermission gives a user a model permission. Granting twice is a no-op.
func (s *Store) GrantPermission(ctx context.Context, username, codename string) error {
	query := `
		INSERT INTO user_permissions (user_id, codename)
		SELECT id, $2 FROM users WHERE username = $1
		ON CONFLICT (user_id, codename) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, username, codename)
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := s.GetUserByUsername(ctx, username); err != nil {
			return err
		}
	}
	return nil
}

// SetSuperuser sets or clears the superuser flag of a user
func (s *Store) SetSuperuser(ctx context.Context, username string, superuser bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_superuser = $2 WHERE username = $1`, username, superuser)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return nil
}
