package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/iar/pkg/introspect"
	"github.com/platinummonkey/iar/pkg/lookup"
)

// AuthenticateHeader is the WWW-Authenticate value sent with 401 responses
const AuthenticateHeader = "Bearer"

// UnusablePassword marks accounts that can only sign in with bearer tokens
const UnusablePassword = "!"

// usernameSeparator joins scheme and identifier. It may not appear in either.
const usernameSeparator = "+"

// Model permission codenames for assets
const (
	PermViewAsset   = "assets.view_asset"
	PermAddAsset    = "assets.add_asset"
	PermChangeAsset = "assets.change_asset"
	PermDeleteAsset = "assets.delete_asset"
)

var (
	// ErrMalformedSubject is returned for sub claims not of the form scheme:identifier
	ErrMalformedSubject = errors.New("malformed token subject")
	// ErrLookupConflict is returned when a user is already bound to a
	// different scheme and identifier
	ErrLookupConflict = errors.New("user is bound to a different lookup identity")
	// ErrUserNotFound is returned when no user has the requested username
	ErrUserNotFound = errors.New("user not found")
	// ErrUserResolution wraps failures to load or bind the local user behind
	// a valid token. Unlike introspection failures these are server faults.
	ErrUserResolution = errors.New("failed to resolve user")
)

// User is a local account created on first sight of a token subject
type User struct {
	ID          int64
	Username    string
	IsActive    bool
	IsSuperuser bool
	Permissions []string
	Lookup      *UserLookup
	CreatedAt   time.Time
}

// HasPerm reports whether the user holds a model permission. Active
// superusers hold every permission.
func (u *User) HasPerm(codename string) bool {
	if u == nil || !u.IsActive {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	for _, p := range u.Permissions {
		if p == codename {
			return true
		}
	}
	return false
}

// Subject returns the identity used to look the user up in the directory
func (u *User) Subject() *lookup.Subject {
	if u == nil {
		return nil
	}
	s := &lookup.Subject{Username: u.Username}
	if u.Lookup != nil {
		s.Scheme = u.Lookup.Scheme
		s.Identifier = u.Lookup.Identifier
	}
	return s
}

// UserLookup binds a user to one (scheme, identifier) pair
type UserLookup struct {
	UserID     int64
	Scheme     string
	Identifier string
}

// AuthContext is the result of authenticating a request. User is nil for
// tokens without a subject, such as client-credentials tokens.
type AuthContext struct {
	User  *User
	Token *introspect.TokenInfo
}

// HasScopes reports whether the request's token carries every required scope
func (a *AuthContext) HasScopes(required ...string) bool {
	if a == nil || a.Token == nil {
		return false
	}
	return a.Token.HasScopes(required...)
}

// Username returns the authenticated username, or "" when there is none
func (a *AuthContext) Username() string {
	if a == nil || a.User == nil {
		return ""
	}
	return a.User.Username
}

// ParseSubject splits a sub claim of the form scheme:identifier. Neither
// part may be empty or contain the username separator.
func ParseSubject(sub string) (scheme, identifier string, err error) {
	scheme, identifier, ok := strings.Cut(sub, ":")
	if !ok || scheme == "" || identifier == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedSubject, sub)
	}
	if strings.Contains(scheme, usernameSeparator) || strings.Contains(identifier, usernameSeparator) {
		return "", "", fmt.Errorf("%w: %q contains %q", ErrMalformedSubject, sub, usernameSeparator)
	}
	return scheme, identifier, nil
}

// Username derives the local username for a scheme and identifier
func Username(scheme, identifier string) string {
	return scheme + usernameSeparator + identifier
}
