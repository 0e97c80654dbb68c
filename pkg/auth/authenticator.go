package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/iar/pkg/introspect"
	"github.com/platinummonkey/iar/pkg/lookup"
	"github.com/platinummonkey/iar/pkg/observability"
)

// cacheMargin is added to a token's remaining lifetime when warming the
// profile cache so the entry outlives the token
const cacheMargin = 10 * time.Second

// TokenValidator checks a bearer token with the authorisation server
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*introspect.TokenInfo, error)
}

// UserStore resolves token subjects to local users
type UserStore interface {
	GetOrCreateUser(ctx context.Context, username string) (*User, error)
	GetOrCreateLookup(ctx context.Context, user *User, scheme, identifier string) (*UserLookup, error)
}

// ProfileFetcher populates the directory profile cache
type ProfileFetcher interface {
	GetPersonForUser(ctx context.Context, subject *lookup.Subject, ttl time.Duration) (*lookup.Person, error)
	DefaultTTL() time.Duration
}

// Authenticator turns an Authorization header into an AuthContext
type Authenticator struct {
	validator TokenValidator
	users     UserStore
	profiles  ProfileFetcher
	logger    *observability.Logger
	now       func() time.Time
}

// NewAuthenticator creates an authenticator. profiles may be nil, in which
// case the profile cache is not warmed.
func NewAuthenticator(validator TokenValidator, users UserStore, profiles ProfileFetcher, logger *observability.Logger) *Authenticator {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Authenticator{
		validator: validator,
		users:     users,
		profiles:  profiles,
		logger:    logger,
		now:       time.Now,
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. ok is false for a missing or malformed header.
func BearerToken(header string) (token string, ok bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != AuthenticateHeader || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Authenticate validates the bearer token in header. It returns (nil, nil)
// when no authentication was attempted or the token was rejected, and an
// error only when validation itself failed or the user could not be
// resolved. The latter errors wrap ErrUserResolution.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*AuthContext, error) {
	token, ok := BearerToken(header)
	if !ok {
		return nil, nil
	}

	info, err := a.validator.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}

	if info.Subject == "" {
		return &AuthContext{Token: info}, nil
	}

	scheme, identifier, err := ParseSubject(info.Subject)
	if err != nil {
		a.logger.WithField("sub", info.Subject).Warn("Rejecting token with malformed subject")
		return nil, nil
	}

	user, err := a.users.GetOrCreateUser(ctx, Username(scheme, identifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserResolution, err)
	}

	binding, err := a.users.GetOrCreateLookup(ctx, user, scheme, identifier)
	if err != nil {
		if errors.Is(err, ErrLookupConflict) {
			a.logger.WithError(err).WithField("username", user.Username).Error("User lookup binding conflict")
		}
		return nil, fmt.Errorf("%w: %w", ErrUserResolution, err)
	}
	user.Lookup = binding

	a.warmProfile(ctx, user, info)

	return &AuthContext{User: user, Token: info}, nil
}

// warmProfile makes sure the user's directory profile is cached for at
// least as long as the token remains valid. Failures only get logged; the
// request continues as a user with no institutions or groups.
func (a *Authenticator) warmProfile(ctx context.Context, user *User, info *introspect.TokenInfo) {
	if a.profiles == nil {
		return
	}

	ttl := info.Remaining(a.now()) + cacheMargin
	if d := a.profiles.DefaultTTL(); d > ttl {
		ttl = d
	}

	if _, err := a.profiles.GetPersonForUser(ctx, user.Subject(), ttl); err != nil {
		a.logger.WithError(err).WithField("username", user.Username).Warn("Failed to fetch lookup profile")
	}
}
