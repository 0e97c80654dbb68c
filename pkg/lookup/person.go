// Package lookup fetches people's institution and group memberships from
// the directory (lookup proxy) and keeps them in a TTL-bounded cache.
package lookup

import (
	"errors"
	"fmt"
)

var (
	// ErrLookup is the root of every lookup failure
	ErrLookup = errors.New("lookup error")
	// ErrAnonymousUser is returned when there is no user to look up
	ErrAnonymousUser = fmt.Errorf("%w: user is anonymous", ErrLookup)
	// ErrNoLookup is returned for users with no scheme/identifier binding
	ErrNoLookup = fmt.Errorf("%w: user has no lookup binding", ErrLookup)
)

// StatusError records a non-2xx answer from the directory
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lookup returned status %d", e.StatusCode)
}

// Unwrap lets errors.Is(err, ErrLookup) match
func (e *StatusError) Unwrap() error {
	return ErrLookup
}

// Subject identifies whose profile to fetch. Scheme and Identifier come
// from the user's lookup binding and may be empty.
type Subject struct {
	Username   string
	Scheme     string
	Identifier string
}

// CacheKey is the profile cache key for username
func CacheKey(username string) string {
	return username + ":lookup"
}

// Institution is an organisational unit a person belongs to
type Institution struct {
	InstID string `json:"instid"`
	Name   string `json:"name,omitempty"`
}

// Group is a directory group a person is a member of
type Group struct {
	GroupID string `json:"groupid,omitempty"`
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
}

// Identifier is the person's identity in the directory
type Identifier struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// Person is the directory profile of one user
type Person struct {
	URL          string        `json:"url,omitempty"`
	Identifier   *Identifier   `json:"identifier,omitempty"`
	VisibleName  string        `json:"visibleName,omitempty"`
	Institutions []Institution `json:"institutions"`
	Groups       []Group       `json:"groups"`
}

// InstIDs returns the codes of the person's institutions. A nil person has none.
func (p *Person) InstIDs() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, len(p.Institutions))
	for _, inst := range p.Institutions {
		if inst.InstID != "" {
			ids = append(ids, inst.InstID)
		}
	}
	return ids
}

// InInstitution reports whether the person belongs to instID
func (p *Person) InInstitution(instID string) bool {
	if p == nil || instID == "" {
		return false
	}
	for _, inst := range p.Institutions {
		if inst.InstID == instID {
			return true
		}
	}
	return false
}

// InGroup reports whether the person is a member of the named group
func (p *Person) InGroup(name string) bool {
	if p == nil {
		return false
	}
	for _, g := range p.Groups {
		if g.Name == name {
			return true
		}
	}
	return false
}
