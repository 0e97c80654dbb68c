package permissions

import (
	"context"
	"net/http"

	"github.com/platinummonkey/iar/pkg/assets"
	"github.com/platinummonkey/iar/pkg/auth"
)

// Request is what a predicate sees of an incoming request. It is passed by
// value so evaluating a hypothetical method never touches the caller's request.
type Request struct {
	Method string
	Auth   *auth.AuthContext
	Data   assets.Payload
}

// WithMethod returns a copy of r for a different method
func (r Request) WithMethod(method string) Request {
	r.Method = method
	return r
}

// User returns the authenticated user, or nil
func (r Request) User() *auth.User {
	if r.Auth == nil {
		return nil
	}
	return r.Auth.User
}

// Predicate decides whether a request may proceed. HasPermission is the view
// level check run before any record is loaded; HasObjectPermission is run
// against the record being read or modified.
type Predicate interface {
	HasPermission(ctx context.Context, req Request) (bool, error)
	HasObjectPermission(ctx context.Context, req Request, asset *assets.Asset) (bool, error)
}

// IsSafeMethod reports whether method never modifies a record
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

type and []Predicate

// And is satisfied when every child is, at the phase being evaluated.
// Children are evaluated left to right and evaluation stops at the first
// false or error.
func And(children ...Predicate) Predicate {
	return and(children)
}

func (p and) HasPermission(ctx context.Context, req Request) (bool, error) {
	for _, child := range p {
		ok, err := child.HasPermission(ctx, req)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (p and) HasObjectPermission(ctx context.Context, req Request, asset *assets.Asset) (bool, error) {
	for _, child := range p {
		ok, err := child.HasObjectPermission(ctx, req, asset)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

type or []Predicate

// Or is satisfied at the view level when any child is. At the object level
// a child only counts when it passes both phases.
func Or(children ...Predicate) Predicate {
	return or(children)
}

func (p or) HasPermission(ctx context.Context, req Request) (bool, error) {
	for _, child := range p {
		ok, err := child.HasPermission(ctx, req)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (p or) HasObjectPermission(ctx context.Context, req Request, asset *assets.Asset) (bool, error) {
	for _, child := range p {
		ok, err := child.HasPermission(ctx, req)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		ok, err = child.HasObjectPermission(ctx, req, asset)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
