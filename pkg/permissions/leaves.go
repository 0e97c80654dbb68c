package permissions

import (
	"context"
	"fmt"
	"net/http"

	"github.com/platinummonkey/iar/pkg/assets"
	"github.com/platinummonkey/iar/pkg/auth"
	"github.com/platinummonkey/iar/pkg/lookup"
	"github.com/platinummonkey/iar/pkg/observability"
)

// ValidationError is returned when a predicate can't decide because the
// request payload is missing a field it depends on
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldErrors renders the error in the same shape as payload validation
func (e *ValidationError) FieldErrors() assets.FieldErrors {
	return assets.FieldErrors{e.Field: {e.Message}}
}

// ProfileReader returns cached directory profiles. It never calls the
// directory, so a cold cache means no groups and no institutions.
type ProfileReader interface {
	CachedPersonForUser(ctx context.Context, username string) (*lookup.Person, bool)
}

func cachedPerson(ctx context.Context, profiles ProfileReader, req Request) *lookup.Person {
	username := req.Auth.Username()
	if username == "" || profiles == nil {
		return nil
	}
	person, ok := profiles.CachedPersonForUser(ctx, username)
	if !ok {
		return nil
	}
	return person
}

type scopes []string

// Scopes requires the bearer token to carry every one of required
func Scopes(required ...string) Predicate {
	return scopes(required)
}

func (p scopes) HasPermission(_ context.Context, req Request) (bool, error) {
	return req.Auth.HasScopes(p...), nil
}

func (p scopes) HasObjectPermission(context.Context, Request, *assets.Asset) (bool, error) {
	return true, nil
}

// methodPerms maps request methods to the model permission they need
var methodPerms = map[string]string{
	http.MethodGet:     auth.PermViewAsset,
	http.MethodHead:    auth.PermViewAsset,
	http.MethodOptions: auth.PermViewAsset,
	http.MethodPost:    auth.PermAddAsset,
	http.MethodPut:     auth.PermChangeAsset,
	http.MethodPatch:   auth.PermChangeAsset,
	http.MethodDelete:  auth.PermDeleteAsset,
}

type modelPermission struct{}

// ModelPermission requires the user to hold the asset model permission
// matching the request method. Superusers hold them all.
func ModelPermission() Predicate {
	return modelPermission{}
}

func (modelPermission) HasPermission(_ context.Context, req Request) (bool, error) {
	codename, ok := methodPerms[req.Method]
	if !ok {
		return false, nil
	}
	return req.User().HasPerm(codename), nil
}

func (modelPermission) HasObjectPermission(context.Context, Request, *assets.Asset) (bool, error) {
	return true, nil
}

type inGroup struct {
	group    string
	profiles ProfileReader
}

// InGroup requires the user's cached profile to list membership of group
func InGroup(group string, profiles ProfileReader) Predicate {
	return inGroup{group: group, profiles: profiles}
}

func (p inGroup) HasPermission(ctx context.Context, req Request) (bool, error) {
	return cachedPerson(ctx, p.profiles, req).InGroup(p.group), nil
}

func (inGroup) HasObjectPermission(context.Context, Request, *assets.Asset) (bool, error) {
	return true, nil
}

type inInstitution struct {
	profiles ProfileReader
	logger   *observability.Logger
}

// InInstitution restricts writes to assets whose department is one of the
// user's institutions. Creating an asset requires a department in the
// payload. Modifying one requires both the stored department and, when the
// payload sets one, the new department to be the user's.
func InInstitution(profiles ProfileReader, logger *observability.Logger) Predicate {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return inInstitution{profiles: profiles, logger: logger}
}

func (p inInstitution) HasPermission(ctx context.Context, req Request) (bool, error) {
	if req.Method != http.MethodPost {
		return true, nil
	}
	if !req.Data.Has("department") {
		return false, &ValidationError{Field: "department", Message: "This field is required."}
	}
	dept, _ := req.Data.String("department")
	return p.member(ctx, req, dept), nil
}

func (p inInstitution) HasObjectPermission(ctx context.Context, req Request, asset *assets.Asset) (bool, error) {
	if IsSafeMethod(req.Method) {
		return true, nil
	}
	if !p.member(ctx, req, asset.DepartmentCode()) {
		return false, nil
	}
	if req.Data.Has("department") {
		dept, _ := req.Data.String("department")
		return p.member(ctx, req, dept), nil
	}
	return true, nil
}

func (p inInstitution) member(ctx context.Context, req Request, dept string) bool {
	person := cachedPerson(ctx, p.profiles, req)
	if person == nil {
		p.logger.WithField("username", req.Auth.Username()).Debug("no cached profile, institution check fails")
		return false
	}
	return person.InInstitution(dept)
}
