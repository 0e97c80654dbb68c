package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/iar/pkg/assets"
	"github.com/platinummonkey/iar/pkg/auth"
	"github.com/platinummonkey/iar/pkg/httputil"
	"github.com/platinummonkey/iar/pkg/middleware"
	"github.com/platinummonkey/iar/pkg/observability"
	"github.com/platinummonkey/iar/pkg/permissions"
)

const assetDetailRoute = "asset-detail"

const (
	msgNotAuthenticated = "Authentication credentials were not provided."
	msgPermissionDenied = "You do not have permission to perform this action."
)

// Options configures AssetHandlers
type Options struct {
	// Group is the directory group whose members may use the register
	Group string
	// PageSize is the number of assets per listing page
	PageSize int
}

// AssetHandlers serves the asset register API
type AssetHandlers struct {
	store    Storage
	policy   permissions.Predicate
	profiles permissions.ProfileReader
	opts     Options
	router   *mux.Router
}

// NewAssetHandlers creates asset handlers enforcing policy. profiles supplies
// the cached directory profiles used to work out visibility.
func NewAssetHandlers(store Storage, policy permissions.Predicate, profiles permissions.ProfileReader, opts Options) *AssetHandlers {
	if opts.PageSize <= 0 {
		opts.PageSize = 25
	}
	return &AssetHandlers{
		store:    store,
		policy:   policy,
		profiles: profiles,
		opts:     opts,
	}
}

// RegisterRoutes registers the asset routes on router
func (h *AssetHandlers) RegisterRoutes(router *mux.Router) {
	h.router = router

	router.HandleFunc("/assets/", h.listAssets).Methods("GET", "HEAD")
	router.HandleFunc("/assets/", h.createAsset).Methods("POST")
	router.HandleFunc("/assets/stats/", h.getStats).Methods("GET")
	router.HandleFunc("/stats", h.getStats).Methods("GET")
	router.HandleFunc("/assets/{id}/", h.getAsset).Methods("GET", "HEAD").Name(assetDetailRoute)
	router.HandleFunc("/assets/{id}/", h.updateAsset).Methods("PUT", "PATCH")
	router.HandleFunc("/assets/{id}/", h.deleteAsset).Methods("DELETE")
}

// listAssets handles GET /assets/
func (h *AssetHandlers) listAssets(w http.ResponseWriter, r *http.Request) {
	req := h.request(r, nil)
	if !h.authorize(w, r, req, nil) {
		return
	}

	q, err := assets.ParseListQuery(r.URL.Query(), h.opts.PageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.store.List(r.Context(), q, h.visibility(r, req))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := &ListResponse{
		Next:     h.pageURL(r, page.Next),
		Previous: h.pageURL(r, page.Previous),
		Results:  make([]*AssetResponse, 0, len(page.Results)),
	}
	for _, a := range page.Results {
		resp.Results = append(resp.Results, h.assetResponse(r, req, a))
	}
	_ = httputil.WriteSuccess(w, resp)
}

// createAsset handles POST /assets/
func (h *AssetHandlers) createAsset(w http.ResponseWriter, r *http.Request) {
	data, err := decodePayload(r)
	if err != nil {
		httputil.WriteBadRequest(w, "JSON parse error - "+err.Error())
		return
	}
	req := h.request(r, data)
	if !h.authorize(w, r, req, nil) {
		return
	}

	a := &assets.Asset{}
	if err := data.Apply(a); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.store.Create(r.Context(), a)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"asset_id":         created.ID.String(),
		"department":       created.DepartmentCode(),
		"incomplete_rules": assets.FailedRules(created),
	}).Info("asset created")
	_ = httputil.WriteCreated(w, h.assetResponse(r, req, created))
}

// getAsset handles GET /assets/{id}/
func (h *AssetHandlers) getAsset(w http.ResponseWriter, r *http.Request) {
	req := h.request(r, nil)
	a, ok := h.loadAsset(w, r, req)
	if !ok {
		return
	}
	_ = httputil.WriteSuccess(w, h.assetResponse(r, req, a))
}

// updateAsset handles PUT and PATCH /assets/{id}/. Both only change the
// fields present in the payload.
func (h *AssetHandlers) updateAsset(w http.ResponseWriter, r *http.Request) {
	data, err := decodePayload(r)
	if err != nil {
		httputil.WriteBadRequest(w, "JSON parse error - "+err.Error())
		return
	}
	req := h.request(r, data)
	a, ok := h.loadAsset(w, r, req)
	if !ok {
		return
	}

	if err := data.Apply(a); err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.store.Update(r.Context(), a)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"asset_id":         updated.ID.String(),
		"incomplete_rules": assets.FailedRules(updated),
	}).Info("asset updated")
	_ = httputil.WriteSuccess(w, h.assetResponse(r, req, updated))
}

// deleteAsset handles DELETE /assets/{id}/
func (h *AssetHandlers) deleteAsset(w http.ResponseWriter, r *http.Request) {
	req := h.request(r, nil)
	a, ok := h.loadAsset(w, r, req)
	if !ok {
		return
	}

	if err := h.store.SoftDelete(r.Context(), a.ID); err != nil {
		h.writeError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).WithField("asset_id", a.ID.String()).Info("asset deleted")
	httputil.WriteNoContent(w)
}

// getStats handles GET /stats and GET /assets/stats/
func (h *AssetHandlers) getStats(w http.ResponseWriter, r *http.Request) {
	req := h.request(r, nil)
	if !h.authorize(w, r, req, nil) {
		return
	}

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, stats)
}

func (h *AssetHandlers) request(r *http.Request, data assets.Payload) permissions.Request {
	return permissions.Request{
		Method: r.Method,
		Auth:   middleware.GetAuthContext(r),
		Data:   data,
	}
}

func (h *AssetHandlers) visibility(r *http.Request, req permissions.Request) assets.Visibility {
	return permissions.Visibility(r.Context(), req.Auth, h.opts.Group, h.profiles)
}

// loadAsset runs the view level check, fetches the asset named in the path
// and runs the object level check. It writes the error response itself.
func (h *AssetHandlers) loadAsset(w http.ResponseWriter, r *http.Request, req permissions.Request) (*assets.Asset, bool) {
	if !h.authorize(w, r, req, nil) {
		return nil, false
	}

	id, err := httputil.ParsePathUUID(r, "id")
	if err != nil {
		httputil.WriteNotFound(w)
		return nil, false
	}

	a, err := h.store.Get(r.Context(), id, h.visibility(r, req))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}

	if !h.authorize(w, r, req, a) {
		return nil, false
	}
	return a, true
}

// authorize evaluates the policy, at the object level too when a is not
// nil, and writes the denial when it fails
func (h *AssetHandlers) authorize(w http.ResponseWriter, r *http.Request, req permissions.Request, a *assets.Asset) bool {
	ok, err := h.policy.HasPermission(r.Context(), req)
	if err == nil && ok && a != nil {
		ok, err = h.policy.HasObjectPermission(r.Context(), req, a)
	}
	if err != nil {
		h.writeError(w, r, err)
		return false
	}
	if ok {
		return true
	}

	if req.Auth == nil {
		httputil.WriteUnauthorized(w, auth.AuthenticateHeader, msgNotAuthenticated)
		return false
	}
	httputil.WriteForbidden(w, msgPermissionDenied)
	return false
}

func (h *AssetHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErrs assets.FieldErrors
	var validationErr *permissions.ValidationError

	switch {
	case errors.As(err, &fieldErrs):
		httputil.WriteFieldErrors(w, fieldErrs)
	case errors.As(err, &validationErr):
		httputil.WriteFieldErrors(w, validationErr.FieldErrors())
	case errors.Is(err, assets.ErrNotFound):
		httputil.WriteNotFound(w)
	default:
		observability.FromContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("asset request failed")
		httputil.WriteInternalError(w)
	}
}

func (h *AssetHandlers) assetResponse(r *http.Request, req permissions.Request, a *assets.Asset) *AssetResponse {
	return &AssetResponse{
		Asset:          a,
		URL:            h.assetURL(r, a.ID),
		AllowedMethods: permissions.AllowedMethods(r.Context(), h.policy, req, a),
	}
}

func (h *AssetHandlers) assetURL(r *http.Request, id uuid.UUID) string {
	path := "/assets/" + id.String() + "/"
	if h.router != nil {
		if route := h.router.Get(assetDetailRoute); route != nil {
			if u, err := route.URL("id", id.String()); err == nil {
				path = u.Path
			}
		}
	}
	return absoluteURL(r, path, nil)
}

// pageURL is the listing URL with its cursor replaced, or nil for no cursor
func (h *AssetHandlers) pageURL(r *http.Request, cursor string) *string {
	if cursor == "" {
		return nil
	}
	query := r.URL.Query()
	query.Set(assets.ParamCursor, cursor)
	u := absoluteURL(r, r.URL.Path, query)
	return &u
}

func absoluteURL(r *http.Request, path string, query url.Values) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: path}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// decodePayload reads a JSON object body. An empty body is an empty payload.
func decodePayload(r *http.Request) (assets.Payload, error) {
	var data assets.Payload
	if err := httputil.ParseJSON(r, &data); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		return nil, err
	}
	if data == nil {
		data = assets.Payload{}
	}
	return data, nil
}
