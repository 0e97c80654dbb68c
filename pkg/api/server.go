package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/iar/pkg/httputil"
	"github.com/platinummonkey/iar/pkg/middleware"
	"github.com/platinummonkey/iar/pkg/observability"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// ServerConfig collects the collaborators of the HTTP server. Metrics,
// Registry and Health are optional.
type ServerConfig struct {
	Assets        *AssetHandlers
	Authenticator middleware.Authenticator
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	Registry      *prometheus.Registry
	Health        *observability.HealthChecker
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server. Health and metrics endpoints are
// served without authentication; everything else goes through bearer
// token authentication.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteMethodNotAllowed(w, r.Method)
	})
	if cfg.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}
	if cfg.Health != nil {
		observability.RegisterHealthRoutes(router, cfg.Health)
	}
	if cfg.Registry != nil {
		observability.RegisterMetricsEndpoint(router, cfg.Registry)
	}

	authed := router.NewRoute().Subrouter()
	authed.Use(middleware.NewAuthMiddleware(cfg.Authenticator).Handler)
	cfg.Assets.RegisterRoutes(authed)

	chain := httputil.Chain(
		httputil.RecoveryMiddleware,
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware,
		httputil.LogBadRequests,
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)

	return &Server{
		router:  router,
		handler: otelhttp.NewHandler(chain(router), "iar"),
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
