package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Outbound OAuth2 / lookup metrics
	IntrospectionsTotal  *prometheus.CounterVec
	ServiceTokenFetches  *prometheus.CounterVec
	LookupRequestsTotal  *prometheus.CounterVec
	OutboundCallDuration *prometheus.HistogramVec

	// Profile cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Business metrics
	AssetsTotal            prometheus.Gauge
	AssetsCompleted        prometheus.Gauge
	AssetsWithPersonalData prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iar_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iar_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		IntrospectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iar_token_introspections_total",
				Help: "Total number of bearer token introspections by outcome",
			},
			[]string{"outcome"},
		),
		ServiceTokenFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iar_service_token_fetches_total",
				Help: "Total number of client-credentials token requests",
			},
			[]string{"status"},
		),
		LookupRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iar_lookup_requests_total",
				Help: "Total number of outbound directory lookups",
			},
			[]string{"status"},
		),
		OutboundCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iar_outbound_call_duration_seconds",
				Help:    "Duration of outbound OAuth2 and lookup calls",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"target"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iar_profile_cache_hits_total",
				Help: "Total number of person profile cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iar_profile_cache_misses_total",
				Help: "Total number of person profile cache misses",
			},
			[]string{"cache_type"},
		),

		AssetsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "iar_assets_total",
				Help: "Number of active asset records",
			},
		),
		AssetsCompleted: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "iar_assets_completed",
				Help: "Number of active asset records which are complete",
			},
		),
		AssetsWithPersonalData: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "iar_assets_with_personal_data",
				Help: "Number of active asset records holding personal data",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.IntrospectionsTotal,
		m.ServiceTokenFetches,
		m.LookupRequestsTotal,
		m.OutboundCallDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.AssetsTotal,
		m.AssetsCompleted,
		m.AssetsWithPersonalData,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// The route label uses the mux path template so that asset ids do not
// explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
