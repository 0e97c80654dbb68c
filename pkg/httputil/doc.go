// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, asset)
//	httputil.WriteCreated(w, asset)
//	httputil.WriteFieldErrors(w, map[string][]string{"department": {"This field is required."}})
//	httputil.WriteUnauthorized(w, "Bearer", "Authentication credentials were not provided.")
//
// Error bodies use the {"detail": "..."} shape throughout.
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.LogBadRequests,
//	)(router)
package httputil
