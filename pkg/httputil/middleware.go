package httputil

import (
	"bytes"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/iar/pkg/observability"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// maxLoggedBody bounds how much of a 400 response is copied into the log
const maxLoggedBody = 4096

// responseWriter wraps http.ResponseWriter to capture the status code and,
// for 400 responses, the body
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.body != nil && rw.statusCode == http.StatusBadRequest && rw.body.Len() < maxLoggedBody {
		remaining := maxLoggedBody - rw.body.Len()
		if len(b) < remaining {
			remaining = len(b)
		}
		rw.body.Write(b[:remaining])
	}
	return rw.ResponseWriter.Write(b)
}

func wrap(w http.ResponseWriter, captureBody bool) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		if captureBody && rw.body == nil {
			rw.body = &bytes.Buffer{}
		}
		return rw
	}
	rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	if captureBody {
		rw.body = &bytes.Buffer{}
	}
	return rw
}

// RequestIDMiddleware assigns every request an id, echoes it in the
// response and stores it, together with a request-scoped logger, in the
// request context.
func RequestIDMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			ctx := observability.WithRequestID(r.Context(), requestID)
			ctx = observability.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggingMiddleware logs one line per request
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrap(w, false)

		next.ServeHTTP(rw, r)

		observability.FromContext(r.Context()).WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"status":      rw.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request")
	})
}

// LogBadRequests logs the request line and the response body of every 400
// so that rejected client payloads can be diagnosed from the logs.
func LogBadRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := wrap(w, true)

		next.ServeHTTP(rw, r)

		if rw.statusCode != http.StatusBadRequest {
			return
		}
		observability.FromContext(r.Context()).WithFields(map[string]interface{}{
			"method":        r.Method,
			"path":          r.URL.Path,
			"query":         r.URL.RawQuery,
			"response_body": rw.body.String(),
		}).Warn("400 response")
	})
}

// RecoveryMiddleware recovers from panics and returns a 500 error
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				observability.FromContext(r.Context()).WithFields(map[string]interface{}{
					"panic": observability.PanicError(rec).Error(),
					"stack": string(debug.Stack()),
				}).Error("PANIC recovered in handler")
				WriteInternalError(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// MaxBytesMiddleware limits the size of request bodies
func MaxBytesMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// Chain chains multiple middleware together, outermost first
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
