package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/iar/pkg/auth"
	"github.com/platinummonkey/iar/pkg/introspect"
	"github.com/platinummonkey/iar/pkg/observability"
)

type stubAuthenticator struct {
	result *auth.AuthContext
	err    error
	header string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, header string) (*auth.AuthContext, error) {
	s.header = header
	return s.result, s.err
}

func TestAuthMiddleware_Handler(t *testing.T) {
	t.Run("stores the auth context and username", func(t *testing.T) {
		authCtx := &auth.AuthContext{
			User:  &auth.User{Username: "mock+test0001", IsActive: true},
			Token: &introspect.TokenInfo{Active: true, Scope: "assetregister"},
		}
		stub := &stubAuthenticator{result: authCtx}

		var got *auth.AuthContext
		var username string
		handler := NewAuthMiddleware(stub).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetAuthContext(r)
			username = observability.GetUsername(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/assets/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Bearer abc", stub.header)
		assert.Same(t, authCtx, got)
		assert.Equal(t, "mock+test0001", username)
	})

	t.Run("anonymous requests pass through", func(t *testing.T) {
		called := false
		handler := NewAuthMiddleware(&stubAuthenticator{}).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			assert.Nil(t, GetAuthContext(r))
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets/", nil))
		assert.True(t, called)
	})

	t.Run("token without a user", func(t *testing.T) {
		stub := &stubAuthenticator{result: &auth.AuthContext{Token: &introspect.TokenInfo{Active: true}}}
		handler := NewAuthMiddleware(stub).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NotNil(t, GetAuthContext(r))
			assert.Empty(t, observability.GetUsername(r.Context()))
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})

	t.Run("introspection failure is a 401", func(t *testing.T) {
		stub := &stubAuthenticator{err: errors.New("introspection endpoint returned 503")}
		handler := NewAuthMiddleware(stub).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/assets/", nil)
		req.Header.Set("Authorization", "Bearer abc")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), `"detail"`)
	})

	t.Run("user resolution failure is a 500", func(t *testing.T) {
		for name, cause := range map[string]error{
			"lookup conflict": auth.ErrLookupConflict,
			"database":        errors.New("connection refused"),
		} {
			t.Run(name, func(t *testing.T) {
				stub := &stubAuthenticator{err: fmt.Errorf("%w: %w", auth.ErrUserResolution, cause)}
				handler := NewAuthMiddleware(stub).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Fatal("handler should not be called")
				}))

				req := httptest.NewRequest(http.MethodGet, "/assets/", nil)
				req.Header.Set("Authorization", "Bearer abc")
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)

				assert.Equal(t, http.StatusInternalServerError, w.Code)
				assert.Empty(t, w.Header().Get("WWW-Authenticate"))
				assert.NotContains(t, w.Body.String(), "connection refused")
			})
		}
	})
}
