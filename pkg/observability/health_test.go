package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Check(t *testing.T) {
	t.Run("no dependencies", func(t *testing.T) {
		status := NewHealthChecker(nil, nil).Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Empty(t, status.Dependencies)
	})

	t.Run("database and redis healthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing()

		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()

		checker := NewHealthChecker(db, rdb)
		require.Len(t, checker.checks, 2)
		assert.Equal(t, "database", checker.checks[0].name)
		assert.Equal(t, "redis", checker.checks[1].name)

		status := checker.Check(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["database"].Status)
		assert.Equal(t, StatusHealthy, status.Dependencies["redis"].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis down degrades", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer rdb.Close()
		mr.Close()

		status := NewHealthChecker(nil, rdb).Check(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, StatusUnhealthy, status.Dependencies["redis"].Status)
	})

	t.Run("database down is unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		checker := NewHealthChecker(db, nil)
		checker.AddCheck("optional", false, func(context.Context) error { return errors.New("down") })

		status := checker.Check(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, "connection refused", status.Dependencies["database"].Message)
	})
}

func TestRegisterHealthRoutes(t *testing.T) {
	checker := NewHealthChecker(nil, nil)
	checker.AddCheck("database", true, func(context.Context) error { return errors.New("gone") })

	router := mux.NewRouter()
	RegisterHealthRoutes(router, checker)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, Version, status.Version)
}
