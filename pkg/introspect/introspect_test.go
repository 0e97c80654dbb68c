package introspect

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/iar/pkg/oauth2client"
	"github.com/platinummonkey/iar/pkg/observability"
)

type fixture struct {
	server  *httptest.Server
	client  *Client
	metrics *observability.Metrics
	logs    *bytes.Buffer
	claims  map[string]interface{}
	status  int
	gotForm string
	gotAuth string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{status: http.StatusOK, logs: &bytes.Buffer{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"svc","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/introspect", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.gotForm = r.PostForm.Get("token")
		f.gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(f.claims)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	session := oauth2client.NewSession(oauth2client.Config{
		ClientID:     "iar",
		ClientSecret: "secret",
		TokenURL:     f.server.URL + "/token",
		Scopes:       []string{"hydra.introspect"},
		Timeout:      time.Second,
	})
	f.metrics = observability.NewMetrics(prometheus.NewRegistry())
	f.client = NewClient(session, f.server.URL+"/introspect", observability.NewLogger(observability.InfoLevel, f.logs), f.metrics)
	return f
}

func claims(active bool, iat, exp time.Time) map[string]interface{} {
	return map[string]interface{}{
		"active":    active,
		"scope":     "assetregister lookup",
		"sub":       "mock:test0001",
		"client_id": "ui",
		"iat":       iat.Unix(),
		"exp":       exp.Unix(),
	}
}

func TestValidate(t *testing.T) {
	now := time.Now()

	t.Run("valid token", func(t *testing.T) {
		f := newFixture(t)
		f.claims = claims(true, now.Add(-time.Minute), now.Add(time.Hour))

		info, err := f.client.Validate(context.Background(), "user-token")
		require.NoError(t, err)
		require.NotNil(t, info)

		assert.Equal(t, "user-token", f.gotForm)
		assert.Equal(t, "Bearer svc", f.gotAuth)
		assert.Equal(t, "mock:test0001", info.Subject)
		assert.Equal(t, "ui", info.ClientID)
		assert.True(t, info.HasScopes("assetregister"))
		assert.False(t, info.HasScopes("assetregister", "admin"))
		assert.Equal(t, now.Add(time.Hour).Unix(), info.ExpiresAt.Unix())
		assert.Equal(t, "ui", info.Raw["client_id"])
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.IntrospectionsTotal.WithLabelValues("active")))
	})

	t.Run("fractional and exponent timestamps", func(t *testing.T) {
		f := newFixture(t)
		exp := now.Add(time.Hour).Unix()
		f.claims = claims(true, now, now)
		f.claims["iat"] = float64(now.Add(-time.Minute).Unix()) + 0.5
		f.claims["exp"] = json.Number(strconv.FormatFloat(float64(exp), 'e', -1, 64))

		info, err := f.client.Validate(context.Background(), "user-token")
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, exp, info.ExpiresAt.Unix())
		assert.Equal(t, 500*time.Millisecond, time.Duration(info.IssuedAt.Nanosecond()))
	})

	rejected := []struct {
		name   string
		claims map[string]interface{}
	}{
		{"inactive", claims(false, now.Add(-time.Minute), now.Add(time.Hour))},
		{"issued in the future", claims(true, now.Add(1000*time.Second), now.Add(3000*time.Second))},
		{"expired", claims(true, now.Add(-3000*time.Second), now.Add(-1000*time.Second))},
		{"missing exp", map[string]interface{}{"active": true, "scope": "assetregister", "iat": now.Unix()}},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.claims = tt.claims

			info, err := f.client.Validate(context.Background(), "user-token")
			require.NoError(t, err)
			assert.Nil(t, info)
		})
	}

	t.Run("expired token logs timestamps", func(t *testing.T) {
		f := newFixture(t)
		f.claims = claims(true, now.Add(-3000*time.Second), now.Add(-1000*time.Second))

		_, err := f.client.Validate(context.Background(), "user-token")
		require.NoError(t, err)
		assert.Contains(t, f.logs.String(), "validity window")
		assert.Contains(t, f.logs.String(), `"exp":"`)
		assert.NotContains(t, f.logs.String(), "user-token")
	})

	t.Run("server error", func(t *testing.T) {
		f := newFixture(t)
		f.status = http.StatusInternalServerError
		f.claims = map[string]interface{}{"error": "boom"}

		info, err := f.client.Validate(context.Background(), "user-token")
		require.Error(t, err)
		assert.Nil(t, info)
		assert.Contains(t, err.Error(), "status 500")
	})
}

func TestTokenInfo_Scopes(t *testing.T) {
	info := &TokenInfo{Scope: "a  b\tc"}
	assert.Len(t, info.Scopes(), 3)
	assert.True(t, info.HasScopes())

	var missing *TokenInfo
	assert.False(t, missing.HasScopes("a"))
	assert.Empty(t, missing.Scopes())
}

func TestTokenInfo_Remaining(t *testing.T) {
	now := time.Now()
	info := &TokenInfo{ExpiresAt: now.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, info.Remaining(now))
	assert.Zero(t, (&TokenInfo{}).Remaining(now))
}
