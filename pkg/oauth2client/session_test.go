package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthServer issues sequential tokens and counts requests
type fakeAuthServer struct {
	*httptest.Server
	tokenCalls int32
	lastForm   url.Values
	mu         sync.Mutex
}

func newFakeAuthServer(t *testing.T, resource http.HandlerFunc) *fakeAuthServer {
	t.Helper()
	f := &fakeAuthServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.lastForm = r.PostForm
		f.mu.Unlock()
		n := atomic.AddInt32(&f.tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"svc-%d","token_type":"bearer","expires_in":3600}`, n)
	})
	mux.HandleFunc("/resource", resource)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAuthServer) session(opts ...Option) *Session {
	return NewSession(Config{
		ClientID:     "iar",
		ClientSecret: "secret",
		TokenURL:     f.URL + "/token",
		Scopes:       []string{"introspect", "lookup"},
		Timeout:      time.Second,
		MaxRetries:   2,
	}, append([]Option{WithRetryWait(time.Millisecond)}, opts...)...)
}

func (f *fakeAuthServer) get(ctx context.Context) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, http.MethodGet, f.URL+"/resource", nil)
}

func TestSession_TokenIsCached(t *testing.T) {
	f := newFakeAuthServer(t, func(w http.ResponseWriter, r *http.Request) {})
	s := f.session()

	tok1, err := s.Token(context.Background())
	require.NoError(t, err)
	tok2, err := s.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "svc-1", tok1.AccessToken)
	assert.Same(t, tok1, tok2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.tokenCalls))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "client_credentials", f.lastForm.Get("grant_type"))
	assert.Equal(t, "iar", f.lastForm.Get("client_id"))
	assert.Equal(t, "secret", f.lastForm.Get("client_secret"))
	assert.Equal(t, "introspect lookup", f.lastForm.Get("scope"))
}

func TestSession_DoAttachesBearer(t *testing.T) {
	var seen string
	f := newFakeAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
	})

	resp, err := f.session().Do(context.Background(), f.get)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer svc-1", seen)
}

func TestSession_ReacquiresTokenOn401(t *testing.T) {
	var calls int32
	f := newFakeAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") == "Bearer svc-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	resp, err := f.session().Do(context.Background(), f.get)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&f.tokenCalls))
}

func TestSession_Persistent401IsReturned(t *testing.T) {
	var calls int32
	f := newFakeAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	resp, err := f.session().Do(context.Background(), f.get)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestSession_ServerErrorsAreNotRetried(t *testing.T) {
	var calls int32
	f := newFakeAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	resp, err := f.session().Do(context.Background(), f.get)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSession_ConnectFailuresAreRetried(t *testing.T) {
	f := newFakeAuthServer(t, func(w http.ResponseWriter, r *http.Request) {})

	// a listener that is closed straight away gives a port that refuses connections
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadURL := "http://" + ln.Addr().String() + "/resource"
	require.NoError(t, ln.Close())

	var builds int32
	_, err = f.session().Do(context.Background(), func(ctx context.Context) (*http.Request, error) {
		atomic.AddInt32(&builds, 1)
		return http.NewRequestWithContext(ctx, http.MethodPost, deadURL, strings.NewReader("token=x"))
	})

	require.Error(t, err)
	assert.True(t, IsConnectError(err))
	assert.EqualValues(t, 3, atomic.LoadInt32(&builds))
}

func TestSession_BuildErrorIsPermanent(t *testing.T) {
	f := newFakeAuthServer(t, func(w http.ResponseWriter, r *http.Request) {})
	boom := errors.New("boom")

	var builds int32
	_, err := f.session().Do(context.Background(), func(context.Context) (*http.Request, error) {
		atomic.AddInt32(&builds, 1)
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, atomic.LoadInt32(&builds))
}

func TestSession_InvalidateOnlyDropsCurrentToken(t *testing.T) {
	f := newFakeAuthServer(t, func(w http.ResponseWriter, r *http.Request) {})
	s := f.session()

	old, err := s.Token(context.Background())
	require.NoError(t, err)
	s.Invalidate(old)

	fresh, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "svc-2", fresh.AccessToken)

	s.Invalidate(old)
	again, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Same(t, fresh, again)
}

func TestSession_ConcurrentTokenUse(t *testing.T) {
	f := newFakeAuthServer(t, func(w http.ResponseWriter, r *http.Request) {})
	s := f.session()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Token(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&f.tokenCalls))
}

func TestIsConnectError(t *testing.T) {
	assert.True(t, IsConnectError(&url.Error{Op: "Post", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}))
	assert.False(t, IsConnectError(&url.Error{Op: "Post", Err: &net.OpError{Op: "read", Err: errors.New("reset")}}))
	assert.False(t, IsConnectError(errors.New("plain")))
}
