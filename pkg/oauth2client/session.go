// Package oauth2client holds the server's own OAuth2 session: an access
// token obtained with the client-credentials grant and used to call the
// introspection and lookup endpoints.
package oauth2client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/platinummonkey/iar/pkg/observability"
)

// Config describes how to obtain the service access token
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	// Timeout bounds every outbound request, token fetches included
	Timeout time.Duration
	// MaxRetries bounds retries of requests that failed to connect
	MaxRetries int
}

// RequestBuilder creates a fresh outbound request. It is called once per
// attempt so request bodies never need rewinding.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Session is safe for concurrent use. The cached token is replaced whole
// under a mutex, never mutated in place.
type Session struct {
	creds      clientcredentials.Config
	client     *http.Client
	maxRetries int
	retryWait  time.Duration
	logger     *observability.Logger
	metrics    *observability.Metrics

	mu    sync.Mutex
	token *oauth2.Token
}

// Option customises a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithMetrics records token fetches
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Session) { s.metrics = metrics }
}

// WithTransport replaces the base transport wrapped by otelhttp
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Session) {
		s.client.Transport = otelhttp.NewTransport(rt)
	}
}

// WithRetryWait sets the initial wait between connection retries
func WithRetryWait(d time.Duration) Option {
	return func(s *Session) { s.retryWait = d }
}

// NewSession creates a session. No token is fetched until first use.
func NewSession(cfg Config, opts ...Option) *Session {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	s := &Session{
		creds: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxRetries: cfg.MaxRetries,
		retryWait:  100 * time.Millisecond,
		logger:     observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns a valid service access token, fetching a new one when the
// cached token is missing or expired.
func (s *Session) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Valid() {
		return s.token, nil
	}

	var tok *oauth2.Token
	err := s.retryConnect(ctx, func() error {
		var err error
		tok, err = s.creds.Token(context.WithValue(ctx, oauth2.HTTPClient, s.client))
		return err
	})
	if err != nil {
		s.countFetch("error")
		return nil, fmt.Errorf("failed to obtain service access token: %w", err)
	}

	s.countFetch("ok")
	s.token = tok
	return tok, nil
}

// Invalidate drops tok if it is still the cached token. Passing a token
// that was already replaced by a concurrent caller is a no-op.
func (s *Session) Invalidate(tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == tok {
		s.token = nil
	}
}

// Do sends an authenticated request built by build. A 401 answer discards
// the service token and the request is sent once more with a fresh one.
// Only failures to connect are retried; once a request has reached the
// server it is never resent for any other reason.
func (s *Session) Do(ctx context.Context, build RequestBuilder) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		tok, err := s.Token(ctx)
		if err != nil {
			return nil, err
		}

		var resp *http.Response
		err = s.retryConnect(ctx, func() error {
			req, err := build(ctx)
			if err != nil {
				return backoff.Permanent(err)
			}
			tok.SetAuthHeader(req)
			resp, err = s.client.Do(req)
			return err
		})
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			s.logger.Info("Service access token was refused, fetching a new one")
			s.Invalidate(tok)
			continue
		}
		return resp, nil
	}
}

// retryConnect runs op, retrying up to maxRetries times while it fails
// with a connection-establishment error.
func (s *Session) retryConnect(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryWait
	policy.MaxElapsedTime = 0

	var b backoff.BackOff = policy
	if s.maxRetries > 0 {
		b = backoff.WithMaxRetries(policy, uint64(s.maxRetries))
	} else {
		b = &backoff.StopBackOff{}
	}

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsConnectError(err) {
			s.logger.WithError(err).Warn("Connection to authorisation server failed, retrying")
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}

func (s *Session) countFetch(status string) {
	if s.metrics != nil {
		s.metrics.ServiceTokenFetches.WithLabelValues(status).Inc()
	}
}

// IsConnectError reports whether err happened while establishing a
// connection, before any bytes could have reached the remote server.
func IsConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
