// Package introspect validates opaque bearer tokens by asking the
// authorisation server's RFC 7662 introspection endpoint about them.
package introspect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/iar/pkg/oauth2client"
	"github.com/platinummonkey/iar/pkg/observability"
)

// maxErrorBody bounds how much of a failed response is kept for logging
const maxErrorBody = 1024

// TokenInfo is the parsed introspection response for an accepted token
type TokenInfo struct {
	Active    bool
	Scope     string
	Subject   string
	ClientID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Raw holds every claim as returned by the server
	Raw map[string]interface{}
}

// Scopes returns the space-separated scope claim as a set
func (t *TokenInfo) Scopes() map[string]struct{} {
	set := make(map[string]struct{})
	if t == nil {
		return set
	}
	for _, s := range strings.Fields(t.Scope) {
		set[s] = struct{}{}
	}
	return set
}

// HasScopes reports whether the token carries every scope in required
func (t *TokenInfo) HasScopes(required ...string) bool {
	if t == nil {
		return false
	}
	granted := t.Scopes()
	for _, s := range required {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

// Remaining returns how long the token stays valid, measured from now
func (t *TokenInfo) Remaining(now time.Time) time.Duration {
	if t == nil || t.ExpiresAt.IsZero() {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}

type response struct {
	Active   bool   `json:"active"`
	Scope    string `json:"scope"`
	Subject  string `json:"sub"`
	ClientID string `json:"client_id"`
	// NumericDate claims may carry a fractional part
	IssuedAt *float64 `json:"iat"`
	Expires  *float64 `json:"exp"`
}

func unixTime(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// Client calls the introspection endpoint through the service session
type Client struct {
	session  *oauth2client.Session
	endpoint string
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewClient creates an introspection client. metrics may be nil.
func NewClient(session *oauth2client.Session, endpoint string, logger *observability.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Client{
		session:  session,
		endpoint: endpoint,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Validate introspects token. It returns (nil, nil) when the server reports
// the token inactive or its validity window does not include the current
// time. Transport failures and non-2xx answers are returned as errors.
func (c *Client) Validate(ctx context.Context, token string) (*TokenInfo, error) {
	start := c.now()
	resp, err := c.session.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		form := url.Values{"token": {token}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	c.observe(start)
	if err != nil {
		c.count("error")
		return nil, fmt.Errorf("token introspection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.count("error")
		return nil, fmt.Errorf("token introspection returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.count("error")
		return nil, fmt.Errorf("failed to read introspection response: %w", err)
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.count("error")
		return nil, fmt.Errorf("failed to decode introspection response: %w", err)
	}

	if !parsed.Active {
		c.count("inactive")
		return nil, nil
	}

	info := &TokenInfo{
		Active:   true,
		Scope:    parsed.Scope,
		Subject:  parsed.Subject,
		ClientID: parsed.ClientID,
	}
	if err := json.Unmarshal(raw, &info.Raw); err != nil {
		return nil, fmt.Errorf("failed to decode introspection claims: %w", err)
	}
	if parsed.IssuedAt != nil {
		info.IssuedAt = unixTime(*parsed.IssuedAt)
	}
	if parsed.Expires != nil {
		info.ExpiresAt = unixTime(*parsed.Expires)
	}

	now := c.now().UTC()
	if parsed.IssuedAt == nil || parsed.Expires == nil || info.IssuedAt.After(now) || info.ExpiresAt.Before(now) {
		c.logger.WithFields(map[string]interface{}{
			"iat": info.IssuedAt.Format(time.RFC3339),
			"exp": info.ExpiresAt.Format(time.RFC3339),
			"now": now.Format(time.RFC3339),
			"sub": info.Subject,
		}).Warn("Rejecting token outside its validity window")
		c.count("expired")
		return nil, nil
	}

	c.count("active")
	return info, nil
}

func (c *Client) count(outcome string) {
	if c.metrics != nil {
		c.metrics.IntrospectionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Client) observe(start time.Time) {
	if c.metrics != nil {
		c.metrics.OutboundCallDuration.WithLabelValues("introspect").Observe(c.now().Sub(start).Seconds())
	}
}
