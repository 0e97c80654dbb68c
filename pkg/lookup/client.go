package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/iar/pkg/oauth2client"
	"github.com/platinummonkey/iar/pkg/observability"
)

// maxErrorBody bounds how much of a failed response is logged
const maxErrorBody = 2048

// Client reads person profiles from the directory through the server's
// own OAuth2 session and caches them by username
type Client struct {
	session    *oauth2client.Session
	root       string
	cache      ProfileCache
	defaultTTL time.Duration
	logger     *observability.Logger
	metrics    *observability.Metrics
	inflight   singleflight.Group
	now        func() time.Time
}

// NewClient creates a lookup client rooted at root, e.g.
// "https://lookupproxy.example.com". metrics may be nil.
func NewClient(session *oauth2client.Session, root string, cache ProfileCache, defaultTTL time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Client{
		session:    session,
		root:       strings.TrimRight(root, "/"),
		cache:      cache,
		defaultTTL: defaultTTL,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// DefaultTTL is the cache lifetime used when the caller has no better bound
func (c *Client) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// GetPersonForUser returns the profile for subject, from the cache when
// possible and otherwise with one directory request whose result is cached
// for ttl (the default TTL when ttl is not positive). Concurrent misses for
// the same user share one request.
func (c *Client) GetPersonForUser(ctx context.Context, subject *Subject, ttl time.Duration) (*Person, error) {
	if subject == nil || subject.Username == "" {
		return nil, ErrAnonymousUser
	}
	if subject.Scheme == "" || subject.Identifier == "" {
		return nil, ErrNoLookup
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	key := CacheKey(subject.Username)
	if person, ok := c.cached(ctx, key); ok {
		return person, nil
	}

	v, err, _ := c.inflight.Do(key, func() (interface{}, error) {
		// the caller going away must not abandon a fetch other callers share
		fetchCtx := context.WithoutCancel(ctx)
		person, err := c.fetch(fetchCtx, subject)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(fetchCtx, key, person, ttl); err != nil {
			c.logger.WithError(err).WithField("username", subject.Username).Warn("Failed to cache lookup profile")
		}
		return person, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Person), nil
}

// CachedPersonForUser returns the cached profile without any network call.
// A miss, or a cache failure, reports false.
func (c *Client) CachedPersonForUser(ctx context.Context, username string) (*Person, bool) {
	if username == "" {
		return nil, false
	}
	return c.cached(ctx, CacheKey(username))
}

// Invalidate drops the cached profile for username
func (c *Client) Invalidate(ctx context.Context, username string) error {
	return c.cache.Delete(ctx, CacheKey(username))
}

func (c *Client) cached(ctx context.Context, key string) (*Person, bool) {
	person, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Profile cache read failed")
	}
	if c.metrics != nil {
		if ok {
			c.metrics.CacheHitsTotal.WithLabelValues(c.cache.Name()).Inc()
		} else {
			c.metrics.CacheMissesTotal.WithLabelValues(c.cache.Name()).Inc()
		}
	}
	return person, ok
}

// PersonURL is the directory URL for a subject's profile
func (c *Client) PersonURL(subject *Subject) string {
	return fmt.Sprintf("%s/people/%s/%s?fetch=all_insts,all_groups",
		c.root, url.PathEscape(subject.Scheme), url.PathEscape(subject.Identifier))
}

func (c *Client) fetch(ctx context.Context, subject *Subject) (*Person, error) {
	target := c.PersonURL(subject)
	start := c.now()

	resp, err := c.session.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if c.metrics != nil {
		c.metrics.OutboundCallDuration.WithLabelValues("lookup").Observe(c.now().Sub(start).Seconds())
	}
	if err != nil {
		c.count("error")
		return nil, fmt.Errorf("%w: request for %s failed: %w", ErrLookup, subject.Username, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.count(fmt.Sprintf("%d", resp.StatusCode))
		c.logger.WithFields(map[string]interface{}{
			"username": subject.Username,
			"status":   resp.StatusCode,
			"body":     string(body),
		}).Error("Lookup request failed")
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var person Person
	if err := json.NewDecoder(resp.Body).Decode(&person); err != nil {
		c.count("error")
		return nil, fmt.Errorf("%w: failed to decode profile for %s: %w", ErrLookup, subject.Username, err)
	}
	if person.Institutions == nil {
		person.Institutions = []Institution{}
	}
	if person.Groups == nil {
		person.Groups = []Group{}
	}

	c.count("ok")
	return &person, nil
}

func (c *Client) count(status string) {
	if c.metrics != nil {
		c.metrics.LookupRequestsTotal.WithLabelValues(status).Inc()
	}
}
