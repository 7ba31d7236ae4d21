// Package geonorge fetches dataset metadata, guidance texts and codelists from
// the national geodata registers.
package geonorge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/dokanalyse/internal/cache"
	"github.com/sells-group/dokanalyse/internal/resilience"
)

// Option configures the register clients.
type Option func(*base)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *base) { b.http = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(b *base) { b.userAgent = ua }
}

// WithRateLimit caps requests per second per register host.
func WithRateLimit(rps float64) Option {
	return func(b *base) { b.rps = rps }
}

// WithCache stores responses in p for ttl.
func WithCache(p cache.Provider, ttl time.Duration) Option {
	return func(b *base) {
		b.cache = p
		b.ttl = ttl
	}
}

// WithBreakers guards each register host with a circuit breaker.
func WithBreakers(r *resilience.Breakers) Option {
	return func(b *base) { b.breakers = r }
}

// WithRetries sets how many times a throttled register is retried.
func WithRetries(n int) Option {
	return func(b *base) { b.policy = resilience.NewPolicy(n) }
}

type base struct {
	http      *http.Client
	userAgent string
	rps       float64
	cache     cache.Provider
	ttl       time.Duration
	breakers  *resilience.Breakers
	policy    resilience.Policy

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newBase(opts []Option) *base {
	b := &base{
		http:      &http.Client{Timeout: 30 * time.Second},
		userAgent: "dokanalyse",
		rps:       5,
		policy:    resilience.NewPolicy(2),
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// cached wraps a JSON GET in the configured cache.
func cached[T any](ctx context.Context, b *base, key, rawURL string) (T, error) {
	return cache.GetOrLoad(ctx, b.cache, key, b.ttl, func(ctx context.Context) (T, error) {
		var out T
		err := b.getJSON(ctx, rawURL, &out)
		return out, err
	})
}

func (b *base) getJSON(ctx context.Context, rawURL string, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return eris.Errorf("geonorge: invalid url %q", rawURL)
	}

	_, err = resilience.Call(ctx, b.breakers.For(u.Host), func(ctx context.Context) (struct{}, error) {
		return resilience.Retry(ctx, b.policy, "geonorge.get", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, b.fetch(ctx, u.Host, rawURL, out)
		})
	})
	return err
}

func (b *base) fetch(ctx context.Context, host, rawURL string, out any) error {
	if err := b.limiter(host).Wait(ctx); err != nil {
		return eris.Wrap(err, "geonorge: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "geonorge: build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", b.userAgent)

	resp, err := b.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "geonorge: get %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &resilience.StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(err, "geonorge: decode %s", rawURL)
	}
	return nil
}

func (b *base) limiter(host string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[host]
	if !ok {
		burst := int(b.rps)
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(b.rps), burst)
		b.limiters[host] = l
	}
	return l
}
