// Package ogcapi queries OGC API Features services with spatial CQL2 filters.
package ogcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/dokanalyse/internal/resilience"
)

// ErrTimeout is returned when a query runs past its deadline.
var ErrTimeout = eris.New("ogcapi: query timed out")

// DefaultLimit is the page size requested when a query sets none.
const DefaultLimit = 10000

// Client queries feature collections.
type Client interface {
	Items(ctx context.Context, q Query) (*FeatureCollection, error)
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *client) { c.userAgent = ua }
}

// WithRateLimit caps requests per second per upstream host.
func WithRateLimit(rps float64) Option {
	return func(c *client) { c.rps = rps }
}

// WithTimeout bounds each query.
func WithTimeout(d time.Duration) Option {
	return func(c *client) { c.timeout = d }
}

// WithRetries sets how many times a throttled or unavailable upstream is retried.
func WithRetries(n int) Option {
	return func(c *client) { c.policy = resilience.NewPolicy(n) }
}

// WithBreakers guards each upstream host with a circuit breaker.
func WithBreakers(b *resilience.Breakers) Option {
	return func(c *client) { c.breakers = b }
}

type client struct {
	http      *http.Client
	userAgent string
	rps       float64
	timeout   time.Duration
	policy    resilience.Policy
	breakers  *resilience.Breakers

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates an OGC API Features client.
func NewClient(opts ...Option) Client {
	c := &client{
		http:      &http.Client{},
		userAgent: "dokanalyse",
		rps:       10,
		timeout:   30 * time.Second,
		policy:    resilience.NewPolicy(2),
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Items fetches the features of q.Collection intersecting q.WKT.
func (c *client) Items(ctx context.Context, q Query) (*FeatureCollection, error) {
	reqURL, host, err := itemsURL(q)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	fc, err := resilience.Call(ctx, c.breakers.For(host), func(ctx context.Context) (*FeatureCollection, error) {
		return resilience.Retry(ctx, c.policy, "ogcapi.items", func(ctx context.Context) (*FeatureCollection, error) {
			return c.get(ctx, host, reqURL)
		})
	})
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
			(errors.As(err, &ne) && ne.Timeout()) {
			return nil, eris.Wrapf(ErrTimeout, "ogcapi: %s/%s", q.BaseURL, q.Collection)
		}
		return nil, eris.Wrapf(err, "ogcapi: query %s", q.Collection)
	}
	return fc, nil
}

func (c *client) get(ctx context.Context, host, reqURL string) (*FeatureCollection, error) {
	if err := c.limiter(host).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ogcapi: build request")
	}
	req.Header.Set("Accept", "application/geo+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		zap.L().Debug("ogcapi: non-200 response",
			zap.String("url", reqURL),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &resilience.StatusError{URL: reqURL, StatusCode: resp.StatusCode}
	}

	var fc FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "ogcapi: decode feature collection")
	}
	fc.EPSG = parseContentCRS(resp.Header.Get("Content-Crs"))
	return &fc, nil
}

func (c *client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		burst := int(c.rps)
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(c.rps), burst)
		c.limiters[host] = l
	}
	return l
}

func itemsURL(q Query) (string, string, error) {
	base, err := url.Parse(strings.TrimRight(q.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return "", "", eris.Errorf("ogcapi: invalid base url %q", q.BaseURL)
	}
	if q.Collection == "" {
		return "", "", eris.New("ogcapi: collection is required")
	}

	base.Path += "/collections/" + url.PathEscape(q.Collection) + "/items"

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	params := url.Values{}
	if q.WKT != "" {
		field := q.GeomField
		if field == "" {
			field = "geometry"
		}
		params.Set("filter", fmt.Sprintf("S_INTERSECTS(%s,%s)", field, q.WKT))
		params.Set("filter-lang", "cql2-text")
	}
	if q.EPSG > 0 {
		params.Set("filter-crs", crsURI(q.EPSG))
		params.Set("crs", crsURI(q.EPSG))
	}
	params.Set("limit", strconv.Itoa(limit))
	base.RawQuery = params.Encode()

	return base.String(), base.Host, nil
}

// StatusCode maps a query outcome to the status codes the analysis engine
// understands: 200 on success, 408 on timeout (ours or the service's), 500 otherwise.
func StatusCode(err error) int {
	var se *resilience.StatusError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.As(err, &se) && se.StatusCode == http.StatusRequestTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
