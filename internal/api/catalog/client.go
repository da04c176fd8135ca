package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mgrantham/shelfscout/internal/cache"
	"github.com/mgrantham/shelfscout/internal/logger"
	"github.com/mgrantham/shelfscout/internal/util"
)

// Default client settings. The catalog is a shared commercial service, so
// the budget is far stricter than the library client's.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerMinute = 20
	DefaultBurstSize         = 5
	DefaultRateInterval      = 500 * time.Millisecond
	DefaultMaxBackoff        = 60 * time.Second
	DefaultMaxConcurrent     = 5
	DefaultLocale            = "us"
)

// Cache namespaces used by the catalog client
const (
	nsProduct       = "catalog_product"
	nsSearch        = "catalog_search"
	nsSims          = "catalog_sims"
	nsQuality       = "catalog_quality"
	nsMetadata      = "catalog_metadata"
	nsSubscriptions = "library_subscriptions"
	nsWishlist      = "library_wishlist"
)

// Default TTLs. Product metadata is stable for days; quality info for a
// given product almost never changes. Pricing-bearing namespaces are
// additionally clamped to the calendar month boundary by the cache.
const (
	productTTL  = 72 * time.Hour
	searchTTL   = 24 * time.Hour
	simsTTL     = 72 * time.Hour
	qualityTTL  = 7 * 24 * time.Hour
	metadataTTL = 7 * 24 * time.Hour
	accountTTL  = 6 * time.Hour
)

// localeHosts maps a marketplace locale onto its API host
var localeHosts = map[string]string{
	"us": "api.audible.com",
	"uk": "api.audible.co.uk",
	"de": "api.audible.de",
	"fr": "api.audible.fr",
	"ca": "api.audible.ca",
	"au": "api.audible.com.au",
	"it": "api.audible.it",
	"es": "api.audible.es",
	"jp": "api.audible.co.jp",
	"in": "api.audible.in",
}

// storeHosts maps a locale onto the customer-facing storefront host,
// used to build product page links in reports
var storeHosts = map[string]string{
	"us": "www.audible.com",
	"uk": "www.audible.co.uk",
	"de": "www.audible.de",
	"fr": "www.audible.fr",
	"ca": "www.audible.ca",
	"au": "www.audible.com.au",
	"it": "www.audible.it",
	"es": "www.audible.es",
	"jp": "www.audible.co.jp",
	"in": "www.audible.in",
}

// DRMVariants is the set of delivery variants iterated by the fast quality
// check. Each variant surfaces one codec family in content metadata.
var DRMVariants = []string{"Adrm", "Mpeg", "Widevine"}

// Options configures the catalog client
type Options struct {
	// AuthFilePath locates the pre-issued credential file
	AuthFilePath string
	// AllowInsecureAuthFile skips the 0600 permission check
	AllowInsecureAuthFile bool
	// AuthPassword opens a credential file encrypted at rest; empty for
	// plaintext files
	AuthPassword string
	// Credentials may be supplied directly, bypassing the file load
	Credentials *Credentials
	// Locale selects the marketplace (default "us")
	Locale string
	// BaseURL overrides the locale-derived host; used in tests
	BaseURL string
	// Timeout applies per request (default 30s)
	Timeout time.Duration
	// RequestsPerMinute is the per-minute budget (default 20)
	RequestsPerMinute int
	// BurstSize is the burst allowance on the minute budget (default 5)
	BurstSize int
	// RateInterval is the request spacing floor (default 500ms)
	RateInterval time.Duration
	// MaxBackoff caps 429 escalation (default 60s)
	MaxBackoff time.Duration
	// BackoffMultiplier is the 429 escalation factor (default 2.0)
	BackoffMultiplier float64
	// MaxConcurrent bounds in-flight requests (default 5)
	MaxConcurrent int
	// Cache enables read-through caching when non-nil
	Cache *cache.Store
	// Logger is optional
	Logger *logger.Logger
}

// Client is a typed, rate-limited, caching client for the commercial
// catalog API
type Client struct {
	baseURL    string
	creds      *Credentials
	locale     string
	httpClient *http.Client
	budget     *util.MinuteBudget
	limiter    *util.RateLimiter
	sem        *util.Semaphore
	cache      *cache.Store
	log        *logger.Logger
}

// NewClient creates a catalog client. The credential file is read once,
// here; a bad file fails construction rather than the first request.
func NewClient(opts Options) (*Client, error) {
	creds := opts.Credentials
	if creds == nil {
		loaded, err := LoadCredentialsWithPassword(opts.AuthFilePath, opts.AllowInsecureAuthFile, opts.AuthPassword)
		if err != nil {
			return nil, err
		}
		creds = loaded
	}

	locale := strings.ToLower(opts.Locale)
	if locale == "" {
		locale = creds.Locale
	}
	if locale == "" {
		locale = DefaultLocale
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		host, ok := localeHosts[locale]
		if !ok {
			return nil, &APIError{Kind: KindValidation, Message: fmt.Sprintf("unknown locale %q", locale)}
		}
		baseURL = "https://" + host
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if opts.BurstSize <= 0 {
		opts.BurstSize = DefaultBurstSize
	}
	if opts.RateInterval <= 0 {
		opts.RateInterval = DefaultRateInterval
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}

	log := opts.Logger
	if log == nil {
		log = logger.Get().With(map[string]interface{}{"component": "catalog_client"})
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		locale:     locale,
		httpClient: &http.Client{Timeout: opts.Timeout},
		budget:     util.NewMinuteBudget(opts.RequestsPerMinute, opts.BurstSize),
		limiter:    util.NewBackoffRateLimiter(opts.RateInterval, 1, opts.BackoffMultiplier, opts.MaxBackoff),
		sem:        util.NewSemaphore(opts.MaxConcurrent),
		cache:      opts.Cache,
		log:        log,
	}, nil
}

// Locale returns the marketplace locale the client talks to
func (c *Client) Locale() string {
	return c.locale
}

// ProductURL returns the storefront page for a product
func (c *Client) ProductURL(externalID string) string {
	host, ok := storeHosts[c.locale]
	if !ok {
		host = storeHosts[DefaultLocale]
	}
	return "https://" + host + "/pd/" + externalID
}

// do issues one request under the minute budget, the spacing limiter and
// the concurrency bound, with a single retry for transient failures. A 429
// escalates the limiter and is retried after the server-suggested delay.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body io.Reader, out interface{}) error {
	if err := c.sem.Acquire(ctx); err != nil {
		return &APIError{Kind: KindTimeout, Err: err}
	}
	defer c.sem.Release()

	err := c.attempt(ctx, method, endpoint, query, body, out)
	if err == nil || !isRetryable(err) {
		return err
	}

	backoff := 500 * time.Millisecond
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited {
		backoff = c.limiter.OnRateLimit(apiErr.RetryAfter)
	} else if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		backoff = apiErr.RetryAfter
	}

	c.log.Warn("Retrying catalog request after transient failure", map[string]interface{}{
		"endpoint": endpoint,
		"backoff":  backoff.String(),
		"error":    err.Error(),
	})

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return &APIError{Kind: KindTimeout, Err: ctx.Err()}
	case <-timer.C:
	}

	return c.attempt(ctx, method, endpoint, query, body, out)
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, query url.Values, body io.Reader, out interface{}) error {
	if err := c.budget.Wait(ctx); err != nil {
		return &APIError{Kind: KindTimeout, Err: err}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &APIError{Kind: KindTimeout, Err: err}
	}

	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &APIError{Kind: KindValidation, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &APIError{Kind: KindTimeout, Err: err}
		}
		return &APIError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Kind: KindTransport, Err: err}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusNoContent {
		apiErr := classifyStatus(resp.StatusCode, truncate(string(respBody), 200))
		if apiErr.Kind == KindRateLimited {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			c.log.Warn("Catalog rate limit hit", map[string]interface{}{
				"endpoint":    endpoint,
				"retry_after": apiErr.RetryAfter.String(),
			})
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &APIError{Kind: KindValidation, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(header, "%d", &secs); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (c *Client) cacheGet(ns, key string, dest interface{}) bool {
	if c.cache == nil {
		return false
	}
	return c.cache.GetJSON(ns, key, dest)
}

func (c *Client) cacheSet(ns, key string, value interface{}, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ns, key, value, ttl); err != nil {
		c.log.Debug("Catalog cache write failed", map[string]interface{}{
			"namespace": ns,
			"key":       key,
		})
	}
}
