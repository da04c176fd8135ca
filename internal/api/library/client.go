package library

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
	"github.com/mgrantham/shelfscout/internal/models"
	"github.com/mgrantham/shelfscout/internal/util"
)

const apiPath = "/api"

// Default client settings
const (
	DefaultTimeout       = 30 * time.Second
	DefaultRateInterval  = 100 * time.Millisecond
	DefaultMaxConcurrent = 5
	// DefaultBatchConcurrent is the higher bound used by the batch item
	// fetch path, which targets a local server and skips the spacing clock.
	DefaultBatchConcurrent = 20
)

// Cache namespaces used by the library client
const (
	nsItems     = "lib_items"
	nsLibraries = "lib_libraries"
	nsSeries    = "lib_series"
	nsAuthors   = "lib_authors"
	nsSearch    = "lib_search"
	nsStats     = "lib_stats"
)

// Options configures the library client
type Options struct {
	// BaseURL is the library server address, e.g. http://abs.local:13378
	BaseURL string
	// Token is the bearer token for the library API
	Token string
	// Timeout applies per request (default 30s)
	Timeout time.Duration
	// RateInterval is the minimum spacing between requests (default 100ms)
	RateInterval time.Duration
	// MaxConcurrent bounds in-flight requests (default 5)
	MaxConcurrent int
	// BatchMaxConcurrent bounds the batch item fetch path (default 20)
	BatchMaxConcurrent int
	// Cache enables read-through caching when non-nil
	Cache *cache.Store
	// CacheTTL is the default TTL for library namespaces (default 6h)
	CacheTTL time.Duration
	// Logger is optional
	Logger *logger.Logger
}

// Client is a typed, rate-limited, caching client for the library server
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *util.RateLimiter
	sem        *util.Semaphore
	batchSem   *util.Semaphore
	cache      *cache.Store
	cacheTTL   time.Duration
	log        *logger.Logger
}

// NewClient creates a library client from options
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("library base URL is required")
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("library API token is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RateInterval <= 0 {
		opts.RateInterval = DefaultRateInterval
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.BatchMaxConcurrent <= 0 {
		opts.BatchMaxConcurrent = DefaultBatchConcurrent
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 6 * time.Hour
	}

	log := opts.Logger
	if log == nil {
		log = logger.Get().With(map[string]interface{}{"component": "library_client"})
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    util.NewRateLimiter(opts.RateInterval, 1),
		sem:        util.NewSemaphore(opts.MaxConcurrent),
		batchSem:   util.NewSemaphore(opts.BatchMaxConcurrent),
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		log:        log,
	}, nil
}

// do issues one request with rate limiting, the concurrency bound and a
// single retry for transient failures. All endpoint methods go through
// here so retry policy lives in exactly one place.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, out interface{}) error {
	return c.doWithBody(ctx, method, endpoint, query, nil, out, true)
}

func (c *Client) doWithBody(ctx context.Context, method, endpoint string, query url.Values, body io.Reader, out interface{}, spaced bool) error {
	// The batch path (spaced=false) bounds its own concurrency, so only
	// spaced requests contend for the shared semaphore.
	if spaced {
		if err := c.sem.Acquire(ctx); err != nil {
			return &APIError{Kind: KindTimeout, Err: err}
		}
		defer c.sem.Release()
	}

	err := c.attempt(ctx, method, endpoint, query, body, out, spaced)
	if err == nil || !isRetryable(err) {
		return err
	}

	var apiErr *APIError
	backoff := 500 * time.Millisecond
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		backoff = apiErr.RetryAfter
	}

	c.log.Warn("Retrying library request after transient failure", map[string]interface{}{
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

	return c.attempt(ctx, method, endpoint, query, body, out, spaced)
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, query url.Values, body io.Reader, out interface{}, spaced bool) error {
	if spaced {
		if err := c.limiter.Wait(ctx); err != nil {
			return &APIError{Kind: KindTimeout, Err: err}
		}
	}

	u := c.baseURL + apiPath + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return &APIError{Kind: KindValidation, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
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

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		apiErr := classifyStatus(resp.StatusCode, truncate(string(respBody), 200))
		if apiErr.Kind == KindRateLimited {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		c.log.Warn("Library request failed", map[string]interface{}{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		})
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

// cacheGet reads through the cache when one is configured
func (c *Client) cacheGet(ns, key string, dest interface{}) bool {
	if c.cache == nil {
		return false
	}
	return c.cache.GetJSON(ns, key, dest)
}

// cacheSet writes through the cache; failures are logged, never surfaced
func (c *Client) cacheSet(ns, key string, value interface{}) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ns, key, value, c.cacheTTL); err != nil {
		c.log.Debug("Library cache write failed", map[string]interface{}{
			"namespace": ns,
			"key":       key,
		})
	}
}

// Whoami returns the authenticated user
func (c *Client) Whoami(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListLibraries returns all libraries on the server
func (c *Client) ListLibraries(ctx context.Context) ([]models.Library, error) {
	var cached []models.Library
	if c.cacheGet(nsLibraries, "all", &cached) {
		return cached, nil
	}

	var resp struct {
		Libraries []models.Library `json:"libraries"`
	}
	if err := c.do(ctx, http.MethodGet, "/libraries", nil, &resp); err != nil {
		return nil, err
	}

	c.cacheSet(nsLibraries, "all", resp.Libraries)
	c.log.Debug("Fetched libraries", map[string]interface{}{"count": len(resp.Libraries)})
	return resp.Libraries, nil
}

// GetLibrary returns one library by ID
func (c *Client) GetLibrary(ctx context.Context, libraryID string) (*models.Library, error) {
	if libraryID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "library ID is required"}
	}
	var lib models.Library
	if err := c.do(ctx, http.MethodGet, "/libraries/"+url.PathEscape(libraryID), nil, &lib); err != nil {
		return nil, err
	}
	return &lib, nil
}

// GetLibraryStats returns aggregate statistics for a library
func (c *Client) GetLibraryStats(ctx context.Context, libraryID string) (*models.LibraryStats, error) {
	if libraryID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "library ID is required"}
	}

	var cached models.LibraryStats
	if c.cacheGet(nsStats, libraryID, &cached) {
		return &cached, nil
	}

	var stats models.LibraryStats
	if err := c.do(ctx, http.MethodGet, "/libraries/"+url.PathEscape(libraryID)+"/stats", nil, &stats); err != nil {
		return nil, err
	}

	c.cacheSet(nsStats, libraryID, stats)
	return &stats, nil
}
