package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrantham/shelfscout/internal/cache"
)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Options{
		Credentials:       &Credentials{AccessToken: "tok-test"},
		BaseURL:           server.URL,
		RequestsPerMinute: 6000,
		BurstSize:         100,
		RateInterval:      time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func newTestClientWithCache(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	store, err := cache.New(cache.Options{
		Path:       filepath.Join(t.TempDir(), "cache.db"),
		DefaultTTL: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c, err := NewClient(Options{
		Credentials:       &Credentials{AccessToken: "tok-test"},
		BaseURL:           server.URL,
		RequestsPerMinute: 6000,
		BurstSize:         100,
		RateInterval:      time.Millisecond,
		Cache:             store,
	})
	require.NoError(t, err)
	return c
}

const productJSON = `{
	"product": {
		"asin": "EX001",
		"title": "Leviathan Wakes",
		"subtitle": "The Expanse, Book 1",
		"authors": [{"name": "James S. A. Corey"}],
		"narrators": [{"name": "Jefferson Mays"}],
		"runtime_length_min": 1156,
		"release_date": "2011-06-15",
		"price": {
			"list_price": {"base": 29.95, "currency_code": "USD"},
			"lowest_price": {"base": 9.99, "currency_code": "USD"}
		},
		"plans": [
			{"plan_name": "US Minerva", "start_date": "2023-01-01", "end_date": "9999-12-31"}
		],
		"available_codecs": [
			{"name": "aax_22_64", "enhanced_codec": "LC_64_22050_stereo", "format": "Enhanced"},
			{"name": "ec+3", "enhanced_codec": "ec+3", "format": "Enhanced", "is_spatial": true}
		],
		"series": [{"asin": "SER01", "title": "The Expanse", "sequence": "1"}],
		"language": "english",
		"publisher_name": "Orbit"
	}
}`

func TestGetProductConvertsWireShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-test", r.Header.Get("Authorization"))
		assert.Equal(t, "/1.0/catalog/products/EX001", r.URL.Path)
		w.Write([]byte(productJSON))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	p, err := c.GetProduct(context.Background(), "EX001")
	require.NoError(t, err)

	assert.Equal(t, "EX001", p.ExternalID)
	assert.Equal(t, "Leviathan Wakes", p.Title)
	assert.Equal(t, "James S. A. Corey", p.PrimaryAuthor())
	assert.Equal(t, 1156, p.RuntimeMinutes)
	require.NotNil(t, p.ListPrice)
	assert.Equal(t, 29.95, *p.ListPrice)
	require.NotNil(t, p.SalePrice)
	assert.Equal(t, 9.99, *p.SalePrice)
	assert.Equal(t, "USD", p.Currency)
	require.Len(t, p.Plans, 1)
	assert.Equal(t, "US Minerva", p.Plans[0].Name)
	require.NotNil(t, p.Plans[0].EndDate)
	assert.Equal(t, 9999, p.Plans[0].EndDate.Year())
	require.Len(t, p.Codecs, 2)
	assert.True(t, p.Codecs[1].IsSpatial)
	require.NotNil(t, p.PrimarySeries())
	assert.Equal(t, "1", p.PrimarySeries().Sequence)
}

func TestGetProductCaches(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(productJSON))
	}))
	defer server.Close()

	c := newTestClientWithCache(t, server)
	ctx := context.Background()

	_, err := c.GetProduct(ctx, "EX001")
	require.NoError(t, err)
	_, err = c.GetProduct(ctx, "EX001")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestContentMetadataDerivesBitrate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Adrm", r.URL.Query().Get("drm_type"))
		// 450 MB over 10 hours: 471859200*8/36000/1000 = 104.8576 kbps
		w.Write([]byte(`{
			"content_metadata": {
				"chapter_info": {"chapters": [{"title": "Chapter 1", "start_offset_ms": 0, "length_ms": 600000}]},
				"content_reference": {
					"content_format": "M4A_AAX_64",
					"codec": "aax_22_64",
					"content_size_in_bytes": 471859200,
					"runtime_length_ms": 36000000
				}
			}
		}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	result, err := c.ContentMetadata(context.Background(), "EX001", "High", "Adrm")
	require.NoError(t, err)

	require.NotNil(t, result.Format)
	assert.InDelta(t, 104.86, result.Format.BitrateKbps, 0.01)
	assert.False(t, result.Format.IsSpatial)
	require.Len(t, result.Chapters, 1)
	assert.Equal(t, "Chapter 1", result.Chapters[0].Title)
}

func TestFastQualityCheckAssemblesFormats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("drm_type") {
		case "Adrm":
			// ~128 kbps
			w.Write([]byte(`{"content_metadata": {"content_reference": {
				"codec": "aax_44_128", "content_size_in_bytes": 576000000, "runtime_length_ms": 36000000}}}`))
		case "Widevine":
			// ~768 kbps spatial
			w.Write([]byte(`{"content_metadata": {"content_reference": {
				"codec": "ec+3", "content_size_in_bytes": 3456000000, "runtime_length_ms": 36000000}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server)
	info, err := c.FastQualityCheck(context.Background(), "EX001")
	require.NoError(t, err)

	require.Len(t, info.Formats, 2)
	require.NotNil(t, info.BestFormat)
	assert.Equal(t, "ec+3", info.BestFormat.Codec)
	assert.True(t, info.BestFormat.IsSpatial)
	assert.True(t, info.HasSpatial)
	// Formats are ordered best-first
	assert.Greater(t, info.Formats[0].BitrateKbps, info.Formats[1].BitrateKbps)
}

func TestFastQualityCheckAllVariantsFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	_, err := c.FastQualityCheck(context.Background(), "EX001")
	require.Error(t, err)
}

func TestRateLimitEscalatesAndRetries(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(productJSON))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	before := c.limiter.CurrentInterval()

	start := time.Now()
	_, err := c.GetProduct(context.Background(), "EX001")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Greater(t, c.limiter.CurrentInterval(), before)
}

func TestUnauthorizedFailsFast(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	_, err := c.GetProduct(context.Background(), "EX001")
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestSearchRequiresAFacet(t *testing.T) {
	c, err := NewClient(Options{
		Credentials: &Credentials{AccessToken: "tok"},
		BaseURL:     "http://localhost:1",
	})
	require.NoError(t, err)

	_, err = c.Search(context.Background(), SearchQuery{})
	require.Error(t, err)
}

func TestSeriesBooksMergesSeedAndSims(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1.0/catalog/products/EX001":
			w.Write([]byte(productJSON))
		case "/1.0/catalog/products/EX001/sims":
			assert.Equal(t, "same-series", r.URL.Query().Get("similarity_type"))
			w.Write([]byte(`{"similar_products": [
				{"asin": "EX002", "title": "Caliban's War", "authors": [{"name": "James S. A. Corey"}],
				 "series": [{"asin": "SER01", "title": "The Expanse", "sequence": "2"}]},
				{"asin": "EX001", "title": "Leviathan Wakes"}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server)
	series, err := c.SeriesBooks(context.Background(), "EX001")
	require.NoError(t, err)

	assert.Equal(t, "The Expanse", series.Title)
	// The duplicate seed in the sims response is dropped
	require.Len(t, series.Books, 2)
	assert.Equal(t, "EX001", series.Books[0].ExternalID)
	assert.Equal(t, "EX002", series.Books[1].ExternalID)
	assert.Equal(t, "2", series.Books[1].Sequence)
}

func TestWishlistRoundTrip(t *testing.T) {
	var added, removed bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/1.0/wishlist":
			w.Write([]byte(`{"products": [{"asin": "EX009", "title": "Wished For"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/1.0/wishlist":
			added = true
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodDelete && r.URL.Path == "/1.0/wishlist/EX009":
			removed = true
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server)
	ctx := context.Background()

	items, err := c.Wishlist(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "EX009", items[0].ExternalID)

	require.NoError(t, c.AddToWishlist(ctx, "EX010"))
	assert.True(t, added)
	require.NoError(t, c.RemoveFromWishlist(ctx, "EX009"))
	assert.True(t, removed)
}
