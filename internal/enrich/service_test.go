package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrantham/shelfscout/internal/api/catalog"
	"github.com/mgrantham/shelfscout/internal/models"
)

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1.0/library":
			w.Write([]byte(`{"items": [{"asin": "EX-OWNED"}]}`))
		case "/1.0/catalog/products/EX-OWNED", "/1.0/catalog/products/EX-FREE", "/1.0/catalog/products/EX-DEAL":
			asin := r.URL.Path[len("/1.0/catalog/products/"):]
			var extra string
			switch asin {
			case "EX-FREE":
				extra = `"plans": [{"plan_name": "Audible Plus", "end_date": "9999-12-31"}],`
			case "EX-DEAL":
				extra = `"price": {"list_price": {"base": 30, "currency_code": "USD"},
					"lowest_price": {"base": 6, "currency_code": "USD"}},`
			}
			w.Write([]byte(`{"product": {"asin": "` + asin + `", "title": "Book ` + asin + `", ` + extra + `
				"authors": [{"name": "A. Author"}],
				"available_codecs": [{"name": "aax_22_64", "enhanced_codec": "LC_64_22050_stereo"}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestService(t *testing.T, server *httptest.Server) *Service {
	t.Helper()
	client, err := catalog.NewClient(catalog.Options{
		Credentials:       &catalog.Credentials{AccessToken: "tok"},
		BaseURL:           server.URL,
		RequestsPerMinute: 6000,
		BurstSize:         100,
		RateInterval:      time.Millisecond,
	})
	require.NoError(t, err)
	return NewService(client, Options{})
}

func TestEnrichOwned(t *testing.T) {
	server := newCatalogServer(t)
	defer server.Close()
	s := newTestService(t, server)

	e, err := s.Enrich(context.Background(), "EX-OWNED", false)
	require.NoError(t, err)

	assert.True(t, e.Owned)
	assert.Equal(t, "OWNED", e.Recommendation)
	assert.Equal(t, 0.1, e.PriorityBoost)
	assert.Equal(t, 64.0, e.BestBitrateKbps)
	assert.Contains(t, e.CatalogURL, "/pd/EX-OWNED")
}

func TestEnrichSubscriptionIncluded(t *testing.T) {
	server := newCatalogServer(t)
	defer server.Close()
	s := newTestService(t, server)

	e, err := s.Enrich(context.Background(), "EX-FREE", false)
	require.NoError(t, err)

	assert.False(t, e.Owned)
	require.NotNil(t, e.Subscription)
	assert.True(t, e.Subscription.IsIncludedFree)
	assert.Nil(t, e.Subscription.ExpirationDate)
	assert.Equal(t, "FREE", e.Recommendation)
	assert.Equal(t, 5.0, e.PriorityBoost)
}

func TestEnrichMonthlyDeal(t *testing.T) {
	server := newCatalogServer(t)
	defer server.Close()
	s := newTestService(t, server)

	e, err := s.Enrich(context.Background(), "EX-DEAL", false)
	require.NoError(t, err)

	require.NotNil(t, e.Pricing)
	assert.True(t, e.Pricing.IsMonthlyDeal) // 80% off
	assert.Contains(t, e.Recommendation, "MONTHLY_DEAL")
	assert.Equal(t, 4.0, e.PriorityBoost)
}

func TestEnrichOwnedSetFetchedOnce(t *testing.T) {
	var libraryCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/1.0/library" {
			atomic.AddInt32(&libraryCalls, 1)
			w.Write([]byte(`{"items": []}`))
			return
		}
		w.Write([]byte(`{"product": {"asin": "EX1", "title": "T"}}`))
	}))
	defer server.Close()

	s := newTestService(t, server)
	ctx := context.Background()
	_, err := s.Enrich(ctx, "EX1", false)
	require.NoError(t, err)
	_, err = s.Enrich(ctx, "EX1", false)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&libraryCalls))
}

func TestEnrichConcurrentCallersSeeOwnedSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/1.0/library" {
			// Slow ownership fetch, so the second caller arrives mid-flight
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"items": [{"asin": "EX-OWNED"}]}`))
			return
		}
		w.Write([]byte(`{"product": {"asin": "EX-OWNED", "title": "T"}}`))
	}))
	defer server.Close()

	s := newTestService(t, server)

	var wg sync.WaitGroup
	enriched := make([]*models.Enrichment, 2)
	errs := make([]error, 2)
	for i := range enriched {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			enriched[i], errs[i] = s.Enrich(context.Background(), "EX-OWNED", false)
		}()
		time.Sleep(50 * time.Millisecond)
	}
	wg.Wait()

	for i := range enriched {
		require.NoError(t, errs[i])
		assert.True(t, enriched[i].Owned, "caller %d must see the item as owned", i)
	}
}

func TestEnrichBatchSkipsFailures(t *testing.T) {
	server := newCatalogServer(t)
	defer server.Close()
	s := newTestService(t, server)

	var lastDone int32
	results := s.EnrichBatch(context.Background(),
		[]string{"EX-FREE", "EX-MISSING", "EX-DEAL"},
		BatchOptions{Progress: func(done, total int) {
			atomic.StoreInt32(&lastDone, int32(done))
			assert.Equal(t, 3, total)
		}})

	assert.Len(t, results, 2)
	assert.Contains(t, results, "EX-FREE")
	assert.Contains(t, results, "EX-DEAL")
	assert.NotContains(t, results, "EX-MISSING")
	assert.EqualValues(t, 3, atomic.LoadInt32(&lastDone))
}

func TestStatsCountAPICalls(t *testing.T) {
	server := newCatalogServer(t)
	defer server.Close()
	s := newTestService(t, server)

	_, err := s.Enrich(context.Background(), "EX-FREE", false)
	require.NoError(t, err)

	stats := s.Stats()
	assert.EqualValues(t, 1, stats.APICalls)
	assert.EqualValues(t, 0, stats.CacheHits)
}
