package upgrade

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrantham/shelfscout/internal/api/catalog"
	"github.com/mgrantham/shelfscout/internal/api/library"
	"github.com/mgrantham/shelfscout/internal/enrich"
)

// testItems maps library item IDs to their catalog ASIN and bitrate.
// li_good sits above the default threshold; li_noid has no catalog ID.
var testItems = []struct {
	id      string
	asin    string
	bitrate int64
	file    string
	codec   string
	mime    string
}{
	{"li_free", "EX-FREE", 64000, "book.mp3", "mp3", "audio/mpeg"},
	{"li_deal", "EX-DEAL", 64000, "book.mp3", "mp3", "audio/mpeg"},
	{"li_owned", "EX-OWNED", 64000, "book.mp3", "mp3", "audio/mpeg"},
	{"li_good", "EX-GOOD", 256000, "book.m4b", "aac", "audio/mp4"},
	{"li_noid", "", 64000, "book.mp3", "mp3", "audio/mpeg"},
}

func itemJSON(id, asin string, bitrate int64, file, codec, mime string) string {
	return fmt.Sprintf(`{
		"id": "%s",
		"libraryId": "lib_main",
		"media": {
			"metadata": {"title": "Title %s", "authorName": "A. Author", "asin": "%s"},
			"audioFiles": [{
				"index": 1,
				"codec": "%s",
				"bitRate": %d,
				"channels": 2,
				"duration": 3600,
				"mimeType": "%s",
				"metadata": {"filename": "%s", "size": 1000000}
			}]
		}
	}`, id, id, asin, codec, bitrate, mime, file)
}

func newLibraryServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/libraries/lib_main/items"):
			var results []string
			for _, it := range testItems {
				results = append(results, fmt.Sprintf(`{"id": "%s"}`, it.id))
			}
			fmt.Fprintf(w, `{"results": [%s], "total": %d, "page": 0, "limit": 100}`,
				strings.Join(results, ","), len(testItems))
		case strings.HasPrefix(r.URL.Path, "/api/items/"):
			id := strings.TrimPrefix(r.URL.Path, "/api/items/")
			for _, it := range testItems {
				if it.id == id {
					w.Write([]byte(itemJSON(it.id, it.asin, it.bitrate, it.file, it.codec, it.mime)))
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/1.0/library" {
			w.Write([]byte(`{"items": [{"asin": "EX-OWNED"}]}`))
			return
		}
		if !strings.HasPrefix(r.URL.Path, "/1.0/catalog/products/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		asin := strings.TrimPrefix(r.URL.Path, "/1.0/catalog/products/")
		var extra string
		switch asin {
		case "EX-FREE":
			extra = `"plans": [{"plan_name": "Audible Plus", "end_date": "9999-12-31"}],`
		case "EX-DEAL":
			extra = `"price": {"list_price": {"base": 30, "currency_code": "USD"},
				"lowest_price": {"base": 6, "currency_code": "USD"}},`
		}
		w.Write([]byte(`{"product": {"asin": "` + asin + `", "title": "Book ` + asin + `", ` + extra + `
			"authors": [{"name": "A. Author"}]}}`))
	}))
}

func newTestFinder(t *testing.T, withEnricher bool) (*Finder, func()) {
	t.Helper()

	librarySrv := newLibraryServer(t)
	catalogSrv := newCatalogServer(t)

	lib, err := library.NewClient(library.Options{
		BaseURL:      librarySrv.URL,
		Token:        "tok",
		RateInterval: time.Millisecond,
	})
	require.NoError(t, err)

	var enricher *enrich.Service
	if withEnricher {
		client, err := catalog.NewClient(catalog.Options{
			Credentials:       &catalog.Credentials{AccessToken: "tok"},
			BaseURL:           catalogSrv.URL,
			RequestsPerMinute: 6000,
			BurstSize:         100,
			RateInterval:      time.Millisecond,
		})
		require.NoError(t, err)
		enricher = enrich.NewService(client, enrich.Options{})
	}

	cleanup := func() {
		librarySrv.Close()
		catalogSrv.Close()
	}
	return NewFinder(lib, nil, enricher, nil), cleanup
}

func TestRunFullPipeline(t *testing.T) {
	f, cleanup := newTestFinder(t, true)
	defer cleanup()

	result, err := f.Run(context.Background(), Request{LibraryID: "lib_main"})
	require.NoError(t, err)

	assert.Equal(t, 5, result.TotalItems)
	// li_good is above the threshold; li_noid counts but has no catalog ID
	assert.Equal(t, 4, result.BelowThreshold)
	assert.Equal(t, 3, result.Enriched)

	require.Len(t, result.Candidates, 3)
	// 64 kbps MP3 scores priority 120; boosts order the shortlist
	assert.Equal(t, "EX-FREE", result.Candidates[0].Quality.ExternalID)
	assert.Equal(t, 600.0, result.Candidates[0].FinalPriority) // 120 x 5.0
	assert.Equal(t, "EX-DEAL", result.Candidates[1].Quality.ExternalID)
	assert.Equal(t, 480.0, result.Candidates[1].FinalPriority) // 120 x 4.0
	assert.Equal(t, "EX-OWNED", result.Candidates[2].Quality.ExternalID)
	assert.Equal(t, 12.0, result.Candidates[2].FinalPriority) // 120 x 0.1

	assert.Equal(t, 1, result.Counters.SubscriptionIncluded)
	assert.Equal(t, 1, result.Counters.MonthlyDeals)
	assert.Equal(t, 0, result.Counters.GoodDeals)
	assert.Equal(t, 1, result.Counters.AlreadyOwned)
	assert.Equal(t, 0, result.Counters.SpatialAvailable)

	assert.EqualValues(t, 3, result.APICalls)
	assert.GreaterOrEqual(t, result.ScanDuration, time.Duration(0))
}

func TestRunFilterFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
		want  []string
	}{
		{"subscription only", Flags{SubscriptionOnly: true}, []string{"EX-FREE"}},
		{"monthly deals only", Flags{MonthlyDealsOnly: true}, []string{"EX-DEAL"}},
		{"deals only", Flags{DealsOnly: true}, []string{"EX-DEAL"}},
		{"exclude owned", Flags{ExcludeOwned: true}, []string{"EX-FREE", "EX-DEAL"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, cleanup := newTestFinder(t, true)
			defer cleanup()

			result, err := f.Run(context.Background(), Request{
				LibraryID: "lib_main",
				Flags:     tc.flags,
			})
			require.NoError(t, err)

			var got []string
			for _, c := range result.Candidates {
				got = append(got, c.Quality.ExternalID)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRunLimitTruncates(t *testing.T) {
	f, cleanup := newTestFinder(t, true)
	defer cleanup()

	result, err := f.Run(context.Background(), Request{LibraryID: "lib_main", Limit: 1})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "EX-FREE", result.Candidates[0].Quality.ExternalID)
	// Counters still reflect the full flagged set
	assert.Equal(t, 1, result.Counters.AlreadyOwned)
}

func TestRunWithoutEnricher(t *testing.T) {
	f, cleanup := newTestFinder(t, false)
	defer cleanup()

	result, err := f.Run(context.Background(), Request{LibraryID: "lib_main"})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 3)
	for _, c := range result.Candidates {
		assert.Nil(t, c.Enrichment)
		// Boost defaults to 1.0 when nothing was enriched
		assert.Equal(t, 120.0, c.FinalPriority)
	}
	assert.Zero(t, result.Enriched)
	assert.Zero(t, result.Counters)
}

func TestRunWithoutEnricherDropsFilteredCandidates(t *testing.T) {
	f, cleanup := newTestFinder(t, false)
	defer cleanup()

	result, err := f.Run(context.Background(), Request{
		LibraryID: "lib_main",
		Flags:     Flags{SubscriptionOnly: true},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
}

func TestRunProgressCallbacks(t *testing.T) {
	f, cleanup := newTestFinder(t, true)
	defer cleanup()

	var scanDone, enrichDone int32
	_, err := f.Run(context.Background(), Request{
		LibraryID: "lib_main",
		ScanProgress: func(done, total int) {
			assert.Equal(t, 5, total)
			atomic.StoreInt32(&scanDone, int32(done))
		},
		EnrichProgress: func(done, total int) {
			assert.Equal(t, 3, total)
			atomic.StoreInt32(&enrichDone, int32(done))
		},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 5, atomic.LoadInt32(&scanDone))
	assert.EqualValues(t, 3, atomic.LoadInt32(&enrichDone))
}

func TestRunRequiresLibraryID(t *testing.T) {
	f, cleanup := newTestFinder(t, true)
	defer cleanup()

	_, err := f.Run(context.Background(), Request{})
	assert.Error(t, err)
}
