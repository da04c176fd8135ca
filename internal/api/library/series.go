package library

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mgrantham/shelfscout/internal/models"
)

// wireSeries mirrors the server's series-with-books shape
type wireSeries struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Books []struct {
		ID       string `json:"id"`
		Sequence string `json:"sequence"`
		Media    struct {
			Metadata struct {
				Title        string `json:"title"`
				AuthorName   string `json:"authorName"`
				NarratorName string `json:"narratorName"`
				ASIN         string `json:"asin"`
				SeriesName   string `json:"seriesName"`
			} `json:"metadata"`
			Duration float64 `json:"duration"`
		} `json:"media"`
	} `json:"books"`
}

func (w *wireSeries) toModel() models.LocalSeries {
	s := models.LocalSeries{ID: w.ID, Name: w.Name}
	for _, b := range w.Books {
		s.Books = append(s.Books, models.LocalSeriesBook{
			ID:         b.ID,
			Title:      b.Media.Metadata.Title,
			Sequence:   b.Sequence,
			ExternalID: b.Media.Metadata.ASIN,
			Author:     b.Media.Metadata.AuthorName,
			Narrator:   b.Media.Metadata.NarratorName,
			Duration:   b.Media.Duration,
		})
	}
	return s
}

// ListSeries returns every series in a library with its books
func (c *Client) ListSeries(ctx context.Context, libraryID string) ([]models.LocalSeries, error) {
	if libraryID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "library ID is required"}
	}

	var cached []models.LocalSeries
	if c.cacheGet(nsSeries, libraryID, &cached) {
		return cached, nil
	}

	var all []models.LocalSeries
	limit := 50
	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("limit", strconv.Itoa(limit))
		q.Set("include", "books")

		var resp struct {
			Results []wireSeries `json:"results"`
			Total   int          `json:"total"`
		}
		if err := c.do(ctx, http.MethodGet, "/libraries/"+url.PathEscape(libraryID)+"/series", q, &resp); err != nil {
			return nil, err
		}
		for i := range resp.Results {
			all = append(all, resp.Results[i].toModel())
		}
		if len(resp.Results) < limit || len(all) >= resp.Total {
			break
		}
	}

	c.cacheSet(nsSeries, libraryID, all)
	c.log.Debug("Fetched library series", map[string]interface{}{
		"library_id": libraryID,
		"count":      len(all),
	})
	return all, nil
}

// ListAuthors returns all authors in a library
func (c *Client) ListAuthors(ctx context.Context, libraryID string) ([]models.AuthorSummary, error) {
	if libraryID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "library ID is required"}
	}

	var cached []models.AuthorSummary
	if c.cacheGet(nsAuthors, libraryID, &cached) {
		return cached, nil
	}

	var resp struct {
		Authors []models.AuthorSummary `json:"authors"`
	}
	if err := c.do(ctx, http.MethodGet, "/libraries/"+url.PathEscape(libraryID)+"/authors", nil, &resp); err != nil {
		return nil, err
	}

	c.cacheSet(nsAuthors, libraryID, resp.Authors)
	return resp.Authors, nil
}

// SearchResult holds library search hits grouped by kind
type SearchResult struct {
	Items  []models.LibraryItem `json:"items"`
	Series []models.LocalSeries `json:"series"`
}

// Search runs a text search against one library
func (c *Client) Search(ctx context.Context, libraryID, query string, limit int) (*SearchResult, error) {
	if libraryID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "library ID is required"}
	}
	if query == "" {
		return nil, &APIError{Kind: KindValidation, Message: "search query is required"}
	}
	if limit <= 0 {
		limit = 12
	}

	cacheKey := libraryID + ":" + strconv.Itoa(limit) + ":" + query
	var cached SearchResult
	if c.cacheGet(nsSearch, cacheKey, &cached) {
		return &cached, nil
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Book []struct {
			LibraryItem wireItem `json:"libraryItem"`
		} `json:"book"`
		Series []struct {
			Series wireSeries `json:"series"`
		} `json:"series"`
	}
	if err := c.do(ctx, http.MethodGet, "/libraries/"+url.PathEscape(libraryID)+"/search", q, &resp); err != nil {
		return nil, err
	}

	out := &SearchResult{}
	for i := range resp.Book {
		out.Items = append(out.Items, resp.Book[i].LibraryItem.toModel())
	}
	for i := range resp.Series {
		out.Series = append(out.Series, resp.Series[i].Series.toModel())
	}

	c.cacheSet(nsSearch, cacheKey, out)
	return out, nil
}
