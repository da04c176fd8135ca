package library

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mgrantham/shelfscout/internal/models"
)

// defaultIncludes is the include set used when the caller asks for none.
// Responses fetched with any other include set bypass the cache, since
// the cached shape would not match.
var defaultIncludes = []string{"audiofiles"}

// wireAudioFile mirrors the server's audio file shape
type wireAudioFile struct {
	Index         int     `json:"index"`
	Codec         string  `json:"codec"`
	BitRate       int64   `json:"bitRate"`
	Channels      int     `json:"channels"`
	ChannelLayout string  `json:"channelLayout"`
	Duration      float64 `json:"duration"`
	MimeType      string  `json:"mimeType"`
	Metadata      struct {
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
	} `json:"metadata"`
}

// wireItem mirrors the server's expanded library item shape
type wireItem struct {
	ID        string `json:"id"`
	LibraryID string `json:"libraryId"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	Media     struct {
		Metadata struct {
			Title      string `json:"title"`
			AuthorName string `json:"authorName"`
			ASIN       string `json:"asin"`
		} `json:"metadata"`
		AudioFiles []wireAudioFile `json:"audioFiles"`
		Duration   float64         `json:"duration"`
	} `json:"media"`
}

func (w *wireItem) toModel() models.LibraryItem {
	item := models.LibraryItem{
		ID:         w.ID,
		ExternalID: strings.TrimSpace(w.Media.Metadata.ASIN),
		Title:      w.Media.Metadata.Title,
		Author:     w.Media.Metadata.AuthorName,
		Path:       w.Path,
		SizeBytes:  w.Size,
	}
	for _, f := range w.Media.AudioFiles {
		item.AudioFiles = append(item.AudioFiles, models.AudioFile{
			Filename:      f.Metadata.Filename,
			Codec:         f.Codec,
			Bitrate:       f.BitRate,
			Channels:      f.Channels,
			ChannelLayout: f.ChannelLayout,
			Duration:      f.Duration,
			MimeType:      f.MimeType,
			SizeBytes:     f.Metadata.Size,
		})
	}
	return item
}

// ItemPage is one page of library items
type ItemPage struct {
	Items []models.LibraryItem `json:"items"`
	Total int                  `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// ListItems returns one page of items from a library. Pages are zero-based.
func (c *Client) ListItems(ctx context.Context, libraryID string, page, limit int) (*ItemPage, error) {
	if libraryID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "library ID is required"}
	}
	if limit <= 0 {
		limit = 100
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("minified", "1")

	var resp struct {
		Results []wireItem `json:"results"`
		Total   int        `json:"total"`
		Page    int        `json:"page"`
		Limit   int        `json:"limit"`
	}
	if err := c.do(ctx, http.MethodGet, "/libraries/"+url.PathEscape(libraryID)+"/items", q, &resp); err != nil {
		return nil, err
	}

	out := &ItemPage{Total: resp.Total, Page: resp.Page, Limit: resp.Limit}
	for i := range resp.Results {
		out.Items = append(out.Items, resp.Results[i].toModel())
	}
	return out, nil
}

// ListAllItems pages through the whole library. The optional progress
// callback receives (fetched, total) after each page.
func (c *Client) ListAllItems(ctx context.Context, libraryID string, progress func(fetched, total int)) ([]models.LibraryItem, error) {
	var all []models.LibraryItem
	limit := 100
	for page := 0; ; page++ {
		p, err := c.ListItems(ctx, libraryID, page, limit)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		if progress != nil {
			progress(len(all), p.Total)
		}
		if len(p.Items) < limit || len(all) >= p.Total {
			break
		}
	}
	c.log.Info("Fetched all library items", map[string]interface{}{
		"library_id": libraryID,
		"count":      len(all),
	})
	return all, nil
}

// GetItem returns one library item expanded with its audio files. Extra
// include sections may be requested; any non-default set skips the cache.
func (c *Client) GetItem(ctx context.Context, itemID string, includes ...string) (*models.LibraryItem, error) {
	if itemID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "item ID is required"}
	}

	cacheable := isDefaultIncludeSet(includes)
	if cacheable {
		var cached models.LibraryItem
		if c.cacheGet(nsItems, itemID, &cached) {
			return &cached, nil
		}
	}

	item, err := c.fetchItem(ctx, itemID, includes, true)
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.cacheSet(nsItems, itemID, item)
	}
	return item, nil
}

func (c *Client) fetchItem(ctx context.Context, itemID string, includes []string, spaced bool) (*models.LibraryItem, error) {
	q := url.Values{}
	q.Set("expanded", "1")
	if len(includes) == 0 {
		includes = defaultIncludes
	}
	q.Set("include", strings.Join(includes, ","))

	var w wireItem
	if err := c.doWithBody(ctx, http.MethodGet, "/items/"+url.PathEscape(itemID), q, nil, &w, spaced); err != nil {
		return nil, err
	}
	item := w.toModel()
	return &item, nil
}

func isDefaultIncludeSet(includes []string) bool {
	if len(includes) == 0 {
		return true
	}
	if len(includes) != len(defaultIncludes) {
		return false
	}
	have := append([]string(nil), includes...)
	sort.Strings(have)
	want := append([]string(nil), defaultIncludes...)
	sort.Strings(want)
	for i := range have {
		if !strings.EqualFold(have[i], want[i]) {
			return false
		}
	}
	return true
}

// BatchGetItems fetches many items concurrently. The batch path targets a
// local server, so it uses its own wider concurrency bound and skips the
// per-request spacing clock. Results come back in arbitrary order and
// failed items are dropped after logging; the first auth failure aborts
// the batch. The optional progress callback receives (completed, total)
// as each fetch finishes, successful or not.
func (c *Client) BatchGetItems(ctx context.Context, itemIDs []string, progress func(completed, total int)) ([]models.LibraryItem, error) {
	total := len(itemIDs)
	if total == 0 {
		return nil, nil
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		items     []models.LibraryItem
		completed int
		fatalErr  error
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, id := range itemIDs {
		id := id

		// Cache hits don't consume a worker slot
		var cached models.LibraryItem
		if c.cacheGet(nsItems, id, &cached) {
			mu.Lock()
			items = append(items, cached)
			completed++
			done := completed
			mu.Unlock()
			if progress != nil {
				progress(done, total)
			}
			continue
		}

		if err := c.batchSem.Acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.batchSem.Release()

			item, err := c.fetchItem(ctx, id, nil, false)

			mu.Lock()
			completed++
			done := completed
			if err != nil {
				if IsAuthError(err) && fatalErr == nil {
					fatalErr = err
					cancel()
				} else {
					c.log.Warn("Batch item fetch failed", map[string]interface{}{
						"item_id": id,
						"error":   err.Error(),
					})
				}
			} else {
				items = append(items, *item)
				c.cacheSet(nsItems, id, item)
			}
			mu.Unlock()

			if progress != nil {
				progress(done, total)
			}
		}()
	}

	wg.Wait()

	if fatalErr != nil {
		return nil, fmt.Errorf("batch fetch aborted: %w", fatalErr)
	}
	c.log.Debug("Batch item fetch complete", map[string]interface{}{
		"requested": total,
		"returned":  len(items),
	})
	return items, nil
}
