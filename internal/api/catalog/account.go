package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mgrantham/shelfscout/internal/models"
)

// OwnedLibrary returns the external IDs of every product the account
// already owns. Ownership gates the enrichment recommendation, so the
// whole set is fetched and cached as one unit.
func (c *Client) OwnedLibrary(ctx context.Context) ([]string, error) {
	var cached []string
	if c.cacheGet(nsSubscriptions, "owned", &cached) {
		return cached, nil
	}

	var owned []string
	pageSize := 1000
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("response_groups", "product_attrs")
		q.Set("num_results", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))

		var resp struct {
			Items []struct {
				ASIN string `json:"asin"`
			} `json:"items"`
		}
		if err := c.do(ctx, http.MethodGet, "/1.0/library", q, nil, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			if item.ASIN != "" {
				owned = append(owned, item.ASIN)
			}
		}
		if len(resp.Items) < pageSize {
			break
		}
	}

	c.cacheSet(nsSubscriptions, "owned", owned, accountTTL)
	c.log.Info("Fetched owned catalog library", map[string]interface{}{"count": len(owned)})
	return owned, nil
}

// Wishlist returns the products currently on the account's wishlist
func (c *Client) Wishlist(ctx context.Context) ([]models.CatalogProduct, error) {
	var cached []models.CatalogProduct
	if c.cacheGet(nsWishlist, "all", &cached) {
		return cached, nil
	}

	var all []models.CatalogProduct
	pageSize := 50
	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("response_groups", productResponseGroups)
		q.Set("num_results", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))

		var resp struct {
			Products []wireProduct `json:"products"`
		}
		if err := c.do(ctx, http.MethodGet, "/1.0/wishlist", q, nil, &resp); err != nil {
			return nil, err
		}
		for i := range resp.Products {
			all = append(all, resp.Products[i].toModel())
		}
		if len(resp.Products) < pageSize {
			break
		}
	}

	c.cacheSet(nsWishlist, "all", all, accountTTL)
	return all, nil
}

// AddToWishlist puts a product on the wishlist and drops the cached copy
func (c *Client) AddToWishlist(ctx context.Context, externalID string) error {
	if externalID == "" {
		return &APIError{Kind: KindValidation, Message: "external ID is required"}
	}
	payload, err := json.Marshal(map[string]string{"asin": externalID})
	if err != nil {
		return &APIError{Kind: KindValidation, Err: err}
	}
	if err := c.do(ctx, http.MethodPost, "/1.0/wishlist", nil, bytes.NewReader(payload), nil); err != nil {
		return err
	}
	c.invalidateWishlist()
	return nil
}

// RemoveFromWishlist takes a product off the wishlist and drops the cached copy
func (c *Client) RemoveFromWishlist(ctx context.Context, externalID string) error {
	if externalID == "" {
		return &APIError{Kind: KindValidation, Message: "external ID is required"}
	}
	if err := c.do(ctx, http.MethodDelete, "/1.0/wishlist/"+url.PathEscape(externalID), nil, nil, nil); err != nil {
		return err
	}
	c.invalidateWishlist()
	return nil
}

func (c *Client) invalidateWishlist() {
	if c.cache == nil {
		return
	}
	if _, err := c.cache.ClearNamespace(nsWishlist); err != nil {
		c.log.Debug("Wishlist cache invalidation failed", map[string]interface{}{"error": err.Error()})
	}
}

// Recommendations returns the catalog's personalized suggestions
func (c *Client) Recommendations(ctx context.Context, limit int) ([]models.CatalogProduct, error) {
	if limit <= 0 {
		limit = 20
	}

	key := "limit:" + strconv.Itoa(limit)
	var cached []models.CatalogProduct
	if c.cacheGet(nsSubscriptions, key, &cached) {
		return cached, nil
	}

	q := url.Values{}
	q.Set("response_groups", productResponseGroups)
	q.Set("num_results", strconv.Itoa(limit))

	var resp struct {
		Recommendations []wireProduct `json:"recommendations"`
	}
	if err := c.do(ctx, http.MethodGet, "/1.0/recommendations", q, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]models.CatalogProduct, 0, len(resp.Recommendations))
	for i := range resp.Recommendations {
		out = append(out, resp.Recommendations[i].toModel())
	}
	c.cacheSet(nsSubscriptions, key, out, accountTTL)
	return out, nil
}
