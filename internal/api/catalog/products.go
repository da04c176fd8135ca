package catalog

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mgrantham/shelfscout/internal/models"
)

// productResponseGroups asks the API for everything the enrichment and
// series paths need in one round trip.
const productResponseGroups = "product_desc,product_attrs,price,media,series,contributors,product_plans"

type wirePerson struct {
	Name string `json:"name"`
}

type wirePrice struct {
	ListPrice *struct {
		Base         float64 `json:"base"`
		CurrencyCode string  `json:"currency_code"`
	} `json:"list_price"`
	LowestPrice *struct {
		Base         float64 `json:"base"`
		CurrencyCode string  `json:"currency_code"`
	} `json:"lowest_price"`
	CreditPrice *float64 `json:"credit_price"`
}

type wirePlan struct {
	PlanName  string `json:"plan_name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type wireCodec struct {
	Name          string `json:"name"`
	EnhancedCodec string `json:"enhanced_codec"`
	Format        string `json:"format"`
	IsSpatial     bool   `json:"is_spatial"`
}

type wireSeriesRef struct {
	ASIN     string `json:"asin"`
	Title    string `json:"title"`
	Sequence string `json:"sequence"`
}

// wireProduct mirrors the catalog's product shape
type wireProduct struct {
	ASIN             string            `json:"asin"`
	Title            string            `json:"title"`
	Subtitle         string            `json:"subtitle"`
	Authors          []wirePerson      `json:"authors"`
	Narrators        []wirePerson      `json:"narrators"`
	RuntimeLengthMin int               `json:"runtime_length_min"`
	ReleaseDate      string            `json:"release_date"`
	Price            *wirePrice        `json:"price"`
	Plans            []wirePlan        `json:"plans"`
	AvailableCodecs  []wireCodec       `json:"available_codecs"`
	ProductImages    map[string]string `json:"product_images"`
	Series           []wireSeriesRef   `json:"series"`
	Language         string            `json:"language"`
	PublisherName    string            `json:"publisher_name"`
}

// dateLayouts covers the formats the catalog emits for dates
var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05Z07:00"}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func (w *wireProduct) toModel() models.CatalogProduct {
	p := models.CatalogProduct{
		ExternalID:     w.ASIN,
		Title:          w.Title,
		Subtitle:       w.Subtitle,
		RuntimeMinutes: w.RuntimeLengthMin,
		ReleaseDate:    parseDate(w.ReleaseDate),
		Language:       w.Language,
		PublisherName:  w.PublisherName,
	}
	for _, a := range w.Authors {
		p.Authors = append(p.Authors, a.Name)
	}
	for _, n := range w.Narrators {
		p.Narrators = append(p.Narrators, n.Name)
	}
	if w.Price != nil {
		if w.Price.ListPrice != nil {
			v := w.Price.ListPrice.Base
			p.ListPrice = &v
			p.Currency = w.Price.ListPrice.CurrencyCode
		}
		if w.Price.LowestPrice != nil {
			v := w.Price.LowestPrice.Base
			p.SalePrice = &v
			if p.Currency == "" {
				p.Currency = w.Price.LowestPrice.CurrencyCode
			}
		}
		p.CreditPrice = w.Price.CreditPrice
	}
	for _, plan := range w.Plans {
		p.Plans = append(p.Plans, models.SubscriptionPlan{
			Name:      plan.PlanName,
			StartDate: parseDate(plan.StartDate),
			EndDate:   parseDate(plan.EndDate),
		})
	}
	for _, codec := range w.AvailableCodecs {
		p.Codecs = append(p.Codecs, models.CodecInfo{
			Name:         codec.Name,
			EnhancedName: codec.EnhancedCodec,
			Format:       codec.Format,
			IsSpatial:    codec.IsSpatial,
		})
	}
	for _, u := range w.ProductImages {
		p.CoverURLs = append(p.CoverURLs, u)
	}
	for _, s := range w.Series {
		p.Series = append(p.Series, models.SeriesRef{
			ExternalID: s.ASIN,
			Title:      s.Title,
			Sequence:   s.Sequence,
		})
	}
	return p
}

// GetProduct returns one catalog product with pricing, plans, codecs and
// series membership
func (c *Client) GetProduct(ctx context.Context, externalID string) (*models.CatalogProduct, error) {
	if externalID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "external ID is required"}
	}

	var cached models.CatalogProduct
	if c.cacheGet(nsProduct, externalID, &cached) {
		return &cached, nil
	}

	q := url.Values{}
	q.Set("response_groups", productResponseGroups)

	var resp struct {
		Product wireProduct `json:"product"`
	}
	if err := c.do(ctx, http.MethodGet, "/1.0/catalog/products/"+url.PathEscape(externalID), q, nil, &resp); err != nil {
		return nil, err
	}

	product := resp.Product.toModel()
	c.cacheSet(nsProduct, externalID, product, productTTL)
	return &product, nil
}

// SearchQuery holds the supported search facets. Empty facets are omitted.
type SearchQuery struct {
	Keywords string
	Title    string
	Author   string
	Narrator string
	Page     int
	PageSize int
}

func (s *SearchQuery) cacheKey() string {
	parts := []string{
		"kw=" + s.Keywords,
		"t=" + s.Title,
		"a=" + s.Author,
		"n=" + s.Narrator,
		"p=" + strconv.Itoa(s.Page),
		"sz=" + strconv.Itoa(s.PageSize),
	}
	return strings.Join(parts, "&")
}

// Search runs a paged product search
func (c *Client) Search(ctx context.Context, query SearchQuery) ([]models.CatalogProduct, error) {
	if query.Keywords == "" && query.Title == "" && query.Author == "" && query.Narrator == "" {
		return nil, &APIError{Kind: KindValidation, Message: "at least one search facet is required"}
	}
	if query.PageSize <= 0 {
		query.PageSize = 20
	}

	key := query.cacheKey()
	var cached []models.CatalogProduct
	if c.cacheGet(nsSearch, key, &cached) {
		return cached, nil
	}

	q := url.Values{}
	q.Set("response_groups", productResponseGroups)
	q.Set("num_results", strconv.Itoa(query.PageSize))
	q.Set("page", strconv.Itoa(query.Page))
	if query.Keywords != "" {
		q.Set("keywords", query.Keywords)
	}
	if query.Title != "" {
		q.Set("title", query.Title)
	}
	if query.Author != "" {
		q.Set("author", query.Author)
	}
	if query.Narrator != "" {
		q.Set("narrator", query.Narrator)
	}

	var resp struct {
		Products []wireProduct `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, "/1.0/catalog/products", q, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]models.CatalogProduct, 0, len(resp.Products))
	for i := range resp.Products {
		out = append(out, resp.Products[i].toModel())
	}
	c.cacheSet(nsSearch, key, out, searchTTL)
	return out, nil
}

// SimilarProducts returns products the catalog relates to the seed.
// similarityType "same-series" is the series-discovery primitive.
func (c *Client) SimilarProducts(ctx context.Context, externalID, similarityType string) ([]models.CatalogProduct, error) {
	if externalID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "external ID is required"}
	}
	if similarityType == "" {
		similarityType = "same-series"
	}

	key := externalID + ":" + similarityType
	var cached []models.CatalogProduct
	if c.cacheGet(nsSims, key, &cached) {
		return cached, nil
	}

	q := url.Values{}
	q.Set("similarity_type", similarityType)
	q.Set("response_groups", productResponseGroups)

	var resp struct {
		SimilarProducts []wireProduct `json:"similar_products"`
	}
	if err := c.do(ctx, http.MethodGet, "/1.0/catalog/products/"+url.PathEscape(externalID)+"/sims", q, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]models.CatalogProduct, 0, len(resp.SimilarProducts))
	for i := range resp.SimilarProducts {
		out = append(out, resp.SimilarProducts[i].toModel())
	}
	c.cacheSet(nsSims, key, out, simsTTL)
	return out, nil
}

// SeriesBooks returns every product the catalog places in the same series
// as the seed, the seed included. The seed's own product record supplies
// the series title; missing series metadata degrades to an untitled series.
func (c *Client) SeriesBooks(ctx context.Context, seedExternalID string) (*models.CatalogSeries, error) {
	seed, err := c.GetProduct(ctx, seedExternalID)
	if err != nil {
		return nil, err
	}

	series := &models.CatalogSeries{}
	if ref := seed.PrimarySeries(); ref != nil {
		series.ExternalID = ref.ExternalID
		series.Title = ref.Title
	}

	sims, err := c.SimilarProducts(ctx, seedExternalID, "same-series")
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	add := func(p *models.CatalogProduct) {
		if p.ExternalID == "" || seen[p.ExternalID] {
			return
		}
		seen[p.ExternalID] = true
		book := models.CatalogSeriesBook{
			ExternalID:     p.ExternalID,
			Title:          p.Title,
			Authors:        p.Authors,
			Narrators:      p.Narrators,
			RuntimeMinutes: p.RuntimeMinutes,
		}
		if ref := p.PrimarySeries(); ref != nil {
			book.Sequence = ref.Sequence
		}
		series.Books = append(series.Books, book)
	}

	add(seed)
	for i := range sims {
		add(&sims[i])
	}

	c.log.Debug("Assembled catalog series", map[string]interface{}{
		"seed":  seedExternalID,
		"title": series.Title,
		"books": len(series.Books),
	})
	return series, nil
}
