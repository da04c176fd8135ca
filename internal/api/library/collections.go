package library

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/mgrantham/shelfscout/internal/models"
)

// wireCollection mirrors the server's collection shape, where books come
// back as embedded items rather than bare IDs
type wireCollection struct {
	ID          string `json:"id"`
	LibraryID   string `json:"libraryId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Books       []struct {
		ID string `json:"id"`
	} `json:"books"`
}

func (w *wireCollection) toModel() models.Collection {
	col := models.Collection{
		ID:          w.ID,
		LibraryID:   w.LibraryID,
		Name:        w.Name,
		Description: w.Description,
	}
	for _, b := range w.Books {
		col.BookIDs = append(col.BookIDs, b.ID)
	}
	return col
}

// ListCollections returns all collections visible to the user
func (c *Client) ListCollections(ctx context.Context) ([]models.Collection, error) {
	var resp struct {
		Collections []wireCollection `json:"collections"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]models.Collection, 0, len(resp.Collections))
	for i := range resp.Collections {
		out = append(out, resp.Collections[i].toModel())
	}
	return out, nil
}

// GetCollection returns one collection by ID
func (c *Client) GetCollection(ctx context.Context, collectionID string) (*models.Collection, error) {
	if collectionID == "" {
		return nil, &APIError{Kind: KindValidation, Message: "collection ID is required"}
	}
	var w wireCollection
	if err := c.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(collectionID), nil, &w); err != nil {
		return nil, err
	}
	col := w.toModel()
	return &col, nil
}

// CreateCollection creates a new collection in a library
func (c *Client) CreateCollection(ctx context.Context, libraryID, name, description string) (*models.Collection, error) {
	if libraryID == "" || name == "" {
		return nil, &APIError{Kind: KindValidation, Message: "library ID and name are required"}
	}

	payload, err := json.Marshal(map[string]string{
		"libraryId":   libraryID,
		"name":        name,
		"description": description,
	})
	if err != nil {
		return nil, &APIError{Kind: KindValidation, Err: err}
	}

	var w wireCollection
	if err := c.doWithBody(ctx, http.MethodPost, "/collections", nil, bytes.NewReader(payload), &w, true); err != nil {
		return nil, err
	}
	col := w.toModel()
	c.log.Info("Created collection", map[string]interface{}{
		"collection_id": col.ID,
		"name":          col.Name,
	})
	return &col, nil
}

// AddToCollection appends books to a collection in one request. Books
// already present are a no-op on the server side.
func (c *Client) AddToCollection(ctx context.Context, collectionID string, itemIDs []string) error {
	if collectionID == "" {
		return &APIError{Kind: KindValidation, Message: "collection ID is required"}
	}
	if len(itemIDs) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string][]string{"books": itemIDs})
	if err != nil {
		return &APIError{Kind: KindValidation, Err: err}
	}
	return c.doWithBody(ctx, http.MethodPost,
		"/collections/"+url.PathEscape(collectionID)+"/batch/add", nil, bytes.NewReader(payload), nil, true)
}

// FindOrCreateCollection returns the collection with the given name in a
// library, creating it if absent. Name comparison is exact.
func (c *Client) FindOrCreateCollection(ctx context.Context, libraryID, name string) (*models.Collection, error) {
	existing, err := c.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].LibraryID == libraryID && existing[i].Name == name {
			return &existing[i], nil
		}
	}
	return c.CreateCollection(ctx, libraryID, name, "")
}
