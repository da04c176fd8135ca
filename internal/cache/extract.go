package cache

import (
	"encoding/json"
	"strings"
)

// indexedMeta is the handful of columns extracted from a payload at insert
// time so entries can be searched without deserializing every payload.
type indexedMeta struct {
	ExternalID string
	Title      string
	Author     string
	Source     string
}

// extractMeta pulls indexable fields out of a JSON payload. The rules are
// keyed by namespace prefix: catalog namespaces carry catalog product
// shapes, library namespaces carry library item shapes, and pricing
// namespaces key directly on the external identifier.
func extractMeta(ns, key string, payload []byte) indexedMeta {
	meta := indexedMeta{}

	switch {
	case strings.HasPrefix(ns, "catalog_"), strings.HasPrefix(ns, "pricing_"):
		meta.Source = "catalog"
	case strings.HasPrefix(ns, "lib_"), strings.HasPrefix(ns, "library_"):
		meta.Source = "library"
	default:
		meta.Source = "other"
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		// Non-object payloads are still cacheable, just not indexed
		if meta.Source == "catalog" && looksLikeExternalID(key) {
			meta.ExternalID = key
		}
		return meta
	}

	meta.ExternalID = firstString(doc, "externalId", "external_id", "asin")
	meta.Title = firstString(doc, "title", "name")
	meta.Author = firstString(doc, "author", "authorName")
	if meta.Author == "" {
		if authors, ok := doc["authors"].([]interface{}); ok && len(authors) > 0 {
			if s, ok := authors[0].(string); ok {
				meta.Author = s
			}
		}
	}

	// Pricing and catalog namespaces conventionally key on the external ID
	if meta.ExternalID == "" && meta.Source == "catalog" && looksLikeExternalID(key) {
		meta.ExternalID = key
	}

	return meta
}

func firstString(doc map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := doc[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// looksLikeExternalID filters out obviously composite keys (page listings,
// search queries) from being indexed as identifiers.
func looksLikeExternalID(key string) bool {
	if key == "" || len(key) > 32 {
		return false
	}
	return !strings.ContainsAny(key, " /?&=")
}
