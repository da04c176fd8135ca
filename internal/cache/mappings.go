package cache

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// CrossSourceMapping links a catalog external ID to a local library item
type CrossSourceMapping struct {
	ExternalID          string    `json:"externalId"`
	LocalID             string    `json:"localId"`
	LocalPath           string    `json:"localPath"`
	CanonicalExternalID string    `json:"canonicalExternalId"`
	Title               string    `json:"title"`
	Author              string    `json:"author"`
	Confidence          float64   `json:"confidence"`
	MatchedAt           time.Time `json:"matchedAt"`
}

type mappingRow struct {
	ExternalID          string    `gorm:"column:external_id;primaryKey"`
	LocalID             *string   `gorm:"column:local_id;uniqueIndex"`
	LocalPath           string    `gorm:"column:local_path"`
	CanonicalExternalID string    `gorm:"column:canonical_external_id"`
	Title               string    `gorm:"column:title"`
	Author              string    `gorm:"column:author"`
	Confidence          float64   `gorm:"column:confidence"`
	MatchedAt           time.Time `gorm:"column:matched_at"`
}

func (mappingRow) TableName() string { return "mappings" }

func (r *mappingRow) toMapping() CrossSourceMapping {
	m := CrossSourceMapping{
		ExternalID:          r.ExternalID,
		LocalPath:           r.LocalPath,
		CanonicalExternalID: r.CanonicalExternalID,
		Title:               r.Title,
		Author:              r.Author,
		Confidence:          r.Confidence,
		MatchedAt:           r.MatchedAt,
	}
	if r.LocalID != nil {
		m.LocalID = *r.LocalID
	}
	return m
}

// MappingUpsert inserts or replaces the mapping for m.ExternalID
func (s *Store) MappingUpsert(m CrossSourceMapping) error {
	if m.ExternalID == "" {
		return fmt.Errorf("mapping requires an external ID")
	}
	if m.MatchedAt.IsZero() {
		m.MatchedAt = time.Now()
	}

	row := mappingRow{
		ExternalID:          m.ExternalID,
		LocalPath:           m.LocalPath,
		CanonicalExternalID: m.CanonicalExternalID,
		Title:               m.Title,
		Author:              m.Author,
		Confidence:          m.Confidence,
		MatchedAt:           m.MatchedAt,
	}
	if m.LocalID != "" {
		row.LocalID = &m.LocalID
	}

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// MappingGet returns the mapping for an external ID, or false
func (s *Store) MappingGet(externalID string) (CrossSourceMapping, bool) {
	var row mappingRow
	if err := s.db.Where("external_id = ?", externalID).First(&row).Error; err != nil {
		return CrossSourceMapping{}, false
	}
	return row.toMapping(), true
}

// MappingGetByLocalID returns the mapping for a local item ID, or false
func (s *Store) MappingGetByLocalID(localID string) (CrossSourceMapping, bool) {
	var row mappingRow
	if err := s.db.Where("local_id = ?", localID).First(&row).Error; err != nil {
		return CrossSourceMapping{}, false
	}
	return row.toMapping(), true
}

// MappingDelete removes the mapping for an external ID
func (s *Store) MappingDelete(externalID string) error {
	return s.db.Where("external_id = ?", externalID).Delete(&mappingRow{}).Error
}

// UnmappedLocalItems lists library-sourced cache entries whose key has no
// mapping row. These are owned items the cross-source matcher has not yet
// resolved to a catalog identity.
func (s *Store) UnmappedLocalItems() ([]SearchHit, error) {
	var rows []entryRow
	err := s.db.Raw(`
		SELECT e.* FROM entries e
		WHERE e.source = 'library'
		  AND e.expires_at > ?
		  AND NOT EXISTS (SELECT 1 FROM mappings m WHERE m.local_id = e.cache_key)
		ORDER BY e.namespace, e.cache_key`, time.Now()).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, SearchHit{
			Namespace:  row.Namespace,
			Key:        row.CacheKey,
			Payload:    row.Payload,
			ExternalID: row.ExternalID,
			Title:      row.Title,
			Author:     row.Author,
		})
	}
	return hits, nil
}
