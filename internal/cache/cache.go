package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mgrantham/shelfscout/internal/logger"
)

// entryRow is one persistent cache entry with its indexed columns
type entryRow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	Namespace  string    `gorm:"column:namespace;uniqueIndex:idx_ns_key;index:idx_source_ext,priority:2"`
	CacheKey   string    `gorm:"column:cache_key;uniqueIndex:idx_ns_key"`
	Payload    []byte    `gorm:"column:payload"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	ExpiresAt  time.Time `gorm:"column:expires_at;index"`
	ExternalID string    `gorm:"column:external_id;index"`
	Title      string    `gorm:"column:title"`
	Author     string    `gorm:"column:author"`
	Source     string    `gorm:"column:source;index:idx_source_ext,priority:1"`
}

func (entryRow) TableName() string { return "entries" }

// Options configures the cache store
type Options struct {
	// Path is the location of the SQLite database file
	Path string
	// DefaultTTL applies when Set is called with a zero TTL
	DefaultTTL time.Duration
	// MaxMemoryEntries caps the hot in-memory layer (default 500)
	MaxMemoryEntries int
	// PricingNamespaces lists namespaces subject to the calendar-month TTL
	// clamp, in addition to anything prefixed "pricing_"
	PricingNamespaces []string
	// Logger is optional; a nil logger is safe
	Logger *logger.Logger
}

// Store is a persistent, namespaced, TTL-bounded key-value store with a
// bounded in-memory layer, a full-text index over entry metadata, and a
// cross-source identifier mapping table. Safe for concurrent use.
type Store struct {
	db         *gorm.DB
	path       string
	hot        *memoryLayer
	defaultTTL time.Duration
	pricingNS  []string
	log        *logger.Logger
}

// SearchHit is one result from an index or full-text lookup
type SearchHit struct {
	Namespace  string
	Key        string
	Payload    []byte
	ExternalID string
	Title      string
	Author     string
	Rank       float64
}

// New opens (or creates) the cache database at opts.Path
func New(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("cache: database path is required")
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 24 * time.Hour
	}
	if len(opts.PricingNamespaces) == 0 {
		opts.PricingNamespaces = DefaultPricingNamespaces
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(opts.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite supports a single writer; serialize everything through one
	// connection and let WAL keep readers cheap.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:         db,
		path:       opts.Path,
		hot:        newMemoryLayer(opts.MaxMemoryEntries),
		defaultTTL: opts.DefaultTTL,
		pricingNS:  opts.PricingNamespaces,
		log:        opts.Logger,
	}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run cache migrations: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return err
	}
	if err := s.db.AutoMigrate(&entryRow{}, &mappingRow{}); err != nil {
		return err
	}
	// Full-text index over the extracted metadata columns. Rowids mirror
	// entries.id so hits can be joined back to payloads.
	return s.db.Exec(
		`CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(title, author, namespace, cache_key)`,
	).Error
}

// Close closes the underlying database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the payload at (ns, key), or false when the entry is missing
// or expired. Expired entries are a miss, never surfaced as stale data.
func (s *Store) Get(ns, key string) ([]byte, bool) {
	if payload, ok := s.hot.get(ns, key); ok {
		return payload, true
	}

	var row entryRow
	err := s.db.Where("namespace = ? AND cache_key = ?", ns, key).First(&row).Error
	if err != nil {
		return nil, false
	}
	if time.Now().After(row.ExpiresAt) {
		return nil, false
	}

	s.hot.set(ns, key, row.Payload, row.ExpiresAt)
	return row.Payload, true
}

// Has reports whether a live entry exists at (ns, key)
func (s *Store) Has(ns, key string) bool {
	_, ok := s.Get(ns, key)
	return ok
}

// GetJSON unmarshals the payload at (ns, key) into dest. A payload that no
// longer parses is treated as corrupt: the entry is deleted and the call
// reports a miss.
func (s *Store) GetJSON(ns, key string, dest interface{}) bool {
	payload, ok := s.Get(ns, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		s.log.Warn("Deleting corrupt cache entry", map[string]interface{}{
			"namespace": ns,
			"key":       key,
			"error":     err.Error(),
		})
		if delErr := s.Delete(ns, key); delErr != nil {
			s.log.Error("Failed to delete corrupt cache entry", map[string]interface{}{
				"namespace": ns,
				"key":       key,
				"error":     delErr.Error(),
			})
		}
		return false
	}
	return true
}

// Set stores value at (ns, key), overwriting any existing entry. Values are
// serialized as JSON. Pricing namespaces have their TTL clamped to the next
// calendar-month boundary.
func (s *Store) Set(ns, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize cache payload: %w", err)
	}
	return s.SetRaw(ns, key, payload, ttl)
}

// SetRaw stores a pre-serialized payload at (ns, key)
func (s *Store) SetRaw(ns, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()
	ttl = EffectiveTTL(ns, ttl, now, s.pricingNS)
	expiresAt := now.Add(ttl)

	meta := extractMeta(ns, key, payload)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing entryRow
		found := tx.Where("namespace = ? AND cache_key = ?", ns, key).First(&existing).Error == nil
		if found {
			if err := tx.Exec(`DELETE FROM entries_fts WHERE rowid = ?`, existing.ID).Error; err != nil {
				return err
			}
			if err := tx.Delete(&entryRow{}, existing.ID).Error; err != nil {
				return err
			}
		}

		row := entryRow{
			Namespace:  ns,
			CacheKey:   key,
			Payload:    payload,
			CreatedAt:  now,
			ExpiresAt:  expiresAt,
			ExternalID: meta.ExternalID,
			Title:      meta.Title,
			Author:     meta.Author,
			Source:     meta.Source,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Exec(
			`INSERT INTO entries_fts(rowid, title, author, namespace, cache_key) VALUES (?, ?, ?, ?, ?)`,
			row.ID, meta.Title, meta.Author, ns, key,
		).Error
	})
	if err != nil {
		// The cache is an optimization, never correctness; callers keep going
		s.log.Error("Cache write failed", map[string]interface{}{
			"namespace": ns,
			"key":       key,
			"error":     err.Error(),
		})
		return err
	}

	s.hot.set(ns, key, payload, expiresAt)
	return nil
}

// Delete removes the entry at (ns, key)
func (s *Store) Delete(ns, key string) error {
	s.hot.delete(ns, key)
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row entryRow
		if tx.Where("namespace = ? AND cache_key = ?", ns, key).First(&row).Error != nil {
			return nil
		}
		if err := tx.Exec(`DELETE FROM entries_fts WHERE rowid = ?`, row.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&entryRow{}, row.ID).Error
	})
}

// ClearNamespace removes every entry in the namespace, returning the count
func (s *Store) ClearNamespace(ns string) (int64, error) {
	s.hot.purgeNamespace(ns)
	var removed int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`DELETE FROM entries_fts WHERE rowid IN (SELECT id FROM entries WHERE namespace = ?)`, ns,
		).Error; err != nil {
			return err
		}
		res := tx.Where("namespace = ?", ns).Delete(&entryRow{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}

// DeleteByPattern removes entries in ns whose key matches a glob pattern
// ('*' and '?' wildcards), returning the count removed.
func (s *Store) DeleteByPattern(ns, glob string) (int64, error) {
	like := globToLike(glob)
	s.hot.purgeNamespace(ns)
	var removed int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`DELETE FROM entries_fts WHERE rowid IN (SELECT id FROM entries WHERE namespace = ? AND cache_key LIKE ? ESCAPE '\')`,
			ns, like,
		).Error; err != nil {
			return err
		}
		res := tx.Where("namespace = ? AND cache_key LIKE ? ESCAPE '\\'", ns, like).Delete(&entryRow{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}

// InvalidateByExternalID removes every entry whose extracted external ID
// equals externalID, or whose key contains it as a substring, across all
// namespaces. Returns the count removed per namespace.
func (s *Store) InvalidateByExternalID(externalID string) (map[string]int64, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external ID is required")
	}

	counts := make(map[string]int64)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rows []entryRow
		contains := "%" + escapeLike(externalID) + "%"
		if err := tx.
			Where("external_id = ? OR cache_key LIKE ? ESCAPE '\\'", externalID, contains).
			Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			if err := tx.Exec(`DELETE FROM entries_fts WHERE rowid = ?`, row.ID).Error; err != nil {
				return err
			}
			if err := tx.Delete(&entryRow{}, row.ID).Error; err != nil {
				return err
			}
			s.hot.delete(row.Namespace, row.CacheKey)
			counts[row.Namespace]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("Invalidated cache entries by external ID", map[string]interface{}{
		"external_id": externalID,
		"namespaces":  len(counts),
	})
	return counts, nil
}

// Touch extends (or shortens) the expiry of an existing entry
func (s *Store) Touch(ns, key string, ttl time.Duration) error {
	now := time.Now()
	ttl = EffectiveTTL(ns, ttl, now, s.pricingNS)
	expiresAt := now.Add(ttl)

	res := s.db.Model(&entryRow{}).
		Where("namespace = ? AND cache_key = ?", ns, key).
		Update("expires_at", expiresAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no cache entry at %s/%s", ns, key)
	}

	if payload, ok := s.hot.get(ns, key); ok {
		s.hot.set(ns, key, payload, expiresAt)
	}
	return nil
}

// SearchByExternalID returns all live entries indexed under the external ID,
// optionally restricted to one source tag ("library" or "catalog").
func (s *Store) SearchByExternalID(externalID, source string) ([]SearchHit, error) {
	q := s.db.Where("external_id = ? AND expires_at > ?", externalID, time.Now())
	if source != "" {
		q = q.Where("source = ?", source)
	}

	var rows []entryRow
	if err := q.Order("namespace, cache_key").Find(&rows).Error; err != nil {
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

// SearchFullText runs a BM25-ranked full-text query over the indexed title
// and author columns. Results are ordered best-first.
func (s *Store) SearchFullText(query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}

	type ftsResult struct {
		Namespace  string
		CacheKey   string
		Payload    []byte
		ExternalID string
		Title      string
		Author     string
		Rank       float64
	}

	var results []ftsResult
	err := s.db.Raw(`
		SELECT e.namespace, e.cache_key, e.payload, e.external_id, e.title, e.author,
		       bm25(entries_fts) AS rank
		FROM entries_fts
		JOIN entries e ON e.id = entries_fts.rowid
		WHERE entries_fts MATCH ? AND e.expires_at > ?
		ORDER BY rank
		LIMIT ?`, query, time.Now(), limit).Scan(&results).Error
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{
			Namespace:  r.Namespace,
			Key:        r.CacheKey,
			Payload:    r.Payload,
			ExternalID: r.ExternalID,
			Title:      r.Title,
			Author:     r.Author,
			Rank:       r.Rank,
		})
	}
	return hits, nil
}

// Stats summarizes the state of the store
type Stats struct {
	TotalEntries  int64            `json:"totalEntries"`
	ExpiredCount  int64            `json:"expiredCount"`
	PerNamespace  map[string]int64 `json:"perNamespace"`
	MappingCount  int64            `json:"mappingCount"`
	DBSizeBytes   int64            `json:"dbSizeBytes"`
	MemoryEntries int              `json:"memoryEntries"`
}

// GetStats returns totals, per-namespace counts, the expired count and the
// on-disk database size.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{PerNamespace: make(map[string]int64)}

	if err := s.db.Model(&entryRow{}).Count(&stats.TotalEntries).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&entryRow{}).
		Where("expires_at <= ?", time.Now()).
		Count(&stats.ExpiredCount).Error; err != nil {
		return nil, err
	}

	type nsCount struct {
		Namespace string
		N         int64
	}
	var perNS []nsCount
	if err := s.db.Model(&entryRow{}).
		Select("namespace, COUNT(*) AS n").
		Group("namespace").
		Scan(&perNS).Error; err != nil {
		return nil, err
	}
	for _, c := range perNS {
		stats.PerNamespace[c.Namespace] = c.N
	}

	if err := s.db.Model(&mappingRow{}).Count(&stats.MappingCount).Error; err != nil {
		return nil, err
	}

	if fi, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = fi.Size()
	}
	stats.MemoryEntries = s.hot.len()

	return stats, nil
}

// CleanupExpired removes every expired entry, returning the count removed
func (s *Store) CleanupExpired() (int64, error) {
	var removed int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Exec(
			`DELETE FROM entries_fts WHERE rowid IN (SELECT id FROM entries WHERE expires_at <= ?)`, now,
		).Error; err != nil {
			return err
		}
		res := tx.Where("expires_at <= ?", now).Delete(&entryRow{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Debug("Cleaned up expired cache entries", map[string]interface{}{
			"removed": removed,
		})
	}
	return removed, nil
}

// globToLike converts a glob pattern to a SQL LIKE pattern
func globToLike(glob string) string {
	escaped := escapeLike(glob)
	out := make([]rune, 0, len(escaped))
	for _, r := range escaped {
		switch r {
		case '*':
			out = append(out, '%')
		case '?':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
