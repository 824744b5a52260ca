// Package sqlite implements the index store on SQLite via gorm, with a
// sibling bleve index providing full-text search over
// (content, summary, keywords).
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hashicorp-forge/schemadoc/pkg/search"
)

// File names under the index directory.
const (
	dbFileName    = "index.db"
	bleveDirName  = "fulltext.bleve"
	defaultSearch = 20
)

// Config configures the sqlite store.
type Config struct {
	// Path is the index directory. Created if absent.
	Path   string
	Logger hclog.Logger
}

// Store implements search.Store on gorm/SQLite plus bleve.
type Store struct {
	db     *gorm.DB
	index  bleve.Index
	path   string
	logger hclog.Logger

	// batch collects bleve mutations inside a transaction; they apply on
	// commit.
	batch *bleve.Batch
}

// Open opens or creates the index at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("index path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(cfg.Path, dbFileName)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	if err := db.AutoMigrate(
		&search.Document{},
		&search.Vector{},
		&search.Relationship{},
		&search.MetadataEntry{},
		&search.KeywordEntry{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate index schema: %w", err)
	}

	idx, err := openOrCreateIndex(filepath.Join(cfg.Path, bleveDirName))
	if err != nil {
		return nil, fmt.Errorf("failed to open full-text index: %w", err)
	}

	return &Store{
		db:     db,
		index:  idx,
		path:   cfg.Path,
		logger: logger.Named("index-store"),
	}, nil
}

func openOrCreateIndex(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return bleve.New(path, createDocumentMapping())
	}
	return idx, err
}

// createDocumentMapping maps the searchable fields. Text fields use the
// English analyzer for stemming; identity fields are keywords for exact
// filtering.
func createDocumentMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("summary", textFieldMapping)
	docMapping.AddFieldMappingsAt("keywords", textFieldMapping)
	docMapping.AddFieldMappingsAt("doc_type", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("database", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("domain", keywordFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}

// ftsEntry is what lands in bleve, keyed by file path.
type ftsEntry struct {
	Content  string `json:"content"`
	Summary  string `json:"summary"`
	Keywords string `json:"keywords"`
	DocType  string `json:"doc_type"`
	Database string `json:"database"`
	Domain   string `json:"domain"`
}

func ftsEntryFor(doc *search.Document) ftsEntry {
	return ftsEntry{
		Content:  doc.Content,
		Summary:  doc.Summary,
		Keywords: strings.Join(doc.Keywords, " "),
		DocType:  doc.DocType,
		Database: doc.Database,
		Domain:   doc.Domain,
	}
}

// ftsIndex stages or applies one index mutation depending on whether a
// transaction batch is open.
func (s *Store) ftsIndex(path string, doc *search.Document) error {
	if s.batch != nil {
		return s.batch.Index(path, ftsEntryFor(doc))
	}
	return s.index.Index(path, ftsEntryFor(doc))
}

func (s *Store) ftsDelete(path string) error {
	if s.batch != nil {
		s.batch.Delete(path)
		return nil
	}
	return s.index.Delete(path)
}

// UpsertDocument inserts or overwrites by file_path and returns the surrogate
// id. The full-text row is written in the same call.
func (s *Store) UpsertDocument(ctx context.Context, doc *search.Document) (int64, error) {
	doc.IndexedAt = time.Now().UTC()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "file_path"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"doc_type", "database", "schema", "table", "column", "domain",
			"content", "summary", "keywords", "content_hash",
			"source_modified_at", "parent_doc_id", "indexed_at",
		}),
	}).Create(doc).Error
	if err != nil {
		return 0, fmt.Errorf("failed to upsert document %s: %w", doc.FilePath, err)
	}

	// The conflict path does not populate doc.ID; fetch the stable id.
	if doc.ID == 0 {
		var existing search.Document
		if err := s.db.WithContext(ctx).Select("id").
			Where("file_path = ?", doc.FilePath).First(&existing).Error; err != nil {
			return 0, fmt.Errorf("failed to resolve document id for %s: %w", doc.FilePath, err)
		}
		doc.ID = existing.ID
	}

	if err := s.ftsIndex(doc.FilePath, doc); err != nil {
		return 0, fmt.Errorf("failed to index document %s: %w", doc.FilePath, err)
	}
	return doc.ID, nil
}

// GetDocumentByPath returns the document or gorm.ErrRecordNotFound.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*search.Document, error) {
	var doc search.Document
	if err := s.db.WithContext(ctx).Where("file_path = ?", path).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocumentByPath removes the document, its vector, and its column
// children (each with their vectors and full-text rows).
func (s *Store) DeleteDocumentByPath(ctx context.Context, path string) error {
	doc, err := s.GetDocumentByPath(ctx, path)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	var children []search.Document
	if err := s.db.WithContext(ctx).
		Where("parent_doc_id = ?", doc.ID).Find(&children).Error; err != nil {
		return fmt.Errorf("failed to list children of %s: %w", path, err)
	}

	ids := make([]int64, 0, len(children)+1)
	ids = append(ids, doc.ID)
	for _, child := range children {
		ids = append(ids, child.ID)
		if err := s.ftsDelete(child.FilePath); err != nil {
			s.logger.Warn("failed to remove child from full-text index",
				"path", child.FilePath, "error", err)
		}
	}

	if err := s.db.WithContext(ctx).Where("doc_id IN ?", ids).
		Delete(&search.Vector{}).Error; err != nil {
		return fmt.Errorf("failed to delete vectors for %s: %w", path, err)
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).
		Delete(&search.Document{}).Error; err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	if err := s.ftsDelete(doc.FilePath); err != nil {
		s.logger.Warn("failed to remove document from full-text index",
			"path", doc.FilePath, "error", err)
	}
	return nil
}

// ListDocuments returns documents matching the filter, ordered by file path.
func (s *Store) ListDocuments(ctx context.Context, filter search.ListFilter) ([]search.Document, error) {
	q := s.db.WithContext(ctx).Order("file_path")
	if filter.DocType != "" {
		q = q.Where("doc_type = ?", filter.DocType)
	}
	if filter.Database != "" {
		q = q.Where(`"database" = ?`, filter.Database)
	}
	var docs []search.Document
	if err := q.Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// UpsertVector stores the embedding for a document id.
func (s *Store) UpsertVector(ctx context.Context, docID int64, embedding []float32) error {
	vec := search.Vector{
		DocID:      docID,
		Embedding:  search.EncodeVector(embedding),
		Dimensions: len(embedding),
		UpdatedAt:  time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding", "dimensions", "updated_at"}),
	}).Create(&vec).Error
	if err != nil {
		return fmt.Errorf("failed to upsert vector for doc %d: %w", docID, err)
	}
	return nil
}

// DeleteVector removes a document's embedding row if present.
func (s *Store) DeleteVector(ctx context.Context, docID int64) error {
	return s.db.WithContext(ctx).Where("doc_id = ?", docID).
		Delete(&search.Vector{}).Error
}

// GetVector returns the decoded embedding or gorm.ErrRecordNotFound.
func (s *Store) GetVector(ctx context.Context, docID int64) ([]float32, error) {
	var vec search.Vector
	if err := s.db.WithContext(ctx).Where("doc_id = ?", docID).First(&vec).Error; err != nil {
		return nil, err
	}
	return search.DecodeVector(vec.Embedding)
}

// UpsertRelationship inserts or overwrites one edge.
func (s *Store) UpsertRelationship(ctx context.Context, rel *search.Relationship) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "database"},
			{Name: "source_schema"}, {Name: "source_table"}, {Name: "source_column"},
			{Name: "target_schema"}, {Name: "target_table"}, {Name: "target_column"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"relationship_type", "hop_count", "join_expression", "confidence",
		}),
	}).Create(rel).Error
	if err != nil {
		return fmt.Errorf("failed to upsert relationship %s.%s -> %s.%s: %w",
			rel.SourceSchema, rel.SourceTable, rel.TargetSchema, rel.TargetTable, err)
	}
	return nil
}

// DeleteRelationshipsForTable removes every edge touching the table on
// either end.
func (s *Store) DeleteRelationshipsForTable(ctx context.Context, database, schema, table string) error {
	return s.db.WithContext(ctx).
		Where(`"database" = ? AND ((source_schema = ? AND source_table = ?) OR (target_schema = ? AND target_table = ?))`,
			database, schema, table, schema, table).
		Delete(&search.Relationship{}).Error
}

// ListRelationships returns all edges for a database, every database when
// empty.
func (s *Store) ListRelationships(ctx context.Context, database string) ([]search.Relationship, error) {
	q := s.db.WithContext(ctx).Order("source_table, target_table, hop_count")
	if database != "" {
		q = q.Where(`"database" = ?`, database)
	}
	var rels []search.Relationship
	if err := q.Find(&rels).Error; err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	return rels, nil
}

// SetMetadata writes one provenance key.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	entry := search.MetadataEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

// GetMetadata returns the value for a key, "" when absent.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var entry search.MetadataEntry
	err := s.db.WithContext(ctx).Where(`"key" = ?`, key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

// RecordKeywords accumulates term frequencies for a source type.
func (s *Store) RecordKeywords(ctx context.Context, terms map[string]int, sourceType string) error {
	for term, freq := range terms {
		entry := search.KeywordEntry{Term: term, SourceType: sourceType, Frequency: freq}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "term"}, {Name: "source_type"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"frequency": gorm.Expr("frequency + ?", freq),
			}),
		}).Create(&entry).Error
		if err != nil {
			return fmt.Errorf("failed to record keyword %q: %w", term, err)
		}
	}
	return nil
}

// Counts summarizes the index.
func (s *Store) Counts(ctx context.Context) (*search.Counts, error) {
	counts := &search.Counts{ByType: map[string]int64{}}
	db := s.db.WithContext(ctx)

	if err := db.Model(&search.Document{}).Count(&counts.Documents).Error; err != nil {
		return nil, err
	}
	type typeCount struct {
		DocType string
		N       int64
	}
	var perType []typeCount
	if err := db.Model(&search.Document{}).
		Select("doc_type, count(*) as n").Group("doc_type").Scan(&perType).Error; err != nil {
		return nil, err
	}
	for _, tc := range perType {
		counts.ByType[tc.DocType] = tc.N
	}
	if err := db.Model(&search.Vector{}).Count(&counts.Vectors).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&search.Relationship{}).Count(&counts.Relationships).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&search.KeywordEntry{}).Count(&counts.Keywords).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

// Transaction runs fn atomically. Full-text mutations are staged in a batch
// and applied after the database transaction commits; bleve itself is not
// transactional, so a crash between commit and batch apply can leave the
// full-text index one run behind. A re-index heals it.
func (s *Store) Transaction(ctx context.Context, fn func(tx search.Store) error) error {
	batch := s.index.NewBatch()
	err := s.db.WithContext(ctx).Transaction(func(txdb *gorm.DB) error {
		tx := &Store{
			db:     txdb,
			index:  s.index,
			path:   s.path,
			logger: s.logger,
			batch:  batch,
		}
		return fn(tx)
	})
	if err != nil {
		return err
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to apply full-text batch: %w", err)
	}
	return nil
}

// SearchFullText runs a match query over the synchronized full-text index
// and returns the matching file paths in score order. Used by verification
// and stats tooling.
func (s *Store) SearchFullText(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultSearch
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit

	result, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	paths := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		paths = append(paths, hit.ID)
	}
	return paths, nil
}

// Optimize compacts storage and refreshes query planner statistics.
func (s *Store) Optimize(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("VACUUM").Error; err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	if err := s.db.WithContext(ctx).Exec("ANALYZE").Error; err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	return nil
}

// Clear drops all rows and recreates the full-text index.
func (s *Store) Clear(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	for _, model := range []interface{}{
		&search.Vector{},
		&search.Relationship{},
		&search.KeywordEntry{},
		&search.MetadataEntry{},
		&search.Document{},
	} {
		if err := db.Where("1 = 1").Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clear index rows: %w", err)
		}
	}

	blevePath := filepath.Join(s.path, bleveDirName)
	if err := s.index.Close(); err != nil {
		return fmt.Errorf("failed to close full-text index: %w", err)
	}
	if err := os.RemoveAll(blevePath); err != nil {
		return fmt.Errorf("failed to remove full-text index: %w", err)
	}
	idx, err := bleve.New(blevePath, createDocumentMapping())
	if err != nil {
		return fmt.Errorf("failed to recreate full-text index: %w", err)
	}
	s.index = idx
	return nil
}

// Close closes both engines.
func (s *Store) Close() error {
	var errs []error
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	if err := s.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close full-text index: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing index store: %v", errs)
	}
	return nil
}
