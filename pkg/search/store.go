// Package search defines the index store: the logical schema the indexer
// populates and the retrieval layer reads. The physical engine lives in
// subpackages; sqlite is the default.
package search

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Document types stored in the index.
const (
	DocTypeTable        = "table"
	DocTypeColumn       = "column"
	DocTypeDomain       = "domain"
	DocTypeRelationship = "relationship"
	DocTypeOverview     = "overview"
)

// Relationship types.
const (
	RelForeignKey = "foreign_key"
	RelDocumented = "documented"
	RelComputed   = "computed"
)

// Document is one logical index row. FilePath is the unique key; column
// documents carry a virtual path ({table_path}#{column}) and link to their
// table through ParentDocID.
type Document struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DocType          string    `gorm:"index;not null" json:"doc_type"`
	Database         string    `gorm:"index" json:"database"`
	Schema           string    `json:"schema,omitempty"`
	Table            string    `json:"table,omitempty"`
	Column           string    `json:"column,omitempty"`
	Domain           string    `json:"domain,omitempty"`
	Content          string    `json:"content"`
	Summary          string    `json:"summary"`
	Keywords         []string  `gorm:"serializer:json" json:"keywords"`
	FilePath         string    `gorm:"uniqueIndex;not null" json:"file_path"`
	ContentHash      string    `json:"content_hash"`
	SourceModifiedAt string    `json:"source_modified_at,omitempty"`
	ParentDocID      *int64    `gorm:"index" json:"parent_doc_id,omitempty"`
	IndexedAt        time.Time `json:"indexed_at"`
}

// Vector is the per-document embedding row, keyed 1:1 by document id. The
// embedding is stored as little-endian float32s.
type Vector struct {
	DocID      int64     `gorm:"primaryKey" json:"doc_id"`
	Embedding  []byte    `gorm:"not null" json:"-"`
	Dimensions int       `json:"dimensions"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Relationship is one edge between two tables. Direct foreign keys carry
// hop_count 1; computed multi-hop paths carry the BFS hop count and a
// decayed confidence.
type Relationship struct {
	ID               int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Database         string  `gorm:"uniqueIndex:idx_rel_edge" json:"database"`
	SourceSchema     string  `gorm:"uniqueIndex:idx_rel_edge" json:"source_schema"`
	SourceTable      string  `gorm:"uniqueIndex:idx_rel_edge" json:"source_table"`
	SourceColumn     string  `gorm:"uniqueIndex:idx_rel_edge" json:"source_column"`
	TargetSchema     string  `gorm:"uniqueIndex:idx_rel_edge" json:"target_schema"`
	TargetTable      string  `gorm:"uniqueIndex:idx_rel_edge" json:"target_table"`
	TargetColumn     string  `gorm:"uniqueIndex:idx_rel_edge" json:"target_column"`
	RelationshipType string  `json:"relationship_type"`
	HopCount         int     `json:"hop_count"`
	JoinExpression   string  `json:"join_expression"`
	Confidence       float64 `json:"confidence"`
}

// MetadataEntry is one provenance key/value pair (plan hash, manifest hash,
// last run timestamps).
type MetadataEntry struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeywordEntry caches term frequencies per source type.
type KeywordEntry struct {
	Term       string `gorm:"primaryKey" json:"term"`
	SourceType string `gorm:"primaryKey" json:"source_type"`
	Frequency  int    `json:"frequency"`
}

// ListFilter narrows ListDocuments. Zero values match everything.
type ListFilter struct {
	DocType  string
	Database string
}

// Counts summarizes index contents for stats reporting.
type Counts struct {
	Documents     int64            `json:"documents"`
	ByType        map[string]int64 `json:"by_type"`
	Vectors       int64            `json:"vectors"`
	Relationships int64            `json:"relationships"`
	Keywords      int64            `json:"keywords"`
}

// Store is the index store contract. Deleting a document cascades to its
// vector row and, through parent_doc_id, to its column documents. The
// full-text index over (content, summary, keywords) stays synchronized with
// every document write.
type Store interface {
	// UpsertDocument inserts or overwrites by file_path and returns the
	// stable surrogate id.
	UpsertDocument(ctx context.Context, doc *Document) (int64, error)
	GetDocumentByPath(ctx context.Context, path string) (*Document, error)
	DeleteDocumentByPath(ctx context.Context, path string) error
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error)

	UpsertVector(ctx context.Context, docID int64, embedding []float32) error
	DeleteVector(ctx context.Context, docID int64) error
	GetVector(ctx context.Context, docID int64) ([]float32, error)

	UpsertRelationship(ctx context.Context, rel *Relationship) error
	DeleteRelationshipsForTable(ctx context.Context, database, schema, table string) error
	ListRelationships(ctx context.Context, database string) ([]Relationship, error)

	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)

	RecordKeywords(ctx context.Context, terms map[string]int, sourceType string) error

	Counts(ctx context.Context) (*Counts, error)

	// Transaction runs fn with a store whose writes land atomically.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// Optimize compacts storage and refreshes statistics. Best effort.
	Optimize(ctx context.Context) error

	// Clear drops all index content.
	Clear(ctx context.Context) error

	Close() error
}

// EncodeVector packs an embedding as little-endian float32 bytes.
func EncodeVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// DecodeVector unpacks a little-endian float32 blob.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
