package catalog

import (
	"context"
	"fmt"

	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

// ListOptions filters table enumeration.
type ListOptions struct {
	SchemasInclude      []string
	SchemasExclude      []string
	TablesExclude       []string
	IncludeSystemTables bool
}

// Row is one sampled row: column names in result order plus typed values.
type Row struct {
	Columns []string
	Values  []interface{}
}

// Map returns the row keyed by column name.
func (r Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.Columns))
	for i, c := range r.Columns {
		if i < len(r.Values) {
			m[c] = r.Values[i]
		}
	}
	return m
}

// Connector is the capability set required of any database driver plug-in.
// Engines that cannot provide a capability (e.g. relationships) return empty
// results with a warning rather than an error.
type Connector interface {
	// Connect opens a session. Implementations honor ctx for the dial.
	Connect(ctx context.Context) error

	// Disconnect releases the session. Safe to call when not connected.
	Disconnect(ctx context.Context) error

	// ListTables enumerates tables with engine-internal schemas elided
	// unless IncludeSystemTables is set. Column detail is structural only
	// (no sampling).
	ListTables(ctx context.Context, opts ListOptions) ([]models.TableMetadata, error)

	// GetTableMetadata returns full metadata for one table: ordered columns,
	// primary key, outgoing foreign keys, and indexes.
	GetTableMetadata(ctx context.Context, schema, table string) (*models.TableMetadata, error)

	// GetRelationships returns all FK edges visible from the session for the
	// given tables, both outgoing and incoming.
	GetRelationships(ctx context.Context, tables []models.TableMetadata) ([]models.Relationship, error)

	// Query runs an ad-hoc read. Used only for row sampling.
	Query(ctx context.Context, sql string) ([]Row, error)
}

// Opener creates a connector for one catalog entry.
type Opener func(cfg DatabaseConfig) (Connector, error)

var openers = map[string]Opener{}

// RegisterEngine registers a connector constructor under an engine kind.
// Engine packages register themselves from init.
func RegisterEngine(kind string, open Opener) {
	openers[kind] = open
}

// Open builds a connector for a catalog entry by engine kind.
func Open(cfg DatabaseConfig) (Connector, error) {
	open, ok := openers[cfg.EngineKind]
	if !ok {
		return nil, fmt.Errorf("no connector registered for engine %q", cfg.EngineKind)
	}
	return open(cfg)
}
