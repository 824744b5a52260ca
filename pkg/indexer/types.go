package indexer

import (
	"github.com/hashicorp-forge/schemadoc/pkg/docid"
	"github.com/hashicorp-forge/schemadoc/pkg/search"
)

// ParsedColumn is one column row parsed from a table artifact.
type ParsedColumn struct {
	Name        string
	Type        string
	Nullable    bool
	Description string
}

// ParsedForeignKey is one outgoing FK edge parsed from a table artifact.
type ParsedForeignKey struct {
	SourceColumn string
	TargetSchema string
	TargetTable  string
	TargetColumn string
}

// ParsedEdge is a fully qualified relationship edge parsed from a
// relationship document.
type ParsedEdge struct {
	SourceSchema string
	SourceTable  string
	SourceColumn string
	TargetSchema string
	TargetTable  string
	TargetColumn string
	Kind         string
}

// ParsedDocument is the typed result of parsing one artifact file, plus the
// column documents synthesized from table artifacts.
type ParsedDocument struct {
	DocType  string
	Database string
	Schema   string
	Table    string
	Column   string
	Domain   string

	FilePath         string
	ContentHash      string
	SourceModifiedAt string

	Title       string
	Description string
	Content     string

	// Table-only fields.
	Columns     []ParsedColumn
	PrimaryKey  []string
	ForeignKeys []ParsedForeignKey
	RowCount    int64

	// SampleValues carries per-column sample strings from the JSON artifact,
	// used for keyword pattern detection only. Never indexed as content.
	SampleValues map[string][]string

	// Relationship-only: edges named by a relationship document.
	Edges []ParsedEdge

	// Domain-only: tables the domain document lists.
	DomainTables []string

	// ParentTablePath links a synthesized column document to its table.
	ParentTablePath string

	Keywords []string
}

// Identity returns the deterministic embedding/lookup key for the document.
func (d *ParsedDocument) Identity() docid.Identity {
	switch d.DocType {
	case search.DocTypeTable:
		return docid.Table(d.Database, d.Schema, d.Table)
	case search.DocTypeColumn:
		return docid.Column(d.Database, d.Schema, d.Table, d.Column)
	case search.DocTypeDomain:
		return docid.Domain(d.Database, d.Domain)
	case search.DocTypeRelationship:
		src, dst := d.relationshipEndpoints()
		return docid.Relationship(d.Database, src, dst)
	case search.DocTypeOverview:
		return docid.Overview(d.Database)
	default:
		return docid.Identity{}
	}
}

func (d *ParsedDocument) relationshipEndpoints() (string, string) {
	if len(d.Edges) > 0 {
		return d.Edges[0].SourceTable, d.Edges[0].TargetTable
	}
	if len(d.ForeignKeys) > 0 {
		return d.Table, d.ForeignKeys[0].TargetTable
	}
	return d.Table, ""
}

// document converts the parsed form to an index store row. The surrogate id
// and parent linkage are filled in during population.
func (d *ParsedDocument) document() *search.Document {
	return &search.Document{
		DocType:          d.DocType,
		Database:         d.Database,
		Schema:           d.Schema,
		Table:            d.Table,
		Column:           d.Column,
		Domain:           d.Domain,
		Content:          d.Content,
		Summary:          d.Description,
		Keywords:         d.Keywords,
		FilePath:         d.FilePath,
		ContentHash:      d.ContentHash,
		SourceModifiedAt: d.SourceModifiedAt,
	}
}
