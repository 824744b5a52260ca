package models

// Manifest schema version and status values.
const (
	ManifestSchemaVersion = "1.0"
	ManifestComplete      = "complete"
	ManifestPartial       = "partial"
)

// Indexable file types, shared by the manifest and the index.
const (
	FileTypeTable        = "table"
	FileTypeDomain       = "domain"
	FileTypeOverview     = "overview"
	FileTypeRelationship = "relationship"
)

// IndexableFile is one manifest row: a documentation artifact the indexer
// should consume. Path is relative to the docs root.
type IndexableFile struct {
	Path        string `json:"path"`
	Type        string `json:"type"`
	Database    string `json:"database"`
	Schema      string `json:"schema,omitempty"`
	Table       string `json:"table,omitempty"`
	Domain      string `json:"domain,omitempty"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
	ModifiedAt  string `json:"modified_at"`
}

// ManifestDatabase is the per-database rollup inside the manifest.
type ManifestDatabase struct {
	Name       string `json:"name"`
	FileCount  int    `json:"file_count"`
	TableCount int    `json:"table_count"`
}

// ManifestWorkUnit is the per-work-unit rollup. OutputHash is SHA-256 over
// the unit files' content hashes sorted by path, or ZeroHash for empty units.
type ManifestWorkUnit struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	FileCount  int    `json:"file_count"`
	OutputHash string `json:"output_hash"`
}

// Manifest is the documenter's terminal output and the indexer's
// authoritative input.
type Manifest struct {
	SchemaVersion  string             `json:"schema_version"`
	CompletedAt    string             `json:"completed_at"`
	PlanHash       string             `json:"plan_hash"`
	Status         string             `json:"status"`
	Databases      []ManifestDatabase `json:"databases"`
	WorkUnits      []ManifestWorkUnit `json:"work_units"`
	TotalFiles     int                `json:"total_files"`
	IndexableFiles []IndexableFile    `json:"indexable_files"`
}
