package models

// ArtifactColumn is one column row in the per-table JSON artifact. The
// description is LLM-generated (or the deterministic fallback).
type ArtifactColumn struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Nullable    bool   `json:"nullable"`
	Description string `json:"description"`
	Default     string `json:"default,omitempty"`
}

// TableArtifact is the JSON artifact written per documented table. The
// Markdown artifact renders the same data; the JSON form is the one parsed
// for round-trip checks.
type TableArtifact struct {
	Table       string                   `json:"table"`
	Schema      string                   `json:"schema"`
	Database    string                   `json:"database"`
	Description string                   `json:"description"`
	RowCount    int64                    `json:"row_count"`
	Columns     []ArtifactColumn         `json:"columns"`
	PrimaryKey  []string                 `json:"primary_key"`
	ForeignKeys []ForeignKey             `json:"foreign_keys"`
	Indexes     []Index                  `json:"indexes"`
	SampleData  []map[string]interface{} `json:"sample_data"`
	GeneratedAt string                   `json:"generated_at"`
}
