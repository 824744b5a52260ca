package models

// Column describes a single column as reported by a catalog connector.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// ForeignKey is an outgoing foreign-key edge on a table.
type ForeignKey struct {
	Column       string `json:"column"`
	TargetSchema string `json:"target_schema"`
	TargetTable  string `json:"target_table"`
	TargetColumn string `json:"target_column"`
}

// Index describes an index on a table (name plus covered columns).
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// TableMetadata is the full description of a table as seen through a live
// database session. It only exists for the duration of planner analysis and
// documenter extraction; derived hashes persist in the plan.
type TableMetadata struct {
	Schema         string       `json:"schema"`
	Table          string       `json:"table"`
	Columns        []Column     `json:"columns"`
	PrimaryKey     []string     `json:"primary_key"`
	ForeignKeys    []ForeignKey `json:"foreign_keys"`
	Indexes        []Index      `json:"indexes"`
	RowCountApprox int64        `json:"row_count_approx"`
	Comment        string       `json:"comment,omitempty"`
}

// FullyQualifiedName returns "schema.table".
func (m *TableMetadata) FullyQualifiedName() string {
	return m.Schema + "." + m.Table
}

// Relationship kinds.
const (
	RelationshipForeignKey = "foreign_key"
	RelationshipDocumented = "documented"
	RelationshipComputed   = "computed"
)

// TableRef identifies one side of a relationship.
type TableRef struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Column string `json:"column"`
}

// Relationship is a join edge between two columns. HopCount is 1 for direct
// foreign-key or documented edges, >= 2 for computed multi-hop paths.
type Relationship struct {
	Source         TableRef `json:"source"`
	Target         TableRef `json:"target"`
	Kind           string   `json:"kind"`
	HopCount       int      `json:"hop_count"`
	Confidence     float64  `json:"confidence"`
	JoinExpression string   `json:"join_expression"`
}
