package models

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-multierror"
)

// PlanSchemaVersion is the only plan schema version this build understands.
const PlanSchemaVersion = "1.0"

// Plan complexity classes.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// Database reachability status values used in DatabaseAnalysis.
const (
	DatabaseReachable   = "reachable"
	DatabaseUnreachable = "unreachable"
)

// TableSpec is the per-table contract handed from the planner to the
// documenter. All fields are required; MetadataHash is a 64-char SHA-256
// over the canonical TableMetadata serialization.
type TableSpec struct {
	FullyQualifiedName string `json:"fully_qualified_name"`
	Schema             string `json:"schema"`
	Table              string `json:"table"`
	Domain             string `json:"domain"`
	Priority           int    `json:"priority"`
	ColumnCount        int    `json:"column_count"`
	RowCountApprox     int64  `json:"row_count_approx"`
	IncomingFKCount    int    `json:"incoming_fk_count"`
	OutgoingFKCount    int    `json:"outgoing_fk_count"`
	MetadataHash       string `json:"metadata_hash"`
	ExistingComment    string `json:"existing_comment,omitempty"`
}

// Validate checks that the table entry is complete.
func (t TableSpec) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.FullyQualifiedName, validation.Required),
		validation.Field(&t.Schema, validation.Required),
		validation.Field(&t.Table, validation.Required),
		validation.Field(&t.Domain, validation.Required),
		validation.Field(&t.Priority, validation.Required, validation.Min(1), validation.Max(3)),
		validation.Field(&t.MetadataHash, validation.Required, validation.By(checkHexHash)),
	)
}

func checkHexHash(value interface{}) error {
	s, _ := value.(string)
	if !IsHexHash(s) {
		return fmt.Errorf("must be a 64-char lowercase hex SHA-256")
	}
	return nil
}

// WorkUnit is the smallest independently schedulable slice of documentation
// work: all tables of one domain within one database.
type WorkUnit struct {
	ID               string      `json:"id"`
	Database         string      `json:"database"`
	Domain           string      `json:"domain"`
	Tables           []TableSpec `json:"tables"`
	EstimatedMinutes int         `json:"estimated_minutes"`
	OutputDirectory  string      `json:"output_directory"`
	PriorityOrder    int         `json:"priority_order"`
	DependsOn        []string    `json:"depends_on"`
	ContentHash      string      `json:"content_hash"`
}

// ExpectedID returns the canonical id for a unit's database/domain pair.
func (w *WorkUnit) ExpectedID() string {
	return w.Database + "_" + w.Domain
}

// ExpectedOutputDirectory returns the canonical output subtree for the unit.
func (w *WorkUnit) ExpectedOutputDirectory() string {
	return fmt.Sprintf("databases/%s/domains/%s", w.Database, w.Domain)
}

// Validate checks unit-level invariants: id shape, non-empty tables, domain
// agreement, and per-table completeness.
func (w WorkUnit) Validate() error {
	var result *multierror.Error

	if w.ID != w.ExpectedID() {
		result = multierror.Append(result,
			fmt.Errorf("work unit id %q does not match %q", w.ID, w.ExpectedID()))
	}
	if len(w.Tables) == 0 {
		result = multierror.Append(result, fmt.Errorf("work unit %s has no tables", w.ID))
	}
	for _, t := range w.Tables {
		if t.Domain != w.Domain {
			result = multierror.Append(result,
				fmt.Errorf("table %s has domain %q, unit %s has %q",
					t.FullyQualifiedName, t.Domain, w.ID, w.Domain))
		}
		if err := t.Validate(); err != nil {
			result = multierror.Append(result,
				fmt.Errorf("table %s: %w", t.FullyQualifiedName, err))
		}
	}
	return result.ErrorOrNil()
}

// DatabaseAnalysis is the planner's per-database result.
type DatabaseAnalysis struct {
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	TableCount int            `json:"table_count"`
	Domains    map[string]int `json:"domains"`
	SchemaHash string         `json:"schema_hash,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// PlanSummary carries the derived counters that validation checks against
// the rest of the plan.
type PlanSummary struct {
	TotalDatabases         int `json:"total_databases"`
	ReachableDatabases     int `json:"reachable_databases"`
	TotalTables            int `json:"total_tables"`
	TotalWorkUnits         int `json:"total_work_units"`
	EstimatedTotalMinutes  int `json:"estimated_total_minutes"`
	RecommendedParallelism int `json:"recommended_parallelism"`
}

// DocumentationPlan is the planner's output and the documenter's input.
type DocumentationPlan struct {
	SchemaVersion string             `json:"schema_version"`
	GeneratedAt   string             `json:"generated_at"`
	ConfigHash    string             `json:"config_hash"`
	Complexity    string             `json:"complexity"`
	Databases     []DatabaseAnalysis `json:"databases"`
	WorkUnits     []WorkUnit         `json:"work_units"`
	Summary       PlanSummary        `json:"summary"`
	Errors        []string           `json:"errors"`
}

// Hash returns the plan's content hash, used to key documenter checkpoints.
func (p *DocumentationPlan) Hash() (string, error) {
	return HashCanonicalJSON(p)
}

// Validate enforces the plan-level invariants: schema version, summary
// counters matching derived quantities, acyclic depends_on, work units only
// for reachable databases, and per-unit validity.
func (p *DocumentationPlan) Validate() error {
	var result *multierror.Error

	if err := validation.ValidateStruct(p,
		validation.Field(&p.SchemaVersion, validation.Required, validation.In(PlanSchemaVersion)),
		validation.Field(&p.GeneratedAt, validation.Required),
		validation.Field(&p.Complexity, validation.Required,
			validation.In(ComplexitySimple, ComplexityModerate, ComplexityComplex)),
	); err != nil {
		result = multierror.Append(result, err)
	}

	reachable := map[string]bool{}
	needsUnits := map[string]bool{}
	reachableCount := 0
	for _, db := range p.Databases {
		switch db.Status {
		case DatabaseReachable:
			reachable[db.Name] = true
			needsUnits[db.Name] = db.TableCount > 0
			reachableCount++
		case DatabaseUnreachable:
			// Unreachable databases must not own work units.
		default:
			result = multierror.Append(result,
				fmt.Errorf("database %s has unknown status %q", db.Name, db.Status))
		}
	}

	totalTables := 0
	unitsByDB := map[string]int{}
	ids := map[string]bool{}
	for _, wu := range p.WorkUnits {
		totalTables += len(wu.Tables)
		unitsByDB[wu.Database]++
		if ids[wu.ID] {
			result = multierror.Append(result, fmt.Errorf("duplicate work unit id %s", wu.ID))
		}
		ids[wu.ID] = true
		if !reachable[wu.Database] {
			result = multierror.Append(result,
				fmt.Errorf("work unit %s references unreachable database %s", wu.ID, wu.Database))
		}
		if err := wu.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	for name := range reachable {
		if needsUnits[name] && unitsByDB[name] == 0 {
			result = multierror.Append(result,
				fmt.Errorf("reachable database %s has no work units", name))
		}
	}

	if p.Summary.TotalTables != totalTables {
		result = multierror.Append(result,
			fmt.Errorf("summary.total_tables=%d, derived=%d", p.Summary.TotalTables, totalTables))
	}
	if p.Summary.TotalWorkUnits != len(p.WorkUnits) {
		result = multierror.Append(result,
			fmt.Errorf("summary.total_work_units=%d, derived=%d", p.Summary.TotalWorkUnits, len(p.WorkUnits)))
	}
	if p.Summary.ReachableDatabases != reachableCount {
		result = multierror.Append(result,
			fmt.Errorf("summary.reachable_databases=%d, derived=%d", p.Summary.ReachableDatabases, reachableCount))
	}

	if err := p.checkDependencyCycles(ids); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// checkDependencyCycles runs a coloring DFS over the depends_on graph.
func (p *DocumentationPlan) checkDependencyCycles(known map[string]bool) error {
	deps := make(map[string][]string, len(p.WorkUnits))
	for _, wu := range p.WorkUnits {
		for _, d := range wu.DependsOn {
			if !known[d] {
				return fmt.Errorf("work unit %s depends on unknown unit %s", wu.ID, d)
			}
		}
		deps[wu.ID] = wu.DependsOn
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(deps))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			return fmt.Errorf("dependency cycle involving work unit %s", id)
		case black:
			return nil
		}
		color[id] = grey
		for _, d := range deps[id] {
			if err := visit(d); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for id := range deps {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}
