// Package planner analyzes the configured databases and emits the
// documentation plan consumed by the documenter.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/catalog"
	"github.com/hashicorp-forge/schemadoc/pkg/llm"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/safefile"
)

// PlanFileName is the plan's location under the progress directory.
const PlanFileName = "documentation-plan.json"

// Options configures a planner run.
type Options struct {
	FS          afero.Fs     // filesystem (default: OS)
	CatalogPath string       // catalog file path
	ProgressDir string       // progress directory (default: "progress")
	LLM         llm.Client   // domain inference client (nil disables LLM inference)
	Logger      hclog.Logger // logger (optional)
	Force       bool         // ignore any existing plan
	DryRun      bool         // skip the plan write
	Now         func() time.Time
}

func (o *Options) defaults() {
	if o.FS == nil {
		o.FS = afero.NewOsFs()
	}
	if o.ProgressDir == "" {
		o.ProgressDir = "progress"
	}
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Run executes a full planning pass: load the catalog, short-circuit on a
// still-fresh plan, analyze each database, generate and order work units,
// validate, and atomically write the plan.
func Run(ctx context.Context, opts Options) (*models.DocumentationPlan, error) {
	opts.defaults()
	logger := opts.Logger.Named("planner")

	cat, err := catalog.Load(opts.FS, opts.CatalogPath)
	if err != nil {
		return nil, err
	}

	planPath := filepath.Join(opts.ProgressDir, PlanFileName)
	if !opts.Force {
		if existing := loadExistingPlan(opts.FS, planPath, logger); existing != nil {
			if fresh := isPlanFresh(ctx, cat, existing, logger); fresh {
				logger.Info("existing plan is current, skipping replan",
					"plan", planPath,
				)
				return existing, nil
			}
		}
	}

	inferencer, err := NewDomainInferencer(opts.LLM, cat.Planner.LLMModel, cat.Planner.BatchSize, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build domain inferencer: %w", err)
	}
	if !cat.Planner.DomainInferenceEnabled {
		inferencer.client = nil
	}

	plan := &models.DocumentationPlan{
		SchemaVersion: models.PlanSchemaVersion,
		GeneratedAt:   opts.Now().UTC().Format(time.RFC3339),
		ConfigHash:    cat.ConfigHash,
		Errors:        []string{},
	}

	totalTables := 0
	for _, dbCfg := range cat.Databases {
		analysis, units := analyzeDatabase(ctx, dbCfg, cat.Planner, inferencer, logger)
		plan.Databases = append(plan.Databases, analysis)
		if analysis.Status == models.DatabaseUnreachable {
			plan.Errors = append(plan.Errors,
				fmt.Sprintf("%s: %s", agenterr.CodeDBUnreachable, analysis.Error))
			continue
		}
		totalTables += analysis.TableCount
		plan.WorkUnits = append(plan.WorkUnits, units...)
	}

	orderWorkUnits(plan.WorkUnits)
	plan.Complexity = complexityFor(len(cat.Databases), totalTables)

	reachable := 0
	estimated := 0
	for _, db := range plan.Databases {
		if db.Status == models.DatabaseReachable {
			reachable++
		}
	}
	for _, wu := range plan.WorkUnits {
		estimated += wu.EstimatedMinutes
	}
	plan.Summary = models.PlanSummary{
		TotalDatabases:         len(cat.Databases),
		ReachableDatabases:     reachable,
		TotalTables:            totalTables,
		TotalWorkUnits:         len(plan.WorkUnits),
		EstimatedTotalMinutes:  estimated,
		RecommendedParallelism: recommendedParallelism(len(plan.WorkUnits)),
	}

	if err := plan.Validate(); err != nil {
		return nil, agenterr.Fatal(agenterr.CodeConfigInvalid,
			"generated plan failed validation").Wrap(err)
	}

	if !opts.DryRun {
		if err := writePlan(opts.FS, planPath, plan); err != nil {
			return nil, err
		}
		logger.Info("plan written",
			"path", planPath,
			"work_units", len(plan.WorkUnits),
			"tables", totalTables,
		)
	}
	return plan, nil
}

// analyzeDatabase connects, enumerates, classifies, and specs one database.
// Connection failures produce an unreachable analysis, never an error.
func analyzeDatabase(ctx context.Context, dbCfg catalog.DatabaseConfig, plannerCfg catalog.PlannerConfig, inferencer *DomainInferencer, logger hclog.Logger) (models.DatabaseAnalysis, []models.WorkUnit) {
	log := logger.With("database", dbCfg.Name)

	unreachable := func(err error) models.DatabaseAnalysis {
		log.Warn("database unreachable, continuing", "error", err)
		return models.DatabaseAnalysis{
			Name:       dbCfg.Name,
			Status:     models.DatabaseUnreachable,
			TableCount: 0,
			Domains:    map[string]int{},
			Error:      err.Error(),
		}
	}

	conn, err := catalog.Open(dbCfg)
	if err != nil {
		return unreachable(err), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, dbCfg.Timeouts.Connect())
	err = conn.Connect(connectCtx)
	cancel()
	if err != nil {
		return unreachable(err), nil
	}
	defer conn.Disconnect(context.Background())

	tables, err := conn.ListTables(ctx, catalog.ListOptions{
		SchemasInclude:      dbCfg.SchemasInclude,
		SchemasExclude:      dbCfg.SchemasExclude,
		TablesExclude:       dbCfg.TablesExclude,
		IncludeSystemTables: dbCfg.IncludeSystemTables,
	})
	if err != nil {
		return unreachable(err), nil
	}

	sort.Slice(tables, func(i, j int) bool {
		return tables[i].FullyQualifiedName() < tables[j].FullyQualifiedName()
	})
	if max := plannerCfg.MaxTablesPerDatabase; max > 0 && len(tables) > max {
		log.Info("truncating table list", "total", len(tables), "max", max)
		tables = tables[:max]
	}

	relationships, err := conn.GetRelationships(ctx, tables)
	if err != nil {
		log.Warn("relationships unavailable, continuing without", "error", err)
		relationships = nil
	}
	incoming, outgoing := fkCounts(relationships)

	domains := inferencer.Infer(ctx, dbCfg.Name, tables)

	specs := make([]models.TableSpec, 0, len(tables))
	domainCounts := map[string]int{}
	for _, md := range tables {
		fqn := md.FullyQualifiedName()
		metadataHash, err := models.MetadataHash(&md)
		if err != nil {
			log.Error("failed to hash table metadata", "table", fqn, "error", err)
			continue
		}

		domain := domains[fqn]
		domainCounts[domain]++
		specs = append(specs, models.TableSpec{
			FullyQualifiedName: fqn,
			Schema:             md.Schema,
			Table:              md.Table,
			Domain:             domain,
			Priority:           tablePriority(domain, incoming[fqn]),
			ColumnCount:        len(md.Columns),
			RowCountApprox:     md.RowCountApprox,
			IncomingFKCount:    incoming[fqn],
			OutgoingFKCount:    outgoing[fqn],
			MetadataHash:       metadataHash,
			ExistingComment:    md.Comment,
		})
	}

	analysis := models.DatabaseAnalysis{
		Name:       dbCfg.Name,
		Status:     models.DatabaseReachable,
		TableCount: len(specs),
		Domains:    domainCounts,
		SchemaHash: models.SchemaHash(tables),
	}
	return analysis, buildWorkUnits(dbCfg.Name, specs)
}

// fkCounts tallies incoming and outgoing FK edges per fully qualified table.
func fkCounts(relationships []models.Relationship) (incoming, outgoing map[string]int) {
	incoming = map[string]int{}
	outgoing = map[string]int{}
	for _, rel := range relationships {
		outgoing[rel.Source.Schema+"."+rel.Source.Table]++
		incoming[rel.Target.Schema+"."+rel.Target.Table]++
	}
	return incoming, outgoing
}

// complexityFor classifies the run size.
func complexityFor(databases, tables int) string {
	switch {
	case databases <= 1 && tables <= 20:
		return models.ComplexitySimple
	case tables <= 100:
		return models.ComplexityModerate
	default:
		return models.ComplexityComplex
	}
}

// loadExistingPlan reads a prior plan, tolerating absence and corruption.
func loadExistingPlan(fs afero.Fs, path string, logger hclog.Logger) *models.DocumentationPlan {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read existing plan", "path", path, "error", err)
		}
		return nil
	}

	var plan models.DocumentationPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		logger.Warn("existing plan is corrupt, replanning", "path", path, "error", err)
		return nil
	}
	return &plan
}

// isPlanFresh decides whether an existing plan can be reused: the config
// hash must match and every reachable database's structural schema hash must
// be unchanged. Any doubt (connection failure included) forces a replan.
func isPlanFresh(ctx context.Context, cat *catalog.Catalog, existing *models.DocumentationPlan, logger hclog.Logger) bool {
	if existing.ConfigHash != cat.ConfigHash {
		logger.Info("catalog changed, replanning")
		return false
	}

	byName := map[string]catalog.DatabaseConfig{}
	for _, db := range cat.Databases {
		byName[db.Name] = db
	}

	for _, analysis := range existing.Databases {
		if analysis.Status != models.DatabaseReachable {
			continue
		}
		dbCfg, ok := byName[analysis.Name]
		if !ok {
			return false
		}

		current, err := structuralSchemaHash(ctx, dbCfg)
		if err != nil {
			logger.Warn("staleness check failed, replanning",
				"database", analysis.Name,
				"error", err,
			)
			return false
		}
		if current != analysis.SchemaHash {
			logger.Info("schema changed, replanning", "database", analysis.Name)
			return false
		}
	}
	return true
}

// structuralSchemaHash computes the lightweight tables+columns hash used by
// the staleness check.
func structuralSchemaHash(ctx context.Context, dbCfg catalog.DatabaseConfig) (string, error) {
	conn, err := catalog.Open(dbCfg)
	if err != nil {
		return "", err
	}

	connectCtx, cancel := context.WithTimeout(ctx, dbCfg.Timeouts.Connect())
	err = conn.Connect(connectCtx)
	cancel()
	if err != nil {
		return "", err
	}
	defer conn.Disconnect(context.Background())

	tables, err := conn.ListTables(ctx, catalog.ListOptions{
		SchemasInclude:      dbCfg.SchemasInclude,
		SchemasExclude:      dbCfg.SchemasExclude,
		TablesExclude:       dbCfg.TablesExclude,
		IncludeSystemTables: dbCfg.IncludeSystemTables,
	})
	if err != nil {
		return "", err
	}
	return models.SchemaHash(tables), nil
}

// writePlan persists the plan atomically.
func writePlan(fs afero.Fs, path string, plan *models.DocumentationPlan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create progress directory: %w", err)
	}
	if err := safefile.WriteFile(fs, path, data); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	return nil
}
