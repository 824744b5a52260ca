// Package documenter executes the documentation plan: it connects to each
// database, documents every table through the LLM sub-agents, writes
// per-table artifacts, and emits the progress file and manifest the indexer
// consumes.
package documenter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/schemadoc/pkg/catalog"
	"github.com/hashicorp-forge/schemadoc/pkg/llm"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

// Environment variables honored by the documenter.
const (
	EnvDocsRoot    = "DOCS_ROOT"
	EnvProgressDir = "TEST_PROGRESS_DIR"
)

// shutdownGrace is how long an in-flight table may run after a termination
// signal before it is abandoned.
const shutdownGrace = 5 * time.Second

// DefaultDocsRoot resolves the documentation root: DOCS_ROOT or "docs".
func DefaultDocsRoot() string {
	if v := os.Getenv(EnvDocsRoot); v != "" {
		return v
	}
	return "docs"
}

// DefaultProgressDir resolves the progress directory, honoring the
// TEST_PROGRESS_DIR base override.
func DefaultProgressDir() string {
	if v := os.Getenv(EnvProgressDir); v != "" {
		return filepath.Join(v, "progress")
	}
	return "progress"
}

// Documenter orchestrates a full documentation run.
type Documenter struct {
	fs          afero.Fs
	catalogPath string
	progressDir string
	docsRoot    string
	client      llm.Client
	model       string
	tableBatch  int
	columnBatch int
	logger      hclog.Logger
	now         func() time.Time
}

// Option is a functional option for creating a Documenter.
type Option func(*Documenter)

// WithFS sets the filesystem.
func WithFS(fs afero.Fs) Option {
	return func(d *Documenter) { d.fs = fs }
}

// WithCatalogPath sets the catalog file path.
func WithCatalogPath(path string) Option {
	return func(d *Documenter) { d.catalogPath = path }
}

// WithProgressDir sets the progress directory.
func WithProgressDir(dir string) Option {
	return func(d *Documenter) { d.progressDir = dir }
}

// WithDocsRoot sets the documentation root.
func WithDocsRoot(root string) Option {
	return func(d *Documenter) { d.docsRoot = root }
}

// WithLLM sets the LLM client and model.
func WithLLM(client llm.Client, model string) Option {
	return func(d *Documenter) {
		d.client = client
		d.model = model
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(d *Documenter) { d.logger = logger }
}

// WithTableBatchSize sets the bounded table parallelism within a unit.
func WithTableBatchSize(n int) Option {
	return func(d *Documenter) { d.tableBatch = n }
}

// WithColumnBatchSize sets the bounded column parallelism within a table.
func WithColumnBatchSize(n int) Option {
	return func(d *Documenter) { d.columnBatch = n }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Documenter) { d.now = now }
}

// New creates a Documenter.
func New(opts ...Option) (*Documenter, error) {
	d := &Documenter{
		fs:          afero.NewOsFs(),
		progressDir: DefaultProgressDir(),
		docsRoot:    DefaultDocsRoot(),
		tableBatch:  DefaultTableBatchSize,
		columnBatch: DefaultColumnBatchSize,
		logger:      hclog.NewNullLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.catalogPath == "" {
		return nil, fmt.Errorf("catalog path is required")
	}
	return d, nil
}

// Run executes the plan end to end. It succeeds when at least one work unit
// completes; a graceful shutdown still writes a partial manifest and
// succeeds.
func (d *Documenter) Run(ctx context.Context) error {
	logger := d.logger.Named("documenter")
	started := d.now()

	plan, cat, stale, err := LoadPlan(d.fs, d.progressDir, d.catalogPath, logger)
	if err != nil {
		return err
	}
	if stale != nil {
		logger.Warn("continuing with stale plan", "code", stale.Code)
	}

	planHash, err := plan.Hash()
	if err != nil {
		return fmt.Errorf("failed to hash plan: %w", err)
	}

	checkpointer := NewCheckpointer(d.fs, d.progressDir, logger, d.now)
	progress, resumed := d.prepareProgress(checkpointer, plan, planHash)
	if resumed {
		logger.Info("resuming from checkpoint", "plan_hash", planHash[:8])
	}

	writer := NewArtifactWriter(d.fs, d.docsRoot, logger)
	tableDoc := NewTableDocumenter(d.client, d.model, writer, d.columnBatch, logger, d.now)
	tableProc := NewTableProcessor(tableDoc, writer, logger)

	dbConfigs := map[string]catalog.DatabaseConfig{}
	for _, db := range cat.Databases {
		dbConfigs[db.Name] = db
	}

	units := append([]models.WorkUnit(nil), plan.WorkUnits...)
	sort.Slice(units, func(i, j int) bool {
		return units[i].PriorityOrder < units[j].PriorityOrder
	})

	shutdown := false
	for _, unit := range units {
		if ctx.Err() != nil {
			shutdown = true
			break
		}

		up := progress.Unit(unit.ID)
		if up == nil {
			continue
		}
		switch up.Status {
		case models.StatusCompleted:
			continue
		case models.StatusPartial, models.StatusFailed:
			if resumed {
				// Resume never auto-retries a partial or failed unit.
				logger.Info("leaving prior unit result as-is", "unit", unit.ID, "status", up.Status)
				continue
			}
		}

		dbCfg, ok := dbConfigs[unit.Database]
		if !ok {
			up.Status = models.StatusFailed
			up.Errors = append(up.Errors,
				fmt.Sprintf("database %s is not in the current catalog", unit.Database))
			continue
		}

		unitProc := NewWorkUnitProcessor(tableProc, d.tableBatch, logger, d.now, func() {
			checkpointer.Save(progress)
		})
		unitProc.Run(ctx, dbCfg, unit, up)
		checkpointer.Save(progress)
	}
	if ctx.Err() != nil {
		shutdown = true
	}

	progress.Status = progress.OverallStatus()
	if shutdown && progress.Status == models.StatusCompleted {
		progress.Status = models.StatusPartial
	}
	progress.ElapsedSeconds = int64(d.now().Sub(started).Seconds())
	checkpointer.Save(progress)

	manifestGen := NewManifestGenerator(d.fs, d.docsRoot, logger, d.now)
	manifest, err := manifestGen.Generate(plan, progress, planHash)
	if err != nil {
		return err
	}

	logger.Info("documenter finished",
		"status", progress.Status,
		"manifest_status", manifest.Status,
		"files", manifest.TotalFiles,
	)

	if !shutdown && progress.Status == models.StatusFailed && len(units) > 0 {
		return fmt.Errorf("no work unit completed (status %s)", progress.Status)
	}
	return nil
}

// prepareProgress resumes a prior checkpoint when its plan hash matches and
// it was mid-run, otherwise starts fresh. Returns whether this is a resume.
func (d *Documenter) prepareProgress(checkpointer *Checkpointer, plan *models.DocumentationPlan, planHash string) (*models.DocumenterProgress, bool) {
	if prior := checkpointer.Load(); prior != nil &&
		prior.PlanHash == planHash && prior.Status == models.StatusRunning {
		// Carry forward, ensuring every plan unit has an entry.
		for _, unit := range plan.WorkUnits {
			if prior.Unit(unit.ID) == nil {
				prior.WorkUnits = append(prior.WorkUnits, newUnitProgress(unit))
			}
		}
		prior.Status = models.StatusRunning
		return prior, true
	}

	progress := &models.DocumenterProgress{
		Status:    models.StatusRunning,
		PlanHash:  planHash,
		StartedAt: d.now().UTC().Format(time.RFC3339),
	}
	for _, unit := range plan.WorkUnits {
		progress.WorkUnits = append(progress.WorkUnits, newUnitProgress(unit))
	}
	return progress, false
}

func newUnitProgress(unit models.WorkUnit) models.WorkUnitProgress {
	return models.WorkUnitProgress{
		ID:          unit.ID,
		Status:      models.StatusPending,
		TablesTotal: len(unit.Tables),
		Errors:      []string{},
	}
}

// graceContext returns a context that stays alive for the grace period after
// the parent is canceled, letting in-flight tables finish or abandon. The
// returned cancel must be called when the protected work is done.
func graceContext(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-parent.Done():
			timer := time.NewTimer(grace)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
			}
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
