package documenter

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/catalog"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

// DefaultTableBatchSize bounds parallel table processing within a unit.
const DefaultTableBatchSize = 3

// checkpointEveryTables is how often progress is persisted mid-unit.
const checkpointEveryTables = 10

// WorkUnitProcessor executes one work unit over a single database
// connection. Tables run in bounded parallel batches; a connection-lost
// error aborts the unit.
type WorkUnitProcessor struct {
	tables     *TableProcessor
	tableBatch int
	logger     hclog.Logger
	now        func() time.Time

	// checkpoint is invoked every checkpointEveryTables completed tables.
	checkpoint func()
}

// NewWorkUnitProcessor creates a unit processor.
func NewWorkUnitProcessor(tables *TableProcessor, tableBatch int, logger hclog.Logger, now func() time.Time, checkpoint func()) *WorkUnitProcessor {
	if tableBatch <= 0 {
		tableBatch = DefaultTableBatchSize
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if now == nil {
		now = time.Now
	}
	if checkpoint == nil {
		checkpoint = func() {}
	}
	return &WorkUnitProcessor{
		tables:     tables,
		tableBatch: tableBatch,
		logger:     logger.Named("work-unit"),
		now:        now,
		checkpoint: checkpoint,
	}
}

// Run processes the unit and fills in its progress entry. The returned error
// is nil even for failed units; unit failures are recorded, not raised.
func (p *WorkUnitProcessor) Run(ctx context.Context, dbCfg catalog.DatabaseConfig, unit models.WorkUnit, progress *models.WorkUnitProgress) {
	log := p.logger.With("unit", unit.ID)
	progress.Status = models.StatusRunning
	progress.TablesTotal = len(unit.Tables)
	progress.StartedAt = p.now().UTC().Format(time.RFC3339)
	if progress.Errors == nil {
		progress.Errors = []string{}
	}

	defer func() {
		progress.CurrentTable = ""
		progress.FinishedAt = p.now().UTC().Format(time.RFC3339)
	}()

	conn, err := catalog.Open(dbCfg)
	if err == nil {
		connectCtx, cancel := context.WithTimeout(ctx, dbCfg.Timeouts.Connect())
		err = conn.Connect(connectCtx)
		cancel()
	}
	if err != nil {
		log.Error("unit connection failed", "error", err)
		ae := agenterr.Recoverable(agenterr.CodeWorkUnitFailed,
			"work unit %s could not connect to %s", unit.ID, unit.Database).Wrap(err)
		progress.Errors = append(progress.Errors, ae.Error())
		progress.TablesFailed = len(unit.Tables)
		progress.Status = models.StatusFailed
		return
	}
	defer conn.Disconnect(context.Background())

	// In-flight tables get a short grace after a shutdown request; new
	// tables are not started once the parent context is canceled.
	tableCtx, cancelGrace := graceContext(ctx, shutdownGrace)
	defer cancelGrace()

	connectionLost := false
	sinceCheckpoint := 0

	for start := 0; start < len(unit.Tables) && !connectionLost; start += p.tableBatch {
		if ctx.Err() != nil {
			log.Info("shutdown requested, stopping unit mid-flight")
			break
		}

		end := start + p.tableBatch
		if end > len(unit.Tables) {
			end = len(unit.Tables)
		}
		batch := unit.Tables[start:end]
		progress.CurrentTable = batch[0].FullyQualifiedName

		results := make([]tableResult, len(batch))
		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = p.tables.Process(tableCtx, conn, unit.Database, unit.OutputDirectory, batch[i])
			}()
		}
		wg.Wait()

		for _, r := range results {
			switch {
			case r.skipped:
				progress.TablesSkipped++
				progress.TablesCompleted++
			case r.succeeded:
				progress.TablesCompleted++
			default:
				progress.TablesFailed++
			}
			progress.Errors = append(progress.Errors, r.errors...)
			if r.connectionLost {
				connectionLost = true
			}
			sinceCheckpoint++
		}

		if sinceCheckpoint >= checkpointEveryTables {
			sinceCheckpoint = 0
			p.checkpoint()
		}
	}

	progress.Status = unitStatus(progress, connectionLost)
	if connectionLost {
		ae := agenterr.Recoverable(agenterr.CodeDBConnectionLost,
			"work unit %s aborted after losing the database connection", unit.ID)
		progress.Errors = append(progress.Errors, ae.Error())
	}

	log.Info("work unit finished",
		"status", progress.Status,
		"completed", progress.TablesCompleted,
		"failed", progress.TablesFailed,
		"skipped", progress.TablesSkipped,
	)
}

// unitStatus derives the unit status: all succeeded is completed, a mix is
// partial, none is failed. Connection loss forces at best partial. Tables
// never attempted (shutdown, abort) count as neither completed nor failed;
// any gap below the total also caps the unit at partial.
func unitStatus(progress *models.WorkUnitProgress, connectionLost bool) string {
	attempted := progress.TablesCompleted + progress.TablesFailed
	switch {
	case progress.TablesTotal == 0:
		return models.StatusCompleted
	case progress.TablesCompleted == 0:
		return models.StatusFailed
	case connectionLost, progress.TablesFailed > 0, attempted < progress.TablesTotal:
		return models.StatusPartial
	default:
		return models.StatusCompleted
	}
}
