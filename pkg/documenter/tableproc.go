package documenter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/catalog"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

const (
	// sampleRowLimit caps the sampling query.
	sampleRowLimit = 100
	// sampleTimeout is the hard per-query sampling deadline.
	sampleTimeout = 5000 * time.Millisecond
)

// tableResult is the per-table outcome tracked by the work-unit processor.
type tableResult struct {
	table          string
	succeeded      bool
	skipped        bool
	connectionLost bool
	errors         []string
}

// TableProcessor runs the three phases for one table: extract metadata,
// sample rows, infer descriptions and write artifacts.
type TableProcessor struct {
	documenter *TableDocumenter
	writer     *ArtifactWriter
	logger     hclog.Logger

	// sampleTimeout is overridable in tests.
	sampleTimeout time.Duration
}

// NewTableProcessor creates a processor sharing the given sub-agent and
// writer.
func NewTableProcessor(documenter *TableDocumenter, writer *ArtifactWriter, logger hclog.Logger) *TableProcessor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &TableProcessor{
		documenter:    documenter,
		writer:        writer,
		logger:        logger.Named("table-processor"),
		sampleTimeout: sampleTimeout,
	}
}

// Process documents one table. A table whose two artifacts already exist is
// a skipped success. Sampling failures degrade to an empty sample; only
// extraction and artifact-write failures fail the table.
func (p *TableProcessor) Process(ctx context.Context, conn catalog.Connector, database, outputDir string, spec models.TableSpec) tableResult {
	result := tableResult{table: spec.FullyQualifiedName}

	if p.writer.Exists(outputDir, spec.Schema, spec.Table) {
		p.logger.Debug("artifacts already present, skipping table",
			"table", spec.FullyQualifiedName)
		result.succeeded = true
		result.skipped = true
		return result
	}

	md, err := conn.GetTableMetadata(ctx, spec.Schema, spec.Table)
	if err != nil {
		lost := isConnectionLost(err)
		result.connectionLost = lost
		code := agenterr.CodeTableExtractionFailed
		if lost {
			code = agenterr.CodeDBConnectionLost
		}
		ae := agenterr.Recoverable(code,
			"failed to extract metadata for %s", spec.FullyQualifiedName).Wrap(err)
		p.logger.Error("table extraction failed", "table", spec.FullyQualifiedName, "error", err)
		result.errors = append(result.errors, ae.Error())
		return result
	}

	sample, warn := p.sampleRows(ctx, conn, spec.Schema, spec.Table)
	if warn != nil {
		result.errors = append(result.errors, warn.Error())
	}

	summary, err := p.documenter.Document(ctx, database, outputDir, md, sample)
	if err != nil {
		p.logger.Error("table documentation failed",
			"table", spec.FullyQualifiedName, "error", err)
		result.errors = append(result.errors, err.Error())
		return result
	}

	p.logger.Info("table documented",
		"table", spec.FullyQualifiedName,
		"columns", summary.ColumnCount,
		"files", len(summary.OutputFiles),
	)
	result.succeeded = true
	return result
}

// sampleRows runs the capped sampling query under the hard deadline. Any
// failure degrades to an empty sample with a warning; sampling never fails a
// table.
func (p *TableProcessor) sampleRows(ctx context.Context, conn catalog.Connector, schema, table string) ([]catalog.Row, error) {
	queryCtx, cancel := context.WithTimeout(ctx, p.sampleTimeout)
	defer cancel()

	sql := fmt.Sprintf(`SELECT * FROM %q.%q LIMIT %d`, schema, table, sampleRowLimit)
	rows, err := conn.Query(queryCtx, sql)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.logger.Warn("sampling timed out", "table", schema+"."+table)
			return nil, agenterr.Warning(agenterr.CodeSamplingTimeout,
				"sampling %s.%s exceeded %s", schema, table, p.sampleTimeout)
		}
		p.logger.Warn("sampling failed", "table", schema+"."+table, "error", err)
		return nil, agenterr.Warning(agenterr.CodeSamplingFailed,
			"sampling %s.%s failed", schema, table).Wrap(err)
	}
	return rows, nil
}

// isConnectionLost classifies driver errors that indicate the session died.
func isConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection refused",
		"connection reset",
		"connection lost",
		"conn closed",
		"connection closed",
		"broken pipe",
		"unexpected eof",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
