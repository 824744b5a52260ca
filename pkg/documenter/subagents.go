package documenter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/hashicorp-forge/schemadoc/pkg/catalog"
	"github.com/hashicorp-forge/schemadoc/pkg/llm"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

// DefaultColumnBatchSize bounds parallel column inference within a table.
const DefaultColumnBatchSize = 5

// columnFallback is the deterministic description used when the LLM output
// is unusable or too short.
func columnFallback(name, dataType string) string {
	return fmt.Sprintf("Column %s of type %s.", name, dataType)
}

func tableFallback(schema, table string, columnCount int) string {
	return fmt.Sprintf("Table %s.%s with %d columns.", schema, table, columnCount)
}

// validateDescription applies the output discipline shared by both
// sub-agents: trim, ensure terminal punctuation, clamp long output to two
// sentences, and substitute the fallback for anything under 10 characters.
func validateDescription(s, fallback string) string {
	s = strings.TrimSpace(s)
	if len(s) < 10 {
		return fallback
	}
	if !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		s += "."
	}
	if len(s) > 500 {
		s = truncateSentences(s, 2)
	}
	return s
}

// truncateSentences keeps at most n sentences.
func truncateSentences(s string, n int) string {
	count := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			count++
			if count == n {
				return strings.TrimSpace(s[:i+1])
			}
		}
	}
	return s
}

// ColumnInferencer generates one description string per column. It returns
// only the description; sample values inform the prompt but never the
// return value.
type ColumnInferencer struct {
	client llm.Client
	model  string
	logger hclog.Logger
}

// NewColumnInferencer creates the column sub-agent.
func NewColumnInferencer(client llm.Client, model string, logger hclog.Logger) *ColumnInferencer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ColumnInferencer{
		client: client,
		model:  model,
		logger: logger.Named("column-inferencer"),
	}
}

// Describe returns the validated description for one column. Failures never
// propagate; the deterministic fallback is substituted.
func (a *ColumnInferencer) Describe(ctx context.Context, database string, md *models.TableMetadata, col models.Column, sampleValues []string) string {
	fallback := columnFallback(col.Name, col.Type)
	if a.client == nil {
		return fallback
	}

	prompt, err := renderTemplate(TemplateColumnDescription, map[string]interface{}{
		"Database":        database,
		"Schema":          md.Schema,
		"Table":           md.Table,
		"Column":          col.Name,
		"DataType":        col.Type,
		"Nullable":        col.Nullable,
		"Default":         col.Default,
		"ExistingComment": col.Comment,
		"SampleValues":    strings.Join(sampleValues, ", "),
	})
	if err != nil {
		a.logger.Error("column prompt unavailable", "column", col.Name, "error", err)
		return fallback
	}

	result, err := a.client.Complete(ctx, llm.CompletionRequest{
		Model:       a.model,
		Prompt:      prompt,
		MaxTokens:   256,
		Temperature: 0.2,
	})
	if err != nil {
		if llm.IsParseError(err) {
			a.logger.Warn("column description unusable, using fallback",
				"column", col.Name)
		} else {
			a.logger.Warn("column inference failed, using fallback",
				"column", col.Name, "error", err)
		}
		return fallback
	}
	return validateDescription(result.Content, fallback)
}

// TableSummary is the only object the TableDocumenter returns to its
// caller. It must never carry sample data.
type TableSummary struct {
	Schema      string   `json:"schema"`
	Table       string   `json:"table"`
	Description string   `json:"description"`
	ColumnCount int      `json:"column_count"`
	OutputFiles []string `json:"output_files"`
	TokensUsed  int      `json:"tokens_used"`
}

// TableDocumenter orchestrates column inference, generates the table
// description, writes both artifacts, and returns the summary.
type TableDocumenter struct {
	client      llm.Client
	model       string
	columns     *ColumnInferencer
	writer      *ArtifactWriter
	columnBatch int
	logger      hclog.Logger
	now         func() time.Time
}

// NewTableDocumenter creates the table sub-agent.
func NewTableDocumenter(client llm.Client, model string, writer *ArtifactWriter, columnBatch int, logger hclog.Logger, now func() time.Time) *TableDocumenter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if columnBatch <= 0 {
		columnBatch = DefaultColumnBatchSize
	}
	if now == nil {
		now = time.Now
	}
	return &TableDocumenter{
		client:      client,
		model:       model,
		columns:     NewColumnInferencer(client, model, logger),
		writer:      writer,
		columnBatch: columnBatch,
		logger:      logger.Named("table-documenter"),
		now:         now,
	}
}

// Document produces the Markdown and JSON artifacts for one table and
// returns the quarantined summary. Sample rows feed the prompts and the JSON
// artifact (capped at 5 rows) but never the returned summary; that invariant
// is asserted before returning.
func (a *TableDocumenter) Document(ctx context.Context, database, outputDir string, md *models.TableMetadata, sample []catalog.Row) (*TableSummary, error) {
	descriptions := make([]string, len(md.Columns))
	tokens := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.columnBatch)
	for i := range md.Columns {
		g.Go(func() error {
			col := md.Columns[i]
			descriptions[i] = a.columns.Describe(gctx, database, md, col, sampleColumnValues(sample, col.Name))
			return nil
		})
	}
	// Describe never returns an error; the group only propagates ctx
	// cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tableDesc := a.describeTable(ctx, database, md, sample, &tokens)

	if err := assertQuarantine(tableDesc, sample); err != nil {
		a.logger.Error("sample data leaked into table description, substituting fallback",
			"table", md.FullyQualifiedName(),
			"error", err,
		)
		tableDesc = tableFallback(md.Schema, md.Table, len(md.Columns))
	}
	for i, desc := range descriptions {
		if err := assertQuarantine(desc, sample); err != nil {
			a.logger.Error("sample data leaked into column description, substituting fallback",
				"table", md.FullyQualifiedName(),
				"column", md.Columns[i].Name,
				"error", err,
			)
			descriptions[i] = columnFallback(md.Columns[i].Name, md.Columns[i].Type)
		}
	}

	artifact := buildArtifact(database, md, tableDesc, descriptions, sample, a.now().UTC())
	written, err := a.writer.Write(outputDir, md.Schema, md.Table, artifact)
	if err != nil {
		return nil, err
	}

	return &TableSummary{
		Schema:      md.Schema,
		Table:       md.Table,
		Description: tableDesc,
		ColumnCount: len(md.Columns),
		OutputFiles: written,
		TokensUsed:  tokens,
	}, nil
}

func (a *TableDocumenter) describeTable(ctx context.Context, database string, md *models.TableMetadata, sample []catalog.Row, tokens *int) string {
	fallback := tableFallback(md.Schema, md.Table, len(md.Columns))
	if a.client == nil {
		return fallback
	}

	cols := make([]string, 0, len(md.Columns))
	for _, c := range md.Columns {
		cols = append(cols, fmt.Sprintf("- %s (%s, nullable=%t)", c.Name, c.Type, c.Nullable))
	}
	fks := make([]string, 0, len(md.ForeignKeys))
	for _, fk := range md.ForeignKeys {
		fks = append(fks, fmt.Sprintf("- %s -> %s.%s.%s", fk.Column, fk.TargetSchema, fk.TargetTable, fk.TargetColumn))
	}

	prompt, err := renderTemplate(TemplateTableDescription, map[string]interface{}{
		"Database":        database,
		"Schema":          md.Schema,
		"Table":           md.Table,
		"ExistingComment": md.Comment,
		"RowCount":        md.RowCountApprox,
		"Columns":         strings.Join(cols, "\n"),
		"PrimaryKey":      strings.Join(md.PrimaryKey, ", "),
		"ForeignKeys":     strings.Join(fks, "\n"),
		"SampleData":      renderSampleForPrompt(sample),
	})
	if err != nil {
		a.logger.Error("table prompt unavailable", "table", md.FullyQualifiedName(), "error", err)
		return fallback
	}

	result, err := a.client.Complete(ctx, llm.CompletionRequest{
		Model:       a.model,
		Prompt:      prompt,
		MaxTokens:   512,
		Temperature: 0.2,
	})
	if err != nil {
		a.logger.Warn("table description failed, using fallback",
			"table", md.FullyQualifiedName(), "error", err)
		return fallback
	}
	*tokens += result.Tokens.Total
	return validateDescription(result.Content, fallback)
}

// assertQuarantine verifies that no distinctive sample value appears in text
// returned to the caller. Short values are skipped; they collide with
// ordinary prose too easily.
func assertQuarantine(text string, sample []catalog.Row) error {
	for _, row := range sample {
		for _, v := range row.Values {
			s := stringifySample(v)
			if len(s) < 20 {
				continue
			}
			if strings.Contains(text, s) {
				return fmt.Errorf("returned text contains sample value %q", s[:20]+"...")
			}
		}
	}
	return nil
}

// sampleColumnValues extracts up to 5 truncated values of one column.
func sampleColumnValues(sample []catalog.Row, column string) []string {
	var out []string
	for _, row := range sample {
		if len(out) >= 5 {
			break
		}
		for i, c := range row.Columns {
			if c == column && i < len(row.Values) && row.Values[i] != nil {
				out = append(out, truncateValue(stringifySample(row.Values[i])))
			}
		}
	}
	return out
}

func renderSampleForPrompt(sample []catalog.Row) string {
	if len(sample) == 0 {
		return ""
	}
	limit := len(sample)
	if limit > 5 {
		limit = 5
	}
	lines := make([]string, 0, limit)
	for _, row := range sample[:limit] {
		fields := make([]string, 0, len(row.Columns))
		for i, c := range row.Columns {
			if i < len(row.Values) {
				fields = append(fields, fmt.Sprintf("%s=%s", c, truncateValue(stringifySample(row.Values[i]))))
			}
		}
		lines = append(lines, strings.Join(fields, ", "))
	}
	return strings.Join(lines, "\n")
}

// stringifySample renders a scalar sample value.
func stringifySample(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateValue caps a scalar's string form at 100 characters, the last
// three being "...".
func truncateValue(s string) string {
	if len(s) <= 100 {
		return s
	}
	return s[:97] + "..."
}
