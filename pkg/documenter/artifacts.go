package documenter

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/catalog"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/safefile"
)

// invalidFilenameChars are replaced by "_" in artifact filenames.
const invalidFilenameChars = `/\:*?"<>|`

// SanitizeFilename replaces filesystem-hostile characters, preserving case.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if strings.ContainsRune(invalidFilenameChars, r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ArtifactWriter emits the per-table Markdown and JSON artifacts under the
// docs root. The two writes are independent: one failing does not stop the
// other, and a table succeeds if at least one lands.
type ArtifactWriter struct {
	fs       afero.Fs
	docsRoot string
	logger   hclog.Logger
}

// NewArtifactWriter creates a writer rooted at docsRoot.
func NewArtifactWriter(fs afero.Fs, docsRoot string, logger hclog.Logger) *ArtifactWriter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ArtifactWriter{fs: fs, docsRoot: docsRoot, logger: logger.Named("artifacts")}
}

// TablePaths returns the Markdown and JSON paths for a table under a work
// unit's output directory.
func (w *ArtifactWriter) TablePaths(outputDir, schema, table string) (mdPath, jsonPath string) {
	base := SanitizeFilename(schema + "." + table)
	dir := path.Join(w.docsRoot, outputDir, "tables")
	return path.Join(dir, base+".md"), path.Join(dir, base+".json")
}

// Exists reports whether both artifact files are already present, which lets
// replays skip the table.
func (w *ArtifactWriter) Exists(outputDir, schema, table string) bool {
	mdPath, jsonPath := w.TablePaths(outputDir, schema, table)
	mdOK, err := afero.Exists(w.fs, mdPath)
	if err != nil || !mdOK {
		return false
	}
	jsonOK, err := afero.Exists(w.fs, jsonPath)
	return err == nil && jsonOK
}

// Write renders and writes both artifacts, each atomically with one direct
// retry. It returns the paths that landed; the error is non-nil only when
// neither file could be written.
func (w *ArtifactWriter) Write(outputDir, schema, table string, artifact *models.TableArtifact) ([]string, error) {
	mdPath, jsonPath := w.TablePaths(outputDir, schema, table)

	var written []string
	var failures []error

	if err := safefile.WriteFileWithRetry(w.fs, mdPath, []byte(renderMarkdown(artifact))); err != nil {
		w.logger.Error("markdown artifact write failed", "path", mdPath, "error", err)
		failures = append(failures, agenterr.Recoverable(agenterr.CodeFileWriteFailed,
			"failed to write %s", mdPath).Wrap(err))
	} else {
		written = append(written, mdPath)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		failures = append(failures, fmt.Errorf("failed to encode artifact: %w", err))
	} else if err := safefile.WriteFileWithRetry(w.fs, jsonPath, data); err != nil {
		w.logger.Error("json artifact write failed", "path", jsonPath, "error", err)
		failures = append(failures, agenterr.Recoverable(agenterr.CodeFileWriteFailed,
			"failed to write %s", jsonPath).Wrap(err))
	} else {
		written = append(written, jsonPath)
	}

	if len(written) == 0 {
		return nil, failures[0]
	}
	return written, nil
}

// buildArtifact assembles the JSON artifact. Sample data is capped at 5 rows
// with field-wise value truncation.
func buildArtifact(database string, md *models.TableMetadata, tableDesc string, columnDescs []string, sample []catalog.Row, generatedAt time.Time) *models.TableArtifact {
	cols := make([]models.ArtifactColumn, len(md.Columns))
	for i, c := range md.Columns {
		desc := ""
		if i < len(columnDescs) {
			desc = columnDescs[i]
		}
		cols[i] = models.ArtifactColumn{
			Name:        c.Name,
			Type:        c.Type,
			Nullable:    c.Nullable,
			Description: desc,
			Default:     c.Default,
		}
	}

	limit := len(sample)
	if limit > 5 {
		limit = 5
	}
	sampleData := make([]map[string]interface{}, 0, limit)
	for _, row := range sample[:limit] {
		m := map[string]interface{}{}
		for i, c := range row.Columns {
			if i >= len(row.Values) {
				continue
			}
			if row.Values[i] == nil {
				m[c] = nil
				continue
			}
			m[c] = truncateValue(stringifySample(row.Values[i]))
		}
		sampleData = append(sampleData, m)
	}

	pk := md.PrimaryKey
	if pk == nil {
		pk = []string{}
	}
	fks := md.ForeignKeys
	if fks == nil {
		fks = []models.ForeignKey{}
	}
	idx := md.Indexes
	if idx == nil {
		idx = []models.Index{}
	}

	return &models.TableArtifact{
		Table:       md.Table,
		Schema:      md.Schema,
		Database:    database,
		Description: tableDesc,
		RowCount:    md.RowCountApprox,
		Columns:     cols,
		PrimaryKey:  pk,
		ForeignKeys: fks,
		Indexes:     idx,
		SampleData:  sampleData,
		GeneratedAt: generatedAt.Format(time.RFC3339),
	}
}

// renderMarkdown renders the Markdown artifact. The section shapes are
// load-bearing: the indexer parses them back.
func renderMarkdown(a *models.TableArtifact) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", a.Table)
	fmt.Fprintf(&b, "**Database:** %s\n", a.Database)
	fmt.Fprintf(&b, "**Schema:** %s\n", a.Schema)
	fmt.Fprintf(&b, "**Description:** %s\n", a.Description)
	if a.RowCount > 0 {
		fmt.Fprintf(&b, "**Row Count:** %d\n", a.RowCount)
	}
	b.WriteString("\n## Columns\n\n")
	b.WriteString("| Column | Type | Nullable | Description |\n")
	b.WriteString("|--------|------|----------|-------------|\n")
	for _, c := range a.Columns {
		nullable := "NO"
		if c.Nullable {
			nullable = "YES"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			c.Name, c.Type, nullable, escapeCell(c.Description))
	}

	if len(a.PrimaryKey) > 0 {
		b.WriteString("\n## Primary Key\n\n")
		for _, k := range a.PrimaryKey {
			fmt.Fprintf(&b, "- %s\n", k)
		}
	}

	if len(a.ForeignKeys) > 0 {
		b.WriteString("\n## Foreign Keys\n\n")
		for _, fk := range a.ForeignKeys {
			fmt.Fprintf(&b, "- %s → %s.%s.%s\n",
				fk.Column, fk.TargetSchema, fk.TargetTable, fk.TargetColumn)
		}
	}

	if len(a.Indexes) > 0 {
		b.WriteString("\n## Indexes\n\n")
		for _, idx := range a.Indexes {
			unique := ""
			if idx.Unique {
				unique = " (unique)"
			}
			fmt.Fprintf(&b, "- %s: %s%s\n", idx.Name, strings.Join(idx.Columns, ", "), unique)
		}
	}

	if len(a.SampleData) > 0 {
		b.WriteString("\n## Sample Data\n\n")
		fmt.Fprintf(&b, "%d sample rows are available in the JSON artifact.\n", len(a.SampleData))
	}

	fmt.Fprintf(&b, "\n*Generated at: %s*\n", a.GeneratedAt)
	return b.String()
}

// escapeCell keeps descriptions from breaking the Markdown table.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
