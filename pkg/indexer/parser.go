package indexer

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/search"
)

// Foreign-key annotation shapes accepted inside artifacts. Both arrow glyphs
// occur in the wild.
var (
	fkLinePattern = regexp.MustCompile(
		`^-\s*([A-Za-z0-9_]+)\s*(?:→|->)\s*([A-Za-z0-9_]+)\.([A-Za-z0-9_]+)(?:\.([A-Za-z0-9_]+))?\s*$`)
	fkInlinePattern = regexp.MustCompile(
		`(?i)(?:FK|references)\s*(?:→|->)?\s*([A-Za-z0-9_]+)\.([A-Za-z0-9_]+)(?:\.([A-Za-z0-9_]+)|\(([A-Za-z0-9_]+)\))`)
	edgeLinePattern = regexp.MustCompile(
		`^-\s*([A-Za-z0-9_.]+)\s*(?:→|->)\s*([A-Za-z0-9_.]+)\s*(?::\s*(.+))?$`)
)

// Parser turns manifest files into typed documents, synthesizing one column
// document per table column.
type Parser struct {
	fs       afero.Fs
	docsRoot string
	logger   hclog.Logger
}

// NewParser creates a parser rooted at docsRoot.
func NewParser(fs afero.Fs, docsRoot string, logger hclog.Logger) *Parser {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Parser{fs: fs, docsRoot: docsRoot, logger: logger.Named("parser")}
}

// ParseAll parses every file in the working set. Table documents are keyed by
// the Markdown artifact; the sibling JSON artifact supplements sample values
// and never yields a document of its own unless the Markdown file is absent.
// Per-file failures are collected as warnings, not fatal.
func (p *Parser) ParseAll(ws *WorkingSet) ([]*ParsedDocument, []error) {
	groups := map[string]*tableGroup{}
	var order []WorkingFile
	for _, wf := range ws.Files {
		if wf.Type == models.FileTypeTable {
			key := tablePairKey(wf.Path)
			g := groups[key]
			if g == nil {
				g = &tableGroup{}
				groups[key] = g
				order = append(order, wf)
			}
			if strings.HasSuffix(wf.Path, ".md") {
				g.md = &wf
			} else {
				g.json = &wf
			}
			continue
		}
		order = append(order, wf)
	}

	var docs []*ParsedDocument
	var warnings []error
	for _, wf := range order {
		var doc *ParsedDocument
		var err error
		switch wf.Type {
		case models.FileTypeTable:
			doc, err = p.parseTable(groups[tablePairKey(wf.Path)])
		case models.FileTypeDomain:
			doc, err = p.parseDomain(wf)
		case models.FileTypeRelationship:
			doc, err = p.parseRelationship(wf)
		case models.FileTypeOverview:
			doc, err = p.parseOverview(wf)
		default:
			err = agenterr.Warning(agenterr.CodeFileFailed,
				"unknown file type %q for %s", wf.Type, wf.Path)
		}
		if err != nil {
			p.logger.Warn("file failed to parse, skipping", "path", wf.Path, "error", err)
			warnings = append(warnings, err)
			continue
		}
		docs = append(docs, doc)
		if doc.DocType == search.DocTypeTable {
			docs = append(docs, synthesizeColumns(doc)...)
		}
	}
	return docs, warnings
}

type tableGroup struct {
	md   *WorkingFile
	json *WorkingFile
}

// tablePairKey joins a table's .md and .json artifacts under one key.
func tablePairKey(path string) string {
	return strings.TrimSuffix(strings.TrimSuffix(path, ".md"), ".json")
}

func (p *Parser) read(wf *WorkingFile) ([]byte, error) {
	content, err := afero.ReadFile(p.fs, path.Join(p.docsRoot, wf.Path))
	if err != nil {
		return nil, agenterr.Warning(agenterr.CodeFileFailed,
			"failed to read %s", wf.Path).Wrap(err)
	}
	return content, nil
}

// parseTable parses the Markdown artifact as the table document, then folds
// in sample values and row counts from the JSON sibling. A JSON-only table is
// parsed from the JSON artifact alone.
func (p *Parser) parseTable(g *tableGroup) (*ParsedDocument, error) {
	if g.md == nil && g.json == nil {
		return nil, agenterr.Warning(agenterr.CodeFileFailed, "empty table artifact group")
	}

	var artifact *models.TableArtifact
	if g.json != nil {
		raw, err := p.read(g.json)
		if err == nil {
			var a models.TableArtifact
			if jerr := json.Unmarshal(raw, &a); jerr != nil {
				p.logger.Warn("json artifact is malformed, parsing markdown only",
					"path", g.json.Path, "error", jerr)
			} else {
				artifact = &a
			}
		}
	}

	if g.md == nil {
		if artifact == nil {
			return nil, agenterr.Warning(agenterr.CodeFileFailed,
				"table artifact %s is unreadable", g.json.Path)
		}
		return tableFromArtifact(g.json, artifact), nil
	}

	raw, err := p.read(g.md)
	if err != nil {
		if artifact != nil {
			return tableFromArtifact(g.json, artifact), nil
		}
		return nil, err
	}

	doc, err := parseTableMarkdown(g.md, string(raw))
	if err != nil {
		return nil, err
	}
	if artifact != nil {
		supplementFromArtifact(doc, artifact)
	}
	return doc, nil
}

// frontMatter is the optional YAML block at the top of an artifact.
type frontMatter struct {
	Database    string `mapstructure:"database"`
	Schema      string `mapstructure:"schema"`
	Table       string `mapstructure:"table"`
	Domain      string `mapstructure:"domain"`
	Description string `mapstructure:"description"`
}

// splitFrontMatter strips a leading "---" delimited YAML block, decoding it
// through mapstructure so unknown keys are tolerated.
func splitFrontMatter(content string) (frontMatter, string) {
	var fm frontMatter
	if !strings.HasPrefix(content, "---\n") {
		return fm, content
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm, content
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(rest[:end]), &raw); err != nil {
		return fm, content
	}
	if err := mapstructure.WeakDecode(raw, &fm); err != nil {
		return fm, content
	}
	body := rest[end+len("\n---"):]
	return fm, strings.TrimPrefix(strings.TrimPrefix(body, "\n"), "\n")
}

func parseTableMarkdown(wf *WorkingFile, content string) (*ParsedDocument, error) {
	fm, body := splitFrontMatter(content)

	doc := &ParsedDocument{
		DocType:          search.DocTypeTable,
		Database:         firstNonEmpty(fm.Database, wf.Database),
		Schema:           firstNonEmpty(fm.Schema, wf.Schema),
		Table:            firstNonEmpty(fm.Table, wf.Table),
		Domain:           firstNonEmpty(fm.Domain, wf.Domain),
		FilePath:         wf.Path,
		ContentHash:      wf.ActualHash,
		SourceModifiedAt: wf.ModifiedAt,
		Description:      fm.Description,
		Content:          body,
	}

	lines := strings.Split(body, "\n")
	section := ""
	inColumnRows := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "# "):
			doc.Title = strings.TrimSpace(trimmed[2:])
			if doc.Table == "" {
				doc.Table = doc.Title
			}
		case strings.HasPrefix(trimmed, "## "):
			section = strings.ToLower(strings.TrimSpace(trimmed[3:]))
			inColumnRows = false
		case strings.HasPrefix(trimmed, "**Database:**"):
			doc.Database = firstNonEmpty(doc.Database, metaValue(trimmed, "**Database:**"))
		case strings.HasPrefix(trimmed, "**Schema:**"):
			doc.Schema = firstNonEmpty(metaValue(trimmed, "**Schema:**"), doc.Schema)
		case strings.HasPrefix(trimmed, "**Description:**"):
			if doc.Description == "" {
				doc.Description = metaValue(trimmed, "**Description:**")
			}
		case strings.HasPrefix(trimmed, "**Row Count:**"):
			if n, err := strconv.ParseInt(metaValue(trimmed, "**Row Count:**"), 10, 64); err == nil {
				doc.RowCount = n
			}
		default:
			parseSectionLine(doc, section, trimmed, &inColumnRows)
		}
	}

	if doc.Table == "" {
		return nil, agenterr.Warning(agenterr.CodeFileFailed,
			"table artifact %s has no table name", wf.Path)
	}
	if doc.Description == "" {
		doc.Description = leadingParagraph(body)
	}
	return doc, nil
}

func parseSectionLine(doc *ParsedDocument, section, line string, inColumnRows *bool) {
	switch {
	case section == "columns":
		if !strings.HasPrefix(line, "|") {
			return
		}
		if strings.HasPrefix(line, "|---") || strings.HasPrefix(line, "|--") || strings.Contains(line, "----") {
			*inColumnRows = true
			return
		}
		if !*inColumnRows {
			// Header row.
			return
		}
		cells := splitRow(line)
		if len(cells) < 4 {
			return
		}
		col := ParsedColumn{
			Name:        cells[0],
			Type:        cells[1],
			Nullable:    strings.EqualFold(cells[2], "YES"),
			Description: cells[3],
		}
		doc.Columns = append(doc.Columns, col)
		if m := fkInlinePattern.FindStringSubmatch(col.Description); m != nil {
			targetCol := m[3]
			if targetCol == "" {
				targetCol = m[4]
			}
			doc.ForeignKeys = appendFK(doc.ForeignKeys, ParsedForeignKey{
				SourceColumn: col.Name,
				TargetSchema: m[1],
				TargetTable:  m[2],
				TargetColumn: targetCol,
			})
		}
	case section == "primary key":
		if strings.HasPrefix(line, "- ") {
			doc.PrimaryKey = append(doc.PrimaryKey, strings.TrimSpace(line[2:]))
		}
	case section == "foreign keys" || section == "relationships":
		m := fkLinePattern.FindStringSubmatch(line)
		if m == nil {
			return
		}
		fk := ParsedForeignKey{SourceColumn: m[1]}
		if m[4] != "" {
			fk.TargetSchema, fk.TargetTable, fk.TargetColumn = m[2], m[3], m[4]
		} else {
			// schema omitted: "{table}.{column}" inherits the doc's schema.
			fk.TargetSchema, fk.TargetTable, fk.TargetColumn = doc.Schema, m[2], m[3]
		}
		doc.ForeignKeys = appendFK(doc.ForeignKeys, fk)
	case section == "overview" || section == "description":
		if doc.Description == "" && line != "" && !strings.HasPrefix(line, "*") {
			doc.Description = line
		}
	}
}

// appendFK dedupes on source column; the first shape seen for a column wins.
func appendFK(fks []ParsedForeignKey, fk ParsedForeignKey) []ParsedForeignKey {
	for _, existing := range fks {
		if existing.SourceColumn == fk.SourceColumn {
			return fks
		}
	}
	return append(fks, fk)
}

// splitRow splits a Markdown table row into trimmed, unescaped cells.
func splitRow(line string) []string {
	line = strings.Trim(line, "|")
	placeholder := "\x00"
	line = strings.ReplaceAll(line, `\|`, placeholder)
	parts := strings.Split(line, "|")
	cells := make([]string, 0, len(parts))
	for _, part := range parts {
		cell := strings.TrimSpace(strings.ReplaceAll(part, placeholder, "|"))
		cells = append(cells, cell)
	}
	return cells
}

func metaValue(line, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, prefix))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// leadingParagraph returns the first non-heading, non-meta paragraph line.
func leadingParagraph(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") ||
			strings.HasPrefix(trimmed, "**") || strings.HasPrefix(trimmed, "|") ||
			strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") {
			continue
		}
		return trimmed
	}
	return ""
}

// tableFromArtifact builds the table document straight from the JSON artifact
// when no Markdown sibling survives.
func tableFromArtifact(wf *WorkingFile, a *models.TableArtifact) *ParsedDocument {
	doc := &ParsedDocument{
		DocType:          search.DocTypeTable,
		Database:         firstNonEmpty(a.Database, wf.Database),
		Schema:           firstNonEmpty(a.Schema, wf.Schema),
		Table:            firstNonEmpty(a.Table, wf.Table),
		Domain:           wf.Domain,
		FilePath:         wf.Path,
		ContentHash:      wf.ActualHash,
		SourceModifiedAt: wf.ModifiedAt,
		Title:            a.Table,
		Description:      a.Description,
		RowCount:         a.RowCount,
		PrimaryKey:       a.PrimaryKey,
	}
	for _, c := range a.Columns {
		doc.Columns = append(doc.Columns, ParsedColumn{
			Name:        c.Name,
			Type:        c.Type,
			Nullable:    c.Nullable,
			Description: c.Description,
		})
	}
	for _, fk := range a.ForeignKeys {
		doc.ForeignKeys = append(doc.ForeignKeys, ParsedForeignKey{
			SourceColumn: fk.Column,
			TargetSchema: fk.TargetSchema,
			TargetTable:  fk.TargetTable,
			TargetColumn: fk.TargetColumn,
		})
	}
	supplementSamples(doc, a)
	doc.Content = artifactContent(doc)
	return doc
}

// supplementFromArtifact folds JSON-only data into a Markdown-parsed table.
func supplementFromArtifact(doc *ParsedDocument, a *models.TableArtifact) {
	if doc.RowCount == 0 {
		doc.RowCount = a.RowCount
	}
	if doc.Description == "" {
		doc.Description = a.Description
	}
	if len(doc.PrimaryKey) == 0 {
		doc.PrimaryKey = a.PrimaryKey
	}
	supplementSamples(doc, a)
}

// supplementSamples collects per-column sample strings for keyword pattern
// detection. Samples never enter indexed content.
func supplementSamples(doc *ParsedDocument, a *models.TableArtifact) {
	if len(a.SampleData) == 0 {
		return
	}
	doc.SampleValues = map[string][]string{}
	for _, row := range a.SampleData {
		for col, val := range row {
			if val == nil {
				continue
			}
			doc.SampleValues[col] = append(doc.SampleValues[col], fmt.Sprintf("%v", val))
		}
	}
}

// artifactContent renders a compact text body for a JSON-only table so the
// full-text index still has something to match.
func artifactContent(doc *ParsedDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s.%s\n%s\n", doc.Database, doc.Schema, doc.Table, doc.Description)
	for _, c := range doc.Columns {
		fmt.Fprintf(&b, "%s %s %s\n", c.Name, c.Type, c.Description)
	}
	return b.String()
}

// synthesizeColumns derives one column document per parsed column. The
// virtual path "{table_path}#{column}" gives each a stable identity.
func synthesizeColumns(table *ParsedDocument) []*ParsedDocument {
	docs := make([]*ParsedDocument, 0, len(table.Columns))
	for _, c := range table.Columns {
		desc := c.Description
		if desc == "" {
			desc = fmt.Sprintf("Column %s of type %s.", c.Name, c.Type)
		}
		doc := &ParsedDocument{
			DocType:          search.DocTypeColumn,
			Database:         table.Database,
			Schema:           table.Schema,
			Table:            table.Table,
			Column:           c.Name,
			Domain:           table.Domain,
			FilePath:         table.FilePath + "#" + c.Name,
			ContentHash:      models.HashBytes([]byte(table.ContentHash + "#" + c.Name)),
			SourceModifiedAt: table.SourceModifiedAt,
			Title:            c.Name,
			Description:      desc,
			Content: fmt.Sprintf("Column %s (%s) of table %s.%s. %s",
				c.Name, c.Type, table.Schema, table.Table, desc),
			Columns:         []ParsedColumn{c},
			ParentTablePath: table.FilePath,
		}
		if vals, ok := table.SampleValues[c.Name]; ok {
			doc.SampleValues = map[string][]string{c.Name: vals}
		}
		docs = append(docs, doc)
	}
	return docs
}

// parseDomain extracts the description and the tables the domain document
// lists.
func (p *Parser) parseDomain(wf WorkingFile) (*ParsedDocument, error) {
	raw, err := p.read(&wf)
	if err != nil {
		return nil, err
	}
	fm, body := splitFrontMatter(string(raw))

	doc := &ParsedDocument{
		DocType:          search.DocTypeDomain,
		Database:         firstNonEmpty(fm.Database, wf.Database),
		Domain:           firstNonEmpty(fm.Domain, wf.Domain),
		FilePath:         wf.Path,
		ContentHash:      wf.ActualHash,
		SourceModifiedAt: wf.ModifiedAt,
		Description:      fm.Description,
		Content:          body,
	}

	section := ""
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "# "):
			doc.Title = strings.TrimSpace(trimmed[2:])
		case strings.HasPrefix(trimmed, "## "):
			section = strings.ToLower(strings.TrimSpace(trimmed[3:]))
		case section == "tables" && strings.HasPrefix(trimmed, "- "):
			name := strings.TrimSpace(trimmed[2:])
			// Tolerate "- [orders](...)" link items.
			if strings.HasPrefix(name, "[") {
				if end := strings.Index(name, "]"); end > 0 {
					name = name[1:end]
				}
			}
			doc.DomainTables = append(doc.DomainTables, name)
		}
	}
	if doc.Domain == "" && doc.Title != "" {
		doc.Domain = strings.ToLower(doc.Title)
	}
	if doc.Description == "" {
		doc.Description = leadingParagraph(body)
	}
	return doc, nil
}

// parseRelationship extracts the edges a relationship document names.
func (p *Parser) parseRelationship(wf WorkingFile) (*ParsedDocument, error) {
	raw, err := p.read(&wf)
	if err != nil {
		return nil, err
	}
	fm, body := splitFrontMatter(string(raw))

	doc := &ParsedDocument{
		DocType:          search.DocTypeRelationship,
		Database:         firstNonEmpty(fm.Database, wf.Database),
		Domain:           firstNonEmpty(fm.Domain, wf.Domain),
		FilePath:         wf.Path,
		ContentHash:      wf.ActualHash,
		SourceModifiedAt: wf.ModifiedAt,
		Description:      fm.Description,
		Content:          body,
	}

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			doc.Title = strings.TrimSpace(trimmed[2:])
			continue
		}
		m := edgeLinePattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		edge := ParsedEdge{Kind: strings.TrimSpace(m[3])}
		edge.SourceSchema, edge.SourceTable, edge.SourceColumn = splitEndpoint(m[1])
		edge.TargetSchema, edge.TargetTable, edge.TargetColumn = splitEndpoint(m[2])
		if edge.SourceTable == "" || edge.TargetTable == "" {
			continue
		}
		doc.Edges = append(doc.Edges, edge)
	}

	if doc.Description == "" {
		doc.Description = leadingParagraph(body)
	}
	return doc, nil
}

// splitEndpoint parses "table", "schema.table", or "schema.table.column".
func splitEndpoint(s string) (schema, table, column string) {
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		return "", parts[0], ""
	case 2:
		return parts[0], parts[1], ""
	default:
		return parts[0], parts[1], parts[2]
	}
}

// parseOverview keeps the overview's title and full body.
func (p *Parser) parseOverview(wf WorkingFile) (*ParsedDocument, error) {
	raw, err := p.read(&wf)
	if err != nil {
		return nil, err
	}
	fm, body := splitFrontMatter(string(raw))

	doc := &ParsedDocument{
		DocType:          search.DocTypeOverview,
		Database:         firstNonEmpty(fm.Database, wf.Database),
		FilePath:         wf.Path,
		ContentHash:      wf.ActualHash,
		SourceModifiedAt: wf.ModifiedAt,
		Description:      fm.Description,
		Content:          body,
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			doc.Title = strings.TrimSpace(trimmed[2:])
			break
		}
	}
	if doc.Description == "" {
		doc.Description = leadingParagraph(body)
	}
	return doc, nil
}
