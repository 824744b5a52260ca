// Package postgres implements the catalog connector for PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5"

	"github.com/hashicorp-forge/schemadoc/pkg/catalog"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

// Schemas that belong to the engine itself and are elided unless system
// tables are requested.
var systemSchemas = map[string]bool{
	"pg_catalog":         true,
	"information_schema": true,
	"pg_toast":           true,
}

// Connector is a single-session Postgres catalog connector. One connector
// owns at most one connection; work units do not share connectors.
type Connector struct {
	cfg    catalog.DatabaseConfig
	conn   *pgx.Conn
	logger hclog.Logger
}

func init() {
	catalog.RegisterEngine(catalog.EnginePostgres, func(cfg catalog.DatabaseConfig) (catalog.Connector, error) {
		return New(cfg, nil), nil
	})
}

// New creates a disconnected connector for a catalog entry.
func New(cfg catalog.DatabaseConfig, logger hclog.Logger) *Connector {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Connector{
		cfg:    cfg,
		logger: logger.Named("postgres").With("database", cfg.Name),
	}
}

// Connect dials the database with the configured connect timeout.
func (c *Connector) Connect(ctx context.Context) error {
	dsn, err := c.cfg.ConnectionRef.DSN()
	if err != nil {
		return fmt.Errorf("failed to resolve connection: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeouts.Connect())
	defer cancel()

	conn, err := pgx.Connect(dialCtx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.Name, err)
	}
	c.conn = conn
	c.logger.Debug("connected")
	return nil
}

// Disconnect closes the session if open.
func (c *Connector) Disconnect(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(ctx)
	c.conn = nil
	return err
}

func (c *Connector) ensureConnected() error {
	if c.conn == nil {
		return fmt.Errorf("connector for %s is not connected", c.cfg.Name)
	}
	return nil
}

// ListTables enumerates base tables with structural column detail.
func (c *Connector) ListTables(ctx context.Context, opts catalog.ListOptions) ([]models.TableMetadata, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	rows, err := c.conn.Query(ctx, `
		SELECT t.table_schema, t.table_name,
		       COALESCE(c.reltuples, 0)::bigint,
		       COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM information_schema.tables t
		LEFT JOIN pg_catalog.pg_class c
		  ON c.relname = t.table_name
		 AND c.relnamespace = (SELECT oid FROM pg_namespace WHERE nspname = t.table_schema)
		WHERE t.table_type = 'BASE TABLE'
		ORDER BY t.table_schema, t.table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []models.TableMetadata
	for rows.Next() {
		var md models.TableMetadata
		if err := rows.Scan(&md.Schema, &md.Table, &md.RowCountApprox, &md.Comment); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		if c.elide(md.Schema, md.Table, opts) {
			continue
		}
		tables = append(tables, md)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}

	for i := range tables {
		cols, err := c.columns(ctx, tables[i].Schema, tables[i].Table)
		if err != nil {
			return nil, err
		}
		tables[i].Columns = cols
	}
	return tables, nil
}

func (c *Connector) elide(schema, table string, opts catalog.ListOptions) bool {
	if !opts.IncludeSystemTables {
		if systemSchemas[schema] || strings.HasPrefix(schema, "pg_temp") || strings.HasPrefix(schema, "pg_toast") {
			return true
		}
	}
	if len(opts.SchemasInclude) > 0 && !contains(opts.SchemasInclude, schema) {
		return true
	}
	if contains(opts.SchemasExclude, schema) {
		return true
	}
	if contains(opts.TablesExclude, table) || contains(opts.TablesExclude, schema+"."+table) {
		return true
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (c *Connector) columns(ctx context.Context, schema, table string) ([]models.Column, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES',
		       COALESCE(column_default, ''),
		       COALESCE(col_description(format('%I.%I', table_schema, table_name)::regclass::oid, ordinal_position), '')
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []models.Column
	for rows.Next() {
		var col models.Column
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Default, &col.Comment); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// GetTableMetadata returns full metadata for one table.
func (c *Connector) GetTableMetadata(ctx context.Context, schema, table string) (*models.TableMetadata, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	md := &models.TableMetadata{Schema: schema, Table: table}

	cols, err := c.columns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s.%s not found", schema, table)
	}
	md.Columns = cols

	if err := c.conn.QueryRow(ctx, `
		SELECT COALESCE(c.reltuples, 0)::bigint, COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2`,
		schema, table).Scan(&md.RowCountApprox, &md.Comment); err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to query table stats: %w", err)
	}

	pkRows, err := c.conn.Query(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key: %w", err)
	}
	defer pkRows.Close()
	for pkRows.Next() {
		var col string
		if err := pkRows.Scan(&col); err != nil {
			return nil, err
		}
		md.PrimaryKey = append(md.PrimaryKey, col)
	}

	fks, err := c.foreignKeys(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	md.ForeignKeys = fks

	idxRows, err := c.conn.Query(ctx, `
		SELECT i.relname, ix.indisunique,
		       array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum))
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1 AND t.relname = $2
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer idxRows.Close()
	for idxRows.Next() {
		var idx models.Index
		if err := idxRows.Scan(&idx.Name, &idx.Unique, &idx.Columns); err != nil {
			return nil, err
		}
		md.Indexes = append(md.Indexes, idx)
	}

	return md, nil
}

func (c *Connector) foreignKeys(ctx context.Context, schema, table string) ([]models.ForeignKey, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT kcu.column_name, ccu.table_schema, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1 AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []models.ForeignKey
	for rows.Next() {
		var fk models.ForeignKey
		if err := rows.Scan(&fk.Column, &fk.TargetSchema, &fk.TargetTable, &fk.TargetColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// GetRelationships returns all FK edges among the given tables, both
// directions, with hop_count 1 and a single-hop join expression.
func (c *Connector) GetRelationships(ctx context.Context, tables []models.TableMetadata) ([]models.Relationship, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	var rels []models.Relationship
	for _, t := range tables {
		fks, err := c.foreignKeys(ctx, t.Schema, t.Table)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			rels = append(rels, models.Relationship{
				Source:     models.TableRef{Schema: t.Schema, Table: t.Table, Column: fk.Column},
				Target:     models.TableRef{Schema: fk.TargetSchema, Table: fk.TargetTable, Column: fk.TargetColumn},
				Kind:       models.RelationshipForeignKey,
				HopCount:   1,
				Confidence: 1.0,
				JoinExpression: fmt.Sprintf("%s.%s.%s = %s.%s.%s",
					t.Schema, t.Table, fk.Column,
					fk.TargetSchema, fk.TargetTable, fk.TargetColumn),
			})
		}
	}
	return rels, nil
}

// Query runs an ad-hoc read and returns ordered rows. Only used for
// sampling; the caller supplies its own deadline via ctx.
func (c *Connector) Query(ctx context.Context, sql string) ([]catalog.Row, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	rows, err := c.conn.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = string(f.Name)
	}

	var out []catalog.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		out = append(out, catalog.Row{Columns: cols, Values: vals})
	}
	return out, rows.Err()
}

// SampleSQL builds the bounded sampling query for a table.
func SampleSQL(schema, table string, limit int) string {
	ident := pgx.Identifier{schema, table}
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", ident.Sanitize(), limit)
}
