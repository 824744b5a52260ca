// Package mock provides an in-memory catalog connector for tests.
// It generates predictable metadata without a live database and can be
// scripted to fail or stall at specific operations.
package mock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp-forge/schemadoc/pkg/catalog"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

// Connector is a scriptable in-memory catalog connector.
type Connector struct {
	Tables        []models.TableMetadata
	Relationships []models.Relationship
	SampleRows    map[string][]catalog.Row // keyed by "schema.table"

	// Failure scripting.
	ConnectErr      error
	MetadataErr     map[string]error // keyed by "schema.table"
	QueryErr        error
	QueryDelay      time.Duration // applied before Query returns; honors ctx
	RelationshipErr error

	connected bool
	// QueryCalls records every SQL string passed to Query.
	QueryCalls []string
}

func init() {
	catalog.RegisterEngine(catalog.EngineMock, func(cfg catalog.DatabaseConfig) (catalog.Connector, error) {
		if c, ok := scripted[cfg.Name]; ok {
			return c, nil
		}
		return New(), nil
	})
}

// scripted holds connectors pre-registered per database name, so code paths
// that go through catalog.Open still reach a scripted instance.
var scripted = map[string]*Connector{}

// Script registers a connector for a database name. Call Reset afterwards.
func Script(name string, c *Connector) {
	scripted[name] = c
}

// Reset clears all scripted connectors.
func Reset() {
	scripted = map[string]*Connector{}
}

// New creates an empty mock connector.
func New() *Connector {
	return &Connector{
		SampleRows:  map[string][]catalog.Row{},
		MetadataErr: map[string]error{},
	}
}

// WithTables sets the table catalog and returns the connector.
func (c *Connector) WithTables(tables ...models.TableMetadata) *Connector {
	c.Tables = tables
	return c
}

// WithRelationships sets the FK edges and returns the connector.
func (c *Connector) WithRelationships(rels ...models.Relationship) *Connector {
	c.Relationships = rels
	return c
}

// WithSample registers sample rows for a table.
func (c *Connector) WithSample(schema, table string, rows []catalog.Row) *Connector {
	c.SampleRows[schema+"."+table] = rows
	return c
}

// Connect succeeds unless ConnectErr is scripted.
func (c *Connector) Connect(ctx context.Context) error {
	if c.ConnectErr != nil {
		return c.ConnectErr
	}
	c.connected = true
	return nil
}

// Disconnect marks the session closed.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.connected = false
	return nil
}

// ListTables applies the same filter semantics as a real connector.
func (c *Connector) ListTables(ctx context.Context, opts catalog.ListOptions) ([]models.TableMetadata, error) {
	if !c.connected {
		return nil, fmt.Errorf("mock connector not connected")
	}
	var out []models.TableMetadata
	for _, t := range c.Tables {
		if len(opts.SchemasInclude) > 0 && !contains(opts.SchemasInclude, t.Schema) {
			continue
		}
		if contains(opts.SchemasExclude, t.Schema) {
			continue
		}
		if contains(opts.TablesExclude, t.Table) || contains(opts.TablesExclude, t.Schema+"."+t.Table) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// GetTableMetadata returns the scripted table or a scripted error.
func (c *Connector) GetTableMetadata(ctx context.Context, schema, table string) (*models.TableMetadata, error) {
	if !c.connected {
		return nil, fmt.Errorf("mock connector not connected")
	}
	key := schema + "." + table
	if err := c.MetadataErr[key]; err != nil {
		return nil, err
	}
	for i := range c.Tables {
		if c.Tables[i].Schema == schema && c.Tables[i].Table == table {
			md := c.Tables[i]
			return &md, nil
		}
	}
	return nil, fmt.Errorf("table %s not found", key)
}

// GetRelationships returns the scripted edge set.
func (c *Connector) GetRelationships(ctx context.Context, tables []models.TableMetadata) ([]models.Relationship, error) {
	if c.RelationshipErr != nil {
		return nil, c.RelationshipErr
	}
	return c.Relationships, nil
}

// Query returns scripted sample rows. QueryDelay simulates a slow database
// and respects context cancellation, which is what the sampling timeout
// tests rely on.
func (c *Connector) Query(ctx context.Context, sql string) ([]catalog.Row, error) {
	c.QueryCalls = append(c.QueryCalls, sql)
	if c.QueryDelay > 0 {
		select {
		case <-time.After(c.QueryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.QueryErr != nil {
		return nil, c.QueryErr
	}
	for key, rows := range c.SampleRows {
		if strings.Contains(sql, key) || strings.Contains(sql, quoted(key)) {
			return rows, nil
		}
	}
	return nil, nil
}

func quoted(key string) string {
	parts := strings.Split(key, ".")
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return strings.Join(parts, ".")
}
