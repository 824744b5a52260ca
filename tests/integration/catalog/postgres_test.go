//go:build integration
// +build integration

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hashicorp-forge/schemadoc/pkg/catalog"
	pgconnector "github.com/hashicorp-forge/schemadoc/pkg/catalog/postgres"
)

const seedSQL = `
CREATE TABLE users (
    id bigserial PRIMARY KEY,
    email varchar(255) NOT NULL UNIQUE,
    created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE orders (
    id bigserial PRIMARY KEY,
    user_id bigint NOT NULL REFERENCES users (id),
    total numeric(10,2) NOT NULL,
    placed_at timestamptz
);

CREATE INDEX idx_orders_placed ON orders (placed_at);

INSERT INTO users (email) VALUES ('a@example.com'), ('b@example.com');
INSERT INTO orders (user_id, total) VALUES (1, 19.99), (2, 5.00), (1, 7.50);

ANALYZE;
`

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("shop"),
		tcpostgres.WithUsername("app"),
		tcpostgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	seed, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer seed.Close(ctx)
	_, err = seed.Exec(ctx, seedSQL)
	require.NoError(t, err)

	return dsn
}

func TestPostgresConnector(t *testing.T) {
	dsn := startPostgres(t)
	t.Setenv("SHOP_DSN", dsn)
	ctx := context.Background()

	conn, err := catalog.Open(catalog.DatabaseConfig{
		Name:          "shop",
		EngineKind:    catalog.EnginePostgres,
		ConnectionRef: catalog.ConnectionRef{EnvVar: "SHOP_DSN"},
	})
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx))
	t.Cleanup(func() { _ = conn.Disconnect(context.Background()) })

	t.Run("list tables", func(t *testing.T) {
		tables, err := conn.ListTables(ctx, catalog.ListOptions{})
		require.NoError(t, err)

		names := map[string]bool{}
		for _, tb := range tables {
			names[tb.Schema+"."+tb.Table] = true
		}
		assert.True(t, names["public.users"])
		assert.True(t, names["public.orders"])
		assert.False(t, names["pg_catalog.pg_class"], "system schemas are excluded")
	})

	t.Run("table metadata", func(t *testing.T) {
		md, err := conn.GetTableMetadata(ctx, "public", "orders")
		require.NoError(t, err)

		cols := map[string]bool{}
		for _, c := range md.Columns {
			cols[c.Name] = true
		}
		assert.True(t, cols["id"] && cols["user_id"] && cols["total"] && cols["placed_at"])
		assert.Equal(t, []string{"id"}, md.PrimaryKey)

		require.Len(t, md.ForeignKeys, 1)
		assert.Equal(t, "user_id", md.ForeignKeys[0].Column)
		assert.Equal(t, "public", md.ForeignKeys[0].TargetSchema)
		assert.Equal(t, "users", md.ForeignKeys[0].TargetTable)
		assert.Equal(t, "id", md.ForeignKeys[0].TargetColumn)

		idxNames := map[string]bool{}
		for _, idx := range md.Indexes {
			idxNames[idx.Name] = true
		}
		assert.True(t, idxNames["idx_orders_placed"])
	})

	t.Run("nullable and defaults", func(t *testing.T) {
		md, err := conn.GetTableMetadata(ctx, "public", "orders")
		require.NoError(t, err)
		byName := map[string]bool{}
		for _, c := range md.Columns {
			byName[c.Name] = c.Nullable
		}
		assert.False(t, byName["user_id"])
		assert.True(t, byName["placed_at"])
	})

	t.Run("sampling query", func(t *testing.T) {
		rows, err := conn.Query(ctx, pgconnector.SampleSQL("public", "orders", 100))
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Contains(t, rows[0].Columns, "total")
	})

	t.Run("relationships", func(t *testing.T) {
		tables, err := conn.ListTables(ctx, catalog.ListOptions{})
		require.NoError(t, err)
		rels, err := conn.GetRelationships(ctx, tables)
		require.NoError(t, err)

		found := false
		for _, r := range rels {
			if r.Source.Table == "orders" && r.Target.Table == "users" {
				found = true
			}
		}
		assert.True(t, found, "the orders FK surfaces as a relationship")
	})
}
