package planner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	catmock "github.com/hashicorp-forge/schemadoc/pkg/catalog/mock"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

const testCatalog = `
databases:
  - name: shop
    engine_kind: mock
planner:
  max_tables_per_database: 100
  domain_inference_enabled: false
  batch_size: 20
`

func writeCatalog(t *testing.T, fs afero.Fs, content string) string {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, "catalog.yaml", []byte(content), 0o644))
	return "catalog.yaml"
}

func shopConnector() *catmock.Connector {
	return catmock.New().WithTables(
		table("public", "users"),
		table("public", "orders",
			models.ForeignKey{Column: "user_id", TargetSchema: "public", TargetTable: "users", TargetColumn: "id"},
		),
		table("public", "audit_log"),
	).WithRelationships(models.Relationship{
		Source:         models.TableRef{Schema: "public", Table: "orders", Column: "user_id"},
		Target:         models.TableRef{Schema: "public", Table: "users", Column: "id"},
		Kind:           models.RelationshipForeignKey,
		HopCount:       1,
		Confidence:     1.0,
		JoinExpression: "public.orders.user_id = public.users.id",
	})
}

func TestRunProducesValidPlan(t *testing.T) {
	catmock.Script("shop", shopConnector())
	defer catmock.Reset()

	fs := afero.NewMemMapFs()
	path := writeCatalog(t, fs, testCatalog)

	plan, err := Run(context.Background(), Options{
		FS:          fs,
		CatalogPath: path,
		Now:         func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	assert.Equal(t, models.PlanSchemaVersion, plan.SchemaVersion)
	assert.Equal(t, "2026-03-01T12:00:00Z", plan.GeneratedAt)
	assert.NoError(t, plan.Validate())

	require.Len(t, plan.Databases, 1)
	assert.Equal(t, models.DatabaseReachable, plan.Databases[0].Status)
	assert.Equal(t, 3, plan.Databases[0].TableCount)
	assert.True(t, models.IsHexHash(plan.Databases[0].SchemaHash))

	// users, orders, logs domains from the rule classifier.
	assert.Equal(t, 3, plan.Summary.TotalWorkUnits)
	assert.Equal(t, 3, plan.Summary.TotalTables)
	assert.Equal(t, 3, plan.Summary.RecommendedParallelism)

	// Core units schedule first.
	first := plan.WorkUnits[0]
	assert.True(t, coreDomains[first.Domain], "core domain first, got %s", first.Domain)
	assert.Equal(t, 1, first.PriorityOrder)

	// The plan file landed atomically.
	raw, err := afero.ReadFile(fs, "progress/documentation-plan.json")
	require.NoError(t, err)
	var onDisk models.DocumentationPlan
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, plan.ConfigHash, onDisk.ConfigHash)
}

func TestRunDryRunSkipsWrite(t *testing.T) {
	catmock.Script("shop", shopConnector())
	defer catmock.Reset()

	fs := afero.NewMemMapFs()
	path := writeCatalog(t, fs, testCatalog)

	_, err := Run(context.Background(), Options{
		FS:          fs,
		CatalogPath: path,
		DryRun:      true,
	})
	require.NoError(t, err)

	exists, err := afero.Exists(fs, "progress/documentation-plan.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunToleratesUnreachableDatabase(t *testing.T) {
	conn := shopConnector()
	conn.ConnectErr = assert.AnError
	catmock.Script("shop", conn)
	defer catmock.Reset()

	fs := afero.NewMemMapFs()
	path := writeCatalog(t, fs, testCatalog)

	plan, err := Run(context.Background(), Options{FS: fs, CatalogPath: path})
	require.NoError(t, err, "an unreachable database must not abort planning")

	require.Len(t, plan.Databases, 1)
	assert.Equal(t, models.DatabaseUnreachable, plan.Databases[0].Status)
	assert.Equal(t, 0, plan.Databases[0].TableCount)
	assert.Empty(t, plan.WorkUnits)
	assert.Equal(t, 0, plan.Summary.ReachableDatabases)
	require.Len(t, plan.Errors, 1)
	assert.Contains(t, plan.Errors[0], agenterr.CodeDBUnreachable)
}

func TestRunReusesFreshPlan(t *testing.T) {
	catmock.Script("shop", shopConnector())
	defer catmock.Reset()

	fs := afero.NewMemMapFs()
	path := writeCatalog(t, fs, testCatalog)

	first, err := Run(context.Background(), Options{FS: fs, CatalogPath: path})
	require.NoError(t, err)

	second, err := Run(context.Background(), Options{FS: fs, CatalogPath: path})
	require.NoError(t, err)
	assert.Equal(t, first.GeneratedAt, second.GeneratedAt, "unchanged schema reuses the plan")
}

func TestRunReplansWhenSchemaChanges(t *testing.T) {
	conn := shopConnector()
	catmock.Script("shop", conn)
	defer catmock.Reset()

	fs := afero.NewMemMapFs()
	path := writeCatalog(t, fs, testCatalog)

	first, err := Run(context.Background(), Options{
		FS:          fs,
		CatalogPath: path,
		Now:         func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	conn.Tables = append(conn.Tables, table("public", "coupons"))

	second, err := Run(context.Background(), Options{
		FS:          fs,
		CatalogPath: path,
		Now:         func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.GeneratedAt, second.GeneratedAt)
	assert.Equal(t, 4, second.Summary.TotalTables)
}

func TestRunReplansWhenConfigChanges(t *testing.T) {
	catmock.Script("shop", shopConnector())
	defer catmock.Reset()

	fs := afero.NewMemMapFs()
	path := writeCatalog(t, fs, testCatalog)

	first, err := Run(context.Background(), Options{
		FS:          fs,
		CatalogPath: path,
		Now:         func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	writeCatalog(t, fs, testCatalog+"\n# tweaked\n")
	second, err := Run(context.Background(), Options{
		FS:          fs,
		CatalogPath: path,
		Now:         func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ConfigHash, second.ConfigHash)
	assert.NotEqual(t, first.GeneratedAt, second.GeneratedAt)
}

func TestRunForceIgnoresExistingPlan(t *testing.T) {
	catmock.Script("shop", shopConnector())
	defer catmock.Reset()

	fs := afero.NewMemMapFs()
	path := writeCatalog(t, fs, testCatalog)

	first, err := Run(context.Background(), Options{
		FS:          fs,
		CatalogPath: path,
		Now:         func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	second, err := Run(context.Background(), Options{
		FS:          fs,
		CatalogPath: path,
		Force:       true,
		Now:         func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.GeneratedAt, second.GeneratedAt)
}

func TestRunAppliesMaxTablesPerDatabase(t *testing.T) {
	catmock.Script("shop", shopConnector())
	defer catmock.Reset()

	fs := afero.NewMemMapFs()
	catalogYAML := `
databases:
  - name: shop
    engine_kind: mock
planner:
  max_tables_per_database: 2
  domain_inference_enabled: false
  batch_size: 20
`
	path := writeCatalog(t, fs, catalogYAML)

	plan, err := Run(context.Background(), Options{FS: fs, CatalogPath: path})
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Summary.TotalTables)
}

func TestRunMissingCatalog(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Run(context.Background(), Options{FS: fs, CatalogPath: "nope.yaml"})
	require.Error(t, err)
	assert.Equal(t, agenterr.CodeConfigNotFound, agenterr.CodeOf(err))
}

func TestComplexityTiers(t *testing.T) {
	cases := []struct {
		databases int
		tables    int
		want      string
	}{
		{1, 1, models.ComplexitySimple},
		{1, 20, models.ComplexitySimple},
		{1, 21, models.ComplexityModerate},
		{2, 10, models.ComplexityModerate},
		{1, 100, models.ComplexityModerate},
		{1, 101, models.ComplexityComplex},
		{3, 400, models.ComplexityComplex},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, complexityFor(tc.databases, tc.tables),
			"databases=%d tables=%d", tc.databases, tc.tables)
	}
}
