package documenter

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

func TestClassifyFile(t *testing.T) {
	tests := []struct {
		path     string
		wantType string
		database string
		schema   string
		table    string
		domain   string
	}{
		{
			path:     "databases/shop/domains/users/tables/public.users.md",
			wantType: models.FileTypeTable,
			database: "shop", schema: "public", table: "users", domain: "users",
		},
		{
			path:     "databases/shop/domains/users/tables/public.users.json",
			wantType: models.FileTypeTable,
			database: "shop", schema: "public", table: "users", domain: "users",
		},
		{
			path:     "databases/shop/overview.md",
			wantType: models.FileTypeOverview,
			database: "shop",
		},
		{
			path:     "databases/shop/domains/users/relationships.md",
			wantType: models.FileTypeRelationship,
			database: "shop", domain: "users",
		},
		{
			path:     "databases/shop/domains/users/README.md",
			wantType: models.FileTypeDomain,
			database: "shop", domain: "users",
		},
		{
			path:     "notes.md",
			wantType: models.FileTypeDomain,
		},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			f := models.IndexableFile{Path: tt.path}
			classifyFile(&f)
			assert.Equal(t, tt.wantType, f.Type)
			assert.Equal(t, tt.database, f.Database)
			assert.Equal(t, tt.schema, f.Schema)
			assert.Equal(t, tt.table, f.Table)
			assert.Equal(t, tt.domain, f.Domain)
		})
	}
}

func manifestFixture(t *testing.T) (afero.Fs, *models.DocumentationPlan, *models.DocumenterProgress) {
	t.Helper()
	fs := afero.NewMemMapFs()
	write := func(path, content string) {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	write("docs/databases/shop/domains/users/tables/public.users.md", "# users")
	write("docs/databases/shop/domains/users/tables/public.users.json", `{"table":"users"}`)
	write("docs/databases/shop/domains/users/relationships.md", "users -> orders")
	write("docs/databases/shop/overview.md", "# shop")
	// Excluded: temp files, the manifest itself, and non-doc extensions.
	write("docs/databases/shop/domains/users/tables/public.users.md.tmp", "partial")
	write("docs/"+ManifestFileName, "{}")
	write("docs/databases/shop/raw.csv", "a,b")

	plan := &models.DocumentationPlan{
		SchemaVersion: models.PlanSchemaVersion,
		WorkUnits: []models.WorkUnit{{
			ID:              "shop_users",
			Database:        "shop",
			Domain:          "users",
			OutputDirectory: "databases/shop/domains/users",
		}},
	}
	progress := &models.DocumenterProgress{
		WorkUnits: []models.WorkUnitProgress{{
			ID:     "shop_users",
			Status: models.StatusCompleted,
		}},
	}
	return fs, plan, progress
}

func TestManifestGenerate(t *testing.T) {
	fs, plan, progress := manifestFixture(t)
	now := func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }

	gen := NewManifestGenerator(fs, "docs", nil, now)
	manifest, err := gen.Generate(plan, progress, "abc123")
	require.NoError(t, err)

	assert.Equal(t, models.ManifestSchemaVersion, manifest.SchemaVersion)
	assert.Equal(t, "2026-08-24T12:00:00Z", manifest.CompletedAt)
	assert.Equal(t, "abc123", manifest.PlanHash)
	assert.Equal(t, models.ManifestComplete, manifest.Status)
	assert.Equal(t, 4, manifest.TotalFiles)

	paths := make([]string, 0, len(manifest.IndexableFiles))
	for _, f := range manifest.IndexableFiles {
		paths = append(paths, f.Path)
		assert.True(t, models.IsHexHash(f.ContentHash))
		assert.NotZero(t, f.SizeBytes)
	}
	assert.NotContains(t, paths, ManifestFileName)
	assert.NotContains(t, paths, "databases/shop/domains/users/tables/public.users.md.tmp")

	require.Len(t, manifest.Databases, 1)
	assert.Equal(t, "shop", manifest.Databases[0].Name)
	assert.Equal(t, 4, manifest.Databases[0].FileCount)
	assert.Equal(t, 1, manifest.Databases[0].TableCount,
		"md and json of one table count once")

	require.Len(t, manifest.WorkUnits, 1)
	wu := manifest.WorkUnits[0]
	assert.Equal(t, "shop_users", wu.ID)
	assert.Equal(t, models.StatusCompleted, wu.Status)
	assert.Equal(t, 3, wu.FileCount, "overview.md is outside the unit subtree")
	assert.NotEqual(t, models.ZeroHash, wu.OutputHash)

	// The manifest landed on disk.
	exists, err := afero.Exists(fs, "docs/"+ManifestFileName)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestManifestPartialStatus(t *testing.T) {
	fs, plan, progress := manifestFixture(t)
	progress.WorkUnits[0].Status = models.StatusPartial

	gen := NewManifestGenerator(fs, "docs", nil, nil)
	manifest, err := gen.Generate(plan, progress, "abc123")
	require.NoError(t, err)
	assert.Equal(t, models.ManifestPartial, manifest.Status)
}

func TestManifestEmptyDocsRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	plan := &models.DocumentationPlan{WorkUnits: []models.WorkUnit{{
		ID: "shop_users", OutputDirectory: "databases/shop/domains/users",
	}}}
	progress := &models.DocumenterProgress{WorkUnits: []models.WorkUnitProgress{{
		ID: "shop_users", Status: models.StatusFailed,
	}}}

	gen := NewManifestGenerator(fs, "docs", nil, nil)
	manifest, err := gen.Generate(plan, progress, "h")
	require.NoError(t, err)
	assert.Equal(t, models.ManifestPartial, manifest.Status)
	assert.Zero(t, manifest.TotalFiles)
	require.Len(t, manifest.WorkUnits, 1)
	assert.Equal(t, models.ZeroHash, manifest.WorkUnits[0].OutputHash)
}
