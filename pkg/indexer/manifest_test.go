package indexer

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
)

func writeManifest(t *testing.T, fs afero.Fs, manifest *models.Manifest) {
	t.Helper()
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "docs/documentation-manifest.json", data, 0o644))
}

func validManifest(fs afero.Fs, t *testing.T) *models.Manifest {
	t.Helper()
	content := []byte("# users\n")
	p := "databases/shop/domains/users/tables/public.users.md"
	require.NoError(t, afero.WriteFile(fs, "docs/"+p, content, 0o644))
	return &models.Manifest{
		SchemaVersion: models.ManifestSchemaVersion,
		Status:        models.ManifestComplete,
		PlanHash:      "abc",
		Databases:     []models.ManifestDatabase{{Name: "shop", FileCount: 1, TableCount: 1}},
		TotalFiles:    1,
		IndexableFiles: []models.IndexableFile{{
			Path: p, Type: models.FileTypeTable,
			Database: "shop", Schema: "public", Table: "users", Domain: "users",
			ContentHash: models.HashBytes(content),
		}},
	}
}

func TestLoadManifestMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := LoadManifest(fs, "docs")
	require.Error(t, err)
	assert.Equal(t, agenterr.CodeManifestNotFound, agenterr.CodeOf(err))
}

func TestLoadManifestInvalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.Manifest)
		raw    string
	}{
		{name: "bad json", raw: "{nope"},
		{name: "wrong schema version", mutate: func(m *models.Manifest) { m.SchemaVersion = "9.9" }},
		{name: "failed status", mutate: func(m *models.Manifest) { m.Status = models.StatusFailed }},
		{name: "no files", mutate: func(m *models.Manifest) { m.IndexableFiles = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if tc.raw != "" {
				require.NoError(t, afero.WriteFile(fs, "docs/documentation-manifest.json", []byte(tc.raw), 0o644))
			} else {
				m := validManifest(fs, t)
				tc.mutate(m)
				writeManifest(t, fs, m)
			}
			_, err := LoadManifest(fs, "docs")
			require.Error(t, err)
			assert.Equal(t, agenterr.CodeManifestInvalid, agenterr.CodeOf(err))
		})
	}
}

func TestLoadManifestAcceptsPartial(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := validManifest(fs, t)
	m.Status = models.ManifestPartial
	writeManifest(t, fs, m)

	got, err := LoadManifest(fs, "docs")
	require.NoError(t, err)
	assert.Equal(t, models.ManifestPartial, got.Status)
}

func TestBuildWorkingSetExcludesMissingFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := validManifest(fs, t)
	m.IndexableFiles = append(m.IndexableFiles, models.IndexableFile{
		Path: "databases/shop/domains/users/tables/public.gone.md",
		Type: models.FileTypeTable, Database: "shop", ContentHash: "dead",
	})

	ws, err := BuildWorkingSet(fs, "docs", m, "", nil)
	require.NoError(t, err)
	require.Len(t, ws.Files, 1)
	assert.Equal(t, []string{"databases/shop/domains/users/tables/public.gone.md"}, ws.Missing)
	assert.False(t, ws.Files[0].Changed)
}

func TestBuildWorkingSetFlagsHashDrift(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := validManifest(fs, t)
	require.NoError(t, afero.WriteFile(fs,
		"docs/"+m.IndexableFiles[0].Path, []byte("# users\n\nedited after documenting\n"), 0o644))

	ws, err := BuildWorkingSet(fs, "docs", m, "", nil)
	require.NoError(t, err)
	require.Len(t, ws.Files, 1)
	assert.True(t, ws.Files[0].Changed, "drift is a warning, not an exclusion")
	assert.NotEqual(t, m.IndexableFiles[0].ContentHash, ws.Files[0].ActualHash)
}

func TestBuildWorkingSetWorkUnitFilter(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := validManifest(fs, t)
	other := []byte("# orders\n")
	otherPath := "databases/shop/domains/orders/tables/public.orders.md"
	require.NoError(t, afero.WriteFile(fs, "docs/"+otherPath, other, 0o644))
	m.IndexableFiles = append(m.IndexableFiles, models.IndexableFile{
		Path: otherPath, Type: models.FileTypeTable,
		Database: "shop", Domain: "orders", ContentHash: models.HashBytes(other),
	})

	ws, err := BuildWorkingSet(fs, "docs", m, "shop_users", nil)
	require.NoError(t, err)
	require.Len(t, ws.Files, 1)
	assert.Equal(t, "users", ws.Files[0].Domain)

	_, err = BuildWorkingSet(fs, "docs", m, "warehouse_users", nil)
	require.Error(t, err, "unknown database in the unit id is rejected")
}
