package documenter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/planner"
)

func TestCheckpointerSaveAndLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	c := NewCheckpointer(fs, "progress", nil, now)

	progress := &models.DocumenterProgress{
		Status:   models.StatusRunning,
		PlanHash: "hash",
		WorkUnits: []models.WorkUnitProgress{{
			ID:     "shop_users",
			Status: models.StatusRunning,
			Errors: []string{},
		}},
	}
	c.Save(progress)
	assert.Equal(t, "2026-08-24T12:00:00Z", progress.LastCheckpoint)

	loaded := c.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, "hash", loaded.PlanHash)
	require.Len(t, loaded.WorkUnits, 1)

	raw, err := afero.ReadFile(fs, "progress/work_units/shop_users/progress.json")
	require.NoError(t, err)
	var unit models.WorkUnitProgress
	require.NoError(t, json.Unmarshal(raw, &unit))
	assert.Equal(t, "shop_users", unit.ID)
}

func TestCheckpointerLoadToleratesAbsenceAndCorruption(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := NewCheckpointer(fs, "progress", nil, nil)
	assert.Nil(t, c.Load())

	require.NoError(t, afero.WriteFile(fs, "progress/"+ProgressFileName, []byte("{broken"), 0o644))
	assert.Nil(t, c.Load())
}

func TestLoadPlanStaleWarning(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "catalog.yaml", []byte(testCatalogYAML), 0o644))

	plan := testPlan()
	plan.ConfigHash = models.HashBytes([]byte("an older catalog"))
	raw, err := json.Marshal(plan)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "progress/"+planner.PlanFileName, raw, 0o644))

	loaded, cat, stale, err := LoadPlan(fs, "progress", "catalog.yaml", nil)
	require.NoError(t, err, "a stale plan is a warning, not a failure")
	require.NotNil(t, loaded)
	require.NotNil(t, cat)
	require.NotNil(t, stale)
	assert.Equal(t, agenterr.CodePlanStale, stale.Code)
}

func TestLoadPlanRejectsWrongSchemaVersion(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "catalog.yaml", []byte(testCatalogYAML), 0o644))

	plan := testPlan()
	plan.SchemaVersion = "2.0"
	raw, err := json.Marshal(plan)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "progress/"+planner.PlanFileName, raw, 0o644))

	_, _, _, err = LoadPlan(fs, "progress", "catalog.yaml", nil)
	require.Error(t, err)
	assert.Equal(t, agenterr.CodePlanInvalid, agenterr.CodeOf(err))
}
