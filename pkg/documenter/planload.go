package documenter

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
	"github.com/hashicorp-forge/schemadoc/pkg/catalog"
	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/planner"
)

// LoadPlan reads and validates the documentation plan and checks it against
// the current catalog. A config-hash mismatch is the DOC_PLAN_STALE warning:
// returned for reporting, processing continues.
func LoadPlan(fs afero.Fs, progressDir, catalogPath string, logger hclog.Logger) (*models.DocumentationPlan, *catalog.Catalog, *agenterr.AgentError, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	planPath := filepath.Join(progressDir, planner.PlanFileName)

	raw, err := afero.ReadFile(fs, planPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, agenterr.Fatal(agenterr.CodePlanNotFound,
				"documentation plan not found at %s", planPath).Wrap(err)
		}
		return nil, nil, nil, agenterr.Fatal(agenterr.CodePlanNotFound,
			"documentation plan unreadable at %s", planPath).Wrap(err)
	}

	var plan models.DocumentationPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, nil, nil, agenterr.Fatal(agenterr.CodePlanInvalid,
			"documentation plan is not valid JSON").Wrap(err)
	}
	if plan.SchemaVersion != models.PlanSchemaVersion {
		return nil, nil, nil, agenterr.Fatal(agenterr.CodePlanInvalid,
			"unsupported plan schema version %q", plan.SchemaVersion)
	}
	if plan.GeneratedAt == "" {
		return nil, nil, nil, agenterr.Fatal(agenterr.CodePlanInvalid,
			"plan is missing generated_at")
	}
	if plan.WorkUnits == nil {
		return nil, nil, nil, agenterr.Fatal(agenterr.CodePlanInvalid,
			"plan is missing work_units")
	}

	cat, err := catalog.Load(fs, catalogPath)
	if err != nil {
		return nil, nil, nil, err
	}

	var stale *agenterr.AgentError
	if plan.ConfigHash != "" && plan.ConfigHash != cat.ConfigHash {
		stale = agenterr.Warning(agenterr.CodePlanStale,
			"plan was generated from a different catalog (plan %s..., current %s...)",
			plan.ConfigHash[:8], cat.ConfigHash[:8])
		logger.Warn("plan is stale, proceeding anyway", "warning", stale.Message)
	}
	return &plan, cat, stale, nil
}
