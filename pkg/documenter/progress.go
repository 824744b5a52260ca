package documenter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/safefile"
)

// ProgressFileName is the documenter checkpoint under the progress
// directory.
const ProgressFileName = "documenter-progress.json"

// Checkpointer persists documenter progress atomically. Write failures are
// logged and swallowed: checkpoints must never block forward progress.
type Checkpointer struct {
	fs          afero.Fs
	progressDir string
	logger      hclog.Logger
	now         func() time.Time
}

// NewCheckpointer creates a checkpointer rooted at the progress directory.
func NewCheckpointer(fs afero.Fs, progressDir string, logger hclog.Logger, now func() time.Time) *Checkpointer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if now == nil {
		now = time.Now
	}
	return &Checkpointer{fs: fs, progressDir: progressDir, logger: logger.Named("checkpoint"), now: now}
}

// Save writes the aggregate progress file and the per-unit progress files.
func (c *Checkpointer) Save(progress *models.DocumenterProgress) {
	progress.LastCheckpoint = c.now().UTC().Format(time.RFC3339)

	c.write(filepath.Join(c.progressDir, ProgressFileName), progress)
	for i := range progress.WorkUnits {
		unit := &progress.WorkUnits[i]
		c.write(filepath.Join(c.progressDir, "work_units", unit.ID, "progress.json"), unit)
	}
}

func (c *Checkpointer) write(path string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		c.logger.Error("failed to encode progress", "path", path, "error", err)
		return
	}
	if err := safefile.WriteFile(c.fs, path, data); err != nil {
		c.logger.Error("failed to write progress", "path", path, "error", err)
	}
}

// Load reads a prior progress file, tolerating absence and corruption.
func (c *Checkpointer) Load() *models.DocumenterProgress {
	raw, err := afero.ReadFile(c.fs, filepath.Join(c.progressDir, ProgressFileName))
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to read prior progress", "error", err)
		}
		return nil
	}
	var progress models.DocumenterProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		c.logger.Warn("prior progress is corrupt, ignoring", "error", err)
		return nil
	}
	return &progress
}
