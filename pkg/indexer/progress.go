package indexer

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/schemadoc/pkg/models"
	"github.com/hashicorp-forge/schemadoc/pkg/safefile"
)

// ProgressFileName is the indexer progress file under the progress directory.
const ProgressFileName = "indexer-progress.json"

// progressTracker persists indexer progress on every phase transition. Write
// failures are logged and swallowed.
type progressTracker struct {
	fs          afero.Fs
	progressDir string
	logger      hclog.Logger
	now         func() time.Time

	state models.IndexerProgress
}

func newProgressTracker(fs afero.Fs, progressDir string, logger hclog.Logger, now func() time.Time) *progressTracker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if now == nil {
		now = time.Now
	}
	t := &progressTracker{fs: fs, progressDir: progressDir, logger: logger.Named("progress"), now: now}
	t.state.Status = models.StatusRunning
	t.state.StartedAt = now().UTC().Format(time.RFC3339)
	t.state.Errors = []string{}
	return t
}

// phase records a phase transition and persists the snapshot.
func (t *progressTracker) phase(name string) {
	t.state.Phase = name
	t.logger.Info("phase", "name", name)
	t.save()
}

func (t *progressTracker) recordError(err error) {
	t.state.Errors = append(t.state.Errors, err.Error())
}

// finish persists the terminal status.
func (t *progressTracker) finish(status string) {
	t.state.Status = status
	t.save()
}

func (t *progressTracker) save() {
	t.state.UpdatedAt = t.now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(&t.state, "", "  ")
	if err != nil {
		t.logger.Error("failed to encode progress", "error", err)
		return
	}
	path := filepath.Join(t.progressDir, ProgressFileName)
	if err := safefile.WriteFile(t.fs, path, data); err != nil {
		t.logger.Error("failed to write progress", "path", path, "error", err)
	}
}
