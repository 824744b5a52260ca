package models

// Work-unit and overall status values. Table outcomes are binary and are
// tracked as counters, not statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// WorkUnitProgress tracks one unit's execution state.
type WorkUnitProgress struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	TablesTotal     int      `json:"tables_total"`
	TablesCompleted int      `json:"tables_completed"`
	TablesFailed    int      `json:"tables_failed"`
	TablesSkipped   int      `json:"tables_skipped"`
	CurrentTable    string   `json:"current_table,omitempty"`
	Errors          []string `json:"errors"`
	StartedAt       string   `json:"started_at,omitempty"`
	FinishedAt      string   `json:"finished_at,omitempty"`
}

// DocumenterProgress aggregates work-unit progress plus run-global counters.
// It is the documenter's checkpoint: a run resumes when PlanHash matches the
// loaded plan and Status is running.
type DocumenterProgress struct {
	Status         string             `json:"status"`
	PlanHash       string             `json:"plan_hash"`
	WorkUnits      []WorkUnitProgress `json:"work_units"`
	TotalTokens    int                `json:"total_tokens"`
	ElapsedSeconds int64              `json:"elapsed_seconds"`
	StartedAt      string             `json:"started_at"`
	LastCheckpoint string             `json:"last_checkpoint"`
}

// Unit returns the progress entry for a work unit id, or nil.
func (p *DocumenterProgress) Unit(id string) *WorkUnitProgress {
	for i := range p.WorkUnits {
		if p.WorkUnits[i].ID == id {
			return &p.WorkUnits[i]
		}
	}
	return nil
}

// OverallStatus derives the documenter-level status from unit statuses:
// all completed => completed; all failed => failed; anything mixed, pending,
// or running => partial. An empty unit list counts as completed.
func (p *DocumenterProgress) OverallStatus() string {
	if len(p.WorkUnits) == 0 {
		return StatusCompleted
	}
	completed, failed := 0, 0
	for _, wu := range p.WorkUnits {
		switch wu.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	switch {
	case completed == len(p.WorkUnits):
		return StatusCompleted
	case failed == len(p.WorkUnits):
		return StatusFailed
	default:
		return StatusPartial
	}
}

// Indexer phases, in execution order.
const (
	PhaseValidating    = "validating"
	PhaseParsing       = "parsing"
	PhaseEmbedding     = "embedding"
	PhaseIndexing      = "indexing"
	PhaseRelationships = "relationships"
	PhaseOptimizing    = "optimizing"
)

// IndexerProgress records the current indexer phase and running counters.
type IndexerProgress struct {
	Phase             string   `json:"phase"`
	Status            string   `json:"status"`
	ManifestHash      string   `json:"manifest_hash,omitempty"`
	FilesTotal        int      `json:"files_total"`
	FilesParsed       int      `json:"files_parsed"`
	FilesFailed       int      `json:"files_failed"`
	DocumentsIndexed  int      `json:"documents_indexed"`
	EmbeddingsCreated int      `json:"embeddings_created"`
	RelationshipsCount int     `json:"relationships_count"`
	Errors            []string `json:"errors"`
	StartedAt         string   `json:"started_at"`
	UpdatedAt         string   `json:"updated_at"`
}
