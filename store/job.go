// Package store provides durable, crash-safe per-job state: the job record,
// its stage artifacts, per-job write serialization, and the asset access gate
// that every job-scoped path resolution must pass through.
package store

import "time"

// Status is the lifecycle state of a job. Transitions are owned by the
// pipeline state machine; the store only persists whatever it is given.
type Status string

const (
	StatusCreated       Status = "created"
	StatusUploaded      Status = "uploaded"
	StatusProcessing    Status = "processing"
	StatusProcessed     Status = "processed"
	StatusMarkdownReady Status = "markdown_ready"
	StatusOCRReady      Status = "ocr_ready"
	StatusEditing       Status = "editing"
	StatusGenerating    Status = "generating"
	StatusDone          Status = "done"
	StatusFailed        Status = "failed"
)

// Job is the top-level unit of work. It is persisted as JSON in the job's
// directory and re-read on every mutation; in-memory copies are caches, not
// authorities.
type Job struct {
	ID             string `json:"job_id"`
	Status         Status `json:"status"`
	TargetLanguage string `json:"target_language,omitempty"`
	SourceFilename string `json:"source_filename,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"processing_started_at,omitempty"`
	FinishedAt *time.Time `json:"processing_finished_at,omitempty"`

	// Error holds the last failure message; cleared on successful retry.
	Error string `json:"error,omitempty"`

	// HasManualEdits gates destructive re-runs: once a user has saved box
	// edits, re-processing must not discard them unless explicitly forced.
	HasManualEdits bool `json:"has_manual_edits"`

	DPI           int    `json:"dpi,omitempty"`
	PagesRendered int    `json:"pages_rendered,omitempty"`
	Model         string `json:"model,omitempty"`

	// Artifacts maps a stage name to the artifact path relative to the job
	// directory. Keys are the Artifact* constants.
	Artifacts map[string]string `json:"artifacts,omitempty"`

	// Outputs maps a generation mode to its rendered document path relative
	// to the job directory.
	Outputs map[string]string `json:"outputs,omitempty"`
}

// Stage artifact keys.
const (
	ArtifactSource       = "source_document"
	ArtifactPages        = "page_rasters"
	ArtifactVision       = "vision_result"
	ArtifactEditedVision = "edited_vision_result"
	ArtifactMarkdown     = "markdown_content"
	ArtifactAssets       = "markdown_assets"
	ArtifactBoxSets      = "asset_box_sets"
	ArtifactReport       = "overlay_report"
)

// SetArtifact records the canonical relative path for a stage artifact.
func (j *Job) SetArtifact(key, relPath string) {
	if j.Artifacts == nil {
		j.Artifacts = make(map[string]string)
	}
	j.Artifacts[key] = relPath
}

// SetOutput records the rendered output path for a generation mode.
func (j *Job) SetOutput(mode, relPath string) {
	if j.Outputs == nil {
		j.Outputs = make(map[string]string)
	}
	j.Outputs[mode] = relPath
}

// Terminal reports whether the job has reached a terminal status. Terminal
// jobs remain re-enterable (failed retries the stage, done re-edits).
func (j *Job) Terminal() bool { return j.Status == StatusDone || j.Status == StatusFailed }
