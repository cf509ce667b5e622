package pipeline

import (
	"doctrans/fault"
	"doctrans/store"
)

// transitions is the state machine, encoded as data. Forward edges follow the
// stage order; completed and failed stages stay re-enterable, so later states
// keep edges back to processing (forced re-run) and editing (re-edit).
var transitions = map[store.Status][]store.Status{
	store.StatusCreated:       {store.StatusUploaded},
	store.StatusUploaded:      {store.StatusProcessing},
	store.StatusProcessing:    {store.StatusProcessed, store.StatusFailed},
	store.StatusProcessed:     {store.StatusMarkdownReady, store.StatusProcessing, store.StatusEditing, store.StatusGenerating, store.StatusFailed},
	store.StatusMarkdownReady: {store.StatusOCRReady, store.StatusEditing, store.StatusGenerating, store.StatusProcessing, store.StatusMarkdownReady, store.StatusFailed},
	store.StatusOCRReady:      {store.StatusOCRReady, store.StatusEditing, store.StatusGenerating, store.StatusProcessing, store.StatusMarkdownReady, store.StatusFailed},
	store.StatusEditing:       {store.StatusEditing, store.StatusOCRReady, store.StatusGenerating, store.StatusProcessing, store.StatusFailed},
	store.StatusGenerating:    {store.StatusDone, store.StatusFailed},
	store.StatusDone:          {store.StatusEditing, store.StatusGenerating, store.StatusProcessing, store.StatusOCRReady, store.StatusMarkdownReady},
	store.StatusFailed:        {store.StatusCreated, store.StatusUploaded, store.StatusProcessing, store.StatusProcessed, store.StatusMarkdownReady, store.StatusOCRReady, store.StatusEditing, store.StatusGenerating},
}

// canTransition reports whether the state machine allows from -> to.
func canTransition(from, to store.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves the job to the next status and durably saves the record.
// This is the single point where stage progress becomes visible; exactly one
// save per transition.
func (p *Pipeline) transition(job *store.Job, to store.Status) error {
	if !canTransition(job.Status, to) {
		return fault.Validation("illegal status transition %s -> %s", job.Status, to)
	}
	job.Status = to
	return p.store.Save(job)
}

// requireArtifact checks that a prior stage's artifact is recorded, naming
// the missing stage in the error details.
func requireArtifact(job *store.Job, key, stage string) error {
	if _, ok := job.Artifacts[key]; !ok {
		return fault.Precondition(stage, "stage "+stage+" has not completed for this job")
	}
	return nil
}
