package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"doctrans/annotation"
	"doctrans/fault"
	"doctrans/observability"
	"doctrans/ocr"
	"doctrans/overlay"
	"doctrans/store"
	"doctrans/vision"
)

// Generation modes.
const (
	ModeHTML         = "html"
	ModeImageOverlay = "image-overlay"
	ModeOCROverlay   = "ocr-overlay"
)

// Create allocates a new job for the given target language.
func (p *Pipeline) Create(targetLanguage string) (*store.Job, error) {
	if targetLanguage == "" {
		return nil, fault.Validation("target language is empty")
	}
	job, err := p.store.Create()
	if err != nil {
		return nil, err
	}
	job.TargetLanguage = targetLanguage
	if err := p.store.Save(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Upload stores the source document and moves the job to uploaded.
func (p *Pipeline) Upload(ctx context.Context, jobID, filename string, data []byte) (*store.Job, error) {
	if len(data) == 0 {
		return nil, fault.Validation("uploaded document is empty")
	}
	var job *store.Job
	err := p.store.WithLock(jobID, func() error {
		var err error
		job, err = p.store.Load(jobID)
		if err != nil {
			return err
		}
		if _, err := p.store.SaveInput(jobID, data); err != nil {
			return err
		}
		job.SourceFilename = filename
		job.SetArtifact(store.ArtifactSource, store.InputFile)
		return p.transition(job, store.StatusUploaded)
	})
	return job, err
}

// ProcessOptions controls re-runs of the analysis stage.
type ProcessOptions struct {
	// Force re-runs analysis on an already processed job.
	Force bool
	// DiscardEdits acknowledges that a forced re-run throws away saved manual
	// edits. Force without it on an edited job is rejected.
	DiscardEdits bool
}

// Process rasterizes the source document and runs vision analysis. Re-running
// on a processed job returns the stored result unless forced; a forced re-run
// on a job with manual edits requires DiscardEdits.
func (p *Pipeline) Process(ctx context.Context, jobID string, opts ProcessOptions) (*store.Job, error) {
	var job *store.Job
	err := p.store.WithLock(jobID, func() error {
		var err error
		job, err = p.store.Load(jobID)
		if err != nil {
			return err
		}
		if err := requireArtifact(job, store.ArtifactSource, "upload"); err != nil {
			return err
		}
		if _, done := job.Artifacts[store.ArtifactVision]; done && !opts.Force {
			// Idempotent re-entry: the stored result stands.
			return nil
		}
		if opts.Force && job.HasManualEdits && !opts.DiscardEdits {
			return fault.Validation("job has manual edits; forced re-processing requires discarding them explicitly")
		}

		now := time.Now().UTC()
		job.StartedAt = &now
		job.FinishedAt = nil
		job.Error = ""
		if err := p.transition(job, store.StatusProcessing); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, p.cfg.ProcessTimeout)
		defer cancel()

		started := time.Now()
		pages, err := p.rasterize(ctx, job)
		if err != nil {
			return p.fail(job, "rasterize", err)
		}
		result, err := p.analyze(ctx, job, pages)
		if err != nil {
			return p.fail(job, "analyze", err)
		}

		if err := p.store.SaveJSON(jobID, store.VisionFile, result); err != nil {
			return p.fail(job, "persist", err)
		}
		if opts.Force && opts.DiscardEdits {
			p.discardEdits(job)
		}

		job.SetArtifact(store.ArtifactPages, store.PagesDir)
		job.SetArtifact(store.ArtifactVision, store.VisionFile)
		job.PagesRendered = len(pages)
		job.DPI = p.cfg.DPI
		job.Model = result.Meta.Model
		finished := time.Now().UTC()
		job.FinishedAt = &finished
		if err := p.transition(job, store.StatusProcessed); err != nil {
			return err
		}
		p.log.Info("job processed",
			observability.String("job_id", jobID),
			observability.Int(observability.MetricPageCount, len(pages)),
			observability.Int64(observability.MetricStageTime, time.Since(started).Milliseconds()))
		return nil
	})
	return job, err
}

func (p *Pipeline) rasterize(ctx context.Context, job *store.Job) ([]PageRaster, error) {
	if p.rasterizer == nil {
		return nil, errors.New("no rasterizer configured")
	}
	sourcePath := filepath.Join(p.store.JobDir(job.ID), store.InputFile)
	outDir := filepath.Join(p.store.JobDir(job.ID), store.PagesDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pages dir: %w", err)
	}
	pages, err := p.rasterizer.Rasterize(ctx, sourcePath, outDir, p.cfg.MaxPages, p.cfg.DPI)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, errors.New("rasterizer produced no pages")
	}
	return pages, nil
}

func (p *Pipeline) analyze(ctx context.Context, job *store.Job, pages []PageRaster) (*vision.Result, error) {
	if p.analyzer == nil {
		return nil, errors.New("no vision analyzer configured")
	}
	images := make([]vision.PageImage, 0, len(pages))
	for _, pg := range pages {
		images = append(images, vision.PageImage{
			Page: pg.Page, Path: pg.Path, Width: pg.Width, Height: pg.Height,
		})
	}
	result, err := p.analyzer.Analyze(ctx, images, job.TargetLanguage)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("analyzer returned no result")
	}
	return result, nil
}

// discardEdits removes the edit artifacts as part of an acknowledged forced
// re-run.
func (p *Pipeline) discardEdits(job *store.Job) {
	dir := p.store.JobDir(job.ID)
	os.Remove(filepath.Join(dir, store.EditedFile))
	os.Remove(filepath.Join(dir, store.BoxesFile))
	delete(job.Artifacts, store.ArtifactEditedVision)
	delete(job.Artifacts, store.ArtifactBoxSets)
	job.HasManualEdits = false
}

// fail records the diagnostic, transitions the job to failed, and returns a
// collaborator error. Artifacts from earlier stages are left untouched.
func (p *Pipeline) fail(job *store.Job, stage string, err error) error {
	job.Error = fmt.Sprintf("%s: %v", stage, err)
	now := time.Now().UTC()
	job.FinishedAt = &now
	if saveErr := p.transition(job, store.StatusFailed); saveErr != nil {
		p.log.Error("failed to record job failure",
			observability.String("job_id", job.ID),
			observability.Error("error", saveErr))
	}
	p.log.Error("stage failed",
		observability.String("job_id", job.ID),
		observability.String("stage", stage),
		observability.Error("error", err))
	var ferr *fault.Error
	if errors.As(err, &ferr) {
		return err
	}
	return fault.Collaborator(stage, err)
}

// ExtractMarkdown converts the processed document to markdown with extracted
// assets.
func (p *Pipeline) ExtractMarkdown(ctx context.Context, jobID string) (*store.Job, error) {
	var job *store.Job
	err := p.store.WithLock(jobID, func() error {
		var err error
		job, err = p.store.Load(jobID)
		if err != nil {
			return err
		}
		if err := requireArtifact(job, store.ArtifactVision, "process"); err != nil {
			return err
		}
		if p.extractor == nil {
			return p.fail(job, "extract", errors.New("no markdown extractor configured"))
		}

		ctx, cancel := context.WithTimeout(ctx, p.cfg.MarkdownTimeout)
		defer cancel()

		dir := p.store.JobDir(jobID)
		assetsDir := filepath.Join(dir, store.AssetsDir)
		if err := os.MkdirAll(assetsDir, 0o755); err != nil {
			return fmt.Errorf("create assets dir: %w", err)
		}
		md, assets, err := p.extractor.Extract(ctx, filepath.Join(dir, store.InputFile), assetsDir)
		if err != nil {
			return p.fail(job, "extract", err)
		}
		if _, err := p.store.SaveBytes(jobID, store.MarkdownFile, md); err != nil {
			return p.fail(job, "persist", err)
		}
		job.SetArtifact(store.ArtifactMarkdown, store.MarkdownFile)
		if len(assets) > 0 {
			job.SetArtifact(store.ArtifactAssets, store.AssetsDir)
		}
		return p.transition(job, store.StatusMarkdownReady)
	})
	return job, err
}

// RunOCR recognizes text in one markdown asset image and stores the result
// as that image's box set, replacing any previous recognition. Engine absence
// leaves the job untouched and reports ENGINE_UNAVAILABLE.
func (p *Pipeline) RunOCR(ctx context.Context, jobID, imageName string) (*store.Job, error) {
	if p.engine == nil || !p.engine.Available() {
		name := "ocr"
		if p.engine != nil {
			name = p.engine.Name()
		}
		return nil, fault.EngineUnavailable(name)
	}
	var job *store.Job
	err := p.store.WithLock(jobID, func() error {
		var err error
		job, err = p.store.Load(jobID)
		if err != nil {
			return err
		}
		if err := requireArtifact(job, store.ArtifactMarkdown, "extract-markdown"); err != nil {
			return err
		}
		imagePath, err := p.store.ResolveAsset(jobID, store.AssetsDir, imageName)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, p.cfg.OCRTimeout)
		defer cancel()

		input, err := ocr.InputFromFile(imagePath, 0,
			ocr.WithLanguages(p.cfg.OCRLanguages...),
			ocr.WithDPI(p.cfg.DPI))
		if err != nil {
			return p.fail(job, "ocr", err)
		}
		started := time.Now()
		result, err := p.engine.Recognize(ctx, input)
		if err != nil {
			return p.fail(job, "ocr", err)
		}

		sets, err := p.store.LoadBoxSets(jobID)
		if err != nil {
			return err
		}
		sets[imageName] = ocr.ToBoxSet(result, imageName)
		if err := p.store.SaveBoxSets(jobID, sets); err != nil {
			return p.fail(job, "persist", err)
		}
		job.SetArtifact(store.ArtifactBoxSets, store.BoxesFile)
		if err := p.transition(job, store.StatusOCRReady); err != nil {
			return err
		}
		p.log.Info("image recognized",
			observability.String("job_id", jobID),
			observability.String("image", imageName),
			observability.Int(observability.MetricBoxCount, sets[imageName].Len()),
			observability.Int64(observability.MetricRecognizeTime, time.Since(started).Milliseconds()))
		return nil
	})
	return job, err
}

// Boxes returns the current box set for an image. A missing set is empty,
// not an error.
func (p *Pipeline) Boxes(jobID, imageName string) (annotation.BoxSet, error) {
	if _, err := p.store.Load(jobID); err != nil {
		return annotation.BoxSet{}, err
	}
	sets, err := p.store.LoadBoxSets(jobID)
	if err != nil {
		return annotation.BoxSet{}, err
	}
	set, ok := sets[imageName]
	if !ok {
		return annotation.NewBoxSet(imageName), nil
	}
	return set, nil
}

// SaveBoxes replaces an image's entire box set with the caller's boxes and
// marks the job as manually edited. Callers always resend the complete set;
// there is no per-box patching.
func (p *Pipeline) SaveBoxes(ctx context.Context, jobID, imageName string, boxes []annotation.Box) (*store.Job, error) {
	if imageName == "" {
		return nil, fault.Validation("image name is empty")
	}
	var job *store.Job
	err := p.store.WithLock(jobID, func() error {
		var err error
		job, err = p.store.Load(jobID)
		if err != nil {
			return err
		}
		if err := requireArtifact(job, store.ArtifactVision, "process"); err != nil {
			return err
		}

		set := annotation.NewBoxSet(imageName)
		if err := set.Replace(boxes); err != nil {
			return err
		}
		sets, err := p.store.LoadBoxSets(jobID)
		if err != nil {
			return err
		}
		sets[imageName] = set
		if err := p.store.SaveBoxSets(jobID, sets); err != nil {
			return err
		}
		job.SetArtifact(store.ArtifactBoxSets, store.BoxesFile)
		job.HasManualEdits = true
		return p.transition(job, store.StatusEditing)
	})
	return job, err
}

// SaveVisionEdits persists a user-edited copy of the vision result. The
// edited copy takes priority over the original at generation time; the
// original is never modified.
func (p *Pipeline) SaveVisionEdits(ctx context.Context, jobID string, result *vision.Result) (*store.Job, error) {
	if result == nil {
		return nil, fault.Validation("edited vision result is nil")
	}
	var job *store.Job
	err := p.store.WithLock(jobID, func() error {
		var err error
		job, err = p.store.Load(jobID)
		if err != nil {
			return err
		}
		if err := requireArtifact(job, store.ArtifactVision, "process"); err != nil {
			return err
		}
		if err := p.store.SaveJSON(jobID, store.EditedFile, result); err != nil {
			return err
		}
		job.SetArtifact(store.ArtifactEditedVision, store.EditedFile)
		job.HasManualEdits = true
		return p.transition(job, store.StatusEditing)
	})
	return job, err
}

// Status returns the current job record.
func (p *Pipeline) Status(jobID string) (*store.Job, error) {
	return p.store.Load(jobID)
}

// Retry clears the failure diagnostic and rewinds the job to its last
// completed stage, determined from the artifacts on disk. Retrying is always
// safe: completed artifacts are never discarded.
func (p *Pipeline) Retry(ctx context.Context, jobID string) (*store.Job, error) {
	var job *store.Job
	err := p.store.WithLock(jobID, func() error {
		var err error
		job, err = p.store.Load(jobID)
		if err != nil {
			return err
		}
		if job.Status != store.StatusFailed {
			return fault.Validation("retry applies to failed jobs; job is %s", job.Status)
		}
		job.Error = ""
		return p.transition(job, lastCompletedStage(job))
	})
	return job, err
}

// lastCompletedStage maps the artifacts present on disk back to the furthest
// status they prove.
func lastCompletedStage(job *store.Job) store.Status {
	switch {
	case has(job, store.ArtifactMarkdown) && has(job, store.ArtifactBoxSets):
		return store.StatusOCRReady
	case has(job, store.ArtifactMarkdown):
		return store.StatusMarkdownReady
	case has(job, store.ArtifactVision):
		return store.StatusProcessed
	case has(job, store.ArtifactSource):
		return store.StatusUploaded
	default:
		return store.StatusCreated
	}
}

func has(job *store.Job, key string) bool {
	_, ok := job.Artifacts[key]
	return ok
}

// Preview renders the current box set for an image over its base raster and
// returns PNG bytes. The geometry on disk is used as-is; nothing is persisted.
func (p *Pipeline) Preview(ctx context.Context, jobID, imageName string) ([]byte, error) {
	job, err := p.store.Load(jobID)
	if err != nil {
		return nil, err
	}
	base, err := p.openBaseImage(job, imageName)
	if err != nil {
		return nil, err
	}
	sets, err := p.allBoxSets(job)
	if err != nil {
		return nil, err
	}
	set, ok := sets[imageName]
	if !ok {
		set = annotation.NewBoxSet(imageName)
	}

	var buf bytes.Buffer
	if err := overlay.EncodePreview(&buf, base, set, overlay.PreviewOptions{
		MaxWidth:  p.cfg.PreviewMaxWidth,
		MaxHeight: p.cfg.PreviewMaxHeight,
		FontRatio: p.cfg.FontFitRatio,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// openBaseImage resolves imageName through the asset gate, trying the
// markdown assets first and the page rasters second.
func (p *Pipeline) openBaseImage(job *store.Job, imageName string) (image.Image, error) {
	for _, subdir := range []string{store.AssetsDir, store.PagesDir} {
		path, err := p.store.ResolveAsset(job.ID, subdir, imageName)
		if err != nil {
			if fault.IsCode(err, fault.CodePathTraversal) || fault.IsCode(err, fault.CodeValidation) {
				return nil, err
			}
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return nil, fault.Corrupt(imageName, err)
		}
		return img, nil
	}
	return nil, fault.NotFound("image " + imageName)
}

// decodePNGSize reads just the dimensions of an image file.
func decodePNGSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
