package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"doctrans/annotation"
	"doctrans/fault"
	"doctrans/observability"
	"doctrans/overlay"
	"doctrans/store"
	"doctrans/vision"
)

// Generate produces the requested output document and moves the job to done.
// Mode html writes a standalone HTML file; image-overlay burns boxes into the
// page rasters and renders them to PDF; ocr-overlay positions boxes as
// absolutely-placed elements over the page rasters and renders to PDF. An
// empty scope uses the configured default.
func (p *Pipeline) Generate(ctx context.Context, jobID, mode, scope string) (*store.Job, error) {
	if scope == "" {
		scope = p.cfg.OverlayScope
	}
	if !overlay.ValidScope(scope) {
		return nil, fault.Validation("unknown overlay scope %q", scope)
	}
	switch mode {
	case ModeHTML, ModeImageOverlay, ModeOCROverlay:
	default:
		return nil, fault.Validation("unknown generation mode %q", mode)
	}

	var job *store.Job
	err := p.store.WithLock(jobID, func() error {
		var err error
		job, err = p.store.Load(jobID)
		if err != nil {
			return err
		}
		if mode == ModeImageOverlay {
			if err := requireArtifact(job, store.ArtifactVision, "process"); err != nil {
				return err
			}
		} else {
			if err := requireArtifact(job, store.ArtifactMarkdown, "extract-markdown"); err != nil {
				return err
			}
		}
		if err := p.transition(job, store.StatusGenerating); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, p.cfg.RenderTimeout)
		defer cancel()

		started := time.Now()
		policy := overlay.DefaultPolicy(scope)
		var genErr error
		switch mode {
		case ModeHTML:
			genErr = p.generateHTML(ctx, job, policy)
		case ModeImageOverlay:
			genErr = p.generateImageOverlay(ctx, job, policy)
		case ModeOCROverlay:
			genErr = p.generateOCROverlay(ctx, job, policy)
		}
		if genErr != nil {
			return p.fail(job, "generate", genErr)
		}

		finished := time.Now().UTC()
		job.FinishedAt = &finished
		if err := p.transition(job, store.StatusDone); err != nil {
			return err
		}
		p.log.Info("output generated",
			observability.String("job_id", jobID),
			observability.String("mode", mode),
			observability.String("scope", scope),
			observability.Int64(observability.MetricRenderTime, time.Since(started).Milliseconds()))
		return nil
	})
	return job, err
}

// generateHTML converts the markdown to a standalone HTML document: overlay
// divs over annotated asset images, followed by the translated page blocks
// as ordinary flowing sections.
func (p *Pipeline) generateHTML(ctx context.Context, job *store.Job, policy overlay.Policy) error {
	md, err := os.ReadFile(filepath.Join(p.store.JobDir(job.ID), store.MarkdownFile))
	if err != nil {
		return fmt.Errorf("read markdown: %w", err)
	}
	fragment, err := overlay.RenderMarkdown(md)
	if err != nil {
		return err
	}
	sets, err := p.store.LoadBoxSets(job.ID)
	if err != nil {
		return err
	}
	lookup := func(name string) (int, int, error) {
		path, err := p.store.ResolveAsset(job.ID, store.AssetsDir, name)
		if err != nil {
			return 0, 0, err
		}
		return decodePNGSize(path)
	}
	wrapped, reports, err := overlay.WrapImages(fragment, sets, lookup, policy, p.cfg.FontFitRatio)
	if err != nil {
		return err
	}

	// The page translations flow below the document body; the edited vision
	// result takes priority over the original analysis.
	pageSets, err := p.pageBoxSets(job)
	if err != nil {
		return err
	}
	var flow []overlay.FlowPage
	for page := 1; page <= job.PagesRendered; page++ {
		if set, ok := pageSets[page]; ok {
			flow = append(flow, overlay.FlowPage{Number: page, Blocks: set.Ordered()})
		}
	}
	body := append(wrapped, overlay.FlowSections(flow)...)

	title := job.SourceFilename
	if title == "" {
		title = job.ID
	}
	doc := overlay.PageHTML(title, body)
	if _, err := p.store.SaveBytes(job.ID, store.OutputHTML, doc); err != nil {
		return err
	}
	if err := p.saveReports(job, reports); err != nil {
		return err
	}
	job.SetOutput(ModeHTML, store.OutputHTML)
	return nil
}

// generateImageOverlay composites translated boxes directly into the page
// rasters and renders the composited pages to a PDF. A missing page raster is
// fatal for that page only; remaining pages still render.
func (p *Pipeline) generateImageOverlay(ctx context.Context, job *store.Job, policy overlay.Policy) error {
	pageSets, err := p.pageBoxSets(job)
	if err != nil {
		return err
	}

	var (
		body    []byte
		reports []overlay.Report
		pages   int
	)
	for page := 1; page <= job.PagesRendered; page++ {
		name := store.PageRasterName(page)
		base, err := p.openBaseImage(job, name)
		if err != nil {
			reports = append(reports, overlay.Report{
				Image: name,
				Scope: policy.Scope,
				Total: 1,
				Decisions: []overlay.Decision{
					{Replaced: false, Reason: "base_raster_missing"},
				},
			})
			p.log.Warn("page raster unavailable",
				observability.String("job_id", job.ID),
				observability.String("image", name),
				observability.Error("error", err))
			continue
		}
		set, ok := pageSets[page]
		if !ok {
			set = annotation.NewBoxSet(name)
		}
		composited, report, err := overlay.Composite(base, set, policy, name, p.cfg.FontFitRatio)
		if err != nil {
			return err
		}
		reports = append(reports, report)

		outName := store.PreviewDir + "/overlay_" + name
		var buf bytes.Buffer
		if err := png.Encode(&buf, composited); err != nil {
			return fmt.Errorf("encode composited page: %w", err)
		}
		if _, err := p.store.SaveBytes(job.ID, outName, buf.Bytes()); err != nil {
			return err
		}
		b := composited.Bounds()
		body = append(body, []byte(fmt.Sprintf(
			"<div class=\"page\" style=\"width:%dpx;height:%dpx\"><img class=\"page-bg\" src=%q style=\"width:%dpx;height:%dpx\"/></div>\n",
			b.Dx(), b.Dy(), outName, b.Dx(), b.Dy()))...)
		pages++
	}
	if pages == 0 {
		return errors.New("no page rasters available for overlay")
	}

	doc := overlay.PageHTML(job.SourceFilename, body)
	pdf, err := p.render(ctx, doc, p.store.JobDir(job.ID))
	if err != nil {
		return err
	}
	if _, err := p.store.SaveBytes(job.ID, store.OutputOverlay, pdf); err != nil {
		return err
	}
	if err := p.saveReports(job, reports); err != nil {
		return err
	}
	job.SetOutput(ModeImageOverlay, store.OutputOverlay)
	return nil
}

// generateOCROverlay builds the normalized overlay document over the page
// rasters and renders it to a PDF.
func (p *Pipeline) generateOCROverlay(ctx context.Context, job *store.Job, policy overlay.Policy) error {
	pageSets, err := p.pageBoxSets(job)
	if err != nil {
		return err
	}

	var (
		doc     overlay.Document
		reports []overlay.Report
	)
	for page := 1; page <= job.PagesRendered; page++ {
		name := store.PageRasterName(page)
		path, err := p.store.ResolveAsset(job.ID, store.PagesDir, name)
		if err != nil {
			return err
		}
		w, h, err := decodePNGSize(path)
		if err != nil {
			reports = append(reports, overlay.Report{
				Image: name,
				Scope: policy.Scope,
				Total: 1,
				Decisions: []overlay.Decision{
					{Replaced: false, Reason: "base_raster_missing"},
				},
			})
			continue
		}
		set, ok := pageSets[page]
		if !ok {
			set = annotation.NewBoxSet(name)
		}
		built, report, err := overlay.BuildPage(page, name, overlay.PageSize{Width: float64(w), Height: float64(h)}, set, policy, p.cfg.FontFitRatio)
		if err != nil {
			return err
		}
		doc.Pages = append(doc.Pages, built)
		reports = append(reports, report)
	}
	if len(doc.Pages) == 0 {
		return errors.New("no page rasters available for overlay")
	}

	html := overlay.DocumentHTML(job.SourceFilename, doc, func(name string) string {
		return store.PagesDir + "/" + name
	})
	pdf, err := p.render(ctx, html, p.store.JobDir(job.ID))
	if err != nil {
		return err
	}
	if _, err := p.store.SaveBytes(job.ID, store.OutputOCR, pdf); err != nil {
		return err
	}
	if err := p.saveReports(job, reports); err != nil {
		return err
	}
	job.SetOutput(ModeOCROverlay, store.OutputOCR)
	return nil
}

func (p *Pipeline) render(ctx context.Context, html []byte, baseDir string) ([]byte, error) {
	if p.renderer == nil {
		return nil, errors.New("no renderer configured")
	}
	return p.renderer.Render(ctx, html, baseDir)
}

func (p *Pipeline) saveReports(job *store.Job, reports []overlay.Report) error {
	if len(reports) == 0 {
		return nil
	}
	composited, skipped := 0, 0
	for _, r := range reports {
		composited += r.Replaced
		skipped += r.Total - r.Replaced
	}
	p.log.Debug("overlay decisions",
		observability.Int(observability.MetricBoxesComposited, composited),
		observability.Int(observability.MetricBoxesSkipped, skipped))
	if err := p.store.SaveJSON(job.ID, store.ReportFile, reports); err != nil {
		return err
	}
	job.SetArtifact(store.ArtifactReport, store.ReportFile)
	return nil
}

// pageBoxSets resolves the effective box set for every rendered page:
// manually saved sets win, then the edited vision result, then the original
// analysis.
func (p *Pipeline) pageBoxSets(job *store.Job) (map[int]annotation.BoxSet, error) {
	result := make(map[int]annotation.BoxSet)

	var res vision.Result
	found, err := p.store.LoadJSON(job.ID, store.EditedFile, &res, false)
	if err != nil {
		return nil, err
	}
	if !found {
		if found, err = p.store.LoadJSON(job.ID, store.VisionFile, &res, false); err != nil {
			return nil, err
		}
	}
	if found {
		dims := make(map[int][2]float64)
		for page := 1; page <= job.PagesRendered; page++ {
			path := filepath.Join(p.store.JobDir(job.ID), store.PagesDir, store.PageRasterName(page))
			if w, h, err := decodePNGSize(path); err == nil {
				dims[page] = [2]float64{float64(w), float64(h)}
			}
		}
		sets, _ := vision.Normalize(&res, dims)
		for page, set := range sets {
			result[page] = set
		}
	}

	// Manually saved sets override, keyed by the raster file name.
	saved, err := p.store.LoadBoxSets(job.ID)
	if err != nil {
		return nil, err
	}
	for page := 1; page <= job.PagesRendered; page++ {
		if set, ok := saved[store.PageRasterName(page)]; ok {
			result[page] = set
		}
	}
	return result, nil
}

// allBoxSets returns every persisted box set plus the vision-derived page
// sets, keyed by image file name.
func (p *Pipeline) allBoxSets(job *store.Job) (map[string]annotation.BoxSet, error) {
	sets, err := p.store.LoadBoxSets(job.ID)
	if err != nil {
		return nil, err
	}
	pageSets, err := p.pageBoxSets(job)
	if err != nil {
		return nil, err
	}
	for page, set := range pageSets {
		name := store.PageRasterName(page)
		if _, ok := sets[name]; !ok {
			sets[name] = set
		}
	}
	return sets, nil
}
