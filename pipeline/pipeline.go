// Package pipeline orchestrates the job lifecycle: upload, rasterize and
// analyze, markdown extraction, per-image OCR, box editing, and document
// generation. Stages run to completion within the calling request; the only
// shared mutable state is the job store, and every compound read-modify-write
// holds the per-job lock.
package pipeline

import (
	"context"

	"doctrans/config"
	"doctrans/observability"
	"doctrans/ocr"
	"doctrans/renderer"
	"doctrans/store"
	"doctrans/vision"
)

// PageRaster is one rendered source page.
type PageRaster struct {
	// Page is 1-indexed.
	Page   int
	Path   string
	Width  int
	Height int
}

// Rasterizer renders source document pages to PNG files in outDir using the
// canonical page file names.
type Rasterizer interface {
	Rasterize(ctx context.Context, sourcePath, outDir string, maxPages, dpi int) ([]PageRaster, error)
}

// MarkdownExtractor converts the source document to markdown, writing any
// embedded images into assetsDir and referencing them relatively.
type MarkdownExtractor interface {
	Extract(ctx context.Context, sourcePath, assetsDir string) (markdown []byte, assets []string, err error)
}

// Pipeline wires the job store and the external collaborators together.
type Pipeline struct {
	store      *store.Store
	cfg        *config.Config
	rasterizer Rasterizer
	analyzer   vision.Analyzer
	engine     ocr.Engine
	renderer   renderer.Renderer
	extractor  MarkdownExtractor
	log        observability.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRasterizer sets the page rasterizer.
func WithRasterizer(r Rasterizer) Option { return func(p *Pipeline) { p.rasterizer = r } }

// WithAnalyzer sets the vision analyzer.
func WithAnalyzer(a vision.Analyzer) Option { return func(p *Pipeline) { p.analyzer = a } }

// WithOCREngine sets the OCR engine. A nil engine means OCR is unavailable,
// which is a reportable condition rather than an error.
func WithOCREngine(e ocr.Engine) Option { return func(p *Pipeline) { p.engine = e } }

// WithRenderer sets the HTML-to-PDF renderer, usually a renderer.Chain.
func WithRenderer(r renderer.Renderer) Option { return func(p *Pipeline) { p.renderer = r } }

// WithExtractor sets the markdown extractor.
func WithExtractor(e MarkdownExtractor) Option { return func(p *Pipeline) { p.extractor = e } }

// WithLogger sets the pipeline logger.
func WithLogger(l observability.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// New builds a pipeline over the given store and configuration.
func New(st *store.Store, cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		store: st,
		cfg:   cfg,
		log:   observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store exposes the underlying job store for asset serving.
func (p *Pipeline) Store() *store.Store { return p.store }
