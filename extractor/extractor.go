// Package extractor turns source PDFs into the pipeline's working materials:
// page rasters for vision analysis and a markdown rendition with extracted
// asset images. It shells out to the poppler-utils binaries (pdftoppm,
// pdftotext, pdfimages), which are the de-facto standard for this job and
// present on any box that also carries a render engine.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"doctrans/observability"
	"doctrans/pipeline"
	"doctrans/store"
)

// Poppler rasterizes and extracts documents with the poppler-utils CLI
// tools. The zero value is not usable; call New.
type Poppler struct {
	pdftoppm  string
	pdftotext string
	pdfimages string
	log       observability.Logger
}

// Option configures a Poppler extractor.
type Option func(*Poppler)

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(p *Poppler) { p.log = l }
}

// WithBinaries overrides the tool paths, mainly for tests.
func WithBinaries(pdftoppm, pdftotext, pdfimages string) Option {
	return func(p *Poppler) {
		p.pdftoppm = pdftoppm
		p.pdftotext = pdftotext
		p.pdfimages = pdfimages
	}
}

// New locates the poppler tools on PATH. Missing tools are detected lazily:
// construction always succeeds so callers can report availability instead of
// failing startup.
func New(opts ...Option) *Poppler {
	p := &Poppler{
		pdftoppm:  "pdftoppm",
		pdftotext: "pdftotext",
		pdfimages: "pdfimages",
		log:       observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Available reports whether the rasterizer tool can be found.
func (p *Poppler) Available() bool {
	_, err := exec.LookPath(p.pdftoppm)
	return err == nil
}

// Rasterize renders up to maxPages pages of the source document to PNG files
// named page_N.png (1-indexed) under outDir.
func (p *Poppler) Rasterize(ctx context.Context, sourcePath, outDir string, maxPages, dpi int) ([]pipeline.PageRaster, error) {
	prefix := filepath.Join(outDir, "pp")
	args := []string{"-png", "-r", strconv.Itoa(dpi)}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	args = append(args, sourcePath, prefix)
	if err := p.run(ctx, p.pdftoppm, args...); err != nil {
		return nil, err
	}

	// pdftoppm zero-pads its page numbers (pp-01.png); rename to the
	// canonical page_N.png layout.
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	var rasters []pipeline.PageRaster
	for _, m := range matches {
		page, ok := pageNumber(filepath.Base(m))
		if !ok {
			continue
		}
		dst := filepath.Join(outDir, store.PageRasterName(page))
		if err := os.Rename(m, dst); err != nil {
			return nil, fmt.Errorf("rename raster: %w", err)
		}
		w, h, err := imageSize(dst)
		if err != nil {
			return nil, fmt.Errorf("read raster %s: %w", filepath.Base(dst), err)
		}
		rasters = append(rasters, pipeline.PageRaster{Page: page, Path: dst, Width: w, Height: h})
	}
	sort.Slice(rasters, func(i, j int) bool { return rasters[i].Page < rasters[j].Page })
	p.log.Debug("document rasterized",
		observability.String("source", filepath.Base(sourcePath)),
		observability.Int(observability.MetricPageCount, len(rasters)))
	return rasters, nil
}

// Extract produces a markdown rendition of the document and writes its
// embedded images into assetsDir. Image references in the markdown are
// relative to the job directory.
func (p *Poppler) Extract(ctx context.Context, sourcePath, assetsDir string) ([]byte, []string, error) {
	out, err := p.output(ctx, p.pdftotext, "-layout", sourcePath, "-")
	if err != nil {
		return nil, nil, err
	}
	md := TextToMarkdown(string(out))

	assets, err := p.extractImages(ctx, sourcePath, assetsDir)
	if err != nil {
		return nil, nil, err
	}
	if len(assets) > 0 {
		rel := filepath.Base(assetsDir)
		var b strings.Builder
		b.WriteString(md)
		b.WriteString("\n")
		for _, name := range assets {
			fmt.Fprintf(&b, "\n![](%s/%s)\n", rel, name)
		}
		md = b.String()
	}
	return []byte(md), assets, nil
}

func (p *Poppler) extractImages(ctx context.Context, sourcePath, assetsDir string) ([]string, error) {
	prefix := filepath.Join(assetsDir, "img")
	if err := p.run(ctx, p.pdfimages, "-png", sourcePath, prefix); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	return names, nil
}

func (p *Poppler) run(ctx context.Context, bin string, args ...string) error {
	_, err := p.output(ctx, bin, args...)
	return err
}

func (p *Poppler) output(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s: %s", filepath.Base(bin), msg)
	}
	return stdout.Bytes(), nil
}

// pageNumber parses the page index from a pdftoppm output name like
// "pp-01.png".
func pageNumber(name string) (int, bool) {
	name = strings.TrimSuffix(name, ".png")
	i := strings.LastIndexByte(name, '-')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimLeft(name[i+1:], "0"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func imageSize(path string) (int, int, error) {
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
