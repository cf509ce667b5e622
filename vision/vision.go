// Package vision defines the vision-analyzer collaborator contract and the
// normalization of its raw output into the annotation model. The analyzer
// itself (a vision LLM behind an API) is an opaque external collaborator;
// this package owns the schema and its repair rules.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"doctrans/annotation"
)

// PageImage is one rasterized page submitted for analysis.
type PageImage struct {
	// Page is 1-indexed.
	Page   int
	Path   string
	Width  int
	Height int
}

// RawBlock is a detected region as returned by the analyzer: a type label,
// a pixel bbox in [x1 y1 x2 y2] form, and the translated text.
type RawBlock struct {
	Type string    `json:"type"`
	BBox []float64 `json:"bbox"`
	Text string    `json:"text"`
}

// RawPage groups the blocks of one page.
type RawPage struct {
	Page   int        `json:"page"`
	Blocks []RawBlock `json:"blocks"`
}

// Meta records analysis provenance.
type Meta struct {
	JobID          string `json:"job_id,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	Model          string `json:"model,omitempty"`
	ProcessedAt    string `json:"processed_at,omitempty"`
	PagesRendered  int    `json:"vision_pages_rendered,omitempty"`
}

// Result is the analyzer output as persisted in the vision artifact.
type Result struct {
	Pages []RawPage `json:"pages"`
	Meta  Meta      `json:"meta"`

	// Raw preserves the undecodable payload when repair failed, for
	// diagnosis. Never set on a successful decode.
	Raw string `json:"raw_response,omitempty"`
}

// Analyzer is the external vision collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, pages []PageImage, targetLanguage string) (*Result, error)
}

// Decode parses an analyzer payload into a Result. Models frequently wrap
// their JSON in markdown code fences; those are stripped first. A payload
// that still fails to decode degrades to an empty Result carrying the raw
// text; absence of blocks is reportable, a crash is not.
func Decode(payload []byte) *Result {
	clean := StripFences(string(payload))
	var res Result
	if err := json.Unmarshal([]byte(clean), &res); err != nil {
		return &Result{Raw: string(payload)}
	}
	return &res
}

// StripFences removes a surrounding markdown code fence (``` or ```json)
// from a model response, leaving bare payloads untouched.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		// Drop the language tag line (```json, ```js, ...).
		trimmed = trimmed[i+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// SkipReason explains why a raw block was not normalized into a Box.
type SkipReason string

const (
	SkipInvalidBBox   SkipReason = "invalid_bbox"
	SkipNaN           SkipReason = "nan_coordinates"
	SkipInverted      SkipReason = "invalid_dimensions"
	SkipEmptyText     SkipReason = "empty_text"
	SkipOutOfBounds   SkipReason = "outside_page"
	SkipConstructible SkipReason = "unconstructible"
)

// NormalizeReport records the per-block outcome of a normalization pass.
type NormalizeReport struct {
	Total   int                `json:"total"`
	Kept    int                `json:"kept"`
	Skipped map[SkipReason]int `json:"skipped,omitempty"`
}

func (r *NormalizeReport) skip(reason SkipReason) {
	if r.Skipped == nil {
		r.Skipped = make(map[SkipReason]int)
	}
	r.Skipped[reason]++
}

// NormalizePage converts one raw page into a BoxSet in pixel space. Blocks
// with missing, NaN or inverted bboxes are skipped and counted; a block
// fully outside the page is skipped, one partially outside is clamped later
// by the compositor. Box IDs are deterministic: p<page>-b<index>.
func NormalizePage(p RawPage, pageW, pageH float64) (annotation.BoxSet, NormalizeReport) {
	set := annotation.NewBoxSet(fmt.Sprintf("page_%d", p.Page))
	report := NormalizeReport{Total: len(p.Blocks)}

	for i, blk := range p.Blocks {
		if len(blk.BBox) != 4 {
			report.skip(SkipInvalidBBox)
			continue
		}
		x1, y1, x2, y2 := blk.BBox[0], blk.BBox[1], blk.BBox[2], blk.BBox[3]
		if math.IsNaN(x1) || math.IsNaN(y1) || math.IsNaN(x2) || math.IsNaN(y2) {
			report.skip(SkipNaN)
			continue
		}
		if x1 >= x2 || y1 >= y2 {
			report.skip(SkipInverted)
			continue
		}
		if strings.TrimSpace(blk.Text) == "" {
			report.skip(SkipEmptyText)
			continue
		}
		if pageW > 0 && pageH > 0 && (x1 >= pageW || y1 >= pageH || x2 <= 0 || y2 <= 0) {
			report.skip(SkipOutOfBounds)
			continue
		}
		// Negative origins are clipped to the page edge before construction.
		if x1 < 0 {
			x1 = 0
		}
		if y1 < 0 {
			y1 = 0
		}
		box, err := annotation.NewBox(fmt.Sprintf("p%d-b%d", p.Page, i),
			annotation.SpacePixel, x1, y1, x2-x1, y2-y1, blk.Text)
		if err != nil {
			report.skip(SkipConstructible)
			continue
		}
		box.Type = annotation.ParseBlockType(blk.Type)
		if err := set.Add(box); err != nil {
			report.skip(SkipConstructible)
			continue
		}
		report.Kept++
	}
	return set, report
}

// Normalize converts a full Result into per-page BoxSets keyed by page
// number, using the supplied page dimensions (zero when unknown).
func Normalize(res *Result, dims map[int][2]float64) (map[int]annotation.BoxSet, map[int]NormalizeReport) {
	sets := make(map[int]annotation.BoxSet, len(res.Pages))
	reports := make(map[int]NormalizeReport, len(res.Pages))
	for _, p := range res.Pages {
		var w, h float64
		if d, ok := dims[p.Page]; ok {
			w, h = d[0], d[1]
		}
		set, rep := NormalizePage(p, w, h)
		sets[p.Page] = set
		reports[p.Page] = rep
	}
	return sets, reports
}
