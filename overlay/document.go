package overlay

import (
	"sort"

	"doctrans/annotation"
	"doctrans/coords"
	"doctrans/fault"
)

// PlacedText is one overlay block positioned in normalized page coordinates
// (0..1 of the page size). Geometry is converted from pixel space exactly
// once, when the document is built.
type PlacedText struct {
	BoxID    string               `json:"box_id"`
	X        float64              `json:"x"`
	Y        float64              `json:"y"`
	W        float64              `json:"w"`
	H        float64              `json:"h"`
	Text     string               `json:"text"`
	Type     annotation.BlockType `json:"type,omitempty"`
	Style    annotation.Style     `json:"style,omitempty"`
	FontSize float64              `json:"font_size"`
}

// PageSize is the pixel size of the page raster the blocks were placed on.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Page is one page of the overlay document: a background raster reference
// plus the admitted overlay blocks, ordered by box ID for stable output.
type Page struct {
	Number     int          `json:"number"`
	Size       PageSize     `json:"size"`
	Background string       `json:"background"`
	Blocks     []PlacedText `json:"blocks"`
}

// Document is the renderer-independent overlay tree handed to PDF composers.
type Document struct {
	Pages []Page `json:"pages"`
}

// FontFit computes a font size that fits box height h: at most ratio of the
// height, clamped to [8, 24] points. Zero ratio uses 0.8.
func FontFit(h, ratio float64) float64 {
	if ratio <= 0 {
		ratio = 0.8
	}
	size := h * ratio
	if size > 24 {
		size = 24
	}
	if size < 8 {
		size = 8
	}
	return size
}

// BuildPage converts one page's admitted boxes into normalized placed text.
// The box set must be in pixel space relative to the page raster; a page with
// non-positive size cannot be normalized and is rejected.
func BuildPage(number int, background string, size PageSize, set annotation.BoxSet, policy Policy, fontRatio float64) (Page, Report, error) {
	page := Page{Number: number, Size: size, Background: background}
	report := Report{
		Image: background,
		Scope: policy.Scope,
		Total: set.Len(),
	}
	if size.Width <= 0 || size.Height <= 0 {
		return Page{}, Report{}, fault.FrameUnavailable("page size not positive")
	}

	for _, box := range set.Ordered() {
		ok, reason := policy.Decide(box, size.Width, size.Height)
		report.Decisions = append(report.Decisions, Decision{BoxID: box.ID, Replaced: ok, Reason: reason})
		if !ok {
			continue
		}
		fontSize := box.Style.Resolved().FontSize
		if box.Style.FontSize <= 0 {
			fontSize = FontFit(box.H, fontRatio)
		}
		// Size positivity was checked above, so normalization cannot fail.
		nx, _ := coords.NativeToNormalized(box.X, size.Width)
		ny, _ := coords.NativeToNormalized(box.Y, size.Height)
		nw, _ := coords.NativeToNormalized(box.W, size.Width)
		nh, _ := coords.NativeToNormalized(box.H, size.Height)
		page.Blocks = append(page.Blocks, PlacedText{
			BoxID:    box.ID,
			X:        nx,
			Y:        ny,
			W:        nw,
			H:        nh,
			Text:     box.Text,
			Type:     box.Type,
			Style:    box.Style,
			FontSize: fontSize,
		})
		report.Replaced++
	}
	sort.Slice(page.Blocks, func(i, j int) bool { return page.Blocks[i].BoxID < page.Blocks[j].BoxID })
	return page, report, nil
}
