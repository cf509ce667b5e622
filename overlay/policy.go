// Package overlay composites translated annotation boxes over page images:
// quick preview rasters, burned-in image overlays, a normalized document tree
// for overlay PDFs, and HTML output with positioned overlay divs. All output
// is deterministic for a given input.
package overlay

import (
	"doctrans/annotation"
)

// Overlay scope modes, in increasing aggressiveness.
const (
	ScopeHeadings = "headings"
	ScopeSafe     = "safe"
	ScopeAll      = "all"
)

// ValidScope reports whether s names a known scope mode.
func ValidScope(s string) bool {
	return s == ScopeHeadings || s == ScopeSafe || s == ScopeAll
}

// Policy decides which boxes may replace source pixels. The thresholds are
// tuned to avoid covering figures and body text with mispositioned overlays;
// they are configuration, not law.
type Policy struct {
	Scope string

	// Headings scope ceiling, as ratios of the page image.
	MaxHeadingWidthRatio  float64
	MaxHeadingHeightRatio float64

	// Safe scope ceiling.
	MaxSafeWidthRatio  float64
	MaxSafeHeightRatio float64
	MaxSafeAreaRatio   float64

	// Paragraphs taller than this many pixels are never replaced.
	MaxParagraphHeight float64

	// Boxes below this many pixels in either dimension are noise.
	MinWidth  float64
	MinHeight float64

	// Giant-box guard for the all scope.
	GuardWidthRatio  float64
	GuardHeightRatio float64
	GuardAreaRatio   float64
}

// DefaultPolicy returns the standard thresholds for the given scope.
func DefaultPolicy(scope string) Policy {
	return Policy{
		Scope:                 scope,
		MaxHeadingWidthRatio:  0.80,
		MaxHeadingHeightRatio: 0.18,
		MaxSafeWidthRatio:     0.55,
		MaxSafeHeightRatio:    0.10,
		MaxSafeAreaRatio:      0.04,
		MaxParagraphHeight:    70,
		MinWidth:              8,
		MinHeight:             8,
		GuardWidthRatio:       0.9,
		GuardHeightRatio:      0.9,
		GuardAreaRatio:        0.8,
	}
}

// safeTypes are the block types the safe scope targets directly. Small blocks
// of other types still pass on size alone.
func safeType(t annotation.BlockType) bool {
	switch t {
	case annotation.TypeHeading, annotation.TypeTitle,
		annotation.TypeCaption, annotation.TypeFigureCaption, annotation.TypeLabel:
		return true
	}
	return false
}

// Decide reports whether the box may replace pixels on an image of the given
// size, and the reason for the verdict. Decisions depend only on geometry and
// block type; edited text never widens the scope.
func (p Policy) Decide(box annotation.Box, imgW, imgH float64) (bool, string) {
	if imgW <= 0 || imgH <= 0 {
		return false, "invalid_image_size"
	}
	if box.W < p.MinWidth || box.H < p.MinHeight {
		return false, "too_small"
	}

	wRatio := box.W / imgW
	hRatio := box.H / imgH
	areaRatio := (box.W * box.H) / (imgW * imgH)

	// Tall paragraphs are never replaced, regardless of scope. Small
	// paragraphs pass the safe size gate but still need the all scope.
	if box.Type == annotation.TypeParagraph {
		if box.H >= p.MaxParagraphHeight {
			return false, "paragraph_height_exceeded"
		}
		if wRatio > p.MaxSafeWidthRatio || hRatio > p.MaxSafeHeightRatio || areaRatio > p.MaxSafeAreaRatio {
			return false, "paragraph_too_large"
		}
		if p.Scope == ScopeAll {
			return true, "small_paragraph_in_all_scope"
		}
		return false, "paragraph_not_allowed_in_scope"
	}

	switch p.Scope {
	case ScopeHeadings:
		if !box.Type.IsHeading() {
			return false, "type_not_allowed_in_headings_scope"
		}
		if wRatio > p.MaxHeadingWidthRatio || hRatio > p.MaxHeadingHeightRatio {
			return false, "heading_too_large"
		}
		return true, "allowed_in_headings_scope"

	case ScopeSafe:
		if wRatio > p.MaxSafeWidthRatio || hRatio > p.MaxSafeHeightRatio || areaRatio > p.MaxSafeAreaRatio {
			if safeType(box.Type) {
				return false, "block_too_large_for_safe_scope"
			}
			return false, "block_not_safe"
		}
		if safeType(box.Type) {
			return true, "allowed_in_safe_scope"
		}
		return true, "small_block_allowed_in_safe_scope"

	case ScopeAll:
		if wRatio > p.GuardWidthRatio || hRatio > p.GuardHeightRatio || areaRatio > p.GuardAreaRatio {
			return false, "giant_bbox_protected"
		}
		return true, "allowed_in_all_scope"

	default:
		return false, "invalid_scope"
	}
}

// Decision records one policy verdict for the overlay report.
type Decision struct {
	BoxID    string `json:"box_id"`
	Replaced bool   `json:"replaced"`
	Reason   string `json:"reason"`
}

// Report aggregates per-box decisions for one composited image.
type Report struct {
	Image     string     `json:"image"`
	Scope     string     `json:"scope"`
	Total     int        `json:"total"`
	Replaced  int        `json:"replaced"`
	Decisions []Decision `json:"decisions,omitempty"`
}
