// Package annotation defines the canonical text-region data model shared by
// the vision, OCR, editing and overlay stages. A Box records where a piece of
// text sits on an image and what its current (possibly edited) content is;
// the coordinate space is explicit metadata, never implied by the caller.
package annotation

import (
	"strings"

	"doctrans/fault"
)

// Space identifies the coordinate space of a Box's geometry.
type Space string

const (
	// SpacePixel means x,y,w,h are native image pixels.
	SpacePixel Space = "pixel"
	// SpaceNormalized means x,y,w,h are fractions of the container size.
	SpaceNormalized Space = "normalized"
)

// BlockType classifies a detected text region. It drives the overlay scope
// policy; an unknown type degrades to paragraph rather than failing.
type BlockType string

const (
	TypeHeading       BlockType = "heading"
	TypeTitle         BlockType = "title"
	TypeParagraph     BlockType = "paragraph"
	TypeCaption       BlockType = "caption"
	TypeFigureCaption BlockType = "figure_caption"
	TypeLabel         BlockType = "label"
	TypeList          BlockType = "list"
	TypeTable         BlockType = "table"
	TypeFigure        BlockType = "figure"
	TypeOther         BlockType = "other"
)

// ParseBlockType normalizes a raw type string from a vision payload.
func ParseBlockType(s string) BlockType {
	switch t := BlockType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeHeading, TypeTitle, TypeParagraph, TypeCaption,
		TypeFigureCaption, TypeLabel, TypeList, TypeTable, TypeFigure, TypeOther:
		return t
	default:
		return TypeParagraph
	}
}

// IsHeading reports whether the type belongs to the headings overlay scope.
func (t BlockType) IsHeading() bool { return t == TypeHeading || t == TypeTitle }

// Style carries the presentation attributes of a Box. Zero values mean
// "use the default"; Resolved fills them in.
type Style struct {
	FontSize        float64 `json:"fontSize,omitempty"`
	FontWeight      string  `json:"fontWeight,omitempty"`
	FontStyle       string  `json:"fontStyle,omitempty"`
	Color           string  `json:"color,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
}

// Style defaults.
const (
	DefaultFontSize   = 16.0
	DefaultFontWeight = "normal"
	DefaultFontStyle  = "normal"
	DefaultColor      = "#000000"
	DefaultBackground = "#FFFFFF"
)

// Resolved returns a copy with defaults applied to unset fields.
func (s Style) Resolved() Style {
	if s.FontSize <= 0 {
		s.FontSize = DefaultFontSize
	}
	if s.FontWeight == "" {
		s.FontWeight = DefaultFontWeight
	}
	if s.FontStyle == "" {
		s.FontStyle = DefaultFontStyle
	}
	if s.Color == "" {
		s.Color = DefaultColor
	}
	if s.BackgroundColor == "" {
		s.BackgroundColor = DefaultBackground
	}
	return s
}

// Box is one annotatable text region. OriginalText and the original geometry
// are snapshotted at creation and never change afterwards; they back the
// "reset to original" and modified-diff operations.
type Box struct {
	ID    string  `json:"id"`
	Space Space   `json:"space"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`

	Text         string `json:"text"`
	OriginalText string `json:"originalText"`

	Type       BlockType `json:"type,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Style      Style     `json:"style,omitempty"`

	// Snapshot of the creation-time geometry.
	OrigX float64 `json:"origX"`
	OrigY float64 `json:"origY"`
	OrigW float64 `json:"origW"`
	OrigH float64 `json:"origH"`
}

// NewBox constructs a Box, validating geometry before any use. Width and
// height must be positive; pixel-space positions must be non-negative.
func NewBox(id string, space Space, x, y, w, h float64, text string) (Box, error) {
	if w <= 0 || h <= 0 {
		return Box{}, fault.Validation("box %s: dimensions must be positive, got w=%g h=%g", id, w, h)
	}
	if space == SpacePixel && (x < 0 || y < 0) {
		return Box{}, fault.Validation("box %s: pixel position must be non-negative, got x=%g y=%g", id, x, y)
	}
	if space != SpacePixel && space != SpaceNormalized {
		return Box{}, fault.Validation("box %s: unknown coordinate space %q", id, space)
	}
	return Box{
		ID: id, Space: space,
		X: x, Y: y, W: w, H: h,
		Text: text, OriginalText: text,
		Type:  TypeParagraph,
		OrigX: x, OrigY: y, OrigW: w, OrigH: h,
	}, nil
}

// Clone returns a copy of the box.
func (b Box) Clone() Box { return b }

// WithText returns a copy carrying new text content. The original snapshot
// is untouched.
func (b Box) WithText(text string) Box {
	b.Text = text
	return b
}

// Modified reports whether text or geometry differs from the creation-time
// snapshot.
func (b Box) Modified() bool {
	return b.Text != b.OriginalText ||
		b.X != b.OrigX || b.Y != b.OrigY || b.W != b.OrigW || b.H != b.OrigH
}

// ResetToOriginal restores the snapshotted text and geometry.
func (b Box) ResetToOriginal() Box {
	b.Text = b.OriginalText
	b.X, b.Y, b.W, b.H = b.OrigX, b.OrigY, b.OrigW, b.OrigH
	return b
}
