package overlay

import (
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"doctrans/annotation"
)

const (
	borderWidth = 2
	padX        = 6
	padY        = 2

	// minFontPx is the floor for burned-in text. Below this the glyphs are
	// unreadable smears, so tiny boxes get this size and let clipping win.
	minFontPx = 4

	// debugLabelPx sizes the box ID labels in debug previews.
	debugLabelPx = 12
)

var (
	burnFontOnce sync.Once
	burnFont     *opentype.Font
	burnFontErr  error
)

func loadBurnFont() (*opentype.Font, error) {
	burnFontOnce.Do(func() {
		burnFont, burnFontErr = opentype.Parse(goregular.TTF)
	})
	return burnFont, burnFontErr
}

// sizedFace returns a Go Regular face at the given pixel size. The embedded
// font cannot realistically fail to parse, but a fixed face keeps text
// rendering alive if it ever does.
func sizedFace(sizePx float64) font.Face {
	if sizePx < minFontPx {
		sizePx = minFontPx
	}
	f, err := loadBurnFont()
	if err != nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    sizePx,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// parseHexColor decodes #RGB and #RRGGBB strings, falling back to the given
// color on malformed input.
func parseHexColor(s string, fallback color.NRGBA) color.NRGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}
}

// scaleToFit downscales img so it fits within maxW x maxH, preserving aspect
// ratio. Images already within bounds are returned converted, not resampled.
// The second return is the applied scale factor.
func scaleToFit(img image.Image, maxW, maxH int) (*image.NRGBA, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := 1.0
	if maxW > 0 && maxH > 0 && w > 0 && h > 0 {
		sw := float64(maxW) / float64(w)
		sh := float64(maxH) / float64(h)
		if sw < scale {
			scale = sw
		}
		if sh < scale {
			scale = sh
		}
	}
	if scale >= 1.0 {
		out := image.NewNRGBA(image.Rect(0, 0, w, h))
		xdraw.Draw(out, out.Bounds(), img, b.Min, xdraw.Src)
		return out, 1.0
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	out := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, b, xdraw.Src, nil)
	return out, scale
}

// fillRect paints a solid rectangle clipped to the destination bounds.
func fillRect(dst *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	xdraw.Draw(dst, r, &image.Uniform{c}, image.Point{}, xdraw.Src)
}

// strokeRect draws a rectangle outline of the given width, clipped to the
// destination bounds.
func strokeRect(dst *image.NRGBA, r image.Rectangle, width int, c color.NRGBA) {
	if width <= 0 {
		return
	}
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width), c)
	fillRect(dst, image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y), c)
}

// drawText renders text inside rect at the given pixel size with word
// wrapping, dropping lines that would overflow the box vertically.
func drawText(dst *image.NRGBA, rect image.Rectangle, text string, sizePx float64, c color.NRGBA) {
	face := sizedFace(sizePx)
	inner := image.Rect(rect.Min.X+padX, rect.Min.Y+padY, rect.Max.X-padX, rect.Max.Y-padY)
	inner = inner.Intersect(dst.Bounds())
	if inner.Empty() {
		return
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{c},
		Face: face,
	}
	lineHeight := face.Metrics().Height.Ceil()
	ascent := face.Metrics().Ascent.Ceil()

	y := inner.Min.Y + ascent
	for _, line := range wrapText(d, text, inner.Dx()) {
		if y > inner.Max.Y {
			break
		}
		d.Dot = fixed.P(inner.Min.X, y)
		d.DrawString(line)
		y += lineHeight
	}
}

// wrapText greedily packs words into lines no wider than maxWidth pixels.
// A single word wider than the box gets its own line and is clipped by the
// drawing bounds rather than split.
func wrapText(d *font.Drawer, text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	current := words[0]
	for _, w := range words[1:] {
		candidate := current + " " + w
		if d.MeasureString(candidate).Ceil() <= maxWidth {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = w
	}
	return append(lines, current)
}

// boxRect converts box geometry to an integer rectangle at the given scale.
func boxRect(b annotation.Box, scale float64) image.Rectangle {
	return image.Rect(
		int(b.X*scale), int(b.Y*scale),
		int((b.X+b.W)*scale), int((b.Y+b.H)*scale),
	)
}

// burnBox paints one translated box onto the raster: background fill, border,
// wrapped text. Style colors come from the box with white/black defaults.
// The text size is the box font size capped at fontRatio of the box height,
// then scaled with the raster.
func burnBox(dst *image.NRGBA, b annotation.Box, scale, fontRatio float64) {
	style := b.Style.Resolved()
	rect := boxRect(b, scale)
	size := style.FontSize
	if fontRatio > 0 && fontRatio*b.H < size {
		size = fontRatio * b.H
	}
	bg := parseHexColor(style.BackgroundColor, color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF})
	fg := parseHexColor(style.Color, color.NRGBA{0x00, 0x00, 0x00, 0xFF})
	fillRect(dst, rect, bg)
	strokeRect(dst, rect, borderWidth, color.NRGBA{0x00, 0x00, 0x00, 0xFF})
	drawText(dst, rect, b.Text, size*scale, fg)
}
