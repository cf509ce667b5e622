package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"doctrans/annotation"
)

// PreviewOptions controls preview rendering.
type PreviewOptions struct {
	// MaxWidth/MaxHeight bound the preview raster; the source image is
	// downscaled to fit, never upscaled. Zero disables the bound.
	MaxWidth  int
	MaxHeight int
	// FontRatio caps text size at this fraction of each box height.
	// Zero leaves box font sizes uncapped.
	FontRatio float64
	// Debug draws box outlines and IDs without filling backgrounds, for
	// checking alignment against the source pixels.
	Debug bool
}

// RenderPreview draws the box set over the base image and returns the raster.
// Box geometry is in the base image's pixel space; when the preview is
// downscaled the same factor is applied to every box on the fly, so the
// stored geometry is never touched.
func RenderPreview(base image.Image, set annotation.BoxSet, opts PreviewOptions) (*image.NRGBA, error) {
	if base == nil {
		return nil, fmt.Errorf("preview: nil base image")
	}
	b := base.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("preview: empty base image")
	}

	dst, scale := scaleToFit(base, opts.MaxWidth, opts.MaxHeight)
	for _, box := range set.Ordered() {
		if opts.Debug {
			rect := boxRect(box, scale)
			strokeRect(dst, rect, 1, color.NRGBA{0xFF, 0x00, 0x00, 0xFF})
			drawText(dst, rect, box.ID, debugLabelPx, color.NRGBA{0xFF, 0x00, 0x00, 0xFF})
			continue
		}
		burnBox(dst, box, scale, opts.FontRatio)
	}
	return dst, nil
}

// EncodePreview renders the preview and writes it as PNG.
func EncodePreview(w io.Writer, base image.Image, set annotation.BoxSet, opts PreviewOptions) error {
	img, err := RenderPreview(base, set, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}
