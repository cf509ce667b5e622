package coords

import (
	"math"

	"doctrans/annotation"
	"doctrans/fault"
)

// Frame describes how a native-resolution raster is currently displayed.
// DisplayWidth/DisplayHeight exclude zoom: zoom is a presentation-only
// multiplier that must never be baked into converted coordinates, and
// therefore never into persisted geometry. Frames are ephemeral and
// recomputed per render; they are not persisted.
type Frame struct {
	DisplayWidth  float64
	DisplayHeight float64
	NativeWidth   float64
	NativeHeight  float64
	Zoom          float64
}

func (f Frame) zoom() float64 {
	if f.Zoom <= 0 {
		return 1
	}
	return f.Zoom
}

// valid reports whether the frame can support conversions.
func (f Frame) valid() bool {
	return f.DisplayWidth > 0 && f.DisplayHeight > 0 &&
		f.NativeWidth > 0 && f.NativeHeight > 0
}

// displayToNative builds the display→native transform.
func (f Frame) displayToNative() Matrix {
	return Scale(f.NativeWidth/f.DisplayWidth, f.NativeHeight/f.DisplayHeight)
}

// ScreenToNative converts an on-screen pointer position (zoomed display
// pixels) to native image pixels.
func ScreenToNative(p Point, f Frame) (Point, error) {
	if !f.valid() {
		return Point{}, fault.FrameUnavailable("display or native size is zero; defer the operation")
	}
	z := f.zoom()
	unzoomed := Point{X: p.X / z, Y: p.Y / z}
	return f.displayToNative().Transform(unzoomed), nil
}

// NativeToScreen converts native image pixels to on-screen (zoomed display)
// pixels.
func NativeToScreen(p Point, f Frame) (Point, error) {
	if !f.valid() {
		return Point{}, fault.FrameUnavailable("display or native size is zero; defer the operation")
	}
	inv, ok := f.displayToNative().Inverse()
	if !ok {
		return Point{}, fault.FrameUnavailable("frame transform is singular")
	}
	q := inv.Transform(p)
	z := f.zoom()
	return Point{X: q.X * z, Y: q.Y * z}, nil
}

// NativeToNormalized converts a native length to a fraction of the container
// size.
func NativeToNormalized(v, containerSize float64) (float64, error) {
	if containerSize <= 0 {
		return 0, fault.FrameUnavailable("container size is zero or unknown")
	}
	return v / containerSize, nil
}

// NormalizedToNative converts a fraction back to native pixels.
func NormalizedToNative(f, containerSize float64) (float64, error) {
	if containerSize <= 0 {
		return 0, fault.FrameUnavailable("container size is zero or unknown")
	}
	return f * containerSize, nil
}

// NormalizeBox converts a pixel-space box to normalized space against the
// given container, flipping its Space tag. A box already normalized is
// returned unchanged.
func NormalizeBox(b annotation.Box, containerW, containerH float64) (annotation.Box, error) {
	if b.Space == annotation.SpaceNormalized {
		return b, nil
	}
	if containerW <= 0 || containerH <= 0 {
		return annotation.Box{}, fault.FrameUnavailable("container size is zero or unknown")
	}
	b.X /= containerW
	b.Y /= containerH
	b.W /= containerW
	b.H /= containerH
	b.OrigX /= containerW
	b.OrigY /= containerH
	b.OrigW /= containerW
	b.OrigH /= containerH
	b.Space = annotation.SpaceNormalized
	return b, nil
}

// DenormalizeBox converts a normalized box to pixel space against the given
// container.
func DenormalizeBox(b annotation.Box, containerW, containerH float64) (annotation.Box, error) {
	if b.Space == annotation.SpacePixel {
		return b, nil
	}
	if containerW <= 0 || containerH <= 0 {
		return annotation.Box{}, fault.FrameUnavailable("container size is zero or unknown")
	}
	b.X *= containerW
	b.Y *= containerH
	b.W *= containerW
	b.H *= containerH
	b.OrigX *= containerW
	b.OrigY *= containerH
	b.OrigW *= containerW
	b.OrigH *= containerH
	b.Space = annotation.SpacePixel
	return b, nil
}

// Snap rounds v to the nearest multiple of unit. Snapping is applied after
// space conversion, never before, to avoid compounding rounding error.
func Snap(v, unit float64) float64 {
	if unit <= 0 {
		return v
	}
	return math.Round(v/unit) * unit
}
