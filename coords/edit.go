package coords

import "doctrans/annotation"

// Handle names a resize corner.
type Handle string

const (
	HandleNW Handle = "nw"
	HandleNE Handle = "ne"
	HandleSW Handle = "sw"
	HandleSE Handle = "se"
)

// Limits carries the editor geometry constraints. The zero value disables
// snapping and minimum-size clamping; production callers populate it from
// config (snap 5, minimums 20x30).
type Limits struct {
	SnapUnit  float64
	MinWidth  float64
	MinHeight float64
}

// DefaultLimits mirrors the engine defaults.
func DefaultLimits() Limits { return Limits{SnapUnit: 5, MinWidth: 20, MinHeight: 30} }

// Grip is the offset between the pointer and the box origin, captured in
// native pixels at drag start. Keeping the grip fixed for the whole gesture
// guarantees the box does not jump to align with the pointer when the drag
// begins from an arbitrary point inside it.
type Grip struct{ DX, DY float64 }

// NewGrip captures the grip for a drag that starts at pointerNative.
func NewGrip(pointerNative Point, b annotation.Box) Grip {
	return Grip{DX: pointerNative.X - b.X, DY: pointerNative.Y - b.Y}
}

// Drag moves the box so that its origin tracks pointerNative minus the grip,
// snapped, then clamped inside the container (container dimensions <= 0 skip
// clamping). Size never changes during a drag.
func Drag(b annotation.Box, pointerNative Point, g Grip, lim Limits, containerW, containerH float64) annotation.Box {
	x := Snap(pointerNative.X-g.DX, lim.SnapUnit)
	y := Snap(pointerNative.Y-g.DY, lim.SnapUnit)

	if containerW > 0 {
		if x+b.W > containerW {
			x = containerW - b.W
		}
		if x < 0 {
			x = 0
		}
	}
	if containerH > 0 {
		if y+b.H > containerH {
			y = containerH - b.H
		}
		if y < 0 {
			y = 0
		}
	}

	b.X, b.Y = x, y
	return b
}

// Resize redefines the two edges adjacent to the dragged handle while holding
// the opposite corner fixed. Width and height are clamped to the minimums by
// adjusting the moving edge's position, never by letting the size go negative.
// The anchor corner's stored coordinates are not recomputed, so they are
// preserved bit for bit.
func Resize(b annotation.Box, h Handle, pointerNative Point, lim Limits) annotation.Box {
	minW, minH := lim.MinWidth, lim.MinHeight
	px := Snap(pointerNative.X, lim.SnapUnit)
	py := Snap(pointerNative.Y, lim.SnapUnit)

	right := b.X + b.W
	bottom := b.Y + b.H

	switch h {
	case HandleSE:
		// Anchor: (X, Y). Moving edges: right, bottom.
		w := px - b.X
		if w < minW {
			w = minW
		}
		hh := py - b.Y
		if hh < minH {
			hh = minH
		}
		b.W, b.H = w, hh

	case HandleSW:
		// Anchor: (X+W, Y). Moving edges: left, bottom.
		x := px
		if right-x < minW {
			x = right - minW
		}
		hh := py - b.Y
		if hh < minH {
			hh = minH
		}
		b.W = right - x
		b.X = x
		b.H = hh

	case HandleNE:
		// Anchor: (X, Y+H). Moving edges: right, top.
		w := px - b.X
		if w < minW {
			w = minW
		}
		y := py
		if bottom-y < minH {
			y = bottom - minH
		}
		b.W = w
		b.H = bottom - y
		b.Y = y

	case HandleNW:
		// Anchor: (X+W, Y+H). Moving edges: left, top.
		x := px
		if right-x < minW {
			x = right - minW
		}
		y := py
		if bottom-y < minH {
			y = bottom - minH
		}
		b.W = right - x
		b.X = x
		b.H = bottom - y
		b.Y = y
	}

	return b
}

// ClampToContainer pushes a box fully inside the container, shrinking it only
// when it is larger than the container itself.
func ClampToContainer(b annotation.Box, containerW, containerH float64) annotation.Box {
	if containerW > 0 {
		if b.W > containerW {
			b.W = containerW
		}
		if b.X < 0 {
			b.X = 0
		}
		if b.X+b.W > containerW {
			b.X = containerW - b.W
		}
	}
	if containerH > 0 {
		if b.H > containerH {
			b.H = containerH
		}
		if b.Y < 0 {
			b.Y = 0
		}
		if b.Y+b.H > containerH {
			b.Y = containerH - b.H
		}
	}
	return b
}
