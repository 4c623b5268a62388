package editor

import (
	"github.com/lackhoa/fractal-sky/internal/affine"
)

// MinZoom is the smallest zoom factor a viewport accepts.
const MinZoom = 0.1

// Viewport maps surface coordinates to world coordinates:
// world = (surface - pan) / zoom.
type Viewport interface {
	Pan() affine.Point
	Zoom() float64
	PanBy(delta affine.Point)
}

// StaticViewport is a plain in-memory Viewport.
type StaticViewport struct {
	pan  affine.Point
	zoom float64
}

func NewStaticViewport() *StaticViewport {
	return &StaticViewport{zoom: 1}
}

func (v *StaticViewport) Pan() affine.Point { return v.pan }

func (v *StaticViewport) Zoom() float64 { return v.zoom }

func (v *StaticViewport) PanBy(delta affine.Point) {
	v.pan = v.pan.Add(delta)
}

// ZoomAt scales the view by factor, keeping the surface point at fixed.
func (v *StaticViewport) ZoomAt(factor float64, at affine.Point) {
	next := max(v.zoom*factor, MinZoom)
	k := next / v.zoom
	// at - pan scales with the zoom so the world point under "at" stays put.
	v.pan = at.Sub(at.Sub(v.pan).Scale(k))
	v.zoom = next
}

// ToWorld converts a surface point to world coordinates.
func ToWorld(v Viewport, p affine.Point) affine.Point {
	return p.Sub(v.Pan()).Scale(1 / v.Zoom())
}
