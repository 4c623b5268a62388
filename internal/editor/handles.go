package editor

import (
	"math"

	"github.com/lackhoa/fractal-sky/internal/affine"
	"github.com/lackhoa/fractal-sky/internal/scene"
)

// dragInput is what a handle drag sees on every pointer move, in world
// coordinates.
type dragInput struct {
	delta affine.Point // movement since the previous event
	mouse affine.Point // current pointer position
	shift bool
	ctrl  bool
}

// dragFunc solves for the transform that follows a handle.
type dragFunc func(m affine.Matrix, in dragInput) affine.Matrix

// transformDrags maps the corner and side handles to their drag solutions.
// Unshifted corner drags turn the delta into a fraction of the unit square
// through the inverse basis (den = b*c - a*d) and rescale each axis so the
// opposite corner stays put. Shift keeps the aspect ratio by factoring the
// absolute pointer position instead.
var transformDrags = map[scene.Handle]dragFunc{
	scene.HandleBody: func(m affine.Matrix, in dragInput) affine.Matrix {
		return m.Translate(in.delta)
	},
	scene.HandleO:   dragO,
	scene.HandleI:   dragI,
	scene.HandleJ:   dragJ,
	scene.HandleIJ:  dragIJ,
	scene.HandleOI:  dragOI,
	scene.HandleOJ:  dragOJ,
	scene.HandleIIJ: dragIIJ,
	scene.HandleJIJ: dragJIJ,
}

func denom(m affine.Matrix) float64 {
	return m[1]*m[2] - m[0]*m[3]
}

func dragO(m affine.Matrix, in dragInput) affine.Matrix {
	a, b, c, d, e, f := m[0], m[1], m[2], m[3], m[4], m[5]
	if in.shift {
		u := m.Factor(in.mouse)
		s := 1 - min(u.X, u.Y)
		return affine.Matrix{a * s, b * s, c * s, d * s,
			a + c + e - a*s - c*s,
			b + d + f - b*s - d*s}
	}
	den := denom(m)
	dx, dy := in.delta.X, in.delta.Y
	s := (d*dx-c*dy)/den + 1
	t := (-b*dx+a*dy)/den + 1
	return affine.Matrix{s * a, s * b, t * c, t * d,
		a + c + e - s*a - t*c,
		b + d + f - s*b - t*d}
}

func dragI(m affine.Matrix, in dragInput) affine.Matrix {
	a, b, c, d, e, f := m[0], m[1], m[2], m[3], m[4], m[5]
	switch {
	case in.shift:
		x := m.Factor(in.mouse).X
		return affine.Matrix{x * a, x * b, x * c, x * d, e + c - x*c, f + d - x*d}
	case in.ctrl:
		return affine.Matrix{a + in.delta.X, b + in.delta.Y, c, d, e, f}
	}
	den := denom(m)
	dx, dy := in.delta.X, in.delta.Y
	s := 1 + (-d*dx+c*dy)/den
	t := 1 + (-b*dx+a*dy)/den
	return affine.Matrix{s * a, s * b, t * c, t * d, e + c - t*c, f + d - t*d}
}

func dragJ(m affine.Matrix, in dragInput) affine.Matrix {
	a, b, c, d, e, f := m[0], m[1], m[2], m[3], m[4], m[5]
	switch {
	case in.shift:
		y := m.Factor(in.mouse).Y
		return affine.Matrix{y * a, y * b, y * c, y * d, e + a - y*a, f + b - y*b}
	case in.ctrl:
		return affine.Matrix{a, b, c + in.delta.X, d + in.delta.Y, e, f}
	}
	den := denom(m)
	dx, dy := in.delta.X, in.delta.Y
	s := 1 + (d*dx-c*dy)/den
	t := 1 + (b*dx-a*dy)/den
	return affine.Matrix{s * a, s * b, t * c, t * d, e + a - s*a, f + b - s*b}
}

func dragIJ(m affine.Matrix, in dragInput) affine.Matrix {
	a, b, c, d, e, f := m[0], m[1], m[2], m[3], m[4], m[5]
	if in.shift {
		u := m.Factor(in.mouse)
		s := max(u.X, u.Y)
		return affine.Matrix{a * s, b * s, c * s, d * s, e, f}
	}
	den := denom(m)
	dx, dy := in.delta.X, in.delta.Y
	s := -(d*dx-c*dy)/den + 1
	t := (b*dx-a*dy)/den + 1
	return affine.Matrix{s * a, s * b, t * c, t * d, e, f}
}

// The side handles move one edge along its normal: the fraction comes
// straight from factoring the pointer.

func dragOI(m affine.Matrix, in dragInput) affine.Matrix {
	a, b, c, d, e, f := m[0], m[1], m[2], m[3], m[4], m[5]
	t := m.Factor(in.mouse).Y
	return affine.Matrix{a, b, c * (1 - t), d * (1 - t), e + c*t, f + d*t}
}

func dragOJ(m affine.Matrix, in dragInput) affine.Matrix {
	a, b, c, d, e, f := m[0], m[1], m[2], m[3], m[4], m[5]
	s := m.Factor(in.mouse).X
	return affine.Matrix{a * (1 - s), b * (1 - s), c, d, e + a*s, f + b*s}
}

func dragIIJ(m affine.Matrix, in dragInput) affine.Matrix {
	s := m.Factor(in.mouse).X
	return affine.Matrix{m[0] * s, m[1] * s, m[2], m[3], m[4], m[5]}
}

func dragJIJ(m affine.Matrix, in dragInput) affine.Matrix {
	t := m.Factor(in.mouse).Y
	return affine.Matrix{m[0], m[1], m[2] * t, m[3] * t, m[4], m[5]}
}

// rotation is the state a rotator drag keeps from pointer-down.
type rotation struct {
	origin affine.Matrix
	pivot  affine.Point
	start  float64
}

func startRotation(m affine.Matrix, mouse affine.Point) rotation {
	pivot := m.Apply(affine.Pt(0.5, 0.5))
	return rotation{origin: m, pivot: pivot, start: angle(mouse.Sub(pivot))}
}

func angle(v affine.Point) float64 {
	return math.Atan2(v.Y, v.X)
}

// at rotates the original transform about the pivot by how far the pointer
// has turned around it.
func (r rotation) at(mouse affine.Point) affine.Matrix {
	theta := angle(mouse.Sub(r.pivot)) - r.start
	return r.origin.Translate(r.pivot.Neg()).Rotate(theta).Translate(r.pivot)
}

// lineDrag moves one or both endpoints of a line by the pointer delta.
func lineDrag(p1, p2 affine.Point, h scene.Handle, delta affine.Point) (affine.Point, affine.Point, bool) {
	switch h {
	case scene.HandleBody:
		return p1.Add(delta), p2.Add(delta), true
	case scene.HandleEndpoint1:
		return p1.Add(delta), p2, true
	case scene.HandleEndpoint2:
		return p1, p2.Add(delta), true
	default:
		return p1, p2, false
	}
}
