// Package affine implements the 2-D affine transform algebra used by shapes,
// frames and the drag handles that edit them.
package affine

import (
	"fmt"
	"math"
)

// Matrix represents a 2D affine transformation matrix.
// Layout: [a, b, c, d, e, f] representing:
// | a  c  e |
// | b  d  f |
// | 0  0  1 |
//
// (a, b) is the image of the unit x axis ("i"), (c, d) the image of the unit
// y axis ("j") and (e, f) the image of the origin ("o").
type Matrix [6]float64

// Point is a 2D point or vector.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{x, y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{p.X + q.X, p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{p.X - q.X, p.Y - q.Y}
}

// Scale returns p * k.
func (p Point) Scale(k float64) Point {
	return Point{p.X * k, p.Y * k}
}

// Neg returns -p.
func (p Point) Neg() Point {
	return Point{-p.X, -p.Y}
}

// Distance returns the euclidean distance between two points.
func Distance(p, q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Identity returns the identity matrix.
func Identity() Matrix {
	return Matrix{1, 0, 0, 1, 0, 0}
}

// Translation returns a translation matrix.
func Translation(tx, ty float64) Matrix {
	return Matrix{1, 0, 0, 1, tx, ty}
}

// Scaling returns a scale matrix.
func Scaling(sx, sy float64) Matrix {
	return Matrix{sx, 0, 0, sy, 0, 0}
}

// Rotation returns a rotation matrix (angle in radians).
func Rotation(radians float64) Matrix {
	cos := math.Cos(radians)
	sin := math.Sin(radians)
	return Matrix{cos, sin, -sin, cos, 0, 0}
}

// FromSlice converts a serialized transform into a Matrix.
// It panics unless v holds exactly 6 finite numbers.
func FromSlice(v []float64) Matrix {
	if len(v) != 6 {
		panic(fmt.Sprintf("affine: transform needs 6 numbers, got %d", len(v)))
	}
	var m Matrix
	copy(m[:], v)
	if !m.IsFinite() {
		panic(fmt.Sprintf("affine: transform has non-finite entries: %v", v))
	}
	return m
}

// ToSlice returns the matrix as a float64 slice for JSON serialization.
func (m Matrix) ToSlice() []float64 {
	return []float64{m[0], m[1], m[2], m[3], m[4], m[5]}
}

// IsFinite reports whether every entry is a finite number.
func (m Matrix) IsFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Translate post-translates the matrix: the origin moves by p.
func (m Matrix) Translate(p Point) Matrix {
	return Matrix{m[0], m[1], m[2], m[3], m[4] + p.X, m[5] + p.Y}
}

// Extend grows the two axes independently: dx is added to a, dy to d.
func (m Matrix) Extend(p Point) Matrix {
	return Matrix{m[0] + p.X, m[1], m[2], m[3] + p.Y, m[4], m[5]}
}

// Scale multiplies both basis vectors by k, leaving the origin alone.
func (m Matrix) Scale(k float64) Matrix {
	return Matrix{m[0] * k, m[1] * k, m[2] * k, m[3] * k, m[4], m[5]}
}

// Apply transforms a point.
func (m Matrix) Apply(p Point) Point {
	return Point{m[0]*p.X + m[2]*p.Y + m[4], m[1]*p.X + m[3]*p.Y + m[5]}
}

// Compose multiplies this matrix by another: result = m * other.
// This applies 'other' first, then 'm'.
func (m Matrix) Compose(other Matrix) Matrix {
	return Matrix{
		m[0]*other[0] + m[2]*other[1],        // a
		m[1]*other[0] + m[3]*other[1],        // b
		m[0]*other[2] + m[2]*other[3],        // c
		m[1]*other[2] + m[3]*other[3],        // d
		m[0]*other[4] + m[2]*other[5] + m[4], // e
		m[1]*other[4] + m[3]*other[5] + m[5], // f
	}
}

// Rotate rotates the whole transform (origin included) about the world origin.
func (m Matrix) Rotate(radians float64) Matrix {
	return Rotation(radians).Compose(m)
}

// Determinant returns the determinant of the matrix.
func (m Matrix) Determinant() float64 {
	return m[0]*m[3] - m[1]*m[2]
}

// Factor is the inverse of Apply: it returns the coordinates, in the matrix's
// own unit basis, of the point that m maps onto p.
// It panics when the matrix is singular.
func (m Matrix) Factor(p Point) Point {
	a, b, c, d, e, f := m[0], m[1], m[2], m[3], m[4], m[5]
	den := b*c - a*d
	if den == 0 {
		panic(fmt.Sprintf("affine: cannot factor through singular matrix %v", m))
	}
	return Point{
		X: (-c*f + c*p.Y - d*p.X + e*d) / den,
		Y: (a*f - a*p.Y + b*p.X - e*b) / den,
	}
}

// ApproxEqual reports whether every entry of m is within eps of other.
func (m Matrix) ApproxEqual(other Matrix, eps float64) bool {
	for i := range m {
		if math.Abs(m[i]-other[i]) > eps {
			return false
		}
	}
	return true
}

// IsIdentity checks if this is the identity matrix (within epsilon).
func (m Matrix) IsIdentity() bool {
	return m.ApproxEqual(Identity(), 1e-10)
}
