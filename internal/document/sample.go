package document

import (
	"github.com/lackhoa/fractal-sky/internal/affine"
	"github.com/lackhoa/fractal-sky/internal/scene"
)

// NewSampleDiagram returns a Sierpinski triangle: one triangle covering the
// frame square and three half-size frames tiling it.
func NewSampleDiagram(frameDim float64) []Record {
	tri := scene.TriangleMold()
	tri.Attrs[scene.AttrTransform] = affine.Matrix{frameDim, 0, 0, frameDim, 0, 0}

	half := frameDim / 2
	return []Record{
		Shape(tri.Tag, tri.Attrs),
		Frame(affine.Matrix{0.5, 0, 0, 0.5, half / 2, 0}),
		Frame(affine.Matrix{0.5, 0, 0, 0.5, 0, half}),
		Frame(affine.Matrix{0.5, 0, 0, 0.5, half, half}),
	}
}

// NewBlankDiagram returns an empty diagram.
func NewBlankDiagram() []Record {
	return []Record{}
}
