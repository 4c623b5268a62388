package scene

import (
	"fmt"
	"math"
	"slices"
)

// PlanNode is one frame view in the desired view tree. The root node has
// Frame == NoEntity and Depth 0.
type PlanNode struct {
	Frame  EntityID
	Depth  int
	Path   []EntityID // frames crossed from the root, ending with Frame
	Shapes []EntityID // shape views, back to front
	Nested []*PlanNode
	Leaf   bool // no nested group at all
}

// Plan computes the view tree implied by the active shapes and frames (each
// in paint order) at the given tree depth. Every frame view holds a copy of
// every shape and, above the deepest level, a copy of every frame including
// itself.
func Plan(shapes, frames []EntityID, depth int) *PlanNode {
	if depth < 1 {
		panic(fmt.Sprintf("scene: tree depth must be at least 1, got %d", depth))
	}
	return &PlanNode{
		Depth:  0,
		Shapes: shapes,
		Nested: planLayer(shapes, frames, nil, 1, depth),
	}
}

func planLayer(shapes, frames, path []EntityID, depth, maxDepth int) []*PlanNode {
	nodes := make([]*PlanNode, 0, len(frames))
	for _, f := range frames {
		p := append(slices.Clip(path), f)
		n := &PlanNode{
			Frame:  f,
			Depth:  depth,
			Path:   p,
			Shapes: shapes,
			Leaf:   depth >= maxDepth,
		}
		if !n.Leaf {
			n.Nested = planLayer(shapes, frames, p, depth+1, maxDepth)
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// ShapeViewsAt is the number of views a shape has at depth k, given the
// number of active frames and the tree depth.
func ShapeViewsAt(frames, depth, k int) int {
	switch {
	case k == 0:
		return 1
	case k < 0 || k > depth || frames == 0:
		return 0
	default:
		return pow(frames, k)
	}
}

// FrameViewsAt is the number of views a frame has at depth k.
func FrameViewsAt(frames, depth, k int) int {
	if k < 1 || k > depth || frames == 0 {
		return 0
	}
	return pow(frames, k-1)
}

// TotalViews is the number of shape and frame views a scene with the given
// counts materializes at depth. It saturates at math.MaxInt.
func TotalViews(shapes, frames, depth int) int {
	total, perShape := shapes, 1
	for k := 1; k <= depth && frames > 0; k++ {
		// Each frame has frames^(k-1) views on layer k, each shape frames^k.
		total = addSat(total, mulSat(frames, perShape))
		perShape = mulSat(perShape, frames)
		total = addSat(total, mulSat(shapes, perShape))
	}
	return total
}

func mulSat(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}

func addSat(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func pow(base, exp int) int {
	n := 1
	for range exp {
		n *= base
	}
	return n
}
