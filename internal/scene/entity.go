package scene

import (
	"fmt"
	"maps"

	"github.com/lackhoa/fractal-sky/internal/affine"
)

// EntityID addresses an entity in the scene arena. Ids are stable for the
// lifetime of the arena; NoEntity is never assigned.
type EntityID int

// NoEntity is the zero id, used for "no sibling" and "nothing focused".
const NoEntity EntityID = 0

// Kind is the entity variant. It is fixed at construction.
type Kind uint8

const (
	KindShape Kind = iota + 1
	KindFrame
)

func (k Kind) String() string {
	switch k {
	case KindShape:
		return "shape"
	case KindFrame:
		return "frame"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Attrs holds entity attributes. Transforms are stored as affine.Matrix,
// numbers as float64 and everything else as strings.
type Attrs map[string]any

// Clone returns a shallow copy of the attributes.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return Attrs{}
	}
	return maps.Clone(a)
}

// Attribute keys with meaning to the core.
const (
	AttrTransform = "transform"
	AttrXform     = "xform"
	AttrX1        = "x1"
	AttrY1        = "y1"
	AttrX2        = "x2"
	AttrY2        = "y2"
)

// Tags with meaning to the core.
const (
	TagLine  = "line"
	TagFrame = "frame"
)

// View is one materialized occurrence of an entity in the nested-frame tree.
type View struct {
	Element ElementRef
	Parent  ElementRef
	Depth   int
	Path    []EntityID // frames crossed from the root to reach Parent
}

// Entity is a shape or a frame.
type Entity struct {
	id     EntityID
	kind   Kind
	tag    string
	attrs  Attrs
	active bool

	// Sibling links inside the list of the entity's kind. They survive
	// deregistration so the entity can be re-inserted at the same place.
	prev, next EntityID

	// Views bucketed by depth: index k holds depth k for shapes and
	// depth k+1 for frames (frames never appear at the root).
	viewLayers [][]View

	chrome chrome
}

func (e *Entity) ID() EntityID { return e.id }
func (e *Entity) Kind() Kind   { return e.kind }
func (e *Entity) Tag() string  { return e.tag }

// Active reports whether the entity is registered (visible). Inactive
// entities are kept only so undo can bring them back.
func (e *Entity) Active() bool { return e.active }

// IsLine reports whether the entity is a line shape, which has endpoints
// instead of a transform.
func (e *Entity) IsLine() bool {
	return e.kind == KindShape && e.tag == TagLine
}

func (e *Entity) Next() EntityID { return e.next }
func (e *Entity) Prev() EntityID { return e.prev }

// Attr returns a single attribute.
func (e *Entity) Attr(key string) (any, bool) {
	v, ok := e.attrs[key]
	return v, ok
}

// Attrs returns a copy of the entity's attributes.
func (e *Entity) Attrs() Attrs {
	return e.attrs.Clone()
}

// Transform returns the entity transform. It panics for lines.
func (e *Entity) Transform() affine.Matrix {
	v, ok := e.attrs[AttrTransform]
	if !ok {
		panic(fmt.Sprintf("scene: %s %d has no transform", e.tag, e.id))
	}
	return v.(affine.Matrix)
}

// Endpoints returns the two endpoints of a line.
func (e *Entity) Endpoints() (affine.Point, affine.Point) {
	return affine.Pt(Number(e.attrs[AttrX1]), Number(e.attrs[AttrY1])),
		affine.Pt(Number(e.attrs[AttrX2]), Number(e.attrs[AttrY2]))
}

// ViewLayers returns the entity's views bucketed by depth. The result must
// not be modified.
func (e *Entity) ViewLayers() [][]View {
	return e.viewLayers
}

// ViewCount returns the total number of materialized views.
func (e *Entity) ViewCount() int {
	n := 0
	for _, layer := range e.viewLayers {
		n += len(layer)
	}
	return n
}

func (e *Entity) addView(layer int, v View) {
	for len(e.viewLayers) <= layer {
		e.viewLayers = append(e.viewLayers, nil)
	}
	e.viewLayers[layer] = append(e.viewLayers[layer], v)
}

func (e *Entity) forEachView(fn func(View)) {
	for _, layer := range e.viewLayers {
		for _, v := range layer {
			fn(v)
		}
	}
}

// Number reads a numeric attribute value.
func Number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// Matrix converts a transform attribute value. It panics on anything that is
// not a Matrix or a 6-number slice.
func Matrix(v any) affine.Matrix {
	switch m := v.(type) {
	case affine.Matrix:
		if !m.IsFinite() {
			panic(fmt.Sprintf("scene: non-finite transform %v", m))
		}
		return m
	case []float64:
		return affine.FromSlice(m)
	default:
		panic(fmt.Sprintf("scene: transform must be a matrix, got %T", v))
	}
}
