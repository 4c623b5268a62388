package scene

import (
	"fmt"

	"github.com/lackhoa/fractal-sky/internal/affine"
)

// Handle names a draggable part of an entity's chrome.
type Handle uint8

const (
	HandleNone Handle = iota
	HandleBody
	HandleO  // origin corner
	HandleI  // end of the i axis
	HandleJ  // end of the j axis
	HandleIJ // opposite corner
	HandleOI
	HandleOJ
	HandleIIJ
	HandleJIJ
	HandleRotate
	HandleEndpoint1
	HandleEndpoint2
)

var handleNames = [...]string{
	HandleNone:      "none",
	HandleBody:      "body",
	HandleO:         "o",
	HandleI:         "i",
	HandleJ:         "j",
	HandleIJ:        "ij",
	HandleOI:        "oi",
	HandleOJ:        "oj",
	HandleIIJ:       "i_ij",
	HandleJIJ:       "j_ij",
	HandleRotate:    "rotate",
	HandleEndpoint1: "endpoint1",
	HandleEndpoint2: "endpoint2",
}

func (h Handle) String() string {
	if int(h) < len(handleNames) {
		return handleNames[h]
	}
	return fmt.Sprintf("handle(%d)", uint8(h))
}

// ParseHandle maps a handle name back to its Handle.
func ParseHandle(name string) (Handle, bool) {
	for h, n := range handleNames {
		if n == name {
			return Handle(h), true
		}
	}
	return HandleNone, false
}

// pointHandles are the eight corner and side handles of a 2-D entity.
var pointHandles = []Handle{
	HandleO, HandleI, HandleJ, HandleIJ,
	HandleOI, HandleOJ, HandleIIJ, HandleJIJ,
}

const (
	cornerWidth     = 20.0
	rotatorDistance = 50.0
)

// Layout is the position of every chrome handle for a transform.
type Layout struct {
	Points  map[Handle]affine.Point
	Rotator affine.Matrix
}

// LayoutFor places the handles around the unit square mapped by m.
func LayoutFor(m affine.Matrix) Layout {
	a, b, c, d, e, f := m[0], m[1], m[2], m[3], m[4], m[5]
	o := affine.Pt(e, f)
	ij := affine.Pt(a+c+e, b+d+f)
	l := Layout{
		Points: map[Handle]affine.Point{
			HandleO:   o,
			HandleI:   affine.Pt(a+e, b+f),
			HandleJ:   affine.Pt(c+e, d+f),
			HandleIJ:  ij,
			HandleOI:  affine.Pt(a/2+e, b/2+f),
			HandleOJ:  affine.Pt(c/2+e, d/2+f),
			HandleIIJ: affine.Pt(a+c/2+e, b+d/2+f),
			HandleJIJ: affine.Pt(a/2+c+e, b/2+d+f),
		},
	}
	// The rotator sits outside the origin corner, along the diagonal.
	rx, ry := e, f
	if diag := affine.Distance(o, ij); diag > 0 {
		rx = e - rotatorDistance*(a+c)/diag
		ry = f - rotatorDistance*(b+d)/diag
	}
	l.Rotator = affine.Matrix{cornerWidth, 0, 0, cornerWidth, rx, ry}
	return l
}

type chrome struct {
	box      ElementRef
	controls ElementRef
	axes     ElementRef
	rotator  ElementRef
	handles  map[Handle]ElementRef
}

func hitAttrs(id EntityID, h Handle, extra Attrs) Attrs {
	a := Attrs{"data-entity": int(id), "data-handle": h.String()}
	for k, v := range extra {
		a[k] = v
	}
	return a
}

// createChrome builds the hit box, control handles and (for frames) axes of
// a freshly registered entity. The box is placed in front of the next
// sibling's box so hit testing follows paint order.
func (s *Scene) createChrome(e *Entity) {
	var boxLayer ElementRef
	switch {
	case e.kind == KindFrame:
		boxLayer = s.layers.frameBoxes
		e.chrome.box = s.sink.CreateElement("rect", hitAttrs(e.id, HandleBody, Attrs{
			"class":          "frame-box",
			"width":          1.0,
			"height":         1.0,
			"fill":           "transparent",
			"stroke":         "transparent",
			"stroke-width":   cornerWidth,
			"pointer-events": "stroke",
			"vector-effect":  "non-scaling-stroke",
		}))
	case e.IsLine():
		boxLayer = s.layers.boxes
		e.chrome.box = s.sink.CreateElement("line", hitAttrs(e.id, HandleBody, Attrs{
			"class":         "line-box",
			"stroke":        "transparent",
			"stroke-width":  cornerWidth,
			"vector-effect": "non-scaling-stroke",
		}))
	default:
		boxLayer = s.layers.boxes
		e.chrome.box = s.sink.CreateElement("rect", hitAttrs(e.id, HandleBody, Attrs{
			"class":         "box",
			"width":         1.0,
			"height":        1.0,
			"fill":          "transparent",
			"stroke":        "transparent",
			"vector-effect": "non-scaling-stroke",
		}))
	}
	next := NoElement
	if e.next != NoEntity {
		next = s.at(e.next).chrome.box
	}
	s.attach(boxLayer, e.chrome.box, next)

	e.chrome.controls = s.sink.CreateElement("g", Attrs{"class": "controls", "visibility": "hidden"})
	e.chrome.handles = make(map[Handle]ElementRef)
	if e.IsLine() {
		for _, h := range []Handle{HandleEndpoint1, HandleEndpoint2} {
			e.chrome.handles[h] = s.newCorner(e.id, h)
		}
	} else {
		for _, h := range pointHandles {
			e.chrome.handles[h] = s.newCorner(e.id, h)
		}
		e.chrome.rotator = s.newRotator(e.id)
		s.sink.AppendChild(e.chrome.controls, e.chrome.rotator)
	}
	s.sink.AppendChild(s.layers.controls, e.chrome.controls)

	if e.kind == KindFrame {
		e.chrome.axes = s.sink.CreateElement("use", Attrs{"href": "#frame-axes", "class": "axes"})
		s.sink.AppendChild(s.layers.axes, e.chrome.axes)
	}
	s.updateChrome(e)
}

func (s *Scene) newCorner(id EntityID, h Handle) ElementRef {
	el := s.sink.CreateElement("circle", hitAttrs(id, h, Attrs{
		"class":  "corner",
		"r":      cornerWidth / 2,
		"fill":   "transparent",
		"stroke": "red",
		"cursor": "move",
	}))
	s.sink.AppendChild(s.chromeOf(id).controls, el)
	return el
}

func (s *Scene) newRotator(id EntityID) ElementRef {
	g := s.sink.CreateElement("g", Attrs{"class": "rotator"})
	for _, part := range []struct {
		tag   string
		attrs Attrs
	}{
		{"path", Attrs{"d": "M 0.5 0 A 0.5 0.5 0 1 1 0 0.5", "fill": "transparent", "stroke": "white", "vector-effect": "non-scaling-stroke"}},
		{"line", Attrs{"x1": 0.0, "y1": 0.5, "x2": -0.2, "y2": 0.3, "stroke": "white", "vector-effect": "non-scaling-stroke"}},
		{"line", Attrs{"x1": 0.0, "y1": 0.5, "x2": 0.2, "y2": 0.3, "stroke": "white", "vector-effect": "non-scaling-stroke"}},
	} {
		el := s.sink.CreateElement(part.tag, part.attrs)
		s.sink.AppendChild(g, el)
	}
	hit := s.sink.CreateElement("rect", hitAttrs(id, HandleRotate, Attrs{
		"width": 1.0, "height": 1.0, "fill": "transparent", "cursor": "move",
	}))
	s.sink.AppendChild(g, hit)
	return g
}

func (s *Scene) chromeOf(id EntityID) *chrome {
	return &s.at(id).chrome
}

// updateChrome moves the box, handles and axes to follow the entity.
func (s *Scene) updateChrome(e *Entity) {
	if !e.active || e.chrome.box == NoElement {
		return
	}
	if e.IsLine() {
		p1, p2 := e.Endpoints()
		s.sink.SetAttribute(e.chrome.box, AttrX1, p1.X)
		s.sink.SetAttribute(e.chrome.box, AttrY1, p1.Y)
		s.sink.SetAttribute(e.chrome.box, AttrX2, p2.X)
		s.sink.SetAttribute(e.chrome.box, AttrY2, p2.Y)
		s.moveCorner(e.chrome.handles[HandleEndpoint1], p1)
		s.moveCorner(e.chrome.handles[HandleEndpoint2], p2)
		return
	}
	m := e.Transform()
	s.sink.SetAttribute(e.chrome.box, AttrTransform, m)
	l := LayoutFor(m)
	for _, h := range pointHandles {
		s.moveCorner(e.chrome.handles[h], l.Points[h])
	}
	s.sink.SetAttribute(e.chrome.rotator, AttrTransform, l.Rotator)
	if e.chrome.axes != NoElement {
		s.sink.SetAttribute(e.chrome.axes, AttrTransform, m)
	}
}

func (s *Scene) moveCorner(el ElementRef, p affine.Point) {
	s.sink.SetAttribute(el, "cx", p.X)
	s.sink.SetAttribute(el, "cy", p.Y)
}

func (s *Scene) removeChrome(e *Entity) {
	for _, el := range []ElementRef{e.chrome.box, e.chrome.controls, e.chrome.axes} {
		if el != NoElement {
			s.sink.Remove(el)
		}
	}
	e.chrome = chrome{}
}

func (s *Scene) showControls(e *Entity, show bool) {
	if e.chrome.controls == NoElement {
		return
	}
	s.sink.SetAttribute(e.chrome.controls, "visibility", visibility(show))
}
