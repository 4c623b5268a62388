package scene

import (
	"slices"
)

// frameView is a retained node of the materialized tree. The root view has
// frame == NoEntity.
type frameView struct {
	frame    EntityID
	depth    int
	path     []EntityID
	el       ElementRef
	shapesEl ElementRef
	nestedEl ElementRef
	shapes   []*shapeView
	nested   []*frameView
}

type shapeView struct {
	shape   EntityID
	el      ElementRef
	visible bool
}

// rebuild brings the retained tree in line with the current entity lists and
// depth, then re-derives every entity's view layers from it.
func (s *Scene) rebuild() {
	plan := Plan(s.Shapes(), s.Frames(), s.depth)
	s.reconcile(s.root, plan)
	s.indexViews()
	s.applyBranchVisibility()
}

func (s *Scene) reconcile(node *frameView, plan *PlanNode) {
	s.reconcileShapes(node, plan.Shapes)

	if plan.Leaf {
		if node.nestedEl != NoElement {
			s.sink.Remove(node.nestedEl)
			node.nestedEl = NoElement
			node.nested = nil
		}
		return
	}
	if node.nestedEl == NoElement {
		node.nestedEl = s.sink.CreateElement("g", Attrs{"class": "nested"})
		s.sink.AppendChild(node.el, node.nestedEl)
	}
	s.reconcileFrames(node, plan.Nested)
}

func (s *Scene) reconcileShapes(node *frameView, want []EntityID) {
	have := make(map[EntityID]*shapeView, len(node.shapes))
	for _, sv := range node.shapes {
		have[sv.shape] = sv
	}
	keep := make(map[EntityID]bool, len(want))
	for _, id := range want {
		keep[id] = true
	}

	cur := make([]ElementRef, 0, len(node.shapes))
	for _, sv := range node.shapes {
		if keep[sv.shape] {
			cur = append(cur, sv.el)
			continue
		}
		s.sink.Remove(sv.el)
	}

	views := make([]*shapeView, len(want))
	order := make([]ElementRef, len(want))
	fresh := make(map[ElementRef]bool)
	for i, id := range want {
		sv, ok := have[id]
		if !ok {
			sv = s.newShapeView(id, node.depth)
			fresh[sv.el] = true
		}
		views[i] = sv
		order[i] = sv.el
	}
	s.place(node.shapesEl, cur, order, fresh)
	node.shapes = views
}

func (s *Scene) reconcileFrames(node *frameView, want []*PlanNode) {
	have := make(map[EntityID]*frameView, len(node.nested))
	for _, fv := range node.nested {
		have[fv.frame] = fv
	}
	keep := make(map[EntityID]bool, len(want))
	for _, p := range want {
		keep[p.Frame] = true
	}

	cur := make([]ElementRef, 0, len(node.nested))
	for _, fv := range node.nested {
		if keep[fv.frame] {
			cur = append(cur, fv.el)
			continue
		}
		s.sink.Remove(fv.el)
	}

	views := make([]*frameView, len(want))
	order := make([]ElementRef, len(want))
	fresh := make(map[ElementRef]bool)
	for i, p := range want {
		fv, ok := have[p.Frame]
		if ok {
			s.reconcile(fv, p)
		} else {
			fv = s.newFrameView(p)
			fresh[fv.el] = true
		}
		views[i] = fv
		order[i] = fv.el
	}
	s.place(node.nestedEl, cur, order, fresh)
	node.nested = views
}

// place issues the minimal inserts that turn the child order cur into want.
// Elements in fresh are not yet attached. Walking from the back, every child
// whose successor is wrong is moved in front of the one placed after it.
func (s *Scene) place(parent ElementRef, cur, want []ElementRef, fresh map[ElementRef]bool) {
	next := NoElement
	for i := len(want) - 1; i >= 0; i-- {
		el := want[i]
		switch {
		case fresh[el]:
			s.attach(parent, el, next)
			cur = insertAt(cur, el, next)
		case successor(cur, el) != next:
			s.attach(parent, el, next)
			cur = insertAt(slices.DeleteFunc(cur, func(x ElementRef) bool { return x == el }), el, next)
		}
		next = el
	}
}

func (s *Scene) attach(parent, el, next ElementRef) {
	if next == NoElement {
		s.sink.AppendChild(parent, el)
		return
	}
	s.sink.InsertBefore(parent, el, next)
}

func insertAt(cur []ElementRef, el, next ElementRef) []ElementRef {
	i := len(cur)
	if next != NoElement {
		i = slices.Index(cur, next)
	}
	return slices.Insert(cur, i, el)
}

func successor(cur []ElementRef, el ElementRef) ElementRef {
	i := slices.Index(cur, el)
	if i < 0 || i+1 >= len(cur) {
		return NoElement
	}
	return cur[i+1]
}

func (s *Scene) newShapeView(id EntityID, depth int) *shapeView {
	e := s.at(id)
	attrs := e.attrs.Clone()
	visible := s.branchesVisible || depth == s.deepestShapeLayer()
	attrs["visibility"] = visibility(visible)
	attrs["data-entity"] = int(id)
	return &shapeView{
		shape:   id,
		el:      s.sink.CreateElement(e.tag, attrs),
		visible: visible,
	}
}

func (s *Scene) newFrameView(plan *PlanNode) *frameView {
	e := s.at(plan.Frame)
	fv := &frameView{
		frame: plan.Frame,
		depth: plan.Depth,
		path:  plan.Path,
	}
	fv.el = s.sink.CreateElement("g", Attrs{
		"class":     "frame",
		"transform": s.normalize(e.Transform()),
	})
	fv.shapesEl = s.sink.CreateElement("g", Attrs{"class": "shapes"})
	s.sink.AppendChild(fv.el, fv.shapesEl)
	s.reconcile(fv, plan)
	return fv
}

// indexViews recomputes every entity's view layers from the retained tree.
func (s *Scene) indexViews() {
	for _, e := range s.entities {
		e.viewLayers = nil
	}
	s.indexNode(s.root, NoElement)
}

func (s *Scene) indexNode(node *frameView, parent ElementRef) {
	if node.frame != NoEntity {
		s.at(node.frame).addView(node.depth-1, View{
			Element: node.el,
			Parent:  parent,
			Depth:   node.depth,
			Path:    node.path,
		})
	}
	for _, sv := range node.shapes {
		s.at(sv.shape).addView(node.depth, View{
			Element: sv.el,
			Parent:  node.shapesEl,
			Depth:   node.depth,
			Path:    node.path,
		})
	}
	for _, child := range node.nested {
		s.indexNode(child, node.nestedEl)
	}
}

// deepestShapeLayer is the depth of the innermost shape views.
func (s *Scene) deepestShapeLayer() int {
	if s.frames.first == NoEntity {
		return 0
	}
	return s.depth
}

// applyBranchVisibility hides every shape view that is not on the deepest
// layer while branches are hidden.
func (s *Scene) applyBranchVisibility() {
	s.walkShapes(s.root, s.deepestShapeLayer())
}

func (s *Scene) walkShapes(node *frameView, deepest int) {
	want := s.branchesVisible || node.depth == deepest
	for _, sv := range node.shapes {
		if sv.visible != want {
			sv.visible = want
			s.sink.SetAttribute(sv.el, "visibility", visibility(want))
		}
	}
	for _, child := range node.nested {
		s.walkShapes(child, deepest)
	}
}

func visibility(visible bool) string {
	if visible {
		return "visible"
	}
	return "hidden"
}
