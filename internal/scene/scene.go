// Package scene holds the diagram entities and keeps their materialized views
// in the recursive nested-frame tree in step with a RenderSink.
package scene

import (
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/lackhoa/fractal-sky/internal/affine"
)

const (
	DefaultFrameDim    = 600.0
	DefaultSpawnOffset = 200.0
	spawnJitter        = 20.0
	defaultShapeSize   = 100.0
)

// Options configures a Scene.
type Options struct {
	FrameDim    float64 // side of the canonical frame square
	Depth       int     // initial tree depth
	SpawnOffset float64
	Jitter      func() float64 // uniform in [0,1); math/rand when nil
	Logger      *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		FrameDim:    DefaultFrameDim,
		Depth:       1,
		SpawnOffset: DefaultSpawnOffset,
	}
}

// Scene owns every entity ever created in a diagram, the two paint-order
// lists of active shapes and frames, and the retained view tree.
type Scene struct {
	sink RenderSink
	log  *slog.Logger

	frameDim    float64
	spawnOffset float64
	jitter      func() float64

	entities []*Entity // arena, index id-1
	shapes   list
	frames   list

	depth           int
	branchesVisible bool
	focused         EntityID
	batching        bool

	root   *frameView
	layers struct {
		boxes      ElementRef
		frameBoxes ElementRef
		axes       ElementRef
		controls   ElementRef
	}
}

// New creates an empty scene and attaches its layers to the sink's surface.
func New(sink RenderSink, opts Options) *Scene {
	if opts.FrameDim <= 0 {
		opts.FrameDim = DefaultFrameDim
	}
	if opts.Depth < 1 {
		opts.Depth = 1
	}
	if opts.SpawnOffset == 0 {
		opts.SpawnOffset = DefaultSpawnOffset
	}
	if opts.Jitter == nil {
		opts.Jitter = rand.Float64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Scene{
		sink:            sink,
		log:             opts.Logger,
		frameDim:        opts.FrameDim,
		spawnOffset:     opts.SpawnOffset,
		jitter:          opts.Jitter,
		depth:           opts.Depth,
		branchesVisible: true,
	}

	s.root = &frameView{}
	s.root.el = sink.CreateElement("g", Attrs{"id": "root", "class": "frame"})
	s.root.shapesEl = sink.CreateElement("g", Attrs{"class": "shapes"})
	s.root.nestedEl = sink.CreateElement("g", Attrs{"class": "nested"})
	sink.AppendChild(s.root.el, s.root.shapesEl)
	sink.AppendChild(s.root.el, s.root.nestedEl)
	sink.AppendChild(NoElement, s.root.el)

	for _, l := range []struct {
		ref  *ElementRef
		name string
	}{
		{&s.layers.axes, "axes-layer"},
		{&s.layers.boxes, "box-layer"},
		{&s.layers.frameBoxes, "frame-box-layer"},
		{&s.layers.controls, "control-layer"},
	} {
		*l.ref = sink.CreateElement("g", Attrs{"id": l.name})
		sink.AppendChild(NoElement, *l.ref)
	}
	return s
}

func (s *Scene) at(id EntityID) *Entity {
	if id <= NoEntity || int(id) > len(s.entities) {
		panic(fmt.Sprintf("scene: unknown entity %d", id))
	}
	return s.entities[id-1]
}

// Entity returns the entity with the given id. It panics on unknown ids.
func (s *Scene) Entity(id EntityID) *Entity {
	return s.at(id)
}

// Lookup is Entity without the panic.
func (s *Scene) Lookup(id EntityID) (*Entity, bool) {
	if id <= NoEntity || int(id) > len(s.entities) {
		return nil, false
	}
	return s.entities[id-1], true
}

func (s *Scene) Depth() int            { return s.depth }
func (s *Scene) FrameDim() float64     { return s.frameDim }
func (s *Scene) Focused() EntityID     { return s.focused }
func (s *Scene) BranchesVisible() bool { return s.branchesVisible }

// Shapes returns the active shapes, back to front.
func (s *Scene) Shapes() []EntityID { return s.ids(&s.shapes) }

// Frames returns the active frames, back to front.
func (s *Scene) Frames() []EntityID { return s.ids(&s.frames) }

// First returns the back-most active entity of a kind.
func (s *Scene) First(k Kind) EntityID {
	return s.listFor(k).first
}

func (s *Scene) listFor(k Kind) *list {
	switch k {
	case KindShape:
		return &s.shapes
	case KindFrame:
		return &s.frames
	default:
		panic(fmt.Sprintf("scene: invalid kind %v", k))
	}
}

// spawn picks the world position of a new entity: near the top left of the
// visible area, with a little jitter so repeated spawns don't stack.
func (s *Scene) spawn(pan affine.Point, zoom float64) affine.Point {
	if zoom <= 0 {
		panic(fmt.Sprintf("scene: zoom must be positive, got %v", zoom))
	}
	return affine.Pt(
		(-pan.X+s.spawnOffset+s.jitter()*spawnJitter)/zoom,
		(-pan.Y+s.spawnOffset+s.jitter()*spawnJitter)/zoom,
	)
}

// CreateShape makes a new, inactive shape from a mold. Missing geometry is
// filled in at the spawn point.
func (s *Scene) CreateShape(mold Mold, pan affine.Point, zoom float64) *Entity {
	if mold.Tag == "" {
		panic("scene: shape mold needs a tag")
	}
	if mold.Tag == TagFrame {
		panic("scene: use CreateFrame for frames")
	}
	attrs := mold.Attrs.Clone()
	at := s.spawn(pan, zoom)
	if mold.Tag == TagLine {
		delete(attrs, AttrTransform)
		if _, ok := attrs[AttrX1]; !ok {
			attrs[AttrX1] = at.X
			attrs[AttrY1] = at.Y
			attrs[AttrX2] = at.X + defaultShapeSize
			attrs[AttrY2] = at.Y + defaultShapeSize
		}
	} else if v, ok := attrs[AttrTransform]; ok {
		attrs[AttrTransform] = Matrix(v)
	} else {
		attrs[AttrTransform] = affine.Matrix{defaultShapeSize, 0, 0, defaultShapeSize, at.X, at.Y}
	}
	return s.newEntity(KindShape, mold.Tag, attrs)
}

// CreateFrame makes a new, inactive frame. The only accepted key is "xform",
// a transform normalized to the unit frame; without it the frame spawns at a
// third of the frame dimension.
func (s *Scene) CreateFrame(mold Attrs, pan affine.Point, zoom float64) *Entity {
	for k := range mold {
		if k != AttrXform {
			panic(fmt.Sprintf("scene: unexpected frame attribute %q", k))
		}
	}
	var m affine.Matrix
	if v, ok := mold[AttrXform]; ok {
		x := Matrix(v)
		m = affine.Matrix{x[0] * s.frameDim, x[1] * s.frameDim, x[2] * s.frameDim, x[3] * s.frameDim, x[4], x[5]}
	} else {
		at := s.spawn(pan, zoom)
		side := s.frameDim / 3
		m = affine.Matrix{side, 0, 0, side, at.X, at.Y}
	}
	return s.newEntity(KindFrame, TagFrame, Attrs{AttrTransform: m})
}

func (s *Scene) newEntity(kind Kind, tag string, attrs Attrs) *Entity {
	e := &Entity{
		id:    EntityID(len(s.entities) + 1),
		kind:  kind,
		tag:   tag,
		attrs: attrs,
	}
	s.entities = append(s.entities, e)
	return e
}

// normalize maps a frame transform to the one applied to its views, which
// draw the whole world squeezed into the unit frame.
func (s *Scene) normalize(m affine.Matrix) affine.Matrix {
	return affine.Matrix{m[0] / s.frameDim, m[1] / s.frameDim, m[2] / s.frameDim, m[3] / s.frameDim, m[4], m[5]}
}

// Register makes an inactive entity visible, in front of its remembered next
// sibling (or at the front when it has none).
func (s *Scene) Register(id EntityID) {
	e := s.at(id)
	if e.active {
		panic(fmt.Sprintf("scene: %s %d is already registered", e.kind, id))
	}
	if e.next != NoEntity {
		n := s.at(e.next)
		if !n.active || n.kind != e.kind {
			panic(fmt.Sprintf("scene: %s %d cannot go before inactive or foreign %d", e.kind, id, e.next))
		}
	}
	s.insertBefore(s.listFor(e.kind), e, e.next)
	e.active = true
	s.createChrome(e)
	s.refresh()
	s.log.Debug("entity registered", "entity", id, "kind", e.kind, "tag", e.tag)
}

// Deregister hides an entity. It stays in the arena with its sibling links,
// so Register puts it back where it was.
func (s *Scene) Deregister(id EntityID) {
	e := s.at(id)
	if !e.active {
		panic(fmt.Sprintf("scene: %s %d is not registered", e.kind, id))
	}
	s.Unfocus(id)
	s.unlink(s.listFor(e.kind), e)
	e.active = false
	s.removeChrome(e)
	s.refresh()
	s.log.Debug("entity deregistered", "entity", id, "kind", e.kind)
}

// Arrange moves an active entity in front of next (NoEntity for the front).
func (s *Scene) Arrange(id, next EntityID) {
	if id == next {
		panic(fmt.Sprintf("scene: cannot arrange %d before itself", id))
	}
	e := s.at(id)
	s.Batch(func() {
		s.Deregister(id)
		e.next = next
		s.Register(id)
	})
}

// Batch runs fn with view rebuilding suspended, then rebuilds the view tree
// once. Inside fn, Register and Deregister only update the entity lists and
// chrome.
func (s *Scene) Batch(fn func()) {
	if s.batching {
		fn()
		return
	}
	s.batching = true
	fn()
	s.batching = false
	s.rebuild()
}

func (s *Scene) refresh() {
	if !s.batching {
		s.rebuild()
	}
}

// SetAttributes updates attributes and pushes them to every view. Frames
// accept only "transform"; their views receive the normalized matrix.
func (s *Scene) SetAttributes(id EntityID, attrs Attrs) {
	e := s.at(id)
	keys := slices.Sorted(maps.Keys(attrs))
	switch e.kind {
	case KindFrame:
		for _, k := range keys {
			if k != AttrTransform {
				panic(fmt.Sprintf("scene: frames only accept %q, got %q", AttrTransform, k))
			}
		}
		v, ok := attrs[AttrTransform]
		if !ok {
			return
		}
		m := Matrix(v)
		e.attrs[AttrTransform] = m
		xf := s.normalize(m)
		e.forEachView(func(view View) {
			s.sink.SetAttribute(view.Element, AttrTransform, xf)
		})
	case KindShape:
		for _, k := range keys {
			v := attrs[k]
			if k == AttrTransform {
				if e.IsLine() {
					panic(fmt.Sprintf("scene: line %d has no transform", id))
				}
				v = Matrix(v)
			}
			e.attrs[k] = v
			e.forEachView(func(view View) {
				s.sink.SetAttribute(view.Element, k, v)
			})
		}
	default:
		panic(fmt.Sprintf("scene: invalid kind %v", e.kind))
	}
	s.updateChrome(e)
}

// IncDepth adds one level to the nested-frame tree.
func (s *Scene) IncDepth() {
	s.depth++
	s.rebuild()
}

// DecDepth removes the deepest level. The tree never goes below depth 1.
func (s *Scene) DecDepth() {
	if s.depth < 2 {
		panic("scene: cannot decrease depth below 1")
	}
	s.depth--
	s.rebuild()
}

// SetDepth steps the tree to the given depth one level at a time.
func (s *Scene) SetDepth(depth int) {
	if depth < 1 {
		panic(fmt.Sprintf("scene: depth must be at least 1, got %d", depth))
	}
	for s.depth < depth {
		s.IncDepth()
	}
	for s.depth > depth {
		s.DecDepth()
	}
}

// Focus shows the controls of an active entity, unfocusing the previous one.
func (s *Scene) Focus(id EntityID) {
	e := s.at(id)
	if !e.active {
		panic(fmt.Sprintf("scene: cannot focus inactive %s %d", e.kind, id))
	}
	if s.focused == id {
		return
	}
	if s.focused != NoEntity {
		s.Unfocus(s.focused)
	}
	s.showControls(e, true)
	s.focused = id
}

// Unfocus hides the controls of id if it is focused.
func (s *Scene) Unfocus(id EntityID) {
	if s.focused != id || id == NoEntity {
		return
	}
	s.showControls(s.at(id), false)
	s.focused = NoEntity
}

// SetBranchesVisible toggles whether shape views above the deepest layer are
// drawn.
func (s *Scene) SetBranchesVisible(visible bool) {
	if s.branchesVisible == visible {
		return
	}
	s.branchesVisible = visible
	s.applyBranchVisibility()
}

// Clear deregisters every entity and empties the arena.
func (s *Scene) Clear() {
	s.Batch(func() {
		for _, l := range []*list{&s.shapes, &s.frames} {
			for _, id := range s.ids(l) {
				s.Deregister(id)
			}
		}
	})
	s.entities = nil
	s.focused = NoEntity
}

// Verify checks the view tree invariants: every active entity has exactly the
// expected number of views on each layer, no entity has two views under one
// parent, and inactive entities have no views.
func (s *Scene) Verify() error {
	frames := len(s.Frames())
	for _, e := range s.entities {
		if !e.active {
			if n := e.ViewCount(); n != 0 {
				return fmt.Errorf("inactive %s %d has %d views", e.kind, e.id, n)
			}
			continue
		}
		var layers int
		var want func(k int) int
		switch e.kind {
		case KindShape:
			layers = s.deepestShapeLayer() + 1
			want = func(k int) int { return ShapeViewsAt(frames, s.depth, k) }
		case KindFrame:
			layers = s.depth
			want = func(k int) int { return FrameViewsAt(frames, s.depth, k+1) }
		}
		if len(e.viewLayers) != layers {
			return fmt.Errorf("%s %d has %d view layers, want %d", e.kind, e.id, len(e.viewLayers), layers)
		}
		parents := make(map[ElementRef]bool)
		for k, layer := range e.viewLayers {
			if len(layer) != want(k) {
				return fmt.Errorf("%s %d has %d views on layer %d, want %d", e.kind, e.id, len(layer), k, want(k))
			}
			for _, v := range layer {
				if parents[v.Parent] {
					return fmt.Errorf("%s %d has two views under element %d", e.kind, e.id, v.Parent)
				}
				parents[v.Parent] = true
			}
		}
	}
	return nil
}
