// Package editor is the gesture and command layer on top of the scene: it
// turns pointer and keyboard input into scene mutations and records every
// mutation in the undo history.
package editor

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lackhoa/fractal-sky/internal/affine"
	"github.com/lackhoa/fractal-sky/internal/history"
	"github.com/lackhoa/fractal-sky/internal/scene"
)

var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrBadHandle     = errors.New("handle does not belong to entity")
	ErrViewBudget    = errors.New("view budget exceeded")
)

const (
	DefaultMaxDepth = 20
	DefaultMaxViews = 20000
	nudgeStep       = 10.0
)

// Config configures an Editor. MaxViews caps the number of shape and frame
// views the scene may materialize (see scene.TotalViews).
type Config struct {
	Scene    scene.Options
	MaxDepth int
	MaxViews int
	Logger   *slog.Logger
}

func DefaultConfig() Config {
	return Config{Scene: scene.DefaultOptions(), MaxDepth: DefaultMaxDepth, MaxViews: DefaultMaxViews}
}

// Pointer is a pointer event in surface coordinates.
type Pointer struct {
	X, Y  float64
	Shift bool
	Ctrl  bool
}

func (p Pointer) point() affine.Point { return affine.Pt(p.X, p.Y) }

// gesture is the Engaged state of the drag state machine. A nil gesture is
// Idle.
type gesture struct {
	entity scene.EntityID // NoEntity pans the viewport
	handle scene.Handle
	last   affine.Point // previous pointer position, surface coordinates
	rot    rotation
}

// Editor owns a scene, its history and the drag state. It is not safe for
// concurrent use.
type Editor struct {
	scene    *scene.Scene
	history  *history.Manager
	viewport Viewport
	log      *slog.Logger
	maxDepth int
	maxViews int

	drag *gesture
}

// New creates an editor drawing to sink.
func New(sink scene.RenderSink, vp Viewport, cfg Config) *Editor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxViews < 1 {
		cfg.MaxViews = DefaultMaxViews
	}
	if vp == nil {
		vp = NewStaticViewport()
	}
	cfg.Scene.Logger = cfg.Logger
	s := scene.New(sink, cfg.Scene)
	return &Editor{
		scene:    s,
		history:  history.NewManager(s, cfg.Logger),
		viewport: vp,
		log:      cfg.Logger,
		maxDepth: cfg.MaxDepth,
		maxViews: cfg.MaxViews,
	}
}

func (ed *Editor) Scene() *scene.Scene       { return ed.scene }
func (ed *Editor) History() *history.Manager { return ed.history }
func (ed *Editor) Viewport() Viewport        { return ed.viewport }
func (ed *Editor) Dragging() bool            { return ed.drag != nil }
func (ed *Editor) Focused() scene.EntityID   { return ed.scene.Focused() }
func (ed *Editor) CanUndo() bool             { return ed.history.CanUndo() }
func (ed *Editor) CanRedo() bool             { return ed.history.CanRedo() }
func (ed *Editor) Depth() int                { return ed.scene.Depth() }
func (ed *Editor) MaxDepth() int             { return ed.maxDepth }
func (ed *Editor) BranchesVisible() bool     { return ed.scene.BranchesVisible() }
func (ed *Editor) MaxViews() int             { return ed.maxViews }

// Views is the number of views the scene currently materializes.
func (ed *Editor) Views() int {
	return scene.TotalViews(len(ed.scene.Shapes()), len(ed.scene.Frames()), ed.scene.Depth())
}

// checkViews fails when a diagram with the given counts would exceed the
// view budget at depth.
func (ed *Editor) checkViews(shapes, frames, depth int) error {
	if n := scene.TotalViews(shapes, frames, depth); n > ed.maxViews {
		return fmt.Errorf("%w: %d shapes and %d frames at depth %d need %d views, limit %d",
			ErrViewBudget, shapes, frames, depth, n, ed.maxViews)
	}
	return nil
}

// checkGrowth checks the budget for one more entity of kind k.
func (ed *Editor) checkGrowth(k scene.Kind) error {
	shapes, frames := len(ed.scene.Shapes()), len(ed.scene.Frames())
	if k == scene.KindFrame {
		frames++
	} else {
		shapes++
	}
	return ed.checkViews(shapes, frames, ed.scene.Depth())
}

// --- Creation ---

// AddShape creates and registers a shape from a mold. It returns NoEntity
// when the shape would not fit the view budget.
func (ed *Editor) AddShape(mold scene.Mold) scene.EntityID {
	if err := ed.checkGrowth(scene.KindShape); err != nil {
		ed.log.Warn("shape not added", "error", err)
		return scene.NoEntity
	}
	e := ed.scene.CreateShape(mold, ed.viewport.Pan(), ed.viewport.Zoom())
	ed.scene.Register(e.ID())
	ed.history.Issue(history.Command{Kind: history.Create, Entity: e.ID()})
	return e.ID()
}

// AddFrame creates and registers a frame at the default spawn position. It
// returns NoEntity when the frame would not fit the view budget.
func (ed *Editor) AddFrame() scene.EntityID {
	if err := ed.checkGrowth(scene.KindFrame); err != nil {
		ed.log.Warn("frame not added", "error", err)
		return scene.NoEntity
	}
	e := ed.scene.CreateFrame(nil, ed.viewport.Pan(), ed.viewport.Zoom())
	ed.scene.Register(e.ID())
	ed.history.Issue(history.Command{Kind: history.Create, Entity: e.ID()})
	return e.ID()
}

// --- Gestures ---

// PointerDown starts a drag on an entity handle, or a viewport pan when
// target is NoEntity. Every pointer-down is a gesture boundary.
func (ed *Editor) PointerDown(target scene.EntityID, h scene.Handle, p Pointer) error {
	ed.history.MarkControlChanged()
	g := &gesture{entity: target, handle: h, last: p.point()}

	if target == scene.NoEntity {
		if f := ed.scene.Focused(); f != scene.NoEntity {
			ed.scene.Unfocus(f)
		}
		ed.drag = g
		return nil
	}

	e, ok := ed.scene.Lookup(target)
	if !ok || !e.Active() {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, target)
	}
	if !handleFits(e, h) {
		return fmt.Errorf("%w: %v on %s %d", ErrBadHandle, h, e.Tag(), target)
	}
	ed.scene.Focus(target)
	if h == scene.HandleRotate {
		g.rot = startRotation(e.Transform(), ToWorld(ed.viewport, p.point()))
	}
	ed.drag = g
	return nil
}

func handleFits(e *scene.Entity, h scene.Handle) bool {
	if e.IsLine() {
		switch h {
		case scene.HandleBody, scene.HandleEndpoint1, scene.HandleEndpoint2:
			return true
		}
		return false
	}
	if h == scene.HandleRotate {
		return true
	}
	_, ok := transformDrags[h]
	return ok
}

// PointerMove advances the current drag. It does nothing while idle.
func (ed *Editor) PointerMove(p Pointer) {
	g := ed.drag
	if g == nil {
		return
	}
	cur := p.point()
	screenDelta := cur.Sub(g.last)
	g.last = cur

	if g.entity == scene.NoEntity {
		ed.viewport.PanBy(screenDelta)
		return
	}

	e := ed.scene.Entity(g.entity)
	if !e.Active() {
		// Undone from under the pointer.
		ed.drag = nil
		return
	}
	in := dragInput{
		delta: screenDelta.Scale(1 / ed.viewport.Zoom()),
		mouse: ToWorld(ed.viewport, cur),
		shift: p.Shift,
		ctrl:  p.Ctrl,
	}

	if e.IsLine() {
		p1, p2 := e.Endpoints()
		q1, q2, ok := lineDrag(p1, p2, g.handle, in.delta)
		if ok {
			ed.setUndoable(e.ID(), endpointAttrs(q1, q2))
		}
		return
	}

	m := e.Transform()
	var next affine.Matrix
	switch {
	case g.handle == scene.HandleRotate:
		next = g.rot.at(in.mouse)
	case needsInverse(g.handle, in) && denom(m) == 0:
		ed.log.Debug("ignoring drag on collapsed transform", "entity", e.ID(), "handle", g.handle)
		return
	default:
		next = transformDrags[g.handle](m, in)
	}
	if !next.IsFinite() {
		return
	}
	ed.setUndoable(e.ID(), scene.Attrs{scene.AttrTransform: next})
}

// needsInverse reports whether a drag divides by the basis determinant.
func needsInverse(h scene.Handle, in dragInput) bool {
	switch h {
	case scene.HandleBody, scene.HandleRotate:
		return false
	case scene.HandleI, scene.HandleJ:
		return in.shift || !in.ctrl
	default:
		return true
	}
}

// PointerUp ends the current drag.
func (ed *Editor) PointerUp(Pointer) {
	ed.history.MarkControlChanged()
	ed.drag = nil
}

// setUndoable applies attrs to an entity and records the edit. The before
// values are read ahead of the update.
func (ed *Editor) setUndoable(id scene.EntityID, attrs scene.Attrs) {
	e := ed.scene.Entity(id)
	before := make(scene.Attrs, len(attrs))
	for k := range attrs {
		if v, ok := e.Attr(k); ok {
			before[k] = v
		}
	}
	ed.scene.SetAttributes(id, attrs)
	ed.history.Issue(history.Command{
		Kind:   history.Edit,
		Entity: id,
		Before: before,
		After:  attrs.Clone(),
	})
}

func endpointAttrs(p1, p2 affine.Point) scene.Attrs {
	return scene.Attrs{
		scene.AttrX1: p1.X, scene.AttrY1: p1.Y,
		scene.AttrX2: p2.X, scene.AttrY2: p2.Y,
	}
}

// --- Keyboard-level commands ---

// Nudge moves the focused entity by (dx, dy) world units. With nothing
// focused the viewport pans the other way, so the content appears to move
// in the arrow's direction.
func (ed *Editor) Nudge(dx, dy float64) {
	delta := affine.Pt(dx, dy)
	id := ed.scene.Focused()
	if id == scene.NoEntity {
		ed.viewport.PanBy(delta.Neg())
		return
	}
	e := ed.scene.Entity(id)
	if e.IsLine() {
		p1, p2 := e.Endpoints()
		ed.setUndoable(id, endpointAttrs(p1.Add(delta), p2.Add(delta)))
		return
	}
	ed.setUndoable(id, scene.Attrs{scene.AttrTransform: e.Transform().Translate(delta)})
}

// Delete removes the focused entity.
func (ed *Editor) Delete() bool {
	id := ed.scene.Focused()
	if id == scene.NoEntity {
		return false
	}
	ed.scene.Deregister(id)
	ed.history.Issue(history.Command{Kind: history.Remove, Entity: id})
	return true
}

// arrange moves the focused entity in front of next and keeps it focused.
func (ed *Editor) arrange(id, next scene.EntityID) {
	old := ed.scene.Entity(id).Next()
	ed.scene.Arrange(id, next)
	ed.history.Issue(history.Command{Kind: history.Arrange, Entity: id, OldNext: old, NewNext: next})
	ed.scene.Focus(id)
}

// SendToBack paints the focused entity behind all others of its kind.
func (ed *Editor) SendToBack() bool {
	e, ok := ed.focusedEntity()
	if !ok || e.Prev() == scene.NoEntity {
		return false
	}
	ed.arrange(e.ID(), ed.scene.First(e.Kind()))
	return true
}

// SendBackward swaps the focused entity with the one behind it.
func (ed *Editor) SendBackward() bool {
	e, ok := ed.focusedEntity()
	if !ok || e.Prev() == scene.NoEntity {
		return false
	}
	ed.arrange(e.ID(), e.Prev())
	return true
}

// SendForward swaps the focused entity with the one in front of it.
func (ed *Editor) SendForward() bool {
	e, ok := ed.focusedEntity()
	if !ok || e.Next() == scene.NoEntity {
		return false
	}
	ed.arrange(e.ID(), ed.scene.Entity(e.Next()).Next())
	return true
}

// SendToFront paints the focused entity over all others of its kind.
func (ed *Editor) SendToFront() bool {
	e, ok := ed.focusedEntity()
	if !ok || e.Next() == scene.NoEntity {
		return false
	}
	ed.arrange(e.ID(), scene.NoEntity)
	return true
}

func (ed *Editor) focusedEntity() (*scene.Entity, bool) {
	id := ed.scene.Focused()
	if id == scene.NoEntity {
		return nil, false
	}
	return ed.scene.Entity(id), true
}

// Focus shows the controls of an active entity.
func (ed *Editor) Focus(id scene.EntityID) error {
	e, ok := ed.scene.Lookup(id)
	if !ok || !e.Active() {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	ed.scene.Focus(id)
	return nil
}

// Undo reverts the newest command. Undoing a removal is refused when the
// entity would not fit the view budget. Either way the next edit starts a
// new undo entry.
func (ed *Editor) Undo() bool {
	ed.drag = nil
	defer ed.history.MarkControlChanged()
	if cmd, ok := ed.history.Top(); ok && cmd.Kind == history.Remove {
		if err := ed.growthFor(cmd.Entity); err != nil {
			ed.log.Warn("undo refused", "error", err)
			return false
		}
	}
	return ed.history.Undo()
}

// Redo re-applies the newest undone command, with the same budget rule as
// Undo for re-created entities.
func (ed *Editor) Redo() bool {
	ed.drag = nil
	defer ed.history.MarkControlChanged()
	if cmd, ok := ed.history.RedoTop(); ok && cmd.Kind == history.Create {
		if err := ed.growthFor(cmd.Entity); err != nil {
			ed.log.Warn("redo refused", "error", err)
			return false
		}
	}
	return ed.history.Redo()
}

func (ed *Editor) growthFor(id scene.EntityID) error {
	e, ok := ed.scene.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	return ed.checkGrowth(e.Kind())
}

// --- Tree depth and visibility ---

// DepthLimit is the deepest depth allowed by MaxDepth and the view budget
// for the current diagram. It is never below 1.
func (ed *Editor) DepthLimit() int {
	shapes, frames := len(ed.scene.Shapes()), len(ed.scene.Frames())
	d := 1
	for d < ed.maxDepth && ed.checkViews(shapes, frames, d+1) == nil {
		d++
	}
	return d
}

// SetDepth changes the nested-frame depth, clamped to [1, DepthLimit]. It
// returns the depth in effect.
func (ed *Editor) SetDepth(depth int) int {
	depth = min(max(depth, 1), ed.DepthLimit())
	if depth != ed.scene.Depth() {
		ed.scene.SetDepth(depth)
		ed.log.Debug("depth changed", "depth", depth)
	}
	return depth
}

func (ed *Editor) IncDepth() int { return ed.SetDepth(ed.scene.Depth() + 1) }
func (ed *Editor) DecDepth() int { return ed.SetDepth(ed.scene.Depth() - 1) }

func (ed *Editor) SetBranchesVisible(visible bool) {
	ed.scene.SetBranchesVisible(visible)
}

func (ed *Editor) ToggleBranches() {
	ed.scene.SetBranchesVisible(!ed.scene.BranchesVisible())
}

// Clear removes every entity and forgets the history.
func (ed *Editor) Clear() {
	ed.drag = nil
	ed.scene.Clear()
	ed.history.Clear()
}
