package editor_test

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/lackhoa/fractal-sky/internal/affine"
	"github.com/lackhoa/fractal-sky/internal/document"
	"github.com/lackhoa/fractal-sky/internal/editor"
	"github.com/lackhoa/fractal-sky/internal/render"
	"github.com/lackhoa/fractal-sky/internal/scene"
)

func newEditor(t *testing.T) (*editor.Editor, *render.Tree) {
	t.Helper()
	tree := render.NewTree()
	cfg := editor.DefaultConfig()
	cfg.Scene.Jitter = func() float64 { return 0 }
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return editor.New(tree, editor.NewStaticViewport(), cfg), tree
}

func newBudgetEditor(t *testing.T, maxViews int) *editor.Editor {
	t.Helper()
	cfg := editor.DefaultConfig()
	cfg.Scene.Jitter = func() float64 { return 0 }
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.MaxViews = maxViews
	return editor.New(render.NewTree(), editor.NewStaticViewport(), cfg)
}

func drag(t *testing.T, ed *editor.Editor, id scene.EntityID, h scene.Handle, from affine.Point, moves ...affine.Point) {
	t.Helper()
	if err := ed.PointerDown(id, h, editor.Pointer{X: from.X, Y: from.Y}); err != nil {
		t.Fatalf("pointer down: %v", err)
	}
	for _, p := range moves {
		ed.PointerMove(editor.Pointer{X: p.X, Y: p.Y})
	}
	last := from
	if len(moves) > 0 {
		last = moves[len(moves)-1]
	}
	ed.PointerUp(editor.Pointer{X: last.X, Y: last.Y})
}

func transform(ed *editor.Editor, id scene.EntityID) affine.Matrix {
	return ed.Scene().Entity(id).Transform()
}

func TestFrameOfRectAcrossDepths(t *testing.T) {
	ed, tree := newEditor(t)
	rect := ed.AddShape(scene.RectMold())
	frame := ed.AddFrame()

	if n := ed.Scene().Entity(rect).ViewCount(); n != 2 {
		t.Fatalf("rect views at depth 1 = %d, want 2", n)
	}
	ed.SetDepth(2)
	if n := ed.Scene().Entity(rect).ViewCount(); n != 3 {
		t.Fatalf("rect views at depth 2 = %d, want 3", n)
	}
	if n := ed.Scene().Entity(frame).ViewCount(); n != 2 {
		t.Fatalf("frame views at depth 2 = %d, want 2", n)
	}
	if err := ed.Scene().Verify(); err != nil {
		t.Fatal(err)
	}
	if d := tree.Detached(); len(d) != 0 {
		t.Fatalf("detached: %v", d)
	}
}

func TestCornerDragKeepsOppositeCorner(t *testing.T) {
	ed, _ := newEditor(t)
	rect := ed.AddShape(scene.RectMold())
	before := transform(ed, rect)
	ij := scene.LayoutFor(before).Points[scene.HandleIJ]

	drag(t, ed, rect, scene.HandleIJ, ij, ij.Add(affine.Pt(20, 10)))

	after := transform(ed, rect)
	if after[4] != before[4] || after[5] != before[5] {
		t.Fatalf("origin moved: %v -> %v", before, after)
	}
	want := affine.Matrix{before[0] + 20, 0, 0, before[3] + 10, before[4], before[5]}
	if !after.ApproxEqual(want, 1e-9) {
		t.Fatalf("transform = %v, want %v", after, want)
	}
}

func TestCornerDragsFollowThePointer(t *testing.T) {
	cases := []struct {
		handle scene.Handle
		fixed  scene.Handle
	}{
		{scene.HandleO, scene.HandleIJ},
		{scene.HandleI, scene.HandleJ},
		{scene.HandleJ, scene.HandleI},
		{scene.HandleIJ, scene.HandleO},
	}
	for _, tc := range cases {
		t.Run(tc.handle.String(), func(t *testing.T) {
			ed, _ := newEditor(t)
			rect := ed.AddShape(scene.RectMold())
			start := scene.LayoutFor(transform(ed, rect))
			from := start.Points[tc.handle]
			to := from.Add(affine.Pt(-15, 25))

			drag(t, ed, rect, tc.handle, from, to)

			end := scene.LayoutFor(transform(ed, rect))
			if d := affine.Distance(end.Points[tc.handle], to); d > 1e-9 {
				t.Fatalf("%v ended at %v, want %v", tc.handle, end.Points[tc.handle], to)
			}
			if d := affine.Distance(end.Points[tc.fixed], start.Points[tc.fixed]); d > 1e-9 {
				t.Fatalf("%v moved from %v to %v", tc.fixed, start.Points[tc.fixed], end.Points[tc.fixed])
			}
		})
	}
}

func TestShiftCornerKeepsAspect(t *testing.T) {
	ed, _ := newEditor(t)
	rect := ed.AddShape(scene.RectMold())
	ij := scene.LayoutFor(transform(ed, rect)).Points[scene.HandleIJ]

	if err := ed.PointerDown(rect, scene.HandleIJ, editor.Pointer{X: ij.X, Y: ij.Y}); err != nil {
		t.Fatal(err)
	}
	ed.PointerMove(editor.Pointer{X: ij.X + 50, Y: ij.Y + 10, Shift: true})
	ed.PointerUp(editor.Pointer{})

	m := transform(ed, rect)
	if math.Abs(m[0]-m[3]) > 1e-9 || math.Abs(m[0]-150) > 1e-9 {
		t.Fatalf("transform = %v, want uniform 150", m)
	}
}

func TestSideHandleMovesOneEdge(t *testing.T) {
	ed, _ := newEditor(t)
	rect := ed.AddShape(scene.RectMold()) // [100 0 0 100 200 200]
	jij := scene.LayoutFor(transform(ed, rect)).Points[scene.HandleJIJ]

	drag(t, ed, rect, scene.HandleJIJ, jij, jij.Add(affine.Pt(0, 50)))

	want := affine.Matrix{100, 0, 0, 150, 200, 200}
	if got := transform(ed, rect); !got.ApproxEqual(want, 1e-9) {
		t.Fatalf("transform = %v, want %v", got, want)
	}
}

func TestRotatorTurnsAboutCenter(t *testing.T) {
	ed, _ := newEditor(t)
	rect := ed.AddShape(scene.RectMold()) // center (250, 250)

	drag(t, ed, rect, scene.HandleRotate, affine.Pt(350, 250), affine.Pt(250, 350))

	want := affine.Matrix{0, 100, -100, 0, 300, 200}
	if got := transform(ed, rect); !got.ApproxEqual(want, 1e-9) {
		t.Fatalf("transform = %v, want %v", got, want)
	}
}

func TestDragCoalescesIntoOneUndo(t *testing.T) {
	ed, _ := newEditor(t)
	rect := ed.AddShape(scene.RectMold())
	orig := transform(ed, rect)

	drag(t, ed, rect, scene.HandleBody, affine.Pt(250, 250),
		affine.Pt(260, 250), affine.Pt(270, 255), affine.Pt(280, 260))

	if got := transform(ed, rect); got != orig.Translate(affine.Pt(30, 10)) {
		t.Fatalf("transform = %v", got)
	}
	if undo, _ := ed.History().Len(); undo != 2 {
		t.Fatalf("undo entries = %d, want create + one edit", undo)
	}
	ed.Undo()
	if got := transform(ed, rect); got != orig {
		t.Fatalf("after undo = %v, want %v", got, orig)
	}
	ed.Redo()
	if got := transform(ed, rect); got != orig.Translate(affine.Pt(30, 10)) {
		t.Fatalf("after redo = %v", got)
	}
}

func TestLineHandles(t *testing.T) {
	ed, _ := newEditor(t)
	line := ed.AddShape(scene.LineMold()) // (200,200) -> (300,300)

	drag(t, ed, line, scene.HandleEndpoint2, affine.Pt(300, 300), affine.Pt(310, 290))
	drag(t, ed, line, scene.HandleBody, affine.Pt(250, 250), affine.Pt(245, 250))

	p1, p2 := ed.Scene().Entity(line).Endpoints()
	if p1 != affine.Pt(195, 200) || p2 != affine.Pt(305, 290) {
		t.Fatalf("endpoints = %v %v", p1, p2)
	}
	if err := ed.PointerDown(line, scene.HandleIJ, editor.Pointer{}); !errors.Is(err, editor.ErrBadHandle) {
		t.Fatalf("err = %v, want ErrBadHandle", err)
	}
}

func TestCreateRemoveUndoUndo(t *testing.T) {
	ed, _ := newEditor(t)
	a := ed.AddShape(scene.RectMold())
	b := ed.AddShape(scene.CircleMold())
	c := ed.AddShape(scene.TriangleMold())

	if err := ed.Focus(b); err != nil {
		t.Fatal(err)
	}
	km := editor.DefaultKeymap()
	if !ed.HandleKey(km, "Delete") {
		t.Fatal("Delete not bound")
	}
	if ed.Scene().Entity(b).Active() {
		t.Fatal("b still active")
	}
	ed.HandleKey(km, "ctrl-z")
	if got := ed.Scene().Shapes(); !slices.Equal(got, []scene.EntityID{a, b, c}) {
		t.Fatalf("shapes = %v", got)
	}
	ed.HandleKey(km, "ctrl-z")
	if got := ed.Scene().Shapes(); !slices.Equal(got, []scene.EntityID{a, b}) {
		t.Fatalf("shapes = %v", got)
	}
}

func TestZOrderKeys(t *testing.T) {
	ed, tree := newEditor(t)
	a := ed.AddShape(scene.RectMold())
	b := ed.AddShape(scene.RectMold())
	c := ed.AddShape(scene.RectMold())
	km := editor.DefaultKeymap()
	shapes := func() []scene.EntityID { return ed.Scene().Shapes() }

	ed.Focus(a)
	ed.HandleKey(km, editor.KeyChord("}", true, true))
	if got := shapes(); !slices.Equal(got, []scene.EntityID{b, c, a}) {
		t.Fatalf("to front: %v", got)
	}
	if ed.Focused() != a {
		t.Fatal("focus lost after arrange")
	}
	ed.HandleKey(km, "ctrl-[")
	if got := shapes(); !slices.Equal(got, []scene.EntityID{b, a, c}) {
		t.Fatalf("backward: %v", got)
	}
	ed.HandleKey(km, "ctrl-shift-{")
	if got := shapes(); !slices.Equal(got, []scene.EntityID{a, b, c}) {
		t.Fatalf("to back: %v", got)
	}
	ed.HandleKey(km, "ctrl-]")
	if got := shapes(); !slices.Equal(got, []scene.EntityID{b, a, c}) {
		t.Fatalf("forward: %v", got)
	}

	for ed.Undo() {
	}
	if got := shapes(); len(got) != 0 {
		t.Fatalf("after undoing everything: %v", got)
	}
	for ed.Redo() {
	}
	if got := shapes(); !slices.Equal(got, []scene.EntityID{b, a, c}) {
		t.Fatalf("after redoing everything: %v", got)
	}
	if err := ed.Scene().Verify(); err != nil {
		t.Fatal(err)
	}
	if d := tree.Detached(); len(d) != 0 {
		t.Fatalf("detached: %v", d)
	}
}

func TestArrowsNudgeOrPan(t *testing.T) {
	ed, _ := newEditor(t)
	rect := ed.AddShape(scene.RectMold())
	km := editor.DefaultKeymap()

	ed.HandleKey(km, "ArrowLeft")
	if got := ed.Viewport().Pan(); got != affine.Pt(10, 0) {
		t.Fatalf("pan = %v", got)
	}

	ed.Focus(rect)
	before := transform(ed, rect)
	ed.HandleKey(km, "ArrowDown")
	ed.HandleKey(km, "ArrowDown")
	if got := transform(ed, rect); got != before.Translate(affine.Pt(0, 20)) {
		t.Fatalf("transform = %v", got)
	}
	if ed.HandleKey(km, "ctrl-q") {
		t.Fatal("unbound chord reported handled")
	}
}

func TestBackgroundDragPans(t *testing.T) {
	ed, _ := newEditor(t)
	rect := ed.AddShape(scene.RectMold())
	ed.Focus(rect)

	drag(t, ed, scene.NoEntity, scene.HandleNone, affine.Pt(0, 0), affine.Pt(30, -5))
	if got := ed.Viewport().Pan(); got != affine.Pt(30, -5) {
		t.Fatalf("pan = %v", got)
	}
	if ed.Focused() != scene.NoEntity {
		t.Fatal("background press should unfocus")
	}
}

func TestCollapsedTransformIgnoresDrag(t *testing.T) {
	ed, _ := newEditor(t)
	rect := ed.AddShape(scene.RectMold())
	jij := scene.LayoutFor(transform(ed, rect)).Points[scene.HandleJIJ]
	// Pull the far edge onto the near one.
	drag(t, ed, rect, scene.HandleJIJ, jij, jij.Add(affine.Pt(0, -100)))
	collapsed := transform(ed, rect)
	if collapsed.Determinant() != 0 {
		t.Fatalf("expected a collapsed transform, got %v", collapsed)
	}

	o := scene.LayoutFor(collapsed).Points[scene.HandleO]
	drag(t, ed, rect, scene.HandleO, o, o.Add(affine.Pt(5, 5)))
	if got := transform(ed, rect); got != collapsed {
		t.Fatalf("collapsed transform changed to %v", got)
	}
}

func TestDepthIsClamped(t *testing.T) {
	ed, _ := newEditor(t)
	if got := ed.SetDepth(0); got != 1 {
		t.Fatalf("depth = %d", got)
	}
	if got := ed.SetDepth(99); got != ed.MaxDepth() {
		t.Fatalf("depth = %d", got)
	}
	if got := ed.DecDepth(); got != ed.MaxDepth()-1 {
		t.Fatalf("depth = %d", got)
	}
}

func TestSaveClearsHistory(t *testing.T) {
	ed, _ := newEditor(t)
	ed.AddFrame()
	ed.Undo()
	ed.AddShape(scene.RectMold())
	if !ed.CanUndo() {
		t.Fatal("expected undoable create")
	}
	if got := len(ed.Save()); got != 1 {
		t.Fatalf("saved %d records, want 1", got)
	}
	if ed.CanUndo() || ed.CanRedo() {
		t.Fatal("save must not be undoable")
	}
}

func TestSaveLoad(t *testing.T) {
	ed, _ := newEditor(t)
	if err := ed.Load(document.NewSampleDiagram(scene.DefaultFrameDim)); err != nil {
		t.Fatal(err)
	}
	if ed.CanUndo() {
		t.Fatal("load must not be undoable")
	}
	ed.SetDepth(3)
	tri := ed.Scene().Shapes()[0]
	if n := ed.Scene().Entity(tri).ViewCount(); n != 1+3+9+27 {
		t.Fatalf("triangle views = %d", n)
	}

	data, err := ed.SaveJSON()
	if err != nil {
		t.Fatal(err)
	}
	other, _ := newEditor(t)
	if err := other.LoadJSON(data); err != nil {
		t.Fatal(err)
	}
	again, err := other.SaveJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Fatalf("save after load differs:\n%s\n%s", data, again)
	}

	if err := other.LoadJSON([]byte(`[{"type":"frame","fill":"red"}]`)); err == nil {
		t.Fatal("expected error")
	}
	if len(other.Scene().Frames()) != 3 {
		t.Fatal("failed load must leave the diagram alone")
	}
}

func TestUndoEndsTheGesture(t *testing.T) {
	ed, _ := newEditor(t)
	rect := ed.AddShape(scene.RectMold())
	start := transform(ed, rect)
	drag(t, ed, rect, scene.HandleBody, affine.Pt(250, 250), affine.Pt(270, 260))
	dragged := transform(ed, rect)

	ed.Nudge(10, 0)
	ed.Undo()
	ed.Nudge(0, 10)
	ed.Undo()
	if got := transform(ed, rect); got != dragged {
		t.Fatalf("undoing the second nudge reverted the drag too: %v, want %v", got, dragged)
	}
	ed.Undo()
	if got := transform(ed, rect); got != start {
		t.Fatalf("undoing the drag gave %v, want %v", got, start)
	}
}

func TestViewBudgetLimitsGrowth(t *testing.T) {
	// The sample diagram (one triangle, three frames) needs 7 views at
	// depth 1, 25 at depth 2 and 79 at depth 3.
	ed := newBudgetEditor(t, 25)
	if err := ed.Load(document.NewSampleDiagram(scene.DefaultFrameDim)); err != nil {
		t.Fatal(err)
	}
	if got := ed.DepthLimit(); got != 2 {
		t.Fatalf("depth limit = %d, want 2", got)
	}
	if got := ed.SetDepth(5); got != 2 {
		t.Fatalf("depth = %d, want 2", got)
	}
	if got := ed.Views(); got != 25 {
		t.Fatalf("views = %d, want 25", got)
	}
	if id := ed.AddFrame(); id != scene.NoEntity {
		t.Fatal("a fourth frame at depth 2 exceeds the budget")
	}
	if id := ed.AddShape(scene.RectMold()); id != scene.NoEntity {
		t.Fatal("a second shape at depth 2 exceeds the budget")
	}
	if ed.CanUndo() {
		t.Fatal("refused additions must not be recorded")
	}

	ed.SetDepth(1)
	frame := ed.AddFrame()
	if frame == scene.NoEntity {
		t.Fatal("a fourth frame fits at depth 1")
	}
	if err := ed.Focus(frame); err != nil {
		t.Fatal(err)
	}
	ed.Delete()
	ed.SetDepth(2)
	if ed.Undo() {
		t.Fatal("undo must not restore a frame past the budget")
	}
	if n := len(ed.Scene().Frames()); n != 3 {
		t.Fatalf("frames = %d, want 3", n)
	}
	ed.SetDepth(1)
	if !ed.Undo() {
		t.Fatal("undo should succeed once the frame fits")
	}
	if n := len(ed.Scene().Frames()); n != 4 {
		t.Fatalf("frames = %d, want 4", n)
	}
	if err := ed.Scene().Verify(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRejectsDiagramOverBudget(t *testing.T) {
	ed := newBudgetEditor(t, 5)
	ed.AddShape(scene.RectMold())
	err := ed.Load(document.NewSampleDiagram(scene.DefaultFrameDim))
	if !errors.Is(err, editor.ErrViewBudget) {
		t.Fatalf("expected view budget error, got %v", err)
	}
	if n := len(ed.Scene().Shapes()); n != 1 || len(ed.Scene().Frames()) != 0 {
		t.Fatal("a rejected load must leave the diagram alone")
	}
}

func TestLargeLoadIsBatched(t *testing.T) {
	records := document.NewSampleDiagram(scene.DefaultFrameDim)
	for i := range 3000 {
		attrs := scene.RectMold().Attrs
		attrs[scene.AttrTransform] = affine.Matrix{10, 0, 0, 10, float64(i % 600), float64(i / 600 * 10)}
		records = append(records, document.Shape("rect", attrs))
	}

	ed, tree := newEditor(t)
	start := time.Now()
	if err := ed.Load(records); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("loading %d records took %v", len(records), elapsed)
	}
	if n := len(ed.Scene().Shapes()); n != 3001 {
		t.Fatalf("shapes = %d", n)
	}
	if n := ed.Scene().Entity(ed.Scene().Shapes()[3000]).ViewCount(); n != 4 {
		t.Fatalf("last shape has %d views, want 4", n)
	}
	if d := tree.Detached(); len(d) != 0 {
		t.Fatalf("detached: %v", d)
	}
}
