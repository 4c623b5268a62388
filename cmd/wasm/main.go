//go:build js && wasm

package main

import (
	"log/slog"
	"os"
	"syscall/js"

	"github.com/lackhoa/fractal-sky/internal/affine"
	"github.com/lackhoa/fractal-sky/internal/document"
	"github.com/lackhoa/fractal-sky/internal/editor"
	"github.com/lackhoa/fractal-sky/internal/render"
	"github.com/lackhoa/fractal-sky/internal/scene"
)

const svgNS = "http://www.w3.org/2000/svg"

// domSink mirrors scene element operations onto SVG DOM nodes under root.
type domSink struct {
	doc      js.Value
	root     js.Value
	elements map[scene.ElementRef]js.Value
	next     scene.ElementRef
}

func newDOMSink(root js.Value) *domSink {
	return &domSink{
		doc:      js.Global().Get("document"),
		root:     root,
		elements: make(map[scene.ElementRef]js.Value),
	}
}

func (d *domSink) node(ref scene.ElementRef) js.Value {
	if ref == scene.NoElement {
		return d.root
	}
	return d.elements[ref]
}

func (d *domSink) CreateElement(tag string, attrs scene.Attrs) scene.ElementRef {
	el := d.doc.Call("createElementNS", svgNS, tag)
	for k, v := range render.FormatAttrs(attrs) {
		el.Call("setAttribute", k, v)
	}
	d.next++
	d.elements[d.next] = el
	return d.next
}

func (d *domSink) SetAttribute(ref scene.ElementRef, key string, value any) {
	d.node(ref).Call("setAttribute", key, render.FormatValue(value))
}

func (d *domSink) InsertBefore(parent, ref, next scene.ElementRef) {
	if next == scene.NoElement {
		d.AppendChild(parent, ref)
		return
	}
	d.node(parent).Call("insertBefore", d.node(ref), d.node(next))
}

func (d *domSink) AppendChild(parent, ref scene.ElementRef) {
	d.node(parent).Call("appendChild", d.node(ref))
}

func (d *domSink) Remove(ref scene.ElementRef) {
	el, ok := d.elements[ref]
	if !ok {
		return
	}
	el.Call("remove")
	delete(d.elements, ref)
}

var (
	ed     *editor.Editor
	vp     *editor.StaticViewport
	sink   *domSink
	keymap = editor.DefaultKeymap()
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})))

	api := js.Global().Get("Object").New()

	api.Set("mount", js.FuncOf(mount))

	// --- Commands (frontend → editor) ---
	api.Set("loadDiagram", js.FuncOf(loadDiagram))
	api.Set("loadSample", js.FuncOf(loadSample))
	api.Set("addShape", js.FuncOf(addShape))
	api.Set("addFrame", js.FuncOf(addFrame))
	api.Set("pointerDown", js.FuncOf(pointerDown))
	api.Set("pointerMove", js.FuncOf(pointerMove))
	api.Set("pointerUp", js.FuncOf(pointerUp))
	api.Set("zoomAt", js.FuncOf(zoomAt))
	api.Set("key", js.FuncOf(key))
	api.Set("undo", js.FuncOf(undo))
	api.Set("redo", js.FuncOf(redo))
	api.Set("setDepth", js.FuncOf(setDepth))
	api.Set("toggleBranches", js.FuncOf(toggleBranches))

	// --- Queries (frontend ← editor) ---
	api.Set("saveDiagram", js.FuncOf(saveDiagram))
	api.Set("getState", js.FuncOf(getState))

	js.Global().Set("fractalSky", api)
	js.Global().Set("fractalSkyWasmReady", js.ValueOf(true))

	// Keep Go runtime alive
	select {}
}

func errorResult(msg string) any {
	return js.ValueOf(map[string]any{"error": msg})
}

func ready() bool { return ed != nil }

// mount(rootElement, frameDim?) creates the editor drawing into rootElement,
// which should be an SVG <g>.
func mount(this js.Value, args []js.Value) any {
	if len(args) < 1 || args[0].IsUndefined() || args[0].IsNull() {
		return errorResult("missing root element")
	}
	cfg := editor.DefaultConfig()
	if len(args) > 1 && args[1].Type() == js.TypeNumber {
		cfg.Scene.FrameDim = args[1].Float()
	}
	sink = newDOMSink(args[0])
	vp = editor.NewStaticViewport()
	ed = editor.New(sink, vp, cfg)
	applyViewport()
	return js.ValueOf(map[string]any{"ok": true})
}

// applyViewport puts the viewport's pan and zoom on the root group.
func applyViewport() {
	z, p := vp.Zoom(), vp.Pan()
	sink.root.Call("setAttribute", "transform", render.FormatValue(affine.Matrix{z, 0, 0, z, p.X, p.Y}))
}

func loadDiagram(this js.Value, args []js.Value) any {
	if !ready() {
		return errorResult("editor not mounted")
	}
	if len(args) < 1 {
		return errorResult("missing diagram JSON")
	}
	if err := ed.LoadJSON([]byte(args[0].String())); err != nil {
		return errorResult(err.Error())
	}
	return getState(this, nil)
}

func loadSample(this js.Value, args []js.Value) any {
	if !ready() {
		return errorResult("editor not mounted")
	}
	if err := ed.Load(document.NewSampleDiagram(ed.Scene().FrameDim())); err != nil {
		return errorResult(err.Error())
	}
	return getState(this, nil)
}

func saveDiagram(this js.Value, args []js.Value) any {
	if !ready() {
		return errorResult("editor not mounted")
	}
	data, err := ed.SaveJSON()
	if err != nil {
		return errorResult(err.Error())
	}
	return js.ValueOf(string(data))
}

// addShape(tag) with tag one of rect, circle, path.
func addShape(this js.Value, args []js.Value) any {
	if !ready() {
		return errorResult("editor not mounted")
	}
	if len(args) < 1 {
		return errorResult("missing shape tag")
	}
	mold, ok := scene.MoldFor(args[0].String())
	if !ok {
		return errorResult("unknown shape " + args[0].String())
	}
	id := ed.AddShape(mold)
	if id == scene.NoEntity {
		return errorResult(editor.ErrViewBudget.Error())
	}
	return js.ValueOf(int(id))
}

func addFrame(this js.Value, args []js.Value) any {
	if !ready() {
		return errorResult("editor not mounted")
	}
	id := ed.AddFrame()
	if id == scene.NoEntity {
		return errorResult(editor.ErrViewBudget.Error())
	}
	return js.ValueOf(int(id))
}

// pointerArg reads {x, y, shiftKey, ctrlKey} from a pointer event.
func pointerArg(args []js.Value) editor.Pointer {
	if len(args) < 1 {
		return editor.Pointer{}
	}
	ev := args[0]
	p := editor.Pointer{X: ev.Get("x").Float(), Y: ev.Get("y").Float()}
	p.Shift = ev.Get("shiftKey").Truthy()
	p.Ctrl = ev.Get("ctrlKey").Truthy() || ev.Get("metaKey").Truthy()
	return p
}

// pointerDown(event, target?) where target is the element that was hit. Its
// data-entity and data-handle attributes name what gets dragged; a missing
// target pans the viewport.
func pointerDown(this js.Value, args []js.Value) any {
	if !ready() {
		return errorResult("editor not mounted")
	}
	target, h := scene.NoEntity, scene.HandleNone
	if len(args) > 1 && args[1].Truthy() {
		el := args[1]
		if id := el.Call("getAttribute", "data-entity"); id.Truthy() {
			n := js.Global().Call("parseInt", id, 10).Int()
			name := el.Call("getAttribute", "data-handle").String()
			handle, ok := scene.ParseHandle(name)
			if !ok {
				return errorResult("unknown handle " + name)
			}
			target, h = scene.EntityID(n), handle
		}
	}
	if err := ed.PointerDown(target, h, pointerArg(args)); err != nil {
		return errorResult(err.Error())
	}
	return js.ValueOf(map[string]any{"ok": true})
}

func pointerMove(this js.Value, args []js.Value) any {
	if !ready() || !ed.Dragging() {
		return nil
	}
	ed.PointerMove(pointerArg(args))
	applyViewport()
	return nil
}

func pointerUp(this js.Value, args []js.Value) any {
	if !ready() {
		return nil
	}
	ed.PointerUp(pointerArg(args))
	return getState(this, nil)
}

// zoomAt(factor, x, y) scales the view about a surface point.
func zoomAt(this js.Value, args []js.Value) any {
	if !ready() || len(args) < 3 {
		return nil
	}
	vp.ZoomAt(args[0].Float(), affine.Pt(args[1].Float(), args[2].Float()))
	applyViewport()
	return nil
}

// key(event) runs the bound action and reports whether the event should be
// swallowed.
func key(this js.Value, args []js.Value) any {
	if !ready() || len(args) < 1 {
		return js.ValueOf(false)
	}
	ev := args[0]
	ctrl := ev.Get("ctrlKey").Truthy() || ev.Get("metaKey").Truthy()
	chord := editor.KeyChord(ev.Get("key").String(), ctrl, ev.Get("shiftKey").Truthy())
	return js.ValueOf(ed.HandleKey(keymap, chord))
}

func undo(this js.Value, args []js.Value) any {
	if !ready() {
		return js.ValueOf(false)
	}
	return js.ValueOf(ed.Undo())
}

func redo(this js.Value, args []js.Value) any {
	if !ready() {
		return js.ValueOf(false)
	}
	return js.ValueOf(ed.Redo())
}

func setDepth(this js.Value, args []js.Value) any {
	if !ready() || len(args) < 1 {
		return errorResult("missing depth")
	}
	return js.ValueOf(ed.SetDepth(args[0].Int()))
}

func toggleBranches(this js.Value, args []js.Value) any {
	if !ready() {
		return errorResult("editor not mounted")
	}
	ed.ToggleBranches()
	return js.ValueOf(ed.BranchesVisible())
}

func getState(this js.Value, args []js.Value) any {
	if !ready() {
		return errorResult("editor not mounted")
	}
	return js.ValueOf(map[string]any{
		"canUndo":         ed.CanUndo(),
		"canRedo":         ed.CanRedo(),
		"depth":           ed.Depth(),
		"maxDepth":        ed.MaxDepth(),
		"depthLimit":      ed.DepthLimit(),
		"views":           ed.Views(),
		"focused":         int(ed.Focused()),
		"branchesVisible": ed.BranchesVisible(),
		"dragging":        ed.Dragging(),
	})
}
