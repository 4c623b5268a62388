package editor

import (
	"fmt"

	"github.com/lackhoa/fractal-sky/internal/affine"
	"github.com/lackhoa/fractal-sky/internal/document"
	"github.com/lackhoa/fractal-sky/internal/scene"
)

// Load replaces the whole diagram with records and forgets the history.
// Loading is not undoable. Records that would not fit the view budget at the
// current depth are rejected with ErrViewBudget.
func (ed *Editor) Load(records []document.Record) error {
	for i, r := range records {
		if r.Type != document.TypeShape && r.Type != document.TypeFrame {
			return fmt.Errorf("record %d: %w: unknown type %q", i, document.ErrInvalidRecord, r.Type)
		}
		if r.Type == document.TypeShape && (r.Tag == "" || r.Tag == scene.TagFrame) {
			return fmt.Errorf("record %d: %w: bad shape tag %q", i, document.ErrInvalidRecord, r.Tag)
		}
	}
	shapes, frames := document.Counts(records)
	if err := ed.checkViews(shapes, frames, ed.scene.Depth()); err != nil {
		return err
	}

	ed.Clear()
	pan, zoom := ed.viewport.Pan(), ed.viewport.Zoom()
	ed.scene.Batch(func() {
		for _, r := range records {
			var e *scene.Entity
			switch r.Type {
			case document.TypeShape:
				e = ed.scene.CreateShape(scene.Mold{Tag: r.Tag, Attrs: r.Attrs}, pan, zoom)
			case document.TypeFrame:
				var mold scene.Attrs
				if r.Xform != nil {
					mold = scene.Attrs{scene.AttrXform: *r.Xform}
				}
				e = ed.scene.CreateFrame(mold, pan, zoom)
			}
			ed.scene.Register(e.ID())
		}
	})
	if err := ed.scene.Verify(); err != nil {
		return fmt.Errorf("load diagram: %w", err)
	}
	ed.history.Clear()
	ed.log.Info("diagram loaded", "shapes", shapes, "frames", frames)
	return nil
}

// LoadJSON decodes and loads a diagram file. On a decoding error the current
// diagram is left untouched.
func (ed *Editor) LoadJSON(data []byte) error {
	records, err := document.Decode(data)
	if err != nil {
		return err
	}
	return ed.Load(records)
}

// Save returns the active shapes, then the active frames, in paint order.
// Like Load it ends the undo history.
func (ed *Editor) Save() []document.Record {
	defer ed.history.Clear()

	var out []document.Record
	for _, id := range ed.scene.Shapes() {
		e := ed.scene.Entity(id)
		out = append(out, document.Shape(e.Tag(), e.Attrs()))
	}
	dim := ed.scene.FrameDim()
	for _, id := range ed.scene.Frames() {
		m := ed.scene.Entity(id).Transform()
		out = append(out, document.Frame(affine.Matrix{m[0] / dim, m[1] / dim, m[2] / dim, m[3] / dim, m[4], m[5]}))
	}
	return out
}

// SaveJSON encodes Save as a diagram file.
func (ed *Editor) SaveJSON() ([]byte, error) {
	return document.Encode(ed.Save())
}
