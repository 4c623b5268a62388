package render

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/lackhoa/fractal-sky/internal/scene"
)

// SVGOptions controls WriteSVG.
type SVGOptions struct {
	MinX, MinY    float64
	Width, Height float64
	Background    string
	// Chrome keeps hit boxes, handles and frame axes in the output.
	Chrome bool
	// Hidden keeps elements whose visibility is "hidden".
	Hidden bool
}

var chromeLayers = map[string]bool{
	"axes-layer":      true,
	"box-layer":       true,
	"frame-box-layer": true,
	"control-layer":   true,
}

// frameAxesDef draws the unit frame's i and j axes; frame chrome refers to it
// with <use href="#frame-axes">.
const frameAxesDef = `<defs><g id="frame-axes">` +
	`<rect width="1" height="1" fill="none" stroke="#b0b0b0" stroke-dasharray="4" vector-effect="non-scaling-stroke"/>` +
	`<line x1="0" y1="0" x2="1" y2="0" stroke="red" vector-effect="non-scaling-stroke"/>` +
	`<line x1="0" y1="0" x2="0" y2="1" stroke="lime" vector-effect="non-scaling-stroke"/>` +
	`</g></defs>`

// WriteSVG serializes the tree as a standalone SVG document.
func (t *Tree) WriteSVG(w io.Writer, opts SVGOptions) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="%s %s %s %s" width="%s" height="%s">`,
		formatFloat(opts.MinX), formatFloat(opts.MinY),
		formatFloat(opts.Width), formatFloat(opts.Height),
		formatFloat(opts.Width), formatFloat(opts.Height))
	if opts.Chrome {
		bw.WriteString(frameAxesDef)
	}
	if opts.Background != "" {
		fmt.Fprintf(bw, `<rect x="%s" y="%s" width="100%%" height="100%%" fill="`,
			formatFloat(opts.MinX), formatFloat(opts.MinY))
		if err := xml.EscapeText(bw, []byte(opts.Background)); err != nil {
			return err
		}
		bw.WriteString(`"/>`)
	}
	for _, r := range t.surface {
		e := t.elements[r]
		if !opts.Chrome && chromeLayers[e.Attrs["id"]] {
			continue
		}
		if err := t.writeElement(bw, e, opts); err != nil {
			return err
		}
	}
	bw.WriteString("</svg>\n")
	return bw.Flush()
}

func (t *Tree) writeElement(w *bufio.Writer, e *Element, opts SVGOptions) error {
	if !opts.Hidden && e.Attrs["visibility"] == "hidden" {
		return nil
	}
	w.WriteByte('<')
	w.WriteString(e.Tag)
	for _, k := range sortedKeys(e.Attrs) {
		if !opts.Chrome && isDataAttr(k) {
			continue
		}
		w.WriteByte(' ')
		w.WriteString(k)
		w.WriteString(`="`)
		if err := xml.EscapeText(w, []byte(e.Attrs[k])); err != nil {
			return err
		}
		w.WriteByte('"')
	}
	if len(e.Children) == 0 {
		w.WriteString("/>")
		return nil
	}
	w.WriteByte('>')
	for _, c := range e.Children {
		if err := t.writeElement(w, t.elements[c], opts); err != nil {
			return err
		}
	}
	w.WriteString("</")
	w.WriteString(e.Tag)
	w.WriteByte('>')
	return nil
}

func isDataAttr(k string) bool {
	return len(k) > 5 && k[:5] == "data-"
}

// Apply replays a recorded op batch onto the tree. Refs in the batch must
// come from a single Recorder, and the tree must only ever be fed from it.
func (t *Tree) Apply(ops []Op) error {
	for _, op := range ops {
		switch op.Op {
		case OpCreate:
			t.ops++
			attrs := make(map[string]string, len(op.Attrs))
			for k, v := range op.Attrs {
				attrs[k] = v
			}
			t.elements[op.Ref] = &Element{Ref: op.Ref, Tag: op.Tag, Attrs: attrs}
			if op.Ref > t.last {
				t.last = op.Ref
			}
		case OpSet:
			t.SetAttribute(op.Ref, op.Key, op.Value)
		case OpInsert:
			t.InsertBefore(op.Parent, op.Ref, op.Next)
		case OpAppend:
			t.AppendChild(op.Parent, op.Ref)
		case OpRemove:
			t.Remove(op.Ref)
		default:
			return fmt.Errorf("render: unknown op %q", op.Op)
		}
	}
	return nil
}

var _ scene.RenderSink = (*Tree)(nil)
var _ scene.RenderSink = (*Recorder)(nil)
