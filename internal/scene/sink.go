package scene

// ElementRef identifies an element owned by a RenderSink.
type ElementRef int

// NoElement stands for the sink's top-level surface when used as a parent,
// and for "append" when used as the next sibling.
const NoElement ElementRef = 0

// RenderSink receives the element operations that keep a rendering surface in
// step with the scene. The scene never reads anything back from it.
//
// Remove detaches an element together with its whole subtree.
type RenderSink interface {
	CreateElement(tag string, attrs Attrs) ElementRef
	SetAttribute(el ElementRef, key string, value any)
	InsertBefore(parent, el, next ElementRef)
	AppendChild(parent, el ElementRef)
	Remove(el ElementRef)
}

// DiscardSink hands out element refs and drops every operation. It is used
// where the scene has to be materialized without any surface.
type DiscardSink struct {
	last ElementRef
}

func (d *DiscardSink) CreateElement(string, Attrs) ElementRef {
	d.last++
	return d.last
}

func (d *DiscardSink) SetAttribute(ElementRef, string, any) {}

func (d *DiscardSink) InsertBefore(ElementRef, ElementRef, ElementRef) {}

func (d *DiscardSink) AppendChild(ElementRef, ElementRef) {}

func (d *DiscardSink) Remove(ElementRef) {}
