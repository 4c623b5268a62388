package render

import (
	"fmt"
	"slices"

	"github.com/lackhoa/fractal-sky/internal/scene"
)

// Element is a node of a Tree.
type Element struct {
	Ref      scene.ElementRef
	Tag      string
	Attrs    map[string]string
	Parent   scene.ElementRef
	Children []scene.ElementRef
	attached bool
}

// Tree is an in-memory RenderSink that mirrors a DOM. It panics on
// operations against elements it does not know, which makes it strict enough
// to catch writes to removed views in tests.
type Tree struct {
	last     scene.ElementRef
	elements map[scene.ElementRef]*Element
	surface  []scene.ElementRef
	ops      int
}

func NewTree() *Tree {
	return &Tree{elements: make(map[scene.ElementRef]*Element)}
}

func (t *Tree) CreateElement(tag string, attrs scene.Attrs) scene.ElementRef {
	t.ops++
	t.last++
	a := FormatAttrs(attrs)
	if a == nil {
		a = make(map[string]string)
	}
	t.elements[t.last] = &Element{Ref: t.last, Tag: tag, Attrs: a}
	return t.last
}

func (t *Tree) SetAttribute(el scene.ElementRef, key string, value any) {
	t.ops++
	t.mustGet(el).Attrs[key] = FormatValue(value)
}

func (t *Tree) InsertBefore(parent, el, next scene.ElementRef) {
	t.ops++
	e := t.mustGet(el)
	t.detach(e)
	siblings := t.childrenOf(parent)
	i := slices.Index(*siblings, next)
	if i < 0 {
		panic(fmt.Sprintf("render: %d is not a child of %d", next, parent))
	}
	*siblings = slices.Insert(*siblings, i, el)
	e.Parent = parent
	e.attached = true
}

func (t *Tree) AppendChild(parent, el scene.ElementRef) {
	t.ops++
	e := t.mustGet(el)
	t.detach(e)
	siblings := t.childrenOf(parent)
	*siblings = append(*siblings, el)
	e.Parent = parent
	e.attached = true
}

func (t *Tree) Remove(el scene.ElementRef) {
	t.ops++
	e := t.mustGet(el)
	t.detach(e)
	t.forget(e)
}

func (t *Tree) forget(e *Element) {
	for _, c := range e.Children {
		t.forget(t.elements[c])
	}
	delete(t.elements, e.Ref)
}

func (t *Tree) detach(e *Element) {
	if !e.attached {
		return
	}
	siblings := t.childrenOf(e.Parent)
	*siblings = slices.DeleteFunc(*siblings, func(r scene.ElementRef) bool { return r == e.Ref })
	e.attached = false
	e.Parent = scene.NoElement
}

func (t *Tree) childrenOf(parent scene.ElementRef) *[]scene.ElementRef {
	if parent == scene.NoElement {
		return &t.surface
	}
	return &t.mustGet(parent).Children
}

func (t *Tree) mustGet(el scene.ElementRef) *Element {
	e, ok := t.elements[el]
	if !ok {
		panic(fmt.Sprintf("render: unknown element %d", el))
	}
	return e
}

// Get returns an element, or nil once it has been removed.
func (t *Tree) Get(el scene.ElementRef) *Element {
	return t.elements[el]
}

// Children returns the children of an element, or of the surface for
// NoElement.
func (t *Tree) Children(parent scene.ElementRef) []scene.ElementRef {
	return slices.Clone(*t.childrenOf(parent))
}

// Len is the number of live elements.
func (t *Tree) Len() int { return len(t.elements) }

// Ops is the number of operations received so far.
func (t *Tree) Ops() int { return t.ops }

// Detached lists live elements that are not reachable from the surface.
func (t *Tree) Detached() []scene.ElementRef {
	reach := make(map[scene.ElementRef]bool, len(t.elements))
	var walk func(refs []scene.ElementRef)
	walk = func(refs []scene.ElementRef) {
		for _, r := range refs {
			reach[r] = true
			walk(t.elements[r].Children)
		}
	}
	walk(t.surface)
	var out []scene.ElementRef
	for r := range t.elements {
		if !reach[r] {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return out
}

// Count returns how many live, attached elements match the predicate.
func (t *Tree) Count(match func(*Element) bool) int {
	n := 0
	t.Walk(func(e *Element) bool {
		if match(e) {
			n++
		}
		return true
	})
	return n
}

// Walk visits attached elements depth first in document order. Returning
// false skips the element's subtree.
func (t *Tree) Walk(fn func(*Element) bool) {
	var walk func(refs []scene.ElementRef)
	walk = func(refs []scene.ElementRef) {
		for _, r := range refs {
			e := t.elements[r]
			if fn(e) {
				walk(e.Children)
			}
		}
	}
	walk(t.surface)
}
