// Package render provides RenderSink implementations: an in-memory element
// tree that can be written out as SVG, and a recorder that turns element
// operations into a serializable op stream for remote surfaces.
package render

import (
	"encoding/json"
	"sync"

	"github.com/lackhoa/fractal-sky/internal/scene"
)

// Op kinds.
const (
	OpCreate = "create"
	OpSet    = "set"
	OpInsert = "insert"
	OpAppend = "append"
	OpRemove = "remove"
)

// Op is a single element operation for a remote surface to replay. Values
// are already formatted as SVG attribute strings.
type Op struct {
	Op     string            `json:"op"`
	Ref    scene.ElementRef  `json:"ref"`
	Parent scene.ElementRef  `json:"parent,omitempty"`
	Next   scene.ElementRef  `json:"next,omitempty"`
	Tag    string            `json:"tag,omitempty"`
	Key    string            `json:"key,omitempty"`
	Value  string            `json:"value,omitempty"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// Recorder is a RenderSink that buffers operations until they are flushed.
// It is safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	last scene.ElementRef
	ops  []Op
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) CreateElement(tag string, attrs scene.Attrs) scene.ElementRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last++
	r.ops = append(r.ops, Op{Op: OpCreate, Ref: r.last, Tag: tag, Attrs: FormatAttrs(attrs)})
	return r.last
}

func (r *Recorder) SetAttribute(el scene.ElementRef, key string, value any) {
	r.push(Op{Op: OpSet, Ref: el, Key: key, Value: FormatValue(value)})
}

func (r *Recorder) InsertBefore(parent, el, next scene.ElementRef) {
	r.push(Op{Op: OpInsert, Ref: el, Parent: parent, Next: next})
}

func (r *Recorder) AppendChild(parent, el scene.ElementRef) {
	r.push(Op{Op: OpAppend, Ref: el, Parent: parent})
}

func (r *Recorder) Remove(el scene.ElementRef) {
	r.push(Op{Op: OpRemove, Ref: el})
}

func (r *Recorder) push(op Op) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

// Flush returns the buffered operations and starts a new batch.
func (r *Recorder) Flush() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := r.ops
	r.ops = nil
	return ops
}

// Pending reports how many operations are buffered.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

// OpsToJSON serializes an op batch.
func OpsToJSON(ops []Op) ([]byte, error) {
	if ops == nil {
		ops = []Op{}
	}
	return json.Marshal(ops)
}
