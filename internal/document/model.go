// Package document defines the persisted diagram format: a JSON array of
// shape and frame records, shapes first, each list in paint order.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/lackhoa/fractal-sky/internal/affine"
	"github.com/lackhoa/fractal-sky/internal/scene"
)

const (
	TypeShape = "shape"
	TypeFrame = "frame"

	// MaxRecords is the most records a diagram file may hold.
	MaxRecords = 10000
)

// ErrInvalidRecord is wrapped by every decoding error caused by a record
// that the editor would refuse.
var ErrInvalidRecord = errors.New("invalid record")

// Record is one persisted entity.
//
// Shape records carry their tag and attributes, with the transform (if any)
// as a matrix. Frame records carry only Xform: the frame transform with its
// basis divided by the frame dimension, so diagrams survive a change of
// frame size. A frame without Xform spawns at the default position.
type Record struct {
	Type  string
	Tag   string
	Attrs scene.Attrs
	Xform *affine.Matrix
}

// Shape builds a shape record.
func Shape(tag string, attrs scene.Attrs) Record {
	return Record{Type: TypeShape, Tag: tag, Attrs: attrs}
}

// Frame builds a frame record from a normalized transform.
func Frame(xform affine.Matrix) Record {
	return Record{Type: TypeFrame, Xform: &xform}
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Attrs)+2)
	switch r.Type {
	case TypeShape:
		for k, v := range r.Attrs {
			out[k] = v
		}
		out["tag"] = r.Tag
	case TypeFrame:
		if r.Xform != nil {
			out[scene.AttrXform] = *r.Xform
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRecord, r.Type)
	}
	out["type"] = r.Type
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var typ string
	if err := json.Unmarshal(raw["type"], &typ); err != nil {
		return fmt.Errorf("%w: type: %v", ErrInvalidRecord, err)
	}
	delete(raw, "type")

	switch typ {
	case TypeShape:
		return r.decodeShape(raw)
	case TypeFrame:
		return r.decodeFrame(raw)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRecord, typ)
	}
}

func (r *Record) decodeShape(raw map[string]json.RawMessage) error {
	var tag string
	if err := json.Unmarshal(raw["tag"], &tag); err != nil || tag == "" {
		return fmt.Errorf("%w: shape needs a tag", ErrInvalidRecord)
	}
	if tag == scene.TagFrame {
		return fmt.Errorf("%w: shape cannot use tag %q", ErrInvalidRecord, tag)
	}
	delete(raw, "tag")

	attrs := make(scene.Attrs, len(raw))
	for k, msg := range raw {
		switch k {
		case scene.AttrTransform:
			m, err := decodeMatrix(msg)
			if err != nil {
				return fmt.Errorf("%w: transform: %v", ErrInvalidRecord, err)
			}
			attrs[k] = m
		case scene.AttrXform:
			return fmt.Errorf("%w: shape cannot carry %q", ErrInvalidRecord, k)
		default:
			v, err := decodeScalar(msg)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidRecord, k, err)
			}
			attrs[k] = v
		}
	}
	*r = Record{Type: TypeShape, Tag: tag, Attrs: attrs}
	return nil
}

func (r *Record) decodeFrame(raw map[string]json.RawMessage) error {
	*r = Record{Type: TypeFrame}
	for k, msg := range raw {
		if k != scene.AttrXform {
			return fmt.Errorf("%w: frame cannot carry %q", ErrInvalidRecord, k)
		}
		m, err := decodeMatrix(msg)
		if err != nil {
			return fmt.Errorf("%w: xform: %v", ErrInvalidRecord, err)
		}
		r.Xform = &m
	}
	return nil
}

func decodeMatrix(msg json.RawMessage) (affine.Matrix, error) {
	var nums []float64
	if err := json.Unmarshal(msg, &nums); err != nil {
		return affine.Matrix{}, err
	}
	if len(nums) != 6 {
		return affine.Matrix{}, fmt.Errorf("want 6 numbers, got %d", len(nums))
	}
	var m affine.Matrix
	copy(m[:], nums)
	if !m.IsFinite() {
		return affine.Matrix{}, errors.New("non-finite value")
	}
	return m, nil
}

// decodeScalar accepts the attribute values SVG can take: strings and
// finite numbers.
func decodeScalar(msg json.RawMessage) (any, error) {
	d := json.NewDecoder(bytes.NewReader(msg))
	var v any
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return nil, errors.New("non-finite number")
		}
		return x, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

// Decode parses a persisted diagram.
func Decode(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode diagram: %w", err)
	}
	if len(records) > MaxRecords {
		return nil, fmt.Errorf("decode diagram: %w: %d records, at most %d", ErrInvalidRecord, len(records), MaxRecords)
	}
	return records, nil
}

// Encode serializes records as a diagram file.
func Encode(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode diagram: %w", err)
	}
	return data, nil
}

// Counts returns how many shape and frame records there are.
func Counts(records []Record) (shapes, frames int) {
	for _, r := range records {
		switch r.Type {
		case TypeShape:
			shapes++
		case TypeFrame:
			frames++
		}
	}
	return shapes, frames
}
