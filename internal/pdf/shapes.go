package pdf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"pdf-workbench/internal/coords"
)

// ShapeKind 形状类型
type ShapeKind string

const (
	ShapeRect ShapeKind = "rect"
)

// Shape is a vector annotation in drawing-canvas pixel coordinates.
type Shape interface {
	Kind() ShapeKind
	// Bounds returns the canvas rectangle the shape occupies.
	Bounds() coords.Rect
}

// RectShape is an axis-aligned rectangle.
type RectShape struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Kind implements Shape.
func (r RectShape) Kind() ShapeKind { return ShapeRect }

// Bounds implements Shape.
func (r RectShape) Bounds() coords.Rect {
	return coords.Rect{Left: r.Left, Top: r.Top, Width: r.Width, Height: r.Height}
}

// rawShape is the wire form of one shape descriptor.
type rawShape struct {
	Type   *string  `json:"type"`
	Left   *float64 `json:"left"`
	Top    *float64 `json:"top"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

// ParseShapes decodes a JSON list of shape descriptors. Either every shape
// is valid and typed, or the payload is rejected as a whole.
func ParseShapes(payload []byte) ([]Shape, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, NewPDFError(ErrNoAnnotationData, "no annotation data provided", nil)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	var raws []json.RawMessage
	if err := dec.Decode(&raws); err != nil {
		return nil, malformed("shape list is not a JSON array", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, malformed("unexpected data after shape list", err)
	}
	if raws == nil {
		return nil, malformed("shape list is null", nil)
	}

	shapes := make([]Shape, 0, len(raws))
	for i, raw := range raws {
		s, err := parseShape(raw)
		if err != nil {
			return nil, malformed(fmt.Sprintf("shape %d: %v", i, err), err)
		}
		shapes = append(shapes, s)
	}
	return shapes, nil
}

func parseShape(raw json.RawMessage) (Shape, error) {
	var rs rawShape
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("not a shape object")
	}
	if rs.Type == nil {
		return nil, fmt.Errorf("missing type")
	}

	switch ShapeKind(*rs.Type) {
	case ShapeRect:
		fields := []struct {
			name string
			v    *float64
		}{
			{"left", rs.Left}, {"top", rs.Top}, {"width", rs.Width}, {"height", rs.Height},
		}
		for _, f := range fields {
			if f.v == nil {
				return nil, fmt.Errorf("missing %s", f.name)
			}
			if math.IsNaN(*f.v) || math.IsInf(*f.v, 0) || *f.v < 0 {
				return nil, fmt.Errorf("%s must be a non-negative number", f.name)
			}
		}
		return RectShape{Left: *rs.Left, Top: *rs.Top, Width: *rs.Width, Height: *rs.Height}, nil
	default:
		return nil, fmt.Errorf("unknown shape type %q", *rs.Type)
	}
}

func malformed(details string, cause error) *PDFError {
	return NewPDFErrorWithDetails(ErrMalformedAnnotation, "annotation payload is malformed", details, cause)
}
