// Package plot turns serialized plot specifications into rendered plots.
//
// A specification is the JSON produced by the QC backend for a figure: an
// object with a "data" array of traces and a "layout" object.
package plot

import (
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/net/html"

	"github.com/linartova/data-quality/internal/page"
	"github.com/linartova/data-quality/internal/util"
)

var (
	// ErrInvalidSpec marks an item that is not a plot specification.
	ErrInvalidSpec = errors.New("invalid plot specification")
	// ErrUnsupportedTrace is returned by renderers that cannot draw a trace type.
	ErrUnsupportedTrace = errors.New("unsupported trace type")
)

const specSchema = `{
  "type": "object",
  "required": ["data"],
  "properties": {
    "data": {"type": "array", "items": {"type": "object"}},
    "layout": {"type": "object"}
  }
}`

var schema = util.MustCompileSchema("plot.json", specSchema)

// Spec is a parsed plot specification.
type Spec struct {
	Data   json.RawMessage `json:"data"`
	Layout json.RawMessage `json:"layout"`

	traces []map[string]any
	layout map[string]any
}

// Parse decodes and validates a serialized specification.
func Parse(item string) (Spec, error) {
	m, err := util.DecodeJSONMap([]byte(item))
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if err := schema.Validate(m); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	var s Spec
	if err := json.Unmarshal([]byte(item), &s); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	if len(s.Layout) == 0 || string(s.Layout) == "null" {
		s.Layout = json.RawMessage("{}")
	}

	for _, t := range m["data"].([]any) {
		s.traces = append(s.traces, t.(map[string]any))
	}
	s.layout, _ = m["layout"].(map[string]any)
	return s, nil
}

// Traces returns the decoded traces, numbers kept as json.Number.
func (s Spec) Traces() []map[string]any {
	return s.traces
}

// Title returns the layout title, which Plotly accepts as a string or as
// an object with a "text" field.
func (s Spec) Title() string {
	switch t := s.layout["title"].(type) {
	case string:
		return t
	case map[string]any:
		if text, ok := util.ToString(t["text"]); ok {
			return text
		}
	}
	return ""
}

// Renderer hands a plot to a plotting backend, keyed by its container.
type Renderer interface {
	NewPlot(doc *page.Document, container *html.Node, spec Spec) error
}

// Chain runs renderers in order, stopping at the first error.
type Chain []Renderer

// NewPlot implements Renderer.
func (c Chain) NewPlot(doc *page.Document, container *html.Node, spec Spec) error {
	for _, r := range c {
		if err := r.NewPlot(doc, container, spec); err != nil {
			return err
		}
	}
	return nil
}
