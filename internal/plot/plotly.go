package plot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/linartova/data-quality/internal/page"
)

// PlotlyRenderer emits a Plotly.newPlot call for the container into the page.
// The call runs in the browser once the page is opened.
type PlotlyRenderer struct{}

// NewPlot implements Renderer.
func (PlotlyRenderer) NewPlot(_ *page.Document, container *html.Node, spec Spec) error {
	id, ok := page.Attr(container, "id")
	if !ok || id == "" {
		return fmt.Errorf("plot container has no id")
	}
	if container.Parent == nil {
		return fmt.Errorf("plot container %s is detached", id)
	}

	data, err := scriptJSON(spec.Data)
	if err != nil {
		return fmt.Errorf("encode data for %s: %w", id, err)
	}
	layout, err := scriptJSON(spec.Layout)
	if err != nil {
		return fmt.Errorf("encode layout for %s: %w", id, err)
	}

	script := &html.Node{Type: html.ElementNode, DataAtom: atom.Script, Data: "script"}
	script.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: "Plotly.newPlot(" + strconv.Quote(id) + ", " + data + ", " + layout + ");",
	})
	container.Parent.InsertBefore(script, container.NextSibling)
	return nil
}

// scriptJSON compacts raw JSON and escapes sequences that would end a script element.
func scriptJSON(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return string(bytes.ReplaceAll(buf.Bytes(), []byte("</"), []byte(`<\/`))), nil
}
