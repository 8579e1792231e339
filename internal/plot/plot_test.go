package plot

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linartova/data-quality/internal/page"
)

const barSpec = `{
  "data": [{"type": "bar", "x": ["patient", "specimen", "condition"], "y": [120, 80, 42], "name": "missing"}],
  "layout": {"title": {"text": "Completeness"}, "height": 400}
}`

const scatterSpec = `{"data": [{"x": [1, 2, 3], "y": [3, 1, 2], "mode": "lines"}], "layout": {"title": "Trend"}}`

func TestParse(t *testing.T) {
	s, err := Parse(barSpec)
	require.NoError(t, err)
	assert.Equal(t, "Completeness", s.Title())
	require.Len(t, s.Traces(), 1)
	assert.Equal(t, "bar", s.Traces()[0]["type"])

	s, err = Parse(`{"data": []}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(s.Layout))
	assert.Equal(t, "", s.Title())
}

func TestParseInvalid(t *testing.T) {
	for _, item := range []string{
		`<table></table>`,
		`{"layout": {}}`,
		`{"data": {"x": 1}}`,
		`{"data": [1, 2]}`,
	} {
		_, err := Parse(item)
		assert.ErrorIs(t, err, ErrInvalidSpec, item)
	}
}

// testPage returns a page whose main-content holds an empty graph-0 container.
func testPage(t *testing.T) *page.Document {
	t.Helper()
	doc, err := page.ParseString(`<html><body><div id="main-content"></div></body></html>`)
	require.NoError(t, err)
	div := page.CreateElement("div")
	page.SetAttr(div, "id", "graph-0")
	doc.ByID("main-content").AppendChild(div)
	return doc
}

func TestPlotlyRenderer(t *testing.T) {
	doc := testPage(t)
	spec, err := Parse(`{"data": [{"type": "table", "cells": {"values": [["</script><b>x"]]}}], "layout": {}}`)
	require.NoError(t, err)

	require.NoError(t, PlotlyRenderer{}.NewPlot(doc, doc.ByID("graph-0"), spec))

	out := doc.String()
	assert.Contains(t, out, `<div id="graph-0"></div><script>Plotly.newPlot("graph-0", [{"type":"table"`)
	assert.Contains(t, out, `<\/script><b>x`)
	assert.Equal(t, 1, strings.Count(out, "</script>"))
}

func TestPlotlyRendererDetached(t *testing.T) {
	spec, err := Parse(scatterSpec)
	require.NoError(t, err)

	div := page.CreateElement("div")
	assert.Error(t, PlotlyRenderer{}.NewPlot(nil, div, spec))
	page.SetAttr(div, "id", "graph-9")
	assert.Error(t, PlotlyRenderer{}.NewPlot(nil, div, spec))
}

func TestWriteSVG(t *testing.T) {
	for name, src := range map[string]string{"bar": barSpec, "scatter": scatterSpec} {
		t.Run(name, func(t *testing.T) {
			spec, err := Parse(src)
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, WriteSVG(&buf, spec))
			assert.Contains(t, buf.String(), "<svg")
		})
	}
}

func TestWriteSVGUnsupported(t *testing.T) {
	spec, err := Parse(`{"data": [{"type": "table", "cells": {"values": [[1]]}}]}`)
	require.NoError(t, err)
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteSVG(&buf, spec), ErrUnsupportedTrace)
}

func TestSnapshotRenderer(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	r := SnapshotRenderer{Dir: filepath.Join(dir, "graphs"), Logger: logger}

	doc := testPage(t)
	spec, err := Parse(barSpec)
	require.NoError(t, err)
	require.NoError(t, r.NewPlot(doc, doc.ByID("graph-0"), spec))

	b, err := os.ReadFile(filepath.Join(dir, "graphs", "graph-0.svg"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "<svg")

	table, err := Parse(`{"data": [{"type": "table"}]}`)
	require.NoError(t, err)
	page.SetAttr(doc.ByID("graph-0"), "id", "graph-1")
	require.NoError(t, r.NewPlot(doc, doc.ByID("graph-1"), table))
	_, err = os.Stat(filepath.Join(dir, "graphs", "graph-1.svg"))
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotFailureKeepsPlot(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	r := Chain{PlotlyRenderer{}, SnapshotRenderer{Dir: dir, Logger: logger}}

	doc := testPage(t)
	spec, err := Parse(`{"data": [{"type": "bar", "x": ["a", "b"], "y": [0, 0]}]}`)
	require.NoError(t, err)

	require.NoError(t, r.NewPlot(doc, doc.ByID("graph-0"), spec))
	assert.Contains(t, doc.String(), `Plotly.newPlot("graph-0"`)

	// nil logger is allowed too
	page.SetAttr(doc.ByID("graph-0"), "id", "graph-1")
	assert.NoError(t, SnapshotRenderer{Dir: dir}.NewPlot(doc, doc.ByID("graph-1"), spec))
}

func TestChainStopsOnError(t *testing.T) {
	doc := testPage(t)
	spec, err := Parse(scatterSpec)
	require.NoError(t, err)

	calls := 0
	counting := rendererFunc(func(*page.Document, string) error { calls++; return nil })
	failing := rendererFunc(func(*page.Document, string) error { return assert.AnError })

	err = Chain{counting, failing, counting}.NewPlot(doc, doc.ByID("graph-0"), spec)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}
