package plot

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	chart "github.com/wcharczuk/go-chart/v2"
	"golang.org/x/net/html"

	"github.com/linartova/data-quality/internal/page"
	"github.com/linartova/data-quality/internal/util"
)

const (
	snapshotWidth  = 1024
	snapshotHeight = 400
)

// SnapshotRenderer writes a static SVG of each plot to Dir as <container-id>.svg.
//
// Only bar and scatter traces are drawn. Plots made of other trace types are
// skipped and logged at debug level; plots the chart library rejects, such as
// an all-zero bar chart, are logged as warnings. Neither is an error.
type SnapshotRenderer struct {
	Dir    string
	Logger *slog.Logger
}

// NewPlot implements Renderer.
func (r SnapshotRenderer) NewPlot(_ *page.Document, container *html.Node, spec Spec) error {
	id, ok := page.Attr(container, "id")
	if !ok || id == "" {
		return fmt.Errorf("plot container has no id")
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(r.Dir, id+".svg")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	err = WriteSVG(f, spec)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		return nil
	}

	// A snapshot never fails the plot it shadows.
	_ = os.Remove(path)
	if r.Logger == nil {
		return nil
	}
	if errors.Is(err, ErrUnsupportedTrace) {
		r.Logger.Debug("snapshot skipped", "container", id, "err", err)
	} else {
		r.Logger.Warn("snapshot failed", "container", id, "err", err)
	}
	return nil
}

// WriteSVG renders spec as SVG. A plot whose first trace is a bar trace is
// drawn as a bar chart of all its bar traces; otherwise every scatter trace
// becomes a line series.
func WriteSVG(w io.Writer, spec Spec) error {
	traces := spec.Traces()
	if len(traces) == 0 {
		return fmt.Errorf("%w: no traces", ErrUnsupportedTrace)
	}
	if traceType(traces[0]) == "bar" {
		return writeBars(w, spec)
	}
	return writeLines(w, spec)
}

func traceType(t map[string]any) string {
	if s, ok := util.ToString(t["type"]); ok && s != "" {
		return s
	}
	return "scatter"
}

func writeBars(w io.Writer, spec Spec) error {
	traces := spec.Traces()
	var bars []chart.Value
	for _, t := range traces {
		if traceType(t) != "bar" {
			continue
		}
		labels, _ := util.ToStringSlice(t["x"])
		values, ok := util.ToFloat64Slice(t["y"])
		if !ok {
			return fmt.Errorf("%w: bar trace without numeric y", ErrUnsupportedTrace)
		}
		name, _ := util.ToString(t["name"])
		for i, v := range values {
			label := fmt.Sprint(i)
			if i < len(labels) {
				label = labels[i]
			}
			if name != "" && len(traces) > 1 {
				label = name + " " + label
			}
			bars = append(bars, chart.Value{Value: v, Label: label})
		}
	}
	if len(bars) == 0 {
		return fmt.Errorf("%w: empty bar chart", ErrUnsupportedTrace)
	}

	graph := chart.BarChart{
		Title:    spec.Title(),
		Width:    snapshotWidth,
		Height:   snapshotHeight,
		BarWidth: barWidth(len(bars)),
		Bars:     bars,
	}
	return graph.Render(chart.SVG, w)
}

func writeLines(w io.Writer, spec Spec) error {
	var series []chart.Series
	for _, t := range spec.Traces() {
		if traceType(t) != "scatter" {
			continue
		}
		ys, ok := util.ToFloat64Slice(t["y"])
		if !ok || len(ys) < 2 {
			continue
		}
		xs, ok := util.ToFloat64Slice(t["x"])
		if !ok || len(xs) != len(ys) {
			xs = make([]float64, len(ys))
			for i := range xs {
				xs[i] = float64(i)
			}
		}
		name, _ := util.ToString(t["name"])
		series = append(series, chart.ContinuousSeries{Name: name, XValues: xs, YValues: ys})
	}
	if len(series) == 0 {
		return fmt.Errorf("%w: no drawable scatter traces", ErrUnsupportedTrace)
	}

	graph := chart.Chart{
		Title:  spec.Title(),
		Width:  snapshotWidth,
		Height: snapshotHeight,
		Series: series,
	}
	return graph.Render(chart.SVG, w)
}

func barWidth(n int) int {
	w := (snapshotWidth - 100) / n / 2
	switch {
	case w < 4:
		return 4
	case w > 60:
		return 60
	}
	return w
}
