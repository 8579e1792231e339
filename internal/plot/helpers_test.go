package plot

import (
	"golang.org/x/net/html"

	"github.com/linartova/data-quality/internal/page"
)

type rendererFunc func(doc *page.Document, id string) error

func (f rendererFunc) NewPlot(doc *page.Document, container *html.Node, _ Spec) error {
	id, _ := page.Attr(container, "id")
	return f(doc, id)
}
