// Package web embeds the page shells and static assets served by the viewer.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"

	"github.com/linartova/data-quality/internal/page"
)

//go:embed all:templates
var templatesFS embed.FS

// Static returns the stylesheet and other static files.
func Static() (fs.FS, error) {
	return fs.Sub(templatesFS, "templates/static")
}

// DashboardShell returns a fresh dashboard page titled title, with a link
// to /download/<name> for each download.
func DashboardShell(title string, downloads []string) (*page.Document, error) {
	doc, err := parse("dashboard.html")
	if err != nil {
		return nil, err
	}
	if n := doc.First("title"); n != nil {
		page.SetText(n, title)
	}
	if n := doc.ByID("page-title"); n != nil {
		page.SetText(n, title)
	}
	if nav := doc.ByID("downloads"); nav != nil {
		for _, name := range downloads {
			a := page.CreateElement("a")
			page.SetAttr(a, "class", "download")
			page.SetAttr(a, "href", "/download/"+name)
			page.SetText(a, "Download "+name)
			nav.AppendChild(a)
		}
	}
	return doc, nil
}

// DocumentationShell returns a fresh documentation page.
func DocumentationShell() (*page.Document, error) {
	return parse("documentation.html")
}

// IndexTemplate parses the viewer index template.
func IndexTemplate() (*template.Template, error) {
	return template.ParseFS(templatesFS, "templates/index.html")
}

func parse(name string) (*page.Document, error) {
	f, err := templatesFS.Open("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	return page.Parse(f)
}
