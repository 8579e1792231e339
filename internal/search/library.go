package search

import (
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/linartova/data-quality/internal/page"
)

// DocContentID is the container that receives loaded documentation sections.
const DocContentID = "doc-content"

// LoadSections appends every HTML file in fsys matching pattern to the
// documentation page. Each file becomes a section whose id continues the
// numbering of the content items already present, with the file body wrapped
// in a content item. It returns the number of sections added.
func LoadSections(doc *page.Document, fsys fs.FS, pattern string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	container := doc.ByID(DocContentID)
	if container == nil {
		return 0, fmt.Errorf("documentation page has no #%s element", DocContentID)
	}

	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return 0, fmt.Errorf("glob %q: %w", pattern, err)
	}
	sort.Strings(matches)

	next := len(doc.ByClass(ContentItemClass)) + 1
	added := 0
	for _, name := range matches {
		f, err := fsys.Open(name)
		if err != nil {
			return added, fmt.Errorf("open %s: %w", name, err)
		}
		src, err := page.Parse(f)
		f.Close()
		if err != nil {
			return added, fmt.Errorf("%s: %w", name, err)
		}
		body := src.First("body")
		if body == nil || body.FirstChild == nil {
			logger.Warn("skipping empty documentation file", "file", name)
			continue
		}

		section := page.CreateElement("section")
		page.SetAttr(section, "id", strconv.Itoa(next))
		page.SetAttr(section, "class", "doc-section")
		item := page.CreateElement("div")
		page.SetAttr(item, "class", ContentItemClass)
		for c := body.FirstChild; c != nil; c = body.FirstChild {
			body.RemoveChild(c)
			item.AppendChild(c)
		}
		section.AppendChild(item)
		container.AppendChild(section)

		logger.Debug("documentation section loaded", "file", name, "id", next)
		next++
		added++
	}
	return added, nil
}
