// Package search filters the documentation page by a free-text query.
package search

import (
	"strconv"
	"strings"

	"github.com/linartova/data-quality/internal/page"
)

// Element ids and classes of the documentation page.
const (
	SearchBarID      = "search-bar"
	ContentItemClass = "content-item"
)

// Block is one searchable documentation block.
type Block struct {
	ID      string
	Text    string
	Visible bool
}

// Matches reports whether text contains query, ignoring case.
// An empty query matches everything.
func Matches(text, query string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(query))
}

// Filter returns a copy of blocks with Visible set from the query.
func Filter(blocks []Block, query string) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		b.Visible = Matches(b.Text, query)
		out[i] = b
	}
	return out
}

// Blocks returns the content items of doc in document order. The i-th item
// (0-based) is toggled through the element with id i+1.
func Blocks(doc *page.Document) []Block {
	items := doc.ByClass(ContentItemClass)
	out := make([]Block, 0, len(items))
	for i, n := range items {
		out = append(out, Block{
			ID:      strconv.Itoa(i + 1),
			Text:    page.Text(n),
			Visible: true,
		})
	}
	return out
}

// Result summarizes one filtering pass.
type Result struct {
	Query   string
	Total   int
	Visible int
	// Missing counts blocks whose toggle element is absent from the page.
	Missing int
}

// Apply filters doc in place and writes query into the search bar.
func Apply(doc *page.Document, query string) Result {
	res := Result{Query: query}
	for _, b := range Filter(Blocks(doc), query) {
		res.Total++
		target := doc.ByID(b.ID)
		if target == nil {
			res.Missing++
			continue
		}
		if b.Visible {
			page.Show(target)
			res.Visible++
		} else {
			page.Hide(target)
		}
	}
	if bar := doc.ByID(SearchBarID); bar != nil {
		page.SetAttr(bar, "value", query)
	}
	return res
}
