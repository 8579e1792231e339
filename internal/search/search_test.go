package search

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linartova/data-quality/internal/page"
)

const docsPage = `<!DOCTYPE html><html><body>
<input id="search-bar" type="text">
<div id="doc-content">
<section id="1"><div class="content-item"><h2>Completeness</h2><p>Counts missing values per attribute.</p></div></section>
<section id="2"><div class="content-item"><h2>Uniqueness</h2><p>Finds duplicated identifiers.</p></div></section>
<section id="3"><div class="content-item"><h2>Conformance</h2><p>Checks value formats abc.</p></div></section>
</div>
</body></html>`

func docs(t *testing.T) *page.Document {
	t.Helper()
	doc, err := page.ParseString(docsPage)
	require.NoError(t, err)
	return doc
}

func TestFilter(t *testing.T) {
	blocks := []Block{{ID: "1", Text: "abc"}, {ID: "2", Text: "xyz"}}

	tests := []struct {
		name  string
		query string
		want  []bool
	}{
		{name: "empty shows all", query: "", want: []bool{true, true}},
		{name: "case insensitive", query: "AB", want: []bool{true, false}},
		{name: "no match hides all", query: "qqq", want: []bool{false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(blocks, tt.query)
			require.Len(t, got, len(tt.want))
			for i, b := range got {
				assert.Equal(t, tt.want[i], b.Visible, "block %s", b.ID)
			}
		})
	}
	assert.False(t, blocks[0].Visible, "input left untouched")
}

func TestApply(t *testing.T) {
	doc := docs(t)

	res := Apply(doc, "ABC")
	assert.Equal(t, Result{Query: "ABC", Total: 3, Visible: 1}, res)
	assert.True(t, page.IsHidden(doc.ByID("1")))
	assert.True(t, page.IsHidden(doc.ByID("2")))
	assert.False(t, page.IsHidden(doc.ByID("3")))

	v, _ := page.Attr(doc.ByID(SearchBarID), "value")
	assert.Equal(t, "ABC", v)

	res = Apply(doc, "")
	assert.Equal(t, 3, res.Visible)
	for _, id := range []string{"1", "2", "3"} {
		assert.False(t, page.IsHidden(doc.ByID(id)), id)
	}
}

func TestApplyDoesNotJoinHeadingAndBody(t *testing.T) {
	doc := docs(t)

	// "Completeness" runs into "Counts" only if block text is glued together.
	res := Apply(doc, "nesscounts")
	assert.Equal(t, 0, res.Visible)

	res = Apply(doc, "completeness")
	assert.Equal(t, 1, res.Visible)
	assert.False(t, page.IsHidden(doc.ByID("1")))
}

func TestApplyMissingTarget(t *testing.T) {
	doc, err := page.ParseString(`<html><body><div class="content-item">orphan</div></body></html>`)
	require.NoError(t, err)

	res := Apply(doc, "orphan")
	assert.Equal(t, 1, res.Missing)
	assert.Equal(t, 0, res.Visible)
}

func TestLoadSections(t *testing.T) {
	fsys := fstest.MapFS{
		"checks/b.html":     {Data: []byte(`<html><body><h2>Report 6</h2><p>Histology values missing.</p></body></html>`)},
		"checks/a.html":     {Data: []byte(`<h2>Warning 4</h2><p>Suspiciously young patient.</p>`)},
		"checks/empty.html": {Data: []byte(``)},
		"notes.txt":         {Data: []byte(`not html`)},
	}
	doc := docs(t)

	n, err := LoadSections(doc, fsys, "**/*.html", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	blocks := Blocks(doc)
	require.Len(t, blocks, 5)
	assert.Contains(t, blocks[3].Text, "Suspiciously young patient")
	assert.Contains(t, blocks[4].Text, "Histology")

	res := Apply(doc, "histology")
	assert.Equal(t, 1, res.Visible)
	assert.False(t, page.IsHidden(doc.ByID("5")))
	assert.True(t, page.IsHidden(doc.ByID("4")))
}

func TestLoadSectionsNeedsContainer(t *testing.T) {
	doc, err := page.ParseString(`<html><body></body></html>`)
	require.NoError(t, err)

	_, err = LoadSections(doc, fstest.MapFS{}, "*.html", nil)
	require.Error(t, err)
}
