package search

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocine/notexport/internal/export"
)

func TestTokenizeSplitsAndLowercases(t *testing.T) {
	tokens := tokenize("Hello World-Wide  Web")
	assert.Equal(t, []string{"hello", "world", "wide", "web"}, tokens)
}

func TestAnalyzeDropsStopWordsAndStems(t *testing.T) {
	tokens := analyze("the running dogs")
	assert.NotContains(t, tokens, "the")
	assert.Contains(t, tokens, "runn") // "running" -> strip "ing"
	assert.Contains(t, tokens, "dog")
}

func TestIndexAddAndLookup(t *testing.T) {
	idx := NewIndex([]string{"title", "body"})
	idx.Add(map[string]string{"title": "Graph Export", "body": "exporting linked notes"})
	idx.Add(map[string]string{"title": "Search", "body": "full text search"})

	assert.Equal(t, 2, idx.Len())
	assert.True(t, idx.HasToken("title", "graph"))
	assert.True(t, idx.HasToken("body", "link")) // "linked" stems to "link"
	assert.False(t, idx.HasToken("title", "missing"))
}

func TestFromPagesIndexesHeadings(t *testing.T) {
	pages := []*export.OutputData{
		{
			TargetPath: "notes/alpha.html",
			Title:      "Alpha",
			SearchText: "alpha page content",
			Headings: []export.Heading{
				{Level: 2, Text: "Details", ID: "Details_0"},
			},
		},
		{TargetPath: "beta.html", Title: "Beta", SearchText: "beta content"},
	}

	idx, urls := FromPages(pages)
	// Sorted by target path: beta first, then alpha and its heading.
	assert.Equal(t, []string{"beta.html", "notes/alpha.html", "notes/alpha.html#Details_0"}, urls)
	assert.Equal(t, 3, idx.Len())
	assert.True(t, idx.HasToken("title", "detail"))
}

func TestGenerateJSShape(t *testing.T) {
	idx, urls := FromPages([]*export.OutputData{
		{TargetPath: "a.html", Title: "A", SearchText: "it's got quotes"},
	})
	js, err := GenerateJS(idx, urls)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(js, "window.search = Object.assign(window.search, JSON.parse('"))

	// Round-trip the embedded JSON.
	start := strings.Index(js, "JSON.parse('") + len("JSON.parse('")
	end := strings.LastIndex(js, "')")
	embedded := js[start:end]
	embedded = strings.ReplaceAll(embedded, "\\'", "'")
	embedded = strings.ReplaceAll(embedded, "\\\\", "\\")

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(embedded), &payload))
	assert.Contains(t, payload, "doc_urls")
	assert.Contains(t, payload, "index")
	assert.Contains(t, payload, "search_options")
}
