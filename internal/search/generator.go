package search

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/geocine/notexport/internal/export"
)

// searchFields are the indexed fields, with title boosted at query time.
var searchFields = []string{"title", "body", "breadcrumbs"}

// FromPages indexes every built page plus one entry per heading, so search
// results can deep-link into a section. Pages are processed in target-path
// order so the emitted index is deterministic.
func FromPages(pages []*export.OutputData) (*Index, []string) {
	sorted := make([]*export.OutputData, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TargetPath < sorted[j].TargetPath
	})

	idx := NewIndex(searchFields)
	var docURLs []string

	for _, page := range sorted {
		idx.Add(map[string]string{
			"title":       page.Title,
			"body":        page.SearchText,
			"breadcrumbs": page.Title,
		})
		docURLs = append(docURLs, page.TargetPath)

		for _, h := range page.Headings {
			idx.Add(map[string]string{
				"title":       h.Text,
				"body":        h.Text,
				"breadcrumbs": page.Title + " » " + h.Text,
			})
			docURLs = append(docURLs, page.TargetPath+"#"+h.ID)
		}
	}
	return idx, docURLs
}

// GenerateJS serializes the index into the searchindex.js payload the
// bundled search UI loads: a pre-built index assigned onto window.search.
func GenerateJS(idx *Index, docURLs []string) (string, error) {
	payload := map[string]interface{}{
		"doc_urls": docURLs,
		"index":    idx.toMap(),
		"results_options": map[string]interface{}{
			"limit_results":     30,
			"teaser_word_count": 30,
		},
		"search_options": map[string]interface{}{
			"bool":   "OR",
			"expand": true,
			"fields": map[string]interface{}{
				"title":       map[string]interface{}{"boost": 2},
				"body":        map[string]interface{}{"boost": 1},
				"breadcrumbs": map[string]interface{}{"boost": 1},
			},
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal search index: %w", err)
	}

	// Escaped for embedding inside a single-quoted JS string literal.
	escaped := strings.ReplaceAll(string(raw), "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "'", "\\'")
	return fmt.Sprintf("window.search = Object.assign(window.search, JSON.parse('%s'));", escaped), nil
}
