// Package outline builds the nested table-of-contents fragment inserted into
// exported pages.
package outline

import (
	"fmt"
	"html"
	"strings"

	"github.com/geocine/notexport/internal/export"
)

// Generator turns a page's heading list into a nested <ol> fragment.
type Generator struct {
	// MinHeadings suppresses the outline on pages with fewer headings.
	MinHeadings int
}

// New returns a Generator with the default threshold.
func New() *Generator {
	return &Generator{MinHeadings: 2}
}

// Fragment renders the outline list for a page's headings in document order.
// Nesting follows heading levels; skipped levels (h2 straight to h4) open a
// single nesting step, matching how readers perceive the document structure.
func (g *Generator) Fragment(headings []export.Heading) string {
	if len(headings) < g.MinHeadings {
		return ""
	}

	var buf strings.Builder
	buf.WriteString(`<ol class="outline-list">`)
	depth := 1
	prev := headings[0].Level
	writeItem(&buf, headings[0])

	for _, h := range headings[1:] {
		switch {
		case h.Level > prev:
			buf.WriteString(`<li><ol class="outline-section">`)
			depth++
		case h.Level < prev:
			for h.Level < prev && depth > 1 {
				buf.WriteString(`</ol></li>`)
				depth--
				prev--
			}
		}
		writeItem(&buf, h)
		prev = h.Level
	}
	for depth > 1 {
		buf.WriteString(`</ol></li>`)
		depth--
	}
	buf.WriteString(`</ol>`)
	return buf.String()
}

func writeItem(buf *strings.Builder, h export.Heading) {
	fmt.Fprintf(buf, `<li class="outline-item"><a href="#%s">%s</a></li>`,
		h.ID, html.EscapeString(h.Text))
}
