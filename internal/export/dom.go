package export

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// parseDocument parses a full HTML document into a goquery tree.
func parseDocument(content string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return doc, nil
}

// renderDocument renders a full document including doctype.
func renderDocument(doc *goquery.Document) (string, error) {
	var buf strings.Builder
	for _, n := range doc.Nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("failed to render document: %w", err)
		}
	}
	out := buf.String()
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(out)), "<!doctype") {
		out = "<!DOCTYPE html>\n" + out
	}
	return out, nil
}

// toggleClass adds or removes a class depending on the flag.
func toggleClass(sel *goquery.Selection, class string, on bool) {
	if on {
		sel.AddClass(class)
	} else {
		sel.RemoveClass(class)
	}
}

// collapseWhitespace squeezes all whitespace runs to single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
