// Package render converts markdown notes into the HTML content container the
// page assembler consumes.
package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"

	"github.com/geocine/notexport/internal/export"
	"github.com/geocine/notexport/internal/vault"
)

// MarkdownRenderer renders markdown documents with goldmark.
type MarkdownRenderer struct {
	markdown goldmark.Markdown
}

// NewMarkdownRenderer creates a renderer with GFM, footnotes and definition
// lists enabled.
func NewMarkdownRenderer() *MarkdownRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.DefinitionList,
		),
		goldmark.WithRendererOptions(
			ghtml.WithUnsafe(),
		),
	)
	return &MarkdownRenderer{markdown: md}
}

// Render converts the document body to HTML wrapped in a content container.
// A cancelled context or an empty body yields no result, which the caller
// treats as a recoverable per-page skip.
func (r *MarkdownRenderer) Render(ctx context.Context, doc *vault.Document) (*export.Rendered, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil
	}
	if strings.TrimSpace(doc.Body) == "" {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(doc.Body), &buf); err != nil {
		return nil, fmt.Errorf("failed to render '%s': %w", doc.Path, err)
	}

	return &export.Rendered{
		ContentHTML: buf.String(),
		ViewType:    "markdown",
	}, nil
}
