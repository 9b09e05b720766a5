package writer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocine/notexport/internal/config"
	"github.com/geocine/notexport/internal/export"
	"github.com/geocine/notexport/internal/testutil"
)

func TestWriteSite(t *testing.T) {
	dest := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Site.Title = "Test Site"
	cfg.Site.URL = "https://notes.example.com"

	attachments := []*export.Attachment{
		export.NewAttachment("page.md", "page.html", []byte("<!DOCTYPE html><html></html>")),
		export.NewAttachment("media/pic.png", "media/pic.png", []byte("png-bytes")),
		// Duplicate target: first wins.
		export.NewAttachment("", "media/pic.png", []byte("other-bytes")),
	}
	outputs := []*export.OutputData{
		{
			SourcePath:  "page.md",
			TargetPath:  "page.html",
			Title:       "Page",
			SearchText:  "page content",
			Description: "a page",
			PublishedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	w := New(dest, cfg, nil)
	require.NoError(t, w.WriteSite(attachments, outputs))

	assert.Equal(t, "png-bytes", testutil.ReadFile(t, dest, "media/pic.png"))
	assert.Contains(t, testutil.ReadFile(t, dest, "page.html"), "<!DOCTYPE html>")
	assert.Contains(t, testutil.ReadFile(t, dest, "searchindex.js"), "window.search")

	rss := testutil.ReadFile(t, dest, "rss.xml")
	assert.Contains(t, rss, "<title>Test Site</title>")
	assert.Contains(t, rss, "https://notes.example.com/page.html")

	_, err := os.Stat(filepath.Join(dest, ".nojekyll"))
	assert.NoError(t, err)
}

func TestWriteSiteRespectsFeatureToggles(t *testing.T) {
	dest := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Export.SearchEnabled = false
	cfg.Export.RSSEnabled = false

	w := New(dest, cfg, nil)
	require.NoError(t, w.WriteSite(nil, nil))

	_, err := os.Stat(filepath.Join(dest, "searchindex.js"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dest, "rss.xml"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteRedirects(t *testing.T) {
	dest := t.TempDir()
	cfg, err := config.LoadFromString(strings.Join([]string{
		`[site]`,
		`title = "T"`,
		``,
		`[output.html.redirect]`,
		`"old/page.html" = "new/page.html"`,
		`"old/page.html#Intro" = "new/page.html#Intro_0"`,
	}, "\n"))
	require.NoError(t, err)

	w := New(dest, cfg, nil)
	require.NoError(t, w.WriteSite(nil, nil))

	page := testutil.NormalizeHTML(testutil.ReadFile(t, dest, "old/page.html"))
	assert.Contains(t, page, `url=new/page.html`)
	assert.Contains(t, page, `#Intro`)
}

func TestRSSOmittedWithoutDatedPages(t *testing.T) {
	dest := t.TempDir()
	cfg := config.NewDefaultConfig()

	w := New(dest, cfg, nil)
	require.NoError(t, w.WriteSite(nil, []*export.OutputData{
		{TargetPath: "a.html", Title: "A"},
	}))

	_, err := os.Stat(filepath.Join(dest, "rss.xml"))
	assert.True(t, os.IsNotExist(err))
}
