package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geocine/notexport/internal/config"
	"github.com/geocine/notexport/internal/testutil"
)

// TestRunExportEndToEnd exports a small vault and checks the emitted tree.
func TestRunExportEndToEnd(t *testing.T) {
	root := t.TempDir()
	notes := filepath.Join(root, "notes")
	require.NoError(t, os.MkdirAll(notes, 0o755))

	testutil.WriteFile(t, notes, "index.md", strings.Join([]string{
		"---",
		"title: Home",
		"date: 2024-01-15",
		"---",
		"# Home",
		"",
		"See [the guide](<Guides/Getting Started.md#Setup>).",
		"",
		"![logo](media/logo.png)",
	}, "\n"))
	testutil.WriteFile(t, notes, "Guides/Getting Started.md", strings.Join([]string{
		"# Getting Started",
		"",
		"## Setup",
		"",
		"Link back [home](../index.md).",
	}, "\n"))
	testutil.WriteFile(t, notes, "media/logo.png", "png-bytes")

	cfg := config.NewDefaultConfig()
	cfg.Site.Src = notes
	cfg.Site.Title = "E2E"
	cfg.Export.FlattenPaths = false
	// One worker keeps build order deterministic: the guide page's heading
	// map must exist before index.md resolves its fragment link.
	cfg.Build.Workers = 1

	dest := filepath.Join(root, "site")
	require.NoError(t, runExport(context.Background(), cfg, dest, zap.NewNop()))

	index := testutil.ReadFile(t, dest, "index.html")
	assert.Contains(t, index, `href="guides/getting-started.html#Setup_0"`)
	assert.Contains(t, index, `src="media/logo.png"`)

	guide := testutil.ReadFile(t, dest, "guides/getting-started.html")
	assert.Contains(t, guide, `id="Setup_0"`)
	assert.Contains(t, guide, `href="../index.html"`)

	assert.Equal(t, "png-bytes", testutil.ReadFile(t, dest, "media/logo.png"))
	assert.Contains(t, testutil.ReadFile(t, dest, "searchindex.js"), "window.search")
	assert.Contains(t, testutil.ReadFile(t, dest, "rss.xml"), "index.html")

	_, err := os.Stat(filepath.Join(dest, ".nojekyll"))
	assert.NoError(t, err)
}
