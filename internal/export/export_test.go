package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"

	"github.com/geocine/notexport/internal/config"
	"github.com/geocine/notexport/internal/testutil"
	"github.com/geocine/notexport/internal/vault"
)

// mdRenderer renders markdown bodies for tests without depending on the
// render package, which itself depends on this one.
type mdRenderer struct {
	md goldmark.Markdown
}

func newMDRenderer() *mdRenderer {
	return &mdRenderer{md: goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(ghtml.WithUnsafe()),
	)}
}

func (r *mdRenderer) Render(ctx context.Context, doc *vault.Document) (*Rendered, error) {
	if ctx.Err() != nil || strings.TrimSpace(doc.Body) == "" {
		return nil, nil
	}
	var buf strings.Builder
	if err := r.md.Convert([]byte(doc.Body), &buf); err != nil {
		return nil, err
	}
	return &Rendered{ContentHTML: buf.String(), ViewType: "markdown"}, nil
}

// newTestSession loads a vault from files and wires a real markdown renderer.
func newTestSession(t *testing.T, files map[string]string) *Session {
	t.Helper()
	dir := testutil.TempVault(t)
	for p, content := range files {
		testutil.WriteFile(t, dir, p, content)
	}
	v, err := vault.Load(dir)
	require.NoError(t, err)

	cfg := config.DefaultExportConfig()
	cfg.FlattenPaths = false
	cfg.SlugifyPaths = false
	site := config.DefaultSiteConfig()

	// Only pages are registered up front, the way an export run does it;
	// plain vault files enter the Index on demand when a page references them.
	s := NewSession(cfg, site, v, newMDRenderer())
	for _, p := range v.DocumentPaths() {
		_, err := s.NewWebpage(p)
		require.NoError(t, err)
	}
	return s
}

func buildPage(t *testing.T, s *Session, sourcePath string) (*Webpage, *OutputData) {
	t.Helper()
	w, ok := s.Index.GetWebpage(sourcePath)
	require.True(t, ok, "page not registered: %s", sourcePath)
	out, err := w.Build(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out)
	return w, out
}

func TestHeadingSuffixesInDocumentOrder(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"page.md": "# Intro\n\n## Intro\n\ntext\n\n## Intro\n",
	})
	_, out := buildPage(t, s, "page.md")

	assert.Contains(t, out.HTML, `id="Intro_0"`)
	assert.Contains(t, out.HTML, `id="Intro_1"`)
	assert.Contains(t, out.HTML, `id="Intro_2"`)

	require.Len(t, out.Headings, 3)
	for i, h := range out.Headings {
		assert.Equal(t, fmt.Sprintf("Intro_%d", i), h.ID)
	}
}

func TestHeadingNormalization(t *testing.T) {
	m := NewHeaderMap()
	assert.Equal(t, "My_Heading_0", m.Allocate("My  Heading"))
	assert.Equal(t, "Setup_Guide_0", m.Allocate("Setup: Guide"))
	assert.Equal(t, "My_Heading_1", m.Allocate("My Heading"))
}

func TestExternalAndDataReferencesPassThrough(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"page.md": strings.Join([]string{
			`[ext](https://example.com/x)`,
			``,
			`![inline](data:image/png;base64,AAAA)`,
			``,
			`[mail](mailto:a@b.c)`,
		}, "\n"),
	})
	_, out := buildPage(t, s, "page.md")

	assert.Contains(t, out.HTML, `href="https://example.com/x"`)
	assert.Contains(t, out.HTML, `src="data:image/png;base64,AAAA"`)
	assert.Contains(t, out.HTML, `href="mailto:a@b.c"`)
}

func TestSameDocumentFragmentResolution(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"page.md": "# Intro\n\n[up](#Intro)\n\n[note](#fn-1)\n",
	})
	_, out := buildPage(t, s, "page.md")

	// Known heading resolves to its first-occurrence anchor.
	assert.Contains(t, out.HTML, `href="#Intro_0"`)
	// Unknown fragment is a non-heading anchor and passes through unchanged.
	assert.Contains(t, out.HTML, `href="#fn-1"`)
}

func TestCrossPageLinkWithQueryAndFragment(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"index.md":      "[see](notes/page.md?x=1#Section)\n",
		"notes/page.md": "# Section\n\ncontent\n",
	})
	// Build the target first so its heading map is populated.
	buildPage(t, s, "notes/page.md")
	_, out := buildPage(t, s, "index.md")

	assert.Contains(t, out.HTML, `href="notes/page.html?x=1#Section_0"`)
}

func TestConcurrentCrossPageFragmentResolution(t *testing.T) {
	// One page resolves fragments through the other's header map while that
	// page is still allocating its own headings. Enough headings and links to
	// give the interleaving a real window; the build must stay crash-free.
	var target, source strings.Builder
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&target, "## Topic%d\n\ntext\n\n", i)
		fmt.Fprintf(&source, "[r%d](target.md#Topic%d)\n\n", i, i)
	}
	s := newTestSession(t, map[string]string{
		"target.md": target.String(),
		"source.md": source.String(),
	})

	var wg sync.WaitGroup
	for _, p := range []string{"target.md", "source.md"} {
		wg.Add(1)
		go func(page string) {
			defer wg.Done()
			w, ok := s.Index.GetWebpage(page)
			if !assert.True(t, ok) {
				return
			}
			_, err := w.Build(context.Background())
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()
}

func TestAttachmentsCollectedWithoutLinkFixing(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"notes/page.md": "![pic](../media/pic.png)\n",
		"media/pic.png": "png-bytes",
	})
	s.Cfg.FixLinks = false
	w, out := buildPage(t, s, "notes/page.md")

	// Source reference stays untouched, but the file is still exported.
	assert.Contains(t, out.HTML, `src="../media/pic.png"`)
	var found bool
	for _, a := range w.Attachments() {
		if a.SourcePath == "media/pic.png" {
			found = true
		}
	}
	assert.True(t, found, "referenced media must be collected without link fixing")
	assert.Equal(t, "media/pic.png", out.CoverImage)
}

func TestLinkedVaultFileBecomesAttachment(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"page.md":         "Read the [manual](docs/manual.pdf).\n",
		"docs/manual.pdf": "pdf-bytes",
	})
	w, out := buildPage(t, s, "page.md")

	assert.Contains(t, out.HTML, `href="docs/manual.pdf"`)
	assert.NotContains(t, out.HTML, "is-unresolved")
	var found bool
	for _, a := range w.Attachments() {
		if a.SourcePath == "docs/manual.pdf" {
			found = true
		}
	}
	assert.True(t, found, "a linked non-page vault file is part of the exported set")
	assert.NotContains(t, out.Links, "docs/manual.pdf")
}

func TestUnresolvedLinkDegradesWithMarker(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"page.md": "[gone](missing/doc.md)\n",
	})
	_, out := buildPage(t, s, "page.md")

	assert.Contains(t, out.HTML, `class="is-unresolved"`)
	assert.Contains(t, out.HTML, `href="missing/doc.html"`)
	assert.Contains(t, out.HTML, `target="_self"`)
}

func TestAttachmentDedupAcrossSpellings(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"notes/page.md":  "![a](../media/pic.png)\n\n![b](/media/pic.png)\n",
		"media/pic.png":  "not-a-real-png",
		"media/pic2.png": "unused",
	})
	w, out := buildPage(t, s, "notes/page.md")

	var pics int
	for _, a := range w.Attachments() {
		if a.SourcePath == "media/pic.png" {
			pics++
		}
	}
	assert.Equal(t, 1, pics, "same file via two spellings must dedupe to one attachment")
	assert.Equal(t, 2, strings.Count(out.HTML, `src="../media/pic.png"`))
}

func TestTargetPathComputation(t *testing.T) {
	cfg := config.DefaultExportConfig()
	cfg.FlattenPaths = false
	cfg.SlugifyPaths = true
	s := NewSession(cfg, config.DefaultSiteConfig(), nil, nil)

	assert.Equal(t, "notes/my-note.html", s.TargetPath("Notes/My Note.md"))

	cfg.FlattenPaths = true
	s = NewSession(cfg, config.DefaultSiteConfig(), nil, nil)
	assert.Equal(t, "my-note.html", s.TargetPath("Notes/My Note.md"))
}

func TestResolveIsIdempotentOnResolvedOutput(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"a.md": "[b](b.md)\n",
		"b.md": "content\n",
	})
	w, _ := buildPage(t, s, "a.md")

	// Re-resolving the already rewritten reference must not change it.
	ref, rewrite, resolved := w.resolveReference("b.html", false)
	if rewrite {
		assert.Equal(t, "b.html", ref)
	}
	_ = resolved
}

func TestIndexFirstRegistrationWins(t *testing.T) {
	ix := NewIndex()
	first := NewAttachment("media/pic.png", "media/pic.png", []byte("one"))
	second := NewAttachment("media/pic.png", "elsewhere/pic.png", []byte("two"))

	assert.Same(t, first, ix.Register(first))
	assert.Same(t, first, ix.Register(second))

	got, ok := ix.GetFile("./media/pic.png", true)
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestGetFileMustBeFileExcludesPages(t *testing.T) {
	s := newTestSession(t, map[string]string{"page.md": "x\n"})

	_, ok := s.Index.GetFile("page.md", true)
	assert.False(t, ok)
	_, ok = s.Index.GetFile("page.md", false)
	assert.True(t, ok)
}

// countingSlideRenderer counts invocations per (path, page) key.
type countingSlideRenderer struct {
	mu    sync.Mutex
	calls map[string]int
	total atomic.Int64
}

func (r *countingSlideRenderer) RenderFragment(_ context.Context, absPath string, page int) (string, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[fmt.Sprintf("%s#%d", absPath, page)]++
	r.mu.Unlock()
	r.total.Add(1)
	return `<section class="slides"><img src="lib/reveal.js"> slide body</section>`, nil
}

func TestEmbedRenderedOncePerKeyAcrossPages(t *testing.T) {
	deck := "deck.md"
	s := newTestSession(t, map[string]string{
		"a.md": "<iframe data-slide-src=\"deck\" data-slide-page=\"2\"></iframe>\n",
		"b.md": "<iframe data-slide-src=\"deck\" data-slide-page=\"2\"></iframe>\n",
		deck:   "# Deck\n",
	})
	renderer := &countingSlideRenderer{}
	s.Slides = renderer

	var wg sync.WaitGroup
	for _, p := range []string{"a.md", "b.md"} {
		wg.Add(1)
		go func(page string) {
			defer wg.Done()
			w, _ := s.Index.GetWebpage(page)
			_, err := w.Build(context.Background())
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	assert.Equal(t, int64(1), renderer.total.Load(),
		"same (deck, page) referenced from two pages must render once")
}

func TestEmbedFailureNotCached(t *testing.T) {
	s := NewSession(config.DefaultExportConfig(), config.DefaultSiteConfig(), nil, nil)

	attempts := 0
	_, err := s.embedFor("k", func() (*Attachment, error) {
		attempts++
		return nil, fmt.Errorf("transient")
	})
	require.Error(t, err)

	a, err := s.embedFor("k", func() (*Attachment, error) {
		attempts++
		return NewAttachment("", "embeds/k.html", []byte("ok")), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "embeds/k.html", a.TargetPath)

	// Third call hits the cache.
	_, err = s.embedFor("k", func() (*Attachment, error) {
		attempts++
		return nil, fmt.Errorf("should not run")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestEmbedSplicesSandboxedIframe(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"a.md":    "```slides\nsrc: deck.md\npage: 1\n```\n",
		"deck.md": "# Deck\n",
	})
	s.Slides = &countingSlideRenderer{}

	w, out := buildPage(t, s, "a.md")

	assert.Contains(t, out.HTML, `class="slide-embed"`)
	assert.Contains(t, out.HTML, `sandbox="allow-scripts allow-same-origin"`)
	assert.Contains(t, out.HTML, `data-slides-processed="true"`)
	assert.Contains(t, out.HTML, `src="embeds/deck-1.html"`)

	var embed *Attachment
	for _, a := range w.Attachments() {
		if a.TargetPath == "embeds/deck-1.html" {
			embed = a
		}
	}
	require.NotNil(t, embed, "embed attachment must be part of the page's dependencies")
	data, err := embed.Data()
	require.NoError(t, err)
	// Bundle-prefixed references are rewritten relative to the library folder.
	assert.Contains(t, string(data), "../lib/slides/reveal.js")
}

func TestEmbedMissingSourceSkipsPage(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"a.md": "```slides\nsrc: nowhere.md\n```\n\nbody text\n",
	})
	s.Slides = &countingSlideRenderer{}

	_, out := buildPage(t, s, "a.md")
	assert.Contains(t, out.HTML, "body text")
	assert.NotContains(t, out.HTML, `class="slide-embed"`)
}

func TestSlideAssetsEnumeratedOnce(t *testing.T) {
	libDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(libDir, "plugin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(libDir, "reveal.js"), []byte("js"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(libDir, "plugin", "notes.css"), []byte("css"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(libDir, "README.txt"), []byte("skip"), 0o644))

	cfg := config.DefaultExportConfig()
	cfg.SlideLibDir = libDir
	s := NewSession(cfg, config.DefaultSiteConfig(), nil, nil)

	var wg sync.WaitGroup
	results := make([][]*Attachment, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assets, err := s.SlideAssets()
			assert.NoError(t, err)
			results[i] = assets
		}(i)
	}
	wg.Wait()

	require.Len(t, results[0], 2, "only script/style/resource files are bundled")
	targets := []string{results[0][0].TargetPath, results[0][1].TargetPath}
	assert.Contains(t, targets, "lib/slides/reveal.js")
	assert.Contains(t, targets, "lib/slides/plugin/notes.css")
	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
}

func TestOutputMetadata(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"post.md": strings.Join([]string{
			"---",
			"title: My Post",
			"tags:",
			"  - alpha",
			"date: 2024-03-01",
			"---",
			"# My Post",
			"",
			"Some #beta content linking [there](other.md).",
		}, "\n"),
		"other.md": "[back](post.md)\n",
	})
	buildPage(t, s, "other.md")
	_, out := buildPage(t, s, "post.md")

	assert.Equal(t, "My Post", out.Title)
	assert.Equal(t, []string{"#alpha", "#beta"}, out.Tags)
	assert.Equal(t, []string{"other.md"}, out.Links)
	assert.Equal(t, []string{"other.html"}, out.Backlinks)
	assert.Equal(t, 2024, out.PublishedAt.Year())
	assert.Contains(t, out.SearchText, "content")
	assert.NotEmpty(t, out.Description)
}

func TestUnsupportedSourceTypeFailsConstruction(t *testing.T) {
	s := newTestSession(t, map[string]string{"page.md": "x\n"})
	_, err := s.NewWebpage("image.png")
	assert.Error(t, err)
}

func TestBuildSkipsOnEmptyContent(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"page.md":  "real\n",
		"empty.md": "",
	})
	w, ok := s.Index.GetWebpage("empty.md")
	require.True(t, ok)
	out, err := w.Build(context.Background())
	require.NoError(t, err)
	assert.Nil(t, out, "empty render result skips the page without failing")
}

func TestBuildCancelledContext(t *testing.T) {
	s := newTestSession(t, map[string]string{"page.md": "content\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w, _ := s.Index.GetWebpage("page.md")
	out, err := w.Build(ctx)
	require.NoError(t, err)
	assert.Nil(t, out)
}
