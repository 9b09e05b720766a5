package export

import (
	"context"
	"encoding/base64"
	"fmt"
	stdhtml "html"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/aymerick/raymond"
	"go.uber.org/zap"

	"github.com/geocine/notexport/internal/sitepath"
	"github.com/geocine/notexport/internal/vault"
)

// Webpage assembles one source document into a final exportable HTML page.
// It owns a DOM tree during build, the page's heading allocator, and the
// page's transitive attachment list. A Webpage is built exactly once and its
// DOM is released as soon as the output snapshot is captured.
type Webpage struct {
	Attachment

	Source *vault.Document

	session  *Session
	doc      *goquery.Document
	body     string // raw markdown body, for the raw-text embed fallback
	headers  *HeaderMap
	headings []Heading
	title    string
	viewType string

	attachments []*Attachment
	attachSeen  map[string]bool
	links       []string
	linkSeen    map[string]bool

	output *OutputData
}

// NewWebpage prepares a page for a markdown source document and registers it
// in the session index so other pages can resolve links to it before it is
// built. A non-markdown source is an unsupported page type and fails
// construction; the caller skips that single page.
func (s *Session) NewWebpage(sourcePath string) (*Webpage, error) {
	sourcePath = NormalizePath(sourcePath)
	if !strings.EqualFold(path.Ext(sourcePath), ".md") {
		return nil, fmt.Errorf("unsupported page source type: %s", sourcePath)
	}
	doc, ok := s.Vault.Documents[sourcePath]
	if !ok {
		return nil, fmt.Errorf("document not loaded: %s", sourcePath)
	}

	w := &Webpage{
		Attachment: Attachment{
			SourcePath: sourcePath,
			TargetPath: s.TargetPath(sourcePath),
		},
		Source:     doc,
		session:    s,
		body:       doc.Body,
		headers:    NewHeaderMap(),
		attachSeen: make(map[string]bool),
		linkSeen:   make(map[string]bool),
	}
	s.Index.RegisterPage(w)
	return w, nil
}

// Build runs the full assembly pipeline and returns the page's output
// snapshot. A nil snapshot with a nil error means the page was skipped:
// rendering was cancelled or produced no content. Build is idempotent; a
// second call returns the captured snapshot.
func (w *Webpage) Build(ctx context.Context) (*OutputData, error) {
	if w.output != nil {
		return w.output, nil
	}
	s := w.session

	rendered, err := s.Renderer.Render(ctx, w.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to render '%s': %w", w.SourcePath, err)
	}
	if rendered == nil || ctx.Err() != nil {
		return nil, nil
	}
	w.viewType = rendered.ViewType
	w.title = w.deriveTitle()

	skeleton, err := w.renderSkeleton(rendered.ContentHTML)
	if err != nil {
		return nil, err
	}
	w.doc, err = parseDocument(skeleton)
	if err != nil {
		return nil, err
	}

	// Step order matters: heading allocation must precede link remapping,
	// remapping must precede metadata capture, and media inlining must turn
	// small media into data URIs before the remap pass would rewrite them.
	w.refineTitle()
	if s.Cfg.InlineMedia {
		w.inlineMedia()
	}
	if s.Cfg.InjectHead {
		w.injectHead()
	}
	w.allocateHeadings()
	w.collectAttachments()
	if s.Cfg.FixLinks {
		w.remapLinks()
	}
	if s.Cfg.MathStyle {
		w.injectMathStyle()
	}
	if s.Cfg.OutlineEnabled && s.Outline != nil {
		w.insertOutline()
	}
	if s.Cfg.TabsScript {
		w.injectTabsScript()
	}

	for _, a := range w.resolveEmbeds(ctx) {
		w.noteAttachment(a)
	}

	out, err := w.generateOutput()
	if err != nil {
		return nil, err
	}
	w.SetData([]byte(out.HTML))
	w.output = out
	w.doc = nil
	return out, nil
}

// Attachments returns the page's deduplicated transitive dependencies. Only
// meaningful after Build.
func (w *Webpage) Attachments() []*Attachment {
	return w.attachments
}

// collectAttachments walks every src-bearing element while values are still
// source-relative and records the vault files this page depends on. The walk
// is what determines the exported file set, so it runs whether or not link
// remapping is enabled.
func (w *Webpage) collectAttachments() {
	w.doc.Find("img[src], iframe[src], audio[src], video[src], source[src], embed[src], model-viewer[src]").
		Each(func(_ int, sel *goquery.Selection) {
			raw, _ := sel.Attr("src")
			raw = strings.TrimSpace(raw)
			if raw == "" || externalScheme.MatchString(raw) ||
				strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "?") {
				return
			}
			p, _, _ := sitepath.SplitRef(raw)
			res := sitepath.Resolve(w.SourcePath, p)
			if res.IsEmpty {
				return
			}
			target, ok := w.session.Index.GetFile(res.Path, true)
			if !ok {
				target = w.session.registerVaultFile(res.Path)
			}
			if target != nil {
				w.noteAttachment(target)
			}
		})
}

// noteAttachment records a dependency, deduplicating by source path (target
// path for synthesized content).
func (w *Webpage) noteAttachment(a *Attachment) {
	key := a.SourcePath
	if key == "" {
		key = a.TargetPath
	}
	if w.attachSeen[key] {
		return
	}
	w.attachSeen[key] = true
	w.attachments = append(w.attachments, a)
}

// noteLink records an outgoing resolved page link by source path.
func (w *Webpage) noteLink(sourcePath string) {
	if sourcePath == "" || w.linkSeen[sourcePath] {
		return
	}
	w.linkSeen[sourcePath] = true
	w.links = append(w.links, sourcePath)
}

var (
	pageTplOnce sync.Once
	pageTpl     *raymond.Template
)

// renderSkeleton wraps the rendered content container in the full page
// skeleton.
func (w *Webpage) renderSkeleton(content string) (string, error) {
	pageTplOnce.Do(func() {
		pageTpl = raymond.MustParse(frontendAsset("page.hbs"))
	})
	treeState := "collapsed"
	if w.session.Cfg.FileTreeState {
		treeState = "expanded"
	}
	out, err := pageTpl.Exec(map[string]interface{}{
		"title":         w.title,
		"language":      w.session.Site.Language,
		"content":       content,
		"viewType":      w.viewType,
		"fileTreeState": treeState,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render page skeleton: %w", err)
	}
	return out, nil
}

// deriveTitle picks the page title: frontmatter first, then the file name.
// refineTitle upgrades it to the first h1 once the DOM exists.
func (w *Webpage) deriveTitle() string {
	if w.Source.Frontmatter.Title != "" {
		return w.Source.Frontmatter.Title
	}
	base := path.Base(w.SourcePath)
	return strings.TrimSuffix(base, path.Ext(base))
}

// refineTitle upgrades a file-name title to the first h1 once the DOM is
// available.
func (w *Webpage) refineTitle() {
	if w.Source.Frontmatter.Title != "" {
		return
	}
	if h1 := w.doc.Find("h1").First(); h1.Length() > 0 {
		if text := strings.TrimSpace(h1.Text()); text != "" {
			w.title = text
			w.doc.Find("head title").SetText(text)
		}
	}
}

// mediaMIME maps inlineable media extensions to their MIME types.
var mediaMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// inlineMedia base64-encodes small local media directly into src attributes.
// Inlined elements end up with data URIs, which the remap pass passes
// through untouched.
func (w *Webpage) inlineMedia() {
	maxBytes := w.session.Cfg.InlineMediaMaxBytes
	w.doc.Find("img[src], audio[src], video[src], source[src]").Each(func(_ int, sel *goquery.Selection) {
		raw, _ := sel.Attr("src")
		raw = strings.TrimSpace(raw)
		if raw == "" || externalScheme.MatchString(raw) ||
			strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "?") {
			return
		}
		p, _, _ := sitepath.SplitRef(raw)
		res := sitepath.Resolve(w.SourcePath, p)
		if res.IsEmpty {
			return
		}
		mime, ok := mediaMIME[strings.ToLower(path.Ext(res.Path))]
		if !ok {
			return
		}
		data, err := w.session.Vault.ReadFile(res.Path)
		if err != nil || int64(len(data)) > maxBytes {
			return
		}
		sel.SetAttr("src", "data:"+mime+";base64,"+base64.StdEncoding.EncodeToString(data))
	})
}

// injectHead adds description and OpenGraph metadata to the head.
func (w *Webpage) injectHead() {
	head := w.doc.Find("head")
	if head.Length() == 0 {
		return
	}
	desc := w.Source.Frontmatter.Description
	if desc == "" {
		desc = w.session.Site.Description
	}
	var b strings.Builder
	if desc != "" {
		fmt.Fprintf(&b, `<meta name="description" content="%s">`, stdhtml.EscapeString(desc))
	}
	fmt.Fprintf(&b, `<meta property="og:title" content="%s">`, stdhtml.EscapeString(w.title))
	fmt.Fprintf(&b, `<meta property="og:type" content="article">`)
	if desc != "" {
		fmt.Fprintf(&b, `<meta property="og:description" content="%s">`, stdhtml.EscapeString(desc))
	}
	if url := strings.TrimSuffix(w.session.Site.URL, "/"); url != "" {
		fmt.Fprintf(&b, `<meta property="og:url" content="%s/%s">`, url, w.TargetPath)
	}
	head.AppendHtml(b.String())
}

// allocateHeadings walks every heading in document order, assigns its anchor
// id, and wraps the heading text in a self-link the way rendered book pages
// do. This populates the header map the link resolver reads.
func (w *Webpage) allocateHeadings() {
	w.doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		id := w.headers.Allocate(text)
		sel.SetAttr("id", id)

		level := 1
		if name := goquery.NodeName(sel); len(name) == 2 {
			level = int(name[1] - '0')
		}
		w.headings = append(w.headings, Heading{Level: level, Text: text, ID: id})

		if inner, err := sel.Html(); err == nil {
			sel.SetHtml(fmt.Sprintf(`<a class="header" href="#%s">%s</a>`, id, inner))
		}
	})
}

// injectMathStyle appends the bundled math stylesheet when the page actually
// contains rendered math.
func (w *Webpage) injectMathStyle() {
	if w.doc.Find(".math, mjx-container, math").Length() == 0 {
		return
	}
	w.doc.Find("head").AppendHtml("<style>\n" + frontendAsset("math.css") + "</style>")
}

// insertOutline fills the outline container with the generator's fragment.
func (w *Webpage) insertOutline() {
	container := w.doc.Find("#outline")
	if container.Length() == 0 {
		return
	}
	fragment := w.session.Outline.Fragment(w.headings)
	if fragment == "" {
		container.Remove()
		return
	}
	container.SetHtml(fragment)
}

// injectTabsScript appends the client-side tab-switching behavior when the
// page contains tab groups.
func (w *Webpage) injectTabsScript() {
	if w.doc.Find(".tab-group").Length() == 0 {
		return
	}
	w.doc.Find("body").AppendHtml("<script>\n" + frontendAsset("tabs.js") + "</script>")
}

// inlineTag matches hashtag-style tags in raw note text.
var inlineTag = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_][\p{L}\p{N}_/-]*)`)

// tags is the frontmatter tag list normalized to a # prefix, unioned with
// inline tags, deduplicated preserving first-seen order.
func (w *Webpage) tags() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		if seen[tag] {
			return
		}
		seen[tag] = true
		out = append(out, tag)
	}
	for _, t := range w.Source.Frontmatter.Tags {
		add(t)
	}
	for _, m := range inlineTag.FindAllStringSubmatch(w.body, -1) {
		add(m[1])
	}
	return out
}

// description returns the explicit frontmatter description, or a plain-text
// excerpt synthesized from the content with headings, tables, math, and data
// URIs stripped.
func (w *Webpage) description() string {
	if w.Source.Frontmatter.Description != "" {
		return w.Source.Frontmatter.Description
	}
	clone := w.doc.Find("main.page-content").Clone()
	clone.Find("h1, h2, h3, h4, h5, h6, table, .math, mjx-container, script, style").Remove()
	text := collapseWhitespace(clone.Text())
	text = dataURI.ReplaceAllString(text, "")
	const maxExcerpt = 300
	if runes := []rune(text); len(runes) > maxExcerpt {
		text = strings.TrimSpace(string(runes[:maxExcerpt])) + "…"
	}
	return text
}

var dataURI = regexp.MustCompile(`data:[^\s"']+`)

// coverImage finds the first non-data image of the content and resolves it
// to a site-root path; a frontmatter cover field wins when present.
func (w *Webpage) coverImage() string {
	if w.Source.Frontmatter.Cover != "" {
		res := sitepath.Resolve(w.SourcePath, w.Source.Frontmatter.Cover)
		if !res.IsEmpty {
			return w.session.TargetPath(res.Path)
		}
	}
	var cover string
	w.doc.Find("main.page-content img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		if src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		switch {
		case externalScheme.MatchString(src):
			cover = src
		case w.session.Cfg.FixLinks:
			// Remapped srcs are relative to the page's output location.
			cover = sitepath.Resolve(w.TargetPath, src).Path
		default:
			cover = w.session.TargetPath(sitepath.Resolve(w.SourcePath, src).Path)
		}
		return false
	})
	return cover
}

// searchText concatenates the visible text of the content (outside script,
// style, and math regions) with every href and src value, whitespace
// collapsed.
func (w *Webpage) searchText() string {
	clone := w.doc.Find("main.page-content").Clone()
	clone.Find("script, style, .math, mjx-container").Remove()

	var parts []string
	parts = append(parts, clone.Text())
	w.doc.Find("[href]").Each(func(_ int, sel *goquery.Selection) {
		if v, _ := sel.Attr("href"); v != "" && !strings.HasPrefix(v, "data:") {
			parts = append(parts, v)
		}
	})
	w.doc.Find("[src]").Each(func(_ int, sel *goquery.Selection) {
		if v, _ := sel.Attr("src"); v != "" && !strings.HasPrefix(v, "data:") {
			parts = append(parts, v)
		}
	})
	return collapseWhitespace(strings.Join(parts, " "))
}

// backlinks resolves the vault's backlink index through the Index, dropping
// referrers that are not known pages.
func (w *Webpage) backlinks() []string {
	var out []string
	for _, src := range w.session.Vault.Backlinks(w.SourcePath) {
		if page, ok := w.session.Index.GetWebpage(src); ok {
			out = append(out, page.TargetPath)
		}
	}
	return out
}

// generateOutput snapshots the finished page into an immutable OutputData.
func (w *Webpage) generateOutput() (*OutputData, error) {
	html, err := renderDocument(w.doc)
	if err != nil {
		return nil, err
	}
	published := w.Source.Frontmatter.PublishedAt()
	if published.IsZero() {
		published = w.session.Vault.Modified(w.SourcePath)
	}
	out := &OutputData{
		SourcePath:  w.SourcePath,
		TargetPath:  w.TargetPath,
		Title:       w.title,
		Icon:        w.Source.Frontmatter.Icon,
		Description: w.description(),
		Tags:        w.tags(),
		Headings:    w.headings,
		Backlinks:   w.backlinks(),
		Links:       w.links,
		CoverImage:  w.coverImage(),
		SearchText:  w.searchText(),
		HTML:        html,
		PublishedAt: published,
	}
	w.session.logger().Debug("page built",
		zap.String("source", w.SourcePath),
		zap.String("target", w.TargetPath),
		zap.Int("attachments", len(w.attachments)))
	return out, nil
}
