package export

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/geocine/notexport/internal/sitepath"
)

// slideBundlePrefix is the path prefix the external renderer uses for its own
// supporting files inside rendered fragments.
const slideBundlePrefix = "lib/"

// embedsSubfolder is where rendered slide fragments land in the output tree.
const embedsSubfolder = "embeds"

// processedAttr marks spliced iframes so repeated passes stay idempotent.
const processedAttr = "data-slides-processed"

// slideEmbed is one discovered presentation-embed directive.
type slideEmbed struct {
	sel    *goquery.Selection // placeholder to replace; nil until matched for raw-text blocks
	source string             // raw slide source reference
	page   int
}

// rawSlideBlock matches fenced slide blocks in raw markdown, the fallback for
// hosts whose renderer produced no recognizable DOM marker.
var rawSlideBlock = regexp.MustCompile("(?ms)^```slides[ \t]*\n(.*?)\n```")

// resolveEmbeds discovers every slide embed on the page, renders each
// through the run-scoped cache, splices the result back as a sandboxed
// iframe, and returns the attachments the embeds contribute. Any failure is
// a warning that skips the specific embed; the page build never aborts here.
func (w *Webpage) resolveEmbeds(ctx context.Context) []*Attachment {
	embeds := w.discoverEmbeds()
	if len(embeds) == 0 {
		return nil
	}

	log := w.session.logger()
	var attachments []*Attachment

	if w.session.Cfg.SlideLibDir != "" {
		bundle, err := w.session.SlideAssets()
		if err != nil {
			log.Warn("failed to enumerate slide assets", zap.Error(err))
		} else {
			attachments = append(attachments, bundle...)
		}
	}

	for _, e := range embeds {
		deps, err := w.resolveEmbed(ctx, e)
		if err != nil {
			log.Warn("skipping slide embed",
				zap.String("page", w.SourcePath),
				zap.String("source", e.source),
				zap.Error(err))
			continue
		}
		attachments = append(attachments, deps...)
	}
	return attachments
}

// discoverEmbeds collects iframe placeholders tagged as slide embeds, then
// fenced code blocks marked as slide blocks, and finally falls back to
// scanning the raw source text with the block-delimiter pattern.
func (w *Webpage) discoverEmbeds() []slideEmbed {
	var embeds []slideEmbed

	w.doc.Find("iframe[data-slide-src]").Each(func(_ int, sel *goquery.Selection) {
		if _, done := sel.Attr(processedAttr); done {
			return
		}
		src, _ := sel.Attr("data-slide-src")
		page := 0
		if p, ok := sel.Attr("data-slide-page"); ok {
			page, _ = strconv.Atoi(p)
		}
		embeds = append(embeds, slideEmbed{sel: sel, source: src, page: page})
	})

	w.doc.Find("pre > code.language-slides").Each(func(_ int, sel *goquery.Selection) {
		src, page, ok := parseSlideParams(sel.Text())
		if !ok {
			return
		}
		// Replace the whole <pre> block.
		embeds = append(embeds, slideEmbed{sel: sel.Parent(), source: src, page: page})
	})

	if len(embeds) > 0 {
		return embeds
	}

	// Raw-text fallback: match blocks from the unrendered source against
	// whitespace-normalized block text in the DOM. The matching heuristic
	// here is a last resort, not authoritative.
	for _, m := range rawSlideBlock.FindAllStringSubmatch(w.body, -1) {
		src, page, ok := parseSlideParams(m[1])
		if !ok {
			continue
		}
		wanted := collapseWhitespace(m[1])
		var match *goquery.Selection
		w.doc.Find("pre, p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if collapseWhitespace(sel.Text()) == wanted {
				match = sel
				return false
			}
			return true
		})
		if match == nil {
			w.session.logger().Warn("slide block found in source but not in rendered page",
				zap.String("page", w.SourcePath), zap.String("source", src))
			continue
		}
		embeds = append(embeds, slideEmbed{sel: match, source: src, page: page})
	}
	return embeds
}

// parseSlideParams reads a slide block body: a "src:" line naming the deck
// and an optional "page:" line. A bare first line is accepted as the source.
func parseSlideParams(block string) (src string, page int, ok bool) {
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "src:"):
			src = strings.TrimSpace(strings.TrimPrefix(line, "src:"))
		case strings.HasPrefix(line, "page:"):
			page, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "page:")))
		case src == "" && line != "":
			src = line
		}
	}
	return src, page, src != ""
}

// resolveEmbed renders one embed through the session cache and splices the
// resulting iframe over the placeholder.
func (w *Webpage) resolveEmbed(ctx context.Context, e slideEmbed) ([]*Attachment, error) {
	source, ok := w.resolveSlideSource(e.source)
	if !ok {
		return nil, fmt.Errorf("embed source not found: %s", e.source)
	}

	key := source + "#" + strconv.Itoa(e.page)
	var deps []*Attachment
	embed, err := w.session.embedFor(key, func() (*Attachment, error) {
		a, d, err := w.renderEmbed(ctx, source, e.page)
		if err != nil {
			return nil, err
		}
		deps = d
		return a, nil
	})
	if err != nil {
		return nil, err
	}

	rel := sitepath.Relative(w.TargetPath, embed.TargetPath)
	w.splice(e.sel, rel)
	return append(deps, embed), nil
}

// resolveSlideSource maps a slide source reference to a concrete vault
// document: the renderer's own resolver when it has one, then direct lookup,
// added extension and unique suffix matching via the vault.
func (w *Webpage) resolveSlideSource(ref string) (string, bool) {
	if resolver, ok := w.session.Slides.(SlidePathResolver); ok {
		if p, found := resolver.ResolveSlidePath(ref); found {
			return p, true
		}
	}
	if w.session.Vault == nil {
		return "", false
	}
	return w.session.Vault.ResolveLink(ref)
}

// renderEmbed invokes the external renderer for one (source, page) pair and
// rewrites the returned fragment into a standalone exported document.
func (w *Webpage) renderEmbed(ctx context.Context, source string, page int) (*Attachment, []*Attachment, error) {
	if w.session.Slides == nil {
		return nil, nil, fmt.Errorf("slide renderer unavailable")
	}

	fragment, err := w.session.Slides.RenderFragment(ctx, w.session.Vault.AbsPath(source), page)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to render slides '%s': %w", source, err)
	}
	if strings.TrimSpace(fragment) == "" {
		return nil, nil, fmt.Errorf("slide renderer produced no output for '%s'", source)
	}

	base := strings.TrimSuffix(path.Base(source), path.Ext(source))
	target := path.Join(embedsSubfolder,
		sitepath.Slugify(base, w.session.Cfg.SlugifyPaths)+"-"+strconv.Itoa(page)+".html")

	rewritten, deps, err := w.rewriteEmbedFragment(fragment, source, target)
	if err != nil {
		return nil, nil, err
	}

	return NewAttachment("", target, []byte(rewritten)), deps, nil
}

// rewriteEmbedFragment parses the renderer's HTML as a standalone document
// and rewrites its references: bundle-prefixed ones point at the exported
// library subfolder, other local ones become registered attachments resolved
// against the slide source's location, external and data references stay
// untouched.
func (w *Webpage) rewriteEmbedFragment(fragment, source, embedTarget string) (string, []*Attachment, error) {
	doc, err := parseDocument(fragment)
	if err != nil {
		return "", nil, err
	}

	var deps []*Attachment
	rewrite := func(sel *goquery.Selection, attr string) {
		raw, exists := sel.Attr(attr)
		if !exists || raw == "" {
			return
		}
		if externalScheme.MatchString(raw) || strings.HasPrefix(raw, "data:") ||
			strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "?") {
			return
		}

		if strings.HasPrefix(raw, slideBundlePrefix) {
			lib := path.Join(w.session.Cfg.SlideLibSubfolder, strings.TrimPrefix(raw, slideBundlePrefix))
			sel.SetAttr(attr, sitepath.Relative(embedTarget, lib))
			return
		}

		p, query, frag := sitepath.SplitRef(raw)
		res := sitepath.Resolve(source, p)
		if res.IsEmpty {
			return
		}
		a, ok := w.session.Index.GetFile(res.Path, true)
		if !ok {
			a = w.session.registerVaultFile(res.Path)
			if a == nil {
				return
			}
			deps = append(deps, a)
		}
		sel.SetAttr(attr, sitepath.Relative(embedTarget, a.TargetPath)+query+frag)
	}

	doc.Find("[href]").Each(func(_ int, sel *goquery.Selection) { rewrite(sel, "href") })
	doc.Find("[src]").Each(func(_ int, sel *goquery.Selection) { rewrite(sel, "src") })

	out, err := renderDocument(doc)
	if err != nil {
		return "", nil, err
	}
	return out, deps, nil
}

// splice replaces a discovered placeholder with a sandboxed iframe pointing
// at the embed's output location.
func (w *Webpage) splice(sel *goquery.Selection, relSrc string) {
	sel.ReplaceWithHtml(fmt.Sprintf(
		`<iframe class="slide-embed" src="%s" sandbox="allow-scripts allow-same-origin" %s="true"></iframe>`,
		relSrc, processedAttr))
}

// registerVaultFile registers a vault file as a lazy attachment, returning
// nil when the file does not exist on disk.
func (s *Session) registerVaultFile(sourcePath string) *Attachment {
	if s.Vault == nil || !s.Vault.FileExists(sourcePath) {
		return nil
	}
	a := NewLazyAttachment(sourcePath, s.TargetPath(sourcePath), func() ([]byte, error) {
		return s.Vault.ReadFile(sourcePath)
	})
	return s.Index.Register(a)
}
