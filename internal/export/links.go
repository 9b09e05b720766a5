package export

import (
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/geocine/notexport/internal/sitepath"
)

// internalScheme is the host application's own URI scheme. References using
// it point at local vault content and are resolved like paths instead of
// being passed through as external.
const internalScheme = "app://"

// externalScheme matches scheme:// and scheme:\\ references.
var externalScheme = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:(//|\\\\)`)

// unresolvedClass is the CSS hook marking links whose target could not be
// found in the Index. It is the only externally visible sign of a broken
// link; resolution never raises an error.
const unresolvedClass = "is-unresolved"

// resolveReference classifies and resolves one raw reference from this page.
// It returns the rewritten value, whether the attribute should be rewritten
// at all (false means leave as-is), and whether the target actually resolved
// (false toggles the unresolved marker). preferFile restricts Index lookups
// to plain attachments, skipping webpages.
func (w *Webpage) resolveReference(raw string, preferFile bool) (ref string, rewrite bool, resolved bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, true
	}

	// The internal scheme addresses vault content: strip scheme and host and
	// fall through to path resolution.
	if strings.HasPrefix(raw, internalScheme) {
		rest := raw[len(internalScheme):]
		if i := strings.Index(rest, "/"); i >= 0 {
			raw = rest[i+1:]
		} else {
			raw = rest
		}
	} else if externalScheme.MatchString(raw) {
		return "", false, true
	}

	if strings.HasPrefix(raw, "data:") ||
		strings.HasPrefix(raw, "?") ||
		strings.HasPrefix(raw, "mailto:") {
		return "", false, true
	}

	// Same-document fragment.
	if strings.HasPrefix(raw, "#") {
		id, ok := w.headers.Resolve(strings.TrimPrefix(raw, "#"))
		if !ok {
			// Non-heading anchor, e.g. a footnote. Deliberate pass-through.
			return "", false, true
		}
		if w.session.Cfg.RelativeHeaderLinks {
			return "#" + id, true, true
		}
		return path.Base(w.TargetPath) + "#" + id, true, true
	}

	p, query, fragment := sitepath.SplitRef(raw)
	res := sitepath.Resolve(w.SourcePath, p)
	if res.IsEmpty {
		return "", false, true
	}

	target, ok := w.session.Index.GetFile(res.Path, preferFile)
	if !ok {
		// Source documents are commonly referenced without their extension.
		target, ok = w.session.Index.GetFile(res.Path+".md", preferFile)
	}
	if !ok {
		// A vault file referenced before any page registered it, via src or
		// via a plain href (a linked PDF, say): create on demand.
		if a := w.session.registerVaultFile(res.Path); a != nil {
			target, ok = a, true
		}
	}
	if !ok {
		return w.synthesizeRef(res.Path, query, fragment), true, false
	}

	if _, isPage := w.session.Index.GetWebpage(target.SourcePath); isPage {
		w.noteLink(target.SourcePath)
	} else {
		w.noteAttachment(target)
	}

	if fragment != "" {
		if tp, isPage := w.session.Index.GetWebpage(target.SourcePath); isPage {
			if id, found := tp.headers.Resolve(strings.TrimPrefix(fragment, "#")); found {
				fragment = "#" + id
			}
		}
	}

	rel := sitepath.Relative(w.TargetPath, target.TargetPath)
	return rel + query + fragment, true, true
}

// synthesizeRef builds the best-effort path for a reference absent from the
// Index: slugified, with a forced .html extension, query and fragment
// reattached in that order. The result is syntactically valid but possibly
// dangling; the caller flags the element instead of failing.
func (w *Webpage) synthesizeRef(p, query, fragment string) string {
	if ext := path.Ext(p); ext != "" {
		p = strings.TrimSuffix(p, ext)
	}
	p += ".html"
	p = sitepath.Slugify(p, w.session.Cfg.SlugifyPaths)
	return sitepath.Relative(w.TargetPath, p) + query + fragment
}

// remapAttr resolves one reference-bearing attribute on an element,
// rewriting it in place and applying the resolver's side effects: a
// target="_self" attribute to defeat in-app link interception, and the
// unresolved-marker class toggle.
func (w *Webpage) remapAttr(sel *goquery.Selection, attr string, preferFile bool) {
	raw, exists := sel.Attr(attr)
	if !exists {
		return
	}
	ref, rewrite, resolved := w.resolveReference(raw, preferFile)
	if rewrite {
		sel.SetAttr(attr, ref)
	}
	sel.SetAttr("target", "_self")
	toggleClass(sel, unresolvedClass, !resolved)
}

// remapLinks rewrites every href, then every src, in two distinct passes:
// anchor semantics (heading fragments, page preference) differ from embed
// semantics (attachment preference).
func (w *Webpage) remapLinks() {
	w.doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		w.remapAttr(sel, "href", false)
	})
	w.doc.Find("img[src], iframe[src], audio[src], video[src], source[src], embed[src], model-viewer[src]").
		Each(func(_ int, sel *goquery.Selection) {
			w.remapAttr(sel, "src", true)
		})
}
