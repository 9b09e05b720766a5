// Package sitepath provides pure path arithmetic for locations inside the
// exported site tree: reference parsing, relative path computation between
// two output locations, and URL slugification. It never touches the
// filesystem.
package sitepath

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Resolved is the structured result of parsing a reference string against a
// base location.
type Resolved struct {
	Path        string
	IsDirectory bool
	IsAbsolute  bool
	IsEmpty     bool
}

// SplitRef splits a raw reference into its path, query ("?..." including the
// question mark) and fragment ("#..." including the hash) components.
// Fragment is split first, so a "#" inside the query is treated as the
// fragment delimiter, matching browser behavior.
func SplitRef(ref string) (p, query, fragment string) {
	p = ref
	if i := strings.Index(p, "#"); i >= 0 {
		fragment = p[i:]
		p = p[:i]
	}
	if i := strings.Index(p, "?"); i >= 0 {
		query = p[i:]
		p = p[:i]
	}
	return p, query, fragment
}

// Resolve parses a reference string against a base path. The reference may be
// relative ("../img/a.png"), absolute from the site root ("/notes/a.md"), or
// carry query/hash suffixes which are ignored for path resolution. Base is
// the path of the referencing file; resolution happens against its directory.
func Resolve(base, ref string) Resolved {
	ref = strings.ReplaceAll(ref, "\\", "/")
	p, _, _ := SplitRef(ref)
	if p == "" {
		return Resolved{IsEmpty: true}
	}
	// Rendered HTML percent-escapes spaces and unicode in attribute values;
	// index keys are unescaped source paths.
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}

	isDir := strings.HasSuffix(p, "/")
	isAbs := strings.HasPrefix(p, "/")

	var joined string
	if isAbs {
		joined = path.Clean(strings.TrimPrefix(p, "/"))
	} else {
		dir := path.Dir(strings.ReplaceAll(base, "\\", "/"))
		if dir == "." {
			dir = ""
		}
		joined = path.Clean(path.Join(dir, p))
	}
	if joined == "." {
		joined = ""
	}
	// Clean cannot escape the site root; swallow any leading "../".
	for strings.HasPrefix(joined, "../") {
		joined = strings.TrimPrefix(joined, "../")
	}

	return Resolved{
		Path:        joined,
		IsDirectory: isDir,
		IsAbsolute:  isAbs,
	}
}

// Relative computes a POSIX-style relative path from one output location to
// another, independent of the platform path separator. Both arguments are
// file paths inside the site tree; the result is relative to the directory
// containing from.
func Relative(from, to string) string {
	from = strings.ReplaceAll(from, "\\", "/")
	to = strings.ReplaceAll(to, "\\", "/")

	fromDir := path.Dir(from)
	if fromDir == "." {
		return to
	}

	fromParts := strings.Split(fromDir, "/")
	toParts := strings.Split(to, "/")

	common := 0
	for common < len(fromParts) && common < len(toParts)-1 && fromParts[common] == toParts[common] {
		common++
	}

	var b strings.Builder
	for i := common; i < len(fromParts); i++ {
		b.WriteString("../")
	}
	b.WriteString(strings.Join(toParts[common:], "/"))
	return b.String()
}

var (
	slugDrop     = regexp.MustCompile(`[^\p{L}\p{N}\s_.~-]`)
	slugSpace    = regexp.MustCompile(`\s+`)
	slugCollapse = regexp.MustCompile(`-+`)

	deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Slugify transforms every segment of a path into a URL-safe token:
// lowercase, whitespace collapsed to dashes, diacritics and special
// characters stripped. The extension of the final segment is preserved. When
// enabled is false the path is returned unchanged; link generation and target
// path computation must agree on the flag or links will 404.
func Slugify(p string, enabled bool) string {
	if !enabled || p == "" {
		return p
	}
	p = strings.ReplaceAll(p, "\\", "/")
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		ext := ""
		if i == len(segs)-1 {
			ext = path.Ext(seg)
			seg = strings.TrimSuffix(seg, ext)
		}
		segs[i] = slugSegment(seg) + strings.ToLower(ext)
	}
	return strings.Join(segs, "/")
}

// slugSegment slugifies a single path segment.
func slugSegment(seg string) string {
	s := strings.ToLower(seg)
	if out, _, err := transform.String(deaccent, s); err == nil {
		s = out
	}
	s = slugDrop.ReplaceAllString(s, "")
	s = slugSpace.ReplaceAllString(s, "-")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
