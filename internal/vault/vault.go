// Package vault loads a directory of markdown notes and their companion
// files, and answers the path and backlink queries the export core needs.
package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Document is a single markdown note in the vault.
type Document struct {
	Path        string // vault-relative, forward slashes
	Frontmatter Frontmatter
	Body        string // markdown content with frontmatter stripped
}

// Vault is an in-memory view of a notes directory.
type Vault struct {
	Root      string
	Documents map[string]*Document // keyed by vault-relative path
	Files     []string             // non-markdown files, vault-relative

	order     []string            // document paths in walk order
	backlinks map[string][]string // target path -> referencing document paths
}

// Load walks root and builds a Vault from every markdown file found.
// Non-markdown files are recorded as attachment candidates. Hidden files and
// directories (dot-prefixed) are skipped.
func Load(root string) (*Vault, error) {
	v := &Vault{
		Root:      root,
		Documents: make(map[string]*Document),
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !strings.EqualFold(path.Ext(rel), ".md") {
			v.Files = append(v.Files, rel)
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read '%s': %w", p, err)
		}
		fm, body := ParseFrontmatter(string(data))
		v.Documents[rel] = &Document{Path: rel, Frontmatter: fm, Body: body}
		v.order = append(v.order, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk vault '%s': %w", root, err)
	}

	v.backlinks = buildBacklinks(v)
	return v, nil
}

// DocumentPaths returns document paths in walk order.
func (v *Vault) DocumentPaths() []string {
	return v.order
}

// AbsPath returns the on-disk location of a vault-relative path.
func (v *Vault) AbsPath(rel string) string {
	return filepath.Join(v.Root, filepath.FromSlash(rel))
}

// ReadFile reads a vault-relative file.
func (v *Vault) ReadFile(rel string) ([]byte, error) {
	data, err := os.ReadFile(v.AbsPath(rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", rel, err)
	}
	return data, nil
}

// FileExists reports whether a vault-relative path names an existing file.
func (v *Vault) FileExists(rel string) bool {
	info, err := os.Stat(v.AbsPath(rel))
	return err == nil && !info.IsDir()
}

// ResolveLink resolves a link target against the vault's known paths:
// exact match first, then the same path with ".md" appended, then a unique
// suffix match across all documents. When several documents match by suffix
// the shortest path wins, ties broken lexicographically, so resolution stays
// deterministic.
func (v *Vault) ResolveLink(ref string) (string, bool) {
	ref = strings.TrimPrefix(strings.ReplaceAll(ref, "\\", "/"), "/")
	if ref == "" {
		return "", false
	}

	if _, ok := v.Documents[ref]; ok {
		return ref, true
	}
	if _, ok := v.Documents[ref+".md"]; ok {
		return ref + ".md", true
	}

	var candidates []string
	suffix := "/" + ref
	suffixMD := suffix + ".md"
	for p := range v.Documents {
		if strings.HasSuffix(p, suffix) || strings.HasSuffix(p, suffixMD) ||
			p == ref || p == ref+".md" {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) < len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0], true
}

// Backlinks returns the documents that link to the given document path, in
// walk order of the referencing documents.
func (v *Vault) Backlinks(target string) []string {
	return v.backlinks[target]
}

// Modified returns the file's modification time, the publication fallback
// when frontmatter carries no date. The zero time means the file is gone.
func (v *Vault) Modified(rel string) time.Time {
	info, err := os.Stat(v.AbsPath(rel))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
