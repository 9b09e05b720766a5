package export

import (
	"path"
	"strings"
	"sync"
)

// Index is the run-scoped lookup from normalized source path to known
// Attachment or Webpage. It is the single source of truth for "has this file
// already been exported, and to where". It is shared across concurrently
// building pages and append-mostly; read-after-write consistency between
// pages is deliberately not guaranteed — a miss degrades into best-effort
// path synthesis at the link resolver, never an error.
type Index struct {
	mu    sync.RWMutex
	files map[string]*Attachment
	pages map[string]*Webpage
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		files: make(map[string]*Attachment),
		pages: make(map[string]*Webpage),
	}
}

// NormalizePath cleans a source path into the index's key form: forward
// slashes, no leading slash, no ./ segments.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(strings.TrimPrefix(p, "/"))
	if p == "." {
		return ""
	}
	return p
}

// Register records an attachment under its source path. The first
// registration wins; once registered the sourcePath → Attachment mapping is
// stable for the run. Returns the registered attachment (the existing one on
// a duplicate).
func (ix *Index) Register(a *Attachment) *Attachment {
	key := NormalizePath(a.SourcePath)
	if key == "" {
		return a
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if existing, ok := ix.files[key]; ok {
		return existing
	}
	ix.files[key] = a
	return a
}

// RegisterPage records a webpage under its source path, making it visible to
// both GetFile and GetWebpage.
func (ix *Index) RegisterPage(w *Webpage) {
	key := NormalizePath(w.SourcePath)
	if key == "" {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.pages[key]; ok {
		return
	}
	ix.pages[key] = w
	if _, ok := ix.files[key]; !ok {
		ix.files[key] = &w.Attachment
	}
}

// GetFile looks up a source path. With mustBeFile set, entries that are
// webpages are excluded so callers can insist on a plain attachment.
func (ix *Index) GetFile(p string, mustBeFile bool) (*Attachment, bool) {
	key := NormalizePath(p)
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	a, ok := ix.files[key]
	if !ok {
		return nil, false
	}
	if mustBeFile {
		if _, isPage := ix.pages[key]; isPage {
			return nil, false
		}
	}
	return a, true
}

// GetWebpage looks up a source path as a webpage.
func (ix *Index) GetWebpage(p string) (*Webpage, bool) {
	key := NormalizePath(p)
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	w, ok := ix.pages[key]
	return w, ok
}
