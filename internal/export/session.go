package export

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/geocine/notexport/internal/config"
	"github.com/geocine/notexport/internal/sitepath"
	"github.com/geocine/notexport/internal/vault"
)

// Rendered is the result of asking the document renderer for a page's content
// container.
type Rendered struct {
	ContentHTML string
	ViewType    string
}

// DocumentRenderer produces the rendered content container for a source
// document. A nil result with a nil error means rendering was cancelled or
// produced no content; the page is skipped without failing the run.
type DocumentRenderer interface {
	Render(ctx context.Context, doc *vault.Document) (*Rendered, error)
}

// SlideRenderer is the narrow capability interface over an external
// presentation renderer. Absence of the capability (a nil SlideRenderer on
// the session) is a normal state, not an error.
type SlideRenderer interface {
	RenderFragment(ctx context.Context, absPath string, page int) (string, error)
}

// SlidePathResolver is an optional extra capability: renderers that know
// their own path conventions can resolve slide source references themselves.
type SlidePathResolver interface {
	ResolveSlidePath(ref string) (string, bool)
}

// OutlineGenerator produces the table-of-contents fragment inserted into a
// page. It is consumed as a black box.
type OutlineGenerator interface {
	Fragment(headings []Heading) string
}

// Heading describes one heading of a page, with its allocated anchor id.
type Heading struct {
	Level int
	Text  string
	ID    string
}

// Session holds everything scoped to one export run: configuration, the
// shared Index, the collaborators, and the run-wide caches (embed cache and
// slide asset-bundle memo). It replaces process-wide state so lifetime and
// test isolation stay explicit. Cleared state between runs comes for free:
// every run builds a fresh Session.
type Session struct {
	Cfg      config.ExportConfig
	Site     config.SiteConfig
	Vault    *vault.Vault
	Index    *Index
	Renderer DocumentRenderer
	Slides   SlideRenderer // nil when the external renderer is unavailable
	Outline  OutlineGenerator
	Log      *zap.Logger

	embedGroup singleflight.Group
	embedMu    sync.Mutex
	embedCache map[string]*Attachment

	assetGroup singleflight.Group
	assetMu    sync.Mutex
	assets     []*Attachment
	assetsDone bool
}

// NewSession creates a run-scoped session. A nil logger defaults to a no-op
// logger.
func NewSession(cfg config.ExportConfig, site config.SiteConfig, v *vault.Vault, r DocumentRenderer) *Session {
	return &Session{
		Cfg:        cfg,
		Site:       site,
		Vault:      v,
		Index:      NewIndex(),
		Renderer:   r,
		Log:        zap.NewNop(),
		embedCache: make(map[string]*Attachment),
	}
}

// TargetPath computes the output location for a source path, honoring the
// flatten and slugify options. Markdown sources map to .html targets. The
// same computation backs both link generation and target registration, so
// the two cannot drift apart.
func (s *Session) TargetPath(source string) string {
	p := NormalizePath(source)
	if s.Cfg.FlattenPaths {
		p = path.Base(p)
	}
	if strings.EqualFold(path.Ext(p), ".md") {
		p = strings.TrimSuffix(p, path.Ext(p)) + ".html"
	}
	return sitepath.Slugify(p, s.Cfg.SlugifyPaths)
}

// embedFor returns the cached attachment for an embed key, or runs render
// exactly once across all concurrent callers for the same key. Only
// successes populate the cache, so a transient failure is retried on the
// next reference within the run.
func (s *Session) embedFor(key string, render func() (*Attachment, error)) (*Attachment, error) {
	s.embedMu.Lock()
	if a, ok := s.embedCache[key]; ok {
		s.embedMu.Unlock()
		return a, nil
	}
	s.embedMu.Unlock()

	v, err, _ := s.embedGroup.Do(key, func() (interface{}, error) {
		s.embedMu.Lock()
		if a, ok := s.embedCache[key]; ok {
			s.embedMu.Unlock()
			return a, nil
		}
		s.embedMu.Unlock()

		a, err := render()
		if err != nil {
			return nil, err
		}
		s.embedMu.Lock()
		s.embedCache[key] = a
		s.embedMu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Attachment), nil
}

// SlideAssets enumerates the external renderer's supporting files once per
// run and registers them under the configured library subfolder. Concurrent
// callers collapse into a single filesystem walk.
func (s *Session) SlideAssets() ([]*Attachment, error) {
	s.assetMu.Lock()
	if s.assetsDone {
		defer s.assetMu.Unlock()
		return s.assets, nil
	}
	s.assetMu.Unlock()

	v, err, _ := s.assetGroup.Do("slide-assets", func() (interface{}, error) {
		s.assetMu.Lock()
		if s.assetsDone {
			defer s.assetMu.Unlock()
			return s.assets, nil
		}
		s.assetMu.Unlock()

		assets, err := s.enumerateSlideAssets()
		if err != nil {
			return nil, err
		}

		s.assetMu.Lock()
		s.assets = assets
		s.assetsDone = true
		s.assetMu.Unlock()
		return assets, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*Attachment), nil
}

// slideAssetGlobs selects the renderer's script/style/resource files.
var slideAssetGlobs = []string{
	"**/*.{js,css,map}",
	"**/*.{woff,woff2,ttf,eot}",
	"**/*.{png,jpg,jpeg,gif,svg,webp}",
}

func (s *Session) enumerateSlideAssets() ([]*Attachment, error) {
	if s.Cfg.SlideLibDir == "" {
		return nil, nil
	}
	root := s.Cfg.SlideLibDir
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("failed to read slide library '%s': not a directory", root)
	}

	fsys := os.DirFS(root)
	seen := make(map[string]struct{})
	var assets []*Attachment
	for _, pattern := range slideAssetGlobs {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate slide assets: %w", err)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			if info, err := fs.Stat(fsys, m); err != nil || info.IsDir() {
				continue
			}
			seen[m] = struct{}{}
			abs := filepath.Join(root, filepath.FromSlash(m))
			target := path.Join(s.Cfg.SlideLibSubfolder, m)
			a := NewLazyAttachment("", target, func() ([]byte, error) {
				return os.ReadFile(abs)
			})
			assets = append(assets, a)
		}
	}
	return assets, nil
}

// logger returns the session logger, never nil.
func (s *Session) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
