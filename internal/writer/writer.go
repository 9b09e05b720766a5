// Package writer persists an export run to disk: attachments and pages,
// the search index, the RSS feed, redirect pages, and hosting extras.
package writer

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aymerick/raymond"
	"go.uber.org/zap"

	"github.com/geocine/notexport/internal/config"
	"github.com/geocine/notexport/internal/export"
	"github.com/geocine/notexport/internal/search"
	"github.com/geocine/notexport/internal/utils"
)

//go:embed assets/redirect.hbs
var redirectTemplate string

// Writer persists one export run under DestDir.
type Writer struct {
	DestDir string
	Cfg     *config.Config
	Log     *zap.Logger
}

// New creates a writer. A nil logger defaults to a no-op logger.
func New(destDir string, cfg *config.Config, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{DestDir: destDir, Cfg: cfg, Log: log}
}

// WriteSite persists everything the run produced. Attachments are
// deduplicated by target path; the first one wins, so a page and an embed
// referencing the same media never collide on disk.
func (w *Writer) WriteSite(attachments []*export.Attachment, outputs []*export.OutputData) error {
	if err := utils.CreateDirAll(w.DestDir); err != nil {
		return err
	}

	if err := w.writeAttachments(attachments); err != nil {
		return err
	}
	if w.Cfg.Export.SearchEnabled {
		if err := w.writeSearchIndex(outputs); err != nil {
			return err
		}
	}
	if w.Cfg.Export.RSSEnabled {
		if err := w.writeRSS(outputs); err != nil {
			return err
		}
	}
	if err := w.writeRedirects(); err != nil {
		return err
	}
	return w.writeExtras()
}

func (w *Writer) writeAttachments(attachments []*export.Attachment) error {
	seen := make(map[string]bool, len(attachments))
	for _, a := range attachments {
		if a.TargetPath == "" || seen[a.TargetPath] {
			continue
		}
		seen[a.TargetPath] = true

		data, err := a.Data()
		if err != nil {
			w.Log.Warn("skipping attachment", zap.String("target", a.TargetPath), zap.Error(err))
			continue
		}
		dest := filepath.Join(w.DestDir, filepath.FromSlash(a.TargetPath))
		if err := utils.WriteFile(dest, data); err != nil {
			return err
		}
	}
	w.Log.Info("attachments written", zap.Int("count", len(seen)))
	return nil
}

func (w *Writer) writeSearchIndex(outputs []*export.OutputData) error {
	idx, urls := search.FromPages(outputs)
	js, err := search.GenerateJS(idx, urls)
	if err != nil {
		return err
	}
	return utils.WriteFile(filepath.Join(w.DestDir, "searchindex.js"), []byte(js))
}

// writeRedirects emits one redirect page per configured source path. A
// source carrying a fragment contributes to the fragment map of its base
// page instead of producing a file. Existing content pages are never
// overwritten.
func (w *Writer) writeRedirects() error {
	redirects := w.Cfg.Redirects()
	if len(redirects) == 0 {
		return nil
	}

	type group struct {
		baseTarget string
		fragments  map[string]string
	}
	groups := map[string]*group{}
	for src, dst := range redirects {
		src = strings.TrimPrefix(src, "/")
		base, frag := src, ""
		if i := strings.Index(src, "#"); i >= 0 {
			base, frag = src[:i], src[i:]
		}
		g := groups[base]
		if g == nil {
			g = &group{fragments: map[string]string{}}
			groups[base] = g
		}
		if frag == "" {
			g.baseTarget = dst
		} else {
			g.fragments[frag] = dst
		}
	}

	tpl, err := raymond.Parse(redirectTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse redirect template: %w", err)
	}

	for srcBase, g := range groups {
		if g.baseTarget == "" {
			continue
		}
		outPath := filepath.Join(w.DestDir, filepath.FromSlash(srcBase))
		if _, err := os.Stat(outPath); err == nil {
			// A real page already lives there.
			continue
		}
		fragJSON, _ := json.Marshal(g.fragments)
		out, err := tpl.Exec(map[string]interface{}{
			"url":          g.baseTarget,
			"fragment_map": string(fragJSON),
		})
		if err != nil {
			return fmt.Errorf("failed to render redirect '%s': %w", srcBase, err)
		}
		if err := utils.WriteFile(outPath, []byte(out)); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeExtras() error {
	nojekyll := "This file keeps GitHub Pages from post-processing the exported site.\n"
	if err := utils.WriteFile(filepath.Join(w.DestDir, ".nojekyll"), []byte(nojekyll)); err != nil {
		return err
	}
	if cname := w.Cfg.GetString("output.renderer.cname", ""); cname != "" {
		if err := utils.WriteFile(filepath.Join(w.DestDir, "CNAME"), []byte(cname)); err != nil {
			return err
		}
	}
	return nil
}

// sortedOutputs returns outputs ordered by target path for deterministic
// feed generation.
func sortedOutputs(outputs []*export.OutputData) []*export.OutputData {
	sorted := make([]*export.OutputData, len(outputs))
	copy(sorted, outputs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TargetPath < sorted[j].TargetPath
	})
	return sorted
}
