// Package export implements the page-assembly and link-resolution engine:
// it turns rendered documents into self-contained HTML pages, discovers and
// deduplicates the attachments each page depends on, rewrites every
// in-document reference into a path valid in the exported output tree, and
// produces the per-page metadata consumed by search and RSS generation.
package export

import (
	"fmt"
	"sync"
)

// Attachment is one exportable artifact: a payload plus a source location and
// a target output location. TargetPath stays mutable until the attachment is
// registered in the Index; after output generation attachments are never
// mutated.
type Attachment struct {
	SourcePath string // origin location, empty for synthesized content
	TargetPath string // final output location, site-relative

	mu   sync.Mutex
	data []byte
	load func() ([]byte, error) // lazy materializer, nil once data is set
}

// NewAttachment creates an attachment with an eagerly owned payload.
func NewAttachment(source, target string, data []byte) *Attachment {
	return &Attachment{SourcePath: source, TargetPath: target, data: data}
}

// NewLazyAttachment creates an attachment whose payload is materialized on
// first use.
func NewLazyAttachment(source, target string, load func() ([]byte, error)) *Attachment {
	return &Attachment{SourcePath: source, TargetPath: target, load: load}
}

// Data returns the attachment payload, materializing it on first call.
func (a *Attachment) Data() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.load != nil {
		data, err := a.load()
		if err != nil {
			return nil, fmt.Errorf("failed to materialize '%s': %w", a.SourcePath, err)
		}
		a.data = data
		a.load = nil
	}
	return a.data, nil
}

// SetData replaces the payload, dropping any pending materializer.
func (a *Attachment) SetData(data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data = data
	a.load = nil
}
