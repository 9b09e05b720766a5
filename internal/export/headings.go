package export

import (
	"fmt"
	"strings"
	"sync"
)

// HeaderMap assigns unique, collision-free anchor ids to the headings of one
// page and exposes the mapping so link resolution can compute target anchors.
// It must be fully populated, in document order, before this page's own
// link-resolution pass runs. Other pages building concurrently resolve their
// cross-page fragments through this map while it may still be filling, so
// access is synchronized; a lookup that races ahead of allocation misses and
// degrades like any other weak-consistency Index read.
type HeaderMap struct {
	mu     sync.RWMutex
	counts map[string]int // normalized text -> last assigned suffix
}

// NewHeaderMap creates an empty allocator.
func NewHeaderMap() *HeaderMap {
	return &HeaderMap{counts: make(map[string]int)}
}

// NormalizeHeading strips characters unsafe in URL fragments: spaces become
// underscores, colons are removed, doubled underscores collapse.
func NormalizeHeading(text string) string {
	s := strings.TrimSpace(text)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}

// Allocate assigns the next anchor id for a heading text. The same normalized
// text appearing N times in document order yields suffixes 0..N-1.
func (m *HeaderMap) Allocate(text string) string {
	normalized := NormalizeHeading(text)
	m.mu.Lock()
	defer m.mu.Unlock()
	suffix, seen := m.counts[normalized]
	if seen {
		suffix++
	}
	m.counts[normalized] = suffix
	return fmt.Sprintf("%s_%d", normalized, suffix)
}

// Resolve maps a link's heading text to the anchor of its first occurrence.
// A normalized name not present in the map is a non-heading anchor (for
// example a footnote) and the lookup reports false so the caller can pass the
// fragment through unchanged.
func (m *HeaderMap) Resolve(text string) (string, bool) {
	normalized := NormalizeHeading(text)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.counts[normalized]; !ok {
		return "", false
	}
	return normalized + "_0", true
}
