package export

import "time"

// OutputData is the per-page snapshot handed to the site writer and the
// search and RSS generators. It is immutable once produced; the page's DOM
// is released right after it is captured.
type OutputData struct {
	SourcePath  string
	TargetPath  string
	Title       string
	Icon        string
	Description string
	Tags        []string
	Headings    []Heading
	Backlinks   []string // target paths of pages linking here
	Links       []string // source paths of pages this page links to
	CoverImage  string   // exported path, empty when the page has none
	SearchText  string
	HTML        string
	PublishedAt time.Time
}
