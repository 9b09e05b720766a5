package writer

import (
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/geocine/notexport/internal/export"
	"github.com/geocine/notexport/internal/utils"
)

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Language    string    `xml:"language,omitempty"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description,omitempty"`
	PubDate     string `xml:"pubDate,omitempty"`
	GUID        string `xml:"guid"`
}

// writeRSS emits rss.xml with one item per dated page, newest first. Pages
// without a publish date are left out of the feed.
func (w *Writer) writeRSS(outputs []*export.OutputData) error {
	base := strings.TrimSuffix(w.Cfg.Site.URL, "/")

	var items []rssItem
	var dates []time.Time
	for _, out := range sortedOutputs(outputs) {
		if out.PublishedAt.IsZero() {
			continue
		}
		link := out.TargetPath
		if base != "" {
			link = base + "/" + out.TargetPath
		}
		items = append(items, rssItem{
			Title:       out.Title,
			Link:        link,
			Description: out.Description,
			PubDate:     out.PublishedAt.Format(time.RFC1123Z),
			GUID:        link,
		})
		dates = append(dates, out.PublishedAt)
	}
	if len(items) == 0 {
		return nil
	}

	// Newest first.
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if dates[j].After(dates[i]) {
				items[i], items[j] = items[j], items[i]
				dates[i], dates[j] = dates[j], dates[i]
			}
		}
	}

	feed := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:       w.Cfg.Site.Title,
			Link:        w.Cfg.Site.URL,
			Description: w.Cfg.Site.Description,
			Language:    w.Cfg.Site.Language,
			Items:       items,
		},
	}

	data, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rss feed: %w", err)
	}
	payload := []byte(xml.Header + string(data) + "\n")
	return utils.WriteFile(filepath.Join(w.DestDir, "rss.xml"), payload)
}
