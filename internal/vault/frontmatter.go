package vault

import (
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Frontmatter holds the YAML metadata block of a note.
type Frontmatter struct {
	Title       string   `yaml:"title"`
	Tags        []string `yaml:"tags"`
	Description string   `yaml:"description"`
	Cover       string   `yaml:"cover"`
	Icon        string   `yaml:"icon"`
	Date        string   `yaml:"date"`
}

// yamlPattern matches a YAML frontmatter block at the very start of the content
var yamlPattern = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n?`)

// ParseFrontmatter splits a note into its YAML frontmatter and markdown body.
// Notes without a frontmatter block yield a zero Frontmatter and the full
// content as body. A malformed block is stripped but otherwise ignored.
func ParseFrontmatter(content string) (Frontmatter, string) {
	var fm Frontmatter

	m := yamlPattern.FindStringSubmatch(content)
	if m == nil {
		return fm, content
	}

	// Tags may be a list or a single scalar; decode into a loose shape first.
	var loose struct {
		Title       string      `yaml:"title"`
		Tags        interface{} `yaml:"tags"`
		Description string      `yaml:"description"`
		Cover       string      `yaml:"cover"`
		Icon        string      `yaml:"icon"`
		Date        string      `yaml:"date"`
	}
	if err := yaml.Unmarshal([]byte(m[1]), &loose); err == nil {
		fm.Title = loose.Title
		fm.Description = loose.Description
		fm.Cover = loose.Cover
		fm.Icon = loose.Icon
		fm.Date = loose.Date
		switch tags := loose.Tags.(type) {
		case string:
			fm.Tags = []string{tags}
		case []interface{}:
			for _, t := range tags {
				if s, ok := t.(string); ok {
					fm.Tags = append(fm.Tags, s)
				}
			}
		}
	}

	return fm, content[len(m[0]):]
}

// PublishedAt parses the frontmatter date field, trying the layouts notes
// commonly use. The zero time means no usable date.
func (fm Frontmatter) PublishedAt() time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, fm.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
