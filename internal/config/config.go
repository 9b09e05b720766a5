package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/geocine/notexport/internal/utils"
)

// SiteConfig contains metadata about the exported site
type SiteConfig struct {
	Title       string   `toml:"title"`
	Authors     []string `toml:"authors"`
	Description string   `toml:"description"`
	Language    string   `toml:"language"`
	URL         string   `toml:"url"` // Public site URL, used for OpenGraph and RSS
	Src         string   `toml:"src"` // Source vault directory, defaults to "notes"
}

// DefaultSiteConfig returns a site config with defaults
func DefaultSiteConfig() SiteConfig {
	return SiteConfig{
		Title:    "My Notes",
		Authors:  []string{},
		Language: "en",
		Src:      "notes",
	}
}

// BuildConfig contains build settings
type BuildConfig struct {
	BuildDir string `toml:"build-dir"`
	Workers  int    `toml:"workers"` // Max concurrently building pages
}

// DefaultBuildConfig returns a build config with defaults
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		BuildDir: "site",
		Workers:  4,
	}
}

// ExportConfig contains the per-page export options consumed read-only by the
// page assembler and its dependencies.
type ExportConfig struct {
	InlineMedia         bool   `toml:"inline-media"`          // base64-encode small local media into src attributes
	FixLinks            bool   `toml:"fix-links"`             // rewrite href/src references to exported paths
	FlattenPaths        bool   `toml:"flatten-paths"`         // drop directory structure in target paths
	SlugifyPaths        bool   `toml:"slugify-paths"`         // URL-safe target paths and links
	RelativeHeaderLinks bool   `toml:"relative-header-links"` // same-page heading links as bare fragments
	InjectHead          bool   `toml:"inject-head"`           // title/meta/OpenGraph injection
	OutlineEnabled      bool   `toml:"outline"`               // insert outline fragment
	MathStyle           bool   `toml:"math-style"`            // inject math rendering stylesheet link
	FileTreeState       bool   `toml:"file-tree-state"`       // initial file-explorer expansion state
	TabsScript          bool   `toml:"tabs-script"`           // client-side tab switching behavior
	InlineMediaMaxBytes int64  `toml:"inline-media-max-bytes"`
	SlideRendererCmd    string `toml:"slide-renderer"`      // external slide renderer command, empty = unavailable
	SlideLibDir         string `toml:"slide-lib-dir"`       // renderer's supporting asset folder on disk
	SlideLibSubfolder   string `toml:"slide-lib-subfolder"` // library subfolder in the output tree
	RSSEnabled          bool   `toml:"rss"`
	SearchEnabled       bool   `toml:"search"`
}

// DefaultExportConfig returns export options with defaults
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		FixLinks:            true,
		SlugifyPaths:        true,
		RelativeHeaderLinks: true,
		InjectHead:          true,
		OutlineEnabled:      true,
		TabsScript:          true,
		InlineMediaMaxBytes: 1 << 20,
		SlideLibSubfolder:   "lib/slides",
		RSSEnabled:          true,
		SearchEnabled:       true,
	}
}

// Config is the top-level configuration
type Config struct {
	Site   SiteConfig             `toml:"site"`
	Build  BuildConfig            `toml:"build"`
	Export ExportConfig           `toml:"export"`
	Output map[string]interface{} `toml:"output"`
	raw    map[string]interface{} // Raw TOML values
}

// NewDefaultConfig returns a config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Site:   DefaultSiteConfig(),
		Build:  DefaultBuildConfig(),
		Export: DefaultExportConfig(),
		Output: make(map[string]interface{}),
		raw:    make(map[string]interface{}),
	}
}

// LoadFromFile loads configuration from an export.toml file
func LoadFromFile(path string) (*Config, error) {
	content, err := utils.ReadToString(path)
	if err != nil {
		return nil, err
	}
	return LoadFromString(content)
}

// LoadFromString loads configuration from a TOML string
func LoadFromString(content string) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := toml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := toml.Unmarshal([]byte(content), &cfg.raw); err != nil {
		return nil, fmt.Errorf("failed to parse raw config: %w", err)
	}

	cfg.UpdateFromEnv()
	return cfg, nil
}

// UpdateFromEnv updates config from environment variables
// Variables starting with NOTEXPORT_ are used
// NOTEXPORT_FOO_BAR -> foo-bar
// NOTEXPORT_FOO__BAR -> foo.bar
func (c *Config) UpdateFromEnv() {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "NOTEXPORT_") {
			continue
		}

		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimPrefix(parts[0], "NOTEXPORT_")
		value := parts[1]

		configKey := strings.ToLower(key)
		configKey = strings.ReplaceAll(configKey, "__", ".")
		configKey = strings.ReplaceAll(configKey, "_", "-")

		c.Set(configKey, value)
	}
}

// Set sets a configuration value using dot notation (e.g., "site.title", "export.fix-links")
func (c *Config) Set(key, value string) {
	parts := strings.Split(key, ".")

	switch parts[0] {
	case "site":
		if len(parts) >= 2 {
			c.setSiteValue(parts[1], value)
		}
	case "build":
		if len(parts) >= 2 {
			c.setBuildValue(parts[1], value)
		}
	case "export":
		if len(parts) >= 2 {
			c.setExportValue(parts[1], value)
		}
	default:
		c.setRawValue(parts, value)
	}
}

func (c *Config) setSiteValue(key, value string) {
	switch strings.ToLower(key) {
	case "title":
		c.Site.Title = value
	case "authors":
		c.Site.Authors = []string{value}
	case "description":
		c.Site.Description = value
	case "language":
		c.Site.Language = value
	case "url":
		c.Site.URL = value
	case "src":
		c.Site.Src = value
	}
}

func (c *Config) setBuildValue(key, value string) {
	switch strings.ToLower(key) {
	case "build-dir":
		c.Build.BuildDir = value
	}
}

func (c *Config) setExportValue(key, value string) {
	b := strings.ToLower(value) == "true"
	switch strings.ToLower(key) {
	case "inline-media":
		c.Export.InlineMedia = b
	case "fix-links":
		c.Export.FixLinks = b
	case "flatten-paths":
		c.Export.FlattenPaths = b
	case "slugify-paths":
		c.Export.SlugifyPaths = b
	case "relative-header-links":
		c.Export.RelativeHeaderLinks = b
	case "outline":
		c.Export.OutlineEnabled = b
	case "rss":
		c.Export.RSSEnabled = b
	case "search":
		c.Export.SearchEnabled = b
	case "slide-renderer":
		c.Export.SlideRendererCmd = value
	case "slide-lib-dir":
		c.Export.SlideLibDir = value
	}
}

func (c *Config) setRawValue(parts []string, value string) {
	current := c.raw
	for i, part := range parts[:len(parts)-1] {
		if current[part] == nil {
			current[part] = make(map[string]interface{})
		}
		if m, ok := current[part].(map[string]interface{}); ok {
			current = m
		} else if i == len(parts)-2 {
			current[part] = map[string]interface{}{}
			if m, ok := current[part].(map[string]interface{}); ok {
				current = m
			}
		}
	}

	if len(parts) > 0 {
		current[parts[len(parts)-1]] = value
	}
}

// Get retrieves a value from the config using dot notation
func (c *Config) Get(key string) (interface{}, bool) {
	parts := strings.Split(key, ".")

	if parts[0] == "output" && len(parts) > 1 {
		var current interface{} = c.Output
		for _, part := range parts[1:] {
			m, isMap := current.(map[string]interface{})
			if !isMap {
				return nil, false
			}
			v, ok := m[part]
			if !ok {
				return nil, false
			}
			current = v
		}
		return current, true
	}

	current := c.raw
	for _, part := range parts {
		if v, ok := current[part]; ok {
			if m, isMap := v.(map[string]interface{}); isMap {
				current = m
			} else {
				return v, true
			}
		} else {
			return nil, false
		}
	}

	return current, true
}

// GetString retrieves a string value from config
func (c *Config) GetString(key string, defaultVal string) string {
	val, ok := c.Get(key)
	if !ok {
		return defaultVal
	}
	if s, isStr := val.(string); isStr {
		return s
	}
	return defaultVal
}

// GetBool retrieves a bool value from config
func (c *Config) GetBool(key string, defaultVal bool) bool {
	val, ok := c.Get(key)
	if !ok {
		return defaultVal
	}
	if b, isBool := val.(bool); isBool {
		return b
	}
	return defaultVal
}

// Redirects returns the [output.html.redirect] mapping, if present.
func (c *Config) Redirects() map[string]string {
	htmlOut, ok := c.Output["html"].(map[string]interface{})
	if !ok {
		return nil
	}
	redir, ok := htmlOut["redirect"].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(redir))
	for k, v := range redir {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
