package config

import (
	"net/url"
	"runtime"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultTitle      = "Site"
	DefaultBaseURL    = "http://localhost:8000/"
	DefaultContentDir = "content"
	DefaultFilesDir   = "files"
	DefaultCacheDir   = ".sitebuilder/cache"
	DefaultFeedID     = "index"
	DefaultFeedLimit  = 20
	DefaultSubject    = "sitebuilder.links.broken"
	DefaultAddr       = "localhost:8000"
	DefaultDebounce   = 300 * time.Millisecond
	DefaultRetries    = 2
	DefaultRetryDelay = 500 * time.Millisecond
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			Title:   DefaultTitle,
			BaseURL: DefaultBaseURL,
		},
		Content: ContentConfig{
			Dir:      DefaultContentDir,
			FilesDir: DefaultFilesDir,
		},
		Markdown: MarkdownConfig{Extensions: map[string]bool{}},
		TagFeeds: TagFeedConfig{Enabled: true, Limit: DefaultFeedLimit},
		Cache: CacheConfig{
			Enabled: true,
			Backend: BackendFile,
			Dir:     DefaultCacheDir,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Notify: NotifyConfig{
			Subject:    DefaultSubject,
			Retries:    DefaultRetries,
			Backoff:    RetryBackoffLinear,
			RetryDelay: DefaultRetryDelay,
		},
		Preview: PreviewConfig{Addr: DefaultAddr, Debounce: DefaultDebounce},
	}
}

// applyDefaults fills values that depend on what the file provided.
func (c *Config) applyDefaults() {
	if len(c.Feeds) == 0 {
		c.Feeds = []FeedConfig{{ID: DefaultFeedID, Limit: DefaultFeedLimit}}
	}
	for i := range c.Feeds {
		if c.Feeds[i].Limit == 0 {
			c.Feeds[i].Limit = DefaultFeedLimit
		}
	}
	if c.TagFeeds.Limit == 0 {
		c.TagFeeds.Limit = DefaultFeedLimit
	}
	if c.Markdown.Extensions == nil {
		c.Markdown.Extensions = map[string]bool{}
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = DefaultSubject
	}
	if c.Notify.Backoff == "" {
		c.Notify.Backoff = RetryBackoffLinear
	}
	if c.Notify.RetryDelay <= 0 {
		c.Notify.RetryDelay = DefaultRetryDelay
	}
	if c.Preview.Debounce <= 0 {
		c.Preview.Debounce = DefaultDebounce
	}
	if !strings.HasSuffix(c.Site.BaseURL, "/") {
		c.Site.BaseURL += "/"
	}
}

// Workers returns the effective render worker count.
func (c *Config) Workers() int {
	if c.Build.Workers > 0 {
		return c.Build.Workers
	}
	return runtime.NumCPU()
}

// BasePath returns the path component of the base URL without a trailing
// slash ("" for a site served at the host root).
func (c *Config) BasePath() string {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(u.Path, "/")
}
