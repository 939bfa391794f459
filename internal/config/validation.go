package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Extension names accepted under markdown.extensions.
const (
	ExtTables         = "tables"
	ExtStrikethrough  = "strikethrough"
	ExtTaskList       = "tasklist"
	ExtDefinitionList = "definition_list"
	ExtFootnotes      = "footnotes"
	ExtWikiLinks      = "wikilinks"
	ExtLiteralInclude = "literal_include"
	ExtHighlight      = "highlight"
	ExtHeadingAnchors = "heading_anchors"
)

// KnownExtensions lists every toggleable extension in pipeline order.
var KnownExtensions = []string{
	ExtTables, ExtStrikethrough, ExtTaskList,
	ExtDefinitionList, ExtFootnotes,
	ExtWikiLinks, ExtLiteralInclude, ExtHighlight, ExtHeadingAnchors,
}

var feedIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Content.Validate(); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	if err := c.Markdown.Validate(); err != nil {
		return fmt.Errorf("markdown: %w", err)
	}
	if err := c.validateFeeds(); err != nil {
		return err
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Cache),
		validation.Field(&c.Build),
		validation.Field(&c.Logging),
		validation.Field(&c.Notify),
		validation.Field(&c.TagFeeds),
	)
}

// Validate validates the site configuration.
func (s SiteConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Title, validation.Required),
		validation.Field(&s.BaseURL, validation.Required, is.URL),
		validation.Field(&s.Author),
		validation.Field(&s.Layout, validation.By(relativePath)),
		validation.Field(&s.Templates, validation.By(relativePath)),
	)
}

// Validate validates the author configuration.
func (a AuthorConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Email, is.EmailFormat),
	)
}

// Validate validates the content configuration.
func (c ContentConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Dir, validation.Required, validation.By(relativePath)),
		validation.Field(&c.FilesDir, validation.Required, validation.By(relativePath)),
		validation.Field(&c.Ignore, validation.Each(validation.By(validGlob))),
	)
}

// Validate rejects unknown extension names.
func (m MarkdownConfig) Validate() error {
	var unknown []string
	for name := range m.Extensions {
		if !slices.Contains(KnownExtensions, name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown extensions: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// Validate validates a feed configuration.
func (f FeedConfig) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.ID, validation.Required, validation.Match(feedIDPattern)),
		validation.Field(&f.Limit, validation.Min(1)),
	)
}

// Validate validates the automatic tag feed configuration.
func (t TagFeedConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Limit, validation.Min(1)),
	)
}

// Validate validates the cache configuration.
func (c CacheConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendFile, BackendSQLite)),
		validation.Field(&c.Dir, validation.Required),
	)
}

// Validate validates the build configuration.
func (b BuildConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Workers, validation.Min(0)),
	)
}

// Validate validates the logging configuration.
func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&l.Format, validation.In("text", "json")),
	)
}

// Validate validates the notify configuration.
func (n NotifyConfig) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.NATSURL, validation.By(natsURL)),
		validation.Field(&n.Subject, validation.When(n.NATSURL != "", validation.Required)),
		validation.Field(&n.Retries, validation.Min(0), validation.Max(10)),
		validation.Field(&n.Backoff, validation.In(RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential)),
	)
}

func (c *Config) validateFeeds() error {
	seen := make(map[string]bool, len(c.Feeds))
	for i, f := range c.Feeds {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("feeds[%d]: %w", i, err)
		}
		if seen[f.ID] {
			return fmt.Errorf("feeds[%d]: duplicate feed id %q", i, f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}

func relativePath(value any) error {
	p, _ := value.(string)
	if path.IsAbs(p) || strings.HasPrefix(path.Clean(p), "..") {
		return errors.New("must be a path inside the project")
	}
	return nil
}

func natsURL(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	for _, server := range strings.Split(raw, ",") {
		u, err := url.Parse(strings.TrimSpace(server))
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid server URL %q", server)
		}
		switch u.Scheme {
		case "nats", "tls", "ws", "wss":
		default:
			return fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
	}
	return nil
}

func validGlob(value any) error {
	p, _ := value.(string)
	if !doublestar.ValidatePattern(p) {
		return fmt.Errorf("invalid glob pattern %q", p)
	}
	return nil
}
