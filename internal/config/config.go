// Package config loads site.yaml, applies defaults and validates the result.
//
// Loading order: .env and .env.local in the project root are read with
// godotenv (existing variables win), ${VAR} references in site.yaml are
// expanded, the YAML is decoded over Default() and the result is validated.
// Every failure is a CategoryConfig error, raised before a build enumerates
// anything.
package config

import (
	"bytes"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// FileName is the configuration file looked up in the project root.
const FileName = "site.yaml"

// Config represents the site configuration.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Content  ContentConfig  `yaml:"content"`
	Markdown MarkdownConfig `yaml:"markdown"`
	Feeds    []FeedConfig   `yaml:"feeds"`
	TagFeeds TagFeedConfig  `yaml:"tag_feeds"`
	Cache    CacheConfig    `yaml:"cache"`
	Build    BuildConfig    `yaml:"build"`
	Logging  LoggingConfig  `yaml:"logging"`
	Notify   NotifyConfig   `yaml:"notify"`
	Preview  PreviewConfig  `yaml:"preview"`
}

// SiteConfig holds site-wide presentation settings.
type SiteConfig struct {
	Title   string       `yaml:"title"`
	BaseURL string       `yaml:"base_url"`
	Author  AuthorConfig `yaml:"author"`
	// Layout is an optional html/template file relative to the project root.
	Layout string `yaml:"layout"`
	// Templates is an optional directory of per-page layouts named <id>.html.
	Templates string `yaml:"templates"`
}

// AuthorConfig is the default feed author.
type AuthorConfig struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// ContentConfig locates pages and attachments.
type ContentConfig struct {
	Dir      string   `yaml:"dir"`
	FilesDir string   `yaml:"files_dir"`
	Ignore   []string `yaml:"ignore"`
}

// MarkdownConfig toggles pipeline extensions. Unlisted extensions are enabled.
type MarkdownConfig struct {
	Extensions map[string]bool `yaml:"extensions"`
}

// Enabled reports whether the named extension is switched on.
func (m MarkdownConfig) Enabled(name string) bool {
	on, ok := m.Extensions[name]
	return !ok || on
}

// FeedConfig describes one Atom feed.
type FeedConfig struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	// Tag and Tags restrict the feed to documents carrying any of them.
	// Neither means all documents.
	Tag   string   `yaml:"tag"`
	Tags  []string `yaml:"tags"`
	Limit int      `yaml:"limit"`
}

// Filter returns Tag and Tags as one list.
func (f FeedConfig) Filter() []string {
	if f.Tag == "" {
		return f.Tags
	}
	return append([]string{f.Tag}, f.Tags...)
}

// TagFeedConfig enables one automatic feed per distinct tag.
type TagFeedConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

// CacheConfig selects the persistent render cache backend.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// BuildConfig tunes the render worker pool. Workers <= 0 uses all CPUs.
type BuildConfig struct {
	Workers int `yaml:"workers"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NotifyConfig publishes broken-link events to NATS when NATSURL is set.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	// Retries bounds the retries of an unacknowledged publish, spaced by
	// Backoff starting at RetryDelay.
	Retries    int              `yaml:"retries"`
	Backoff    RetryBackoffMode `yaml:"backoff"`
	RetryDelay time.Duration    `yaml:"retry_delay"`
}

// RetryBackoffMode selects how retry delays grow.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// PreviewConfig configures the live preview server.
type PreviewConfig struct {
	Addr     string        `yaml:"addr"`
	Debounce time.Duration `yaml:"debounce"`
	// RebuildInterval triggers a periodic full rebuild; zero disables it.
	RebuildInterval time.Duration `yaml:"rebuild_interval"`
}

// Load reads the configuration of the project at root. configPath may be
// empty, in which case root/site.yaml is used when present and defaults apply
// otherwise.
func Load(root, configPath string) (*Config, error) {
	loadEnvFiles(root)

	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(root, FileName)
	}

	// #nosec G304 -- configuration path is chosen by the operator
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
	case !explicit && stderrors.Is(err, fs.ErrNotExist):
		data = nil
	default:
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read configuration").
			Fatal().
			WithContext("path", configPath).
			Build()
	}

	cfg, err := Parse(data)
	if err != nil {
		if classified, ok := errors.AsClassified(err); ok {
			return nil, classified.WithContext("path", configPath)
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML (after ${VAR} expansion) over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	expanded := os.ExpandEnv(string(data))
	if len(bytes.TrimSpace([]byte(expanded))) > 0 {
		dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse configuration").Fatal().Build()
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "invalid configuration").Fatal().Build()
	}
	return cfg, nil
}

// loadEnvFiles loads .env then .env.local. Variables already set are kept and
// missing files are skipped.
func loadEnvFiles(root string) {
	for _, name := range []string{".env", ".env.local"} {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}
