package config

import (
	"encoding/json"

	"git.home.luguber.info/inful/sitebuilder/internal/checksum"
)

// renderSettings is the subset of configuration that changes rendered documents.
type renderSettings struct {
	BasePath   string          `json:"base_path"`
	ContentDir string          `json:"content_dir"`
	FilesDir   string          `json:"files_dir"`
	Extensions map[string]bool `json:"extensions"`
}

// RenderFingerprint hashes every setting that affects rendered document
// output. Feed, logging and cache settings are excluded.
func (c *Config) RenderFingerprint() string {
	ext := make(map[string]bool, len(KnownExtensions))
	for _, name := range KnownExtensions {
		ext[name] = c.Markdown.Enabled(name)
	}
	// encoding/json sorts map keys, so the encoding is stable.
	data, _ := json.Marshal(renderSettings{
		BasePath:   c.BasePath(),
		ContentDir: c.Content.Dir,
		FilesDir:   c.Content.FilesDir,
		Extensions: ext,
	})
	return checksum.Sum(data)
}
