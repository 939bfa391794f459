package site

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

func project(t *testing.T, siteYAML string) (string, *config.Config) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"content/index.md":   "---\ntitle: Home\n---\nHello.\n",
		"content/a.md":       "---\ntags: [go]\nupdated: 2024-01-02\n---\n# Alpha\n\nSee [[B#setup-guide]] and ![d](diagram.svg).\n",
		"content/b.md":       "---\nupdated: 2024-01-01\n---\n# Beta\n\n## Setup Guide\n",
		"files/a/diagram.svg": "<svg/>",
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	cfg, err := config.Parse([]byte("cache:\n  enabled: false\n" + siteYAML))
	require.NoError(t, err)
	return root, cfg
}

func buildSite(t *testing.T, root string, cfg *config.Config) *build.BuildResult {
	t.Helper()
	result, err := build.NewBuildService().Run(context.Background(), build.BuildRequest{Root: root, Config: cfg})
	require.NoError(t, err)
	return result
}

func TestRoutes(t *testing.T) {
	root, cfg := project(t, "")
	set, err := Routes(buildSite(t, root, cfg), cfg, root)
	require.NoError(t, err)

	var paths []string
	for _, r := range set.All() {
		paths = append(paths, r.Path)
	}
	require.Equal(t, []string{
		"/",
		"/_feed/index.xml",
		"/_feed/index/_tags/go.xml",
		"/_file/a/diagram.svg",
		"/a",
		"/b",
	}, paths)
	require.Equal(t, 6, set.Len())

	a, ok := set.Get("/a")
	require.True(t, ok)
	require.Equal(t, RoutePage, a.Kind)
	require.Equal(t, ContentTypeHTML, a.ContentType)
	body := string(a.Body)
	require.Contains(t, body, `<a href="/b#setup-guide">`)
	require.NotContains(t, body, "wiki:")
	require.Contains(t, body, `<title>Alpha - Home</title>`)
	require.Contains(t, body, `href="/_feed/index.xml"`)
	require.Contains(t, body, `<a href="/_feed/index/_tags/go.xml">#go</a>`)

	file, ok := set.Get("/_file/a/diagram.svg")
	require.True(t, ok)
	require.Equal(t, "<svg/>", string(file.Body))
	require.Equal(t, "image/svg+xml", file.ContentType)

	feed, ok := set.Get("/_feed/index.xml")
	require.True(t, ok)
	require.Equal(t, ContentTypeAtom, feed.ContentType)
	require.NotContains(t, string(feed.Body), "wiki:")

	_, ok = set.Get("/missing")
	require.False(t, ok)
}

func TestRoutes_BasePath(t *testing.T) {
	root, cfg := project(t, "site:\n  base_url: https://example.com/blog/\n")
	set, err := Routes(buildSite(t, root, cfg), cfg, root)
	require.NoError(t, err)

	a, _ := set.Get("/a")
	require.Contains(t, string(a.Body), `href="/blog/b#setup-guide"`)
	require.Contains(t, string(a.Body), `src="/blog/_file/a/diagram.svg"`)
}

func TestRoutes_CustomLayout(t *testing.T) {
	root, cfg := project(t, "site:\n  layout: layout.html\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "layout.html"), []byte(`[{{ .ID }}|{{ .Title }}]{{ .Body }}`), 0o600))

	set, err := Routes(buildSite(t, root, cfg), cfg, root)
	require.NoError(t, err)
	b, _ := set.Get("/b")
	require.Contains(t, string(b.Body), "[b|Beta]<h1")
}

func TestRoutes_MissingLayout(t *testing.T) {
	root, cfg := project(t, "site:\n  layout: nope.html\n")
	_, err := Routes(buildSite(t, root, cfg), cfg, root)
	require.Error(t, err)
	require.Equal(t, errors.CategoryConfig, errors.GetCategory(err))
}

func TestRoutes_IncompleteResult(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	_, err = Routes(&build.BuildResult{Status: build.BuildStatusFailed}, cfg, t.TempDir())
	require.Error(t, err)
}

func TestRoutes_IndexTitleAndChildren(t *testing.T) {
	root, cfg := project(t, "site:\n  title: Configured\n")
	pages := map[string]string{
		"content/c.md": "---\npublished: 2024-03-01\nsummary: Third\n---\n# Gamma\n",
		"content/d.md": "---\npublished: 2024-02-01\n---\n# Delta\n",
		"content/e.md": "---\npublished: 2024-04-01\nhidden: true\n---\n# Epsilon\n",
		"content/f.md": "---\npublished: 2024-05-01\ndiscoverable: false\n---\n# Phi\n",
	}
	for rel, content := range pages {
		require.NoError(t, os.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), []byte(content), 0o600))
	}

	set, err := Routes(buildSite(t, root, cfg), cfg, root)
	require.NoError(t, err)

	c, _ := set.Get("/c")
	require.Contains(t, string(c.Body), `<title>Gamma - Home</title>`)
	require.NotContains(t, string(c.Body), "Configured")

	index, _ := set.Get("/")
	body := string(index.Body)
	require.Contains(t, body, `<ul class="children">`)
	require.Contains(t, body, `<li><a href="/c">Gamma</a> <time>2024-03-01</time> <span class="summary">Third</span></li>`)
	require.Contains(t, body, `<a href="/d">Delta</a>`)
	require.Less(t, strings.Index(body, `href="/c"`), strings.Index(body, `href="/d"`))
	require.NotContains(t, body, `href="/e"`)
	require.NotContains(t, body, `href="/f"`)
	require.NotContains(t, body, `href="/a"`)

	d, _ := set.Get("/d")
	require.NotContains(t, string(d.Body), `class="children"`)
}

func TestRoutes_ConfiguredTitleWithoutIndexTitle(t *testing.T) {
	root, cfg := project(t, "site:\n  title: Configured\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "content", "index.md"), []byte("Hello.\n"), 0o600))

	set, err := Routes(buildSite(t, root, cfg), cfg, root)
	require.NoError(t, err)
	a, _ := set.Get("/a")
	require.Contains(t, string(a.Body), `<title>Alpha - Configured</title>`)
}

func TestRoutes_TagsFeedLinks(t *testing.T) {
	root, cfg := project(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(root, "content", "index.md"),
		[]byte("---\ntitle: Home\ntags-feed: [[web, go]]\n---\nHello.\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "content", "w.md"),
		[]byte("---\ntags: [web]\nupdated: 2024-01-03\n---\n# Web\n"), 0o600))

	set, err := Routes(buildSite(t, root, cfg), cfg, root)
	require.NoError(t, err)

	combo, ok := set.Get("/_feed/index/_tags/go,web.xml")
	require.True(t, ok)
	require.Equal(t, RouteFeed, combo.Kind)
	require.Contains(t, string(combo.Body), "Alpha")
	require.Contains(t, string(combo.Body), "Web")
	require.NotContains(t, string(combo.Body), "Beta")

	index, _ := set.Get("/")
	require.Contains(t, string(index.Body), `title="Home #go #web" href="/_feed/index/_tags/go,web.xml"`)

	a, _ := set.Get("/a")
	require.NotContains(t, string(a.Body), "go,web.xml")
	require.Contains(t, string(a.Body), `<a href="/_feed/index/_tags/go.xml">#go</a>`)
}

func TestRoutes_PageTemplates(t *testing.T) {
	root, cfg := project(t, "site:\n  templates: custom\n")
	dir := filepath.Join(root, "custom")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.html"), []byte(`<b-page>{{ .Title }}|{{ .Site.Title }}</b-page>`), 0o600))

	set, err := Routes(buildSite(t, root, cfg), cfg, root)
	require.NoError(t, err)

	b, _ := set.Get("/b")
	require.Equal(t, "<b-page>Beta|Home</b-page>", string(b.Body))
	a, _ := set.Get("/a")
	require.Contains(t, string(a.Body), "<!doctype html>")
}

func TestRoutes_BrokenPageTemplate(t *testing.T) {
	root, cfg := project(t, "site:\n  templates: custom\n")
	dir := filepath.Join(root, "custom")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.html"), []byte(`{{ .Title `), 0o600))

	_, err := Routes(buildSite(t, root, cfg), cfg, root)
	require.Error(t, err)
	require.Equal(t, errors.CategoryConfig, errors.GetCategory(err))
}
