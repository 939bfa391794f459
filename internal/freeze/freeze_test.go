package freeze

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func buildRoutes(t *testing.T, files map[string]string) (*build.BuildResult, *site.Set) {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, files)
	cfg, err := config.Parse([]byte("cache:\n  enabled: false\n"))
	require.NoError(t, err)
	result, err := build.NewBuildService().Run(context.Background(), build.BuildRequest{Root: root, Config: cfg})
	require.NoError(t, err)
	routes, err := site.Routes(result, cfg, root)
	require.NoError(t, err)
	return result, routes
}

var cleanProject = map[string]string{
	"content/index.md":   "---\ntitle: Home\n---\nSee [[A]].\n",
	"content/a.md":       "---\ntags: [go]\nupdated: 2024-01-02\n---\n# Alpha\n\n![d](diagram.svg)\n",
	"files/a/diagram.svg": "<svg/>",
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		route site.Route
		want  string
	}{
		{site.Route{Path: "/", Kind: site.RoutePage}, "index.html"},
		{site.Route{Path: "/a", Kind: site.RoutePage}, "a.html"},
		{site.Route{Path: "/guide/setup", Kind: site.RoutePage}, "guide/setup.html"},
		{site.Route{Path: "/_file/a/diagram.svg", Kind: site.RouteAttachment}, "_file/a/diagram.svg"},
		{site.Route{Path: "/_feed/index.xml", Kind: site.RouteFeed}, "_feed/index.xml"},
	}
	for _, tt := range tests {
		t.Run(tt.route.Path, func(t *testing.T) {
			require.Equal(t, tt.want, FileName(tt.route))
		})
	}
}

func TestWrite(t *testing.T) {
	result, routes := buildRoutes(t, cleanProject)
	out := filepath.Join(t.TempDir(), "public")

	summary, err := Write(context.Background(), result, routes, out, Options{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		"index.html",
		"a.html",
		"_file/a/diagram.svg",
		"_feed/index.xml",
		"_feed/index/_tags/go.xml",
	}, summary.Written)
	require.Empty(t, summary.Unchanged)
	require.Empty(t, summary.Removed)

	require.Equal(t, "<svg/>", readFile(t, filepath.Join(out, "_file", "a", "diagram.svg")))
	require.Contains(t, readFile(t, filepath.Join(out, "index.html")), `<a href="/a">`)
	require.FileExists(t, filepath.Join(out, MarkerFile))
}

func TestWrite_Unchanged(t *testing.T) {
	result, routes := buildRoutes(t, cleanProject)
	out := t.TempDir()

	_, err := Write(context.Background(), result, routes, out, Options{})
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(out, "a.html"))
	require.NoError(t, err)

	summary, err := Write(context.Background(), result, routes, out, Options{})
	require.NoError(t, err)
	require.Empty(t, summary.Written)
	require.Len(t, summary.Unchanged, routes.Len())

	again, err := os.Stat(filepath.Join(out, "a.html"))
	require.NoError(t, err)
	require.Equal(t, info.ModTime(), again.ModTime())
}

func TestWrite_RemovesStaleFiles(t *testing.T) {
	result, routes := buildRoutes(t, cleanProject)
	out := t.TempDir()
	writeFiles(t, out, map[string]string{
		MarkerFile:          "old\n",
		"old.html":          "stale",
		"_file/old/x.png":   "stale",
		".git/HEAD":         "ref: refs/heads/main\n",
		".nojekyll":         "",
	})

	summary, err := Write(context.Background(), result, routes, out, Options{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"old.html", "_file/old/x.png"}, summary.Removed)
	require.NoFileExists(t, filepath.Join(out, "old.html"))
	require.NoDirExists(t, filepath.Join(out, "_file", "old"))
	require.FileExists(t, filepath.Join(out, ".git", "HEAD"))
	require.FileExists(t, filepath.Join(out, ".nojekyll"))
}

func TestWrite_RefusesForeignDirectory(t *testing.T) {
	result, routes := buildRoutes(t, cleanProject)
	out := t.TempDir()
	writeFiles(t, out, map[string]string{"notes.txt": "mine"})

	_, err := Write(context.Background(), result, routes, out, Options{})
	require.Error(t, err)
	require.Equal(t, errors.CategoryFileSystem, errors.GetCategory(err))
	require.FileExists(t, filepath.Join(out, "notes.txt"))

	summary, err := Write(context.Background(), result, routes, out, Options{Force: true})
	require.NoError(t, err)
	require.Equal(t, []string{"notes.txt"}, summary.Removed)
}

func TestWrite_RefusesSourceDirectories(t *testing.T) {
	result, routes := buildRoutes(t, cleanProject)
	root := t.TempDir()
	content := filepath.Join(root, "content")
	writeFiles(t, root, map[string]string{"content/index.md": "# Home\n"})
	protected := []string{content, filepath.Join(root, "files")}

	for _, out := range []string{root, content, filepath.Join(content, "public"), filepath.Dir(root)} {
		_, err := Write(context.Background(), result, routes, out, Options{Force: true, Protected: protected})
		require.Error(t, err, out)
		require.Equal(t, errors.CategoryFileSystem, errors.GetCategory(err), out)
	}
	require.FileExists(t, filepath.Join(content, "index.md"))

	_, err := Write(context.Background(), result, routes, filepath.Join(root, "public"), Options{Protected: protected})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(content, "index.md"))
}

func TestWrite_RefusesBrokenLinks(t *testing.T) {
	result, routes := buildRoutes(t, map[string]string{
		"content/index.md": "See [[Missing]] and [b](b.md#nope).\n",
		"content/b.md":     "# B\n",
	})
	out := t.TempDir()

	_, err := Write(context.Background(), result, routes, out, Options{})
	require.Error(t, err)
	require.True(t, stderrors.Is(err, ErrBrokenLinks))
	require.Equal(t, errors.CategoryValidation, errors.GetCategory(err))

	var broken *BrokenLinksError
	require.True(t, stderrors.As(err, &broken))
	require.Len(t, broken.Findings, 2)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWrite_IncompleteResult(t *testing.T) {
	_, err := Write(context.Background(), &build.BuildResult{}, nil, t.TempDir(), Options{})
	require.Error(t, err)
}
