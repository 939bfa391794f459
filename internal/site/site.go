// Package site materialises a build result as routes: the site-relative URL
// paths a static server (or the preview server) answers, with their bytes.
package site

import (
	"bytes"
	stderrors "errors"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	"git.home.luguber.info/inful/sitebuilder/internal/feed"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Content types of generated routes.
const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeAtom = "application/atom+xml; charset=utf-8"
)

// RouteKind tells pages, attachments and feeds apart.
type RouteKind string

const (
	RoutePage       RouteKind = "page"
	RouteAttachment RouteKind = "attachment"
	RouteFeed       RouteKind = "feed"
)

// Route is one servable output.
type Route struct {
	Path        string
	Kind        RouteKind
	ContentType string
	Body        []byte
}

// Set is an ordered collection of routes, sorted by path.
type Set struct {
	routes []Route
	index  map[string]int
}

// Get returns the route registered for path.
func (s *Set) Get(path string) (Route, bool) {
	i, ok := s.index[path]
	if !ok {
		return Route{}, false
	}
	return s.routes[i], true
}

// All returns the routes in path order.
func (s *Set) All() []Route {
	out := make([]Route, len(s.routes))
	copy(out, s.routes)
	return out
}

// Len returns the number of routes.
func (s *Set) Len() int { return len(s.routes) }

func newSet(routes []Route) (*Set, error) {
	sort.Slice(routes, func(i, j int) bool { return routes[i].Path < routes[j].Path })
	s := &Set{routes: routes, index: make(map[string]int, len(routes))}
	for i, r := range routes {
		if _, dup := s.index[r.Path]; dup {
			return nil, errors.BuildError("duplicate route").WithContext("route", r.Path).Build()
		}
		s.index[r.Path] = i
	}
	return s, nil
}

// pageData is what a layout template sees. Site.Title is the index page
// title when there is one, as in feeds.
type pageData struct {
	Site      config.SiteConfig
	BasePath  string
	ID        string
	Title     string
	Body      template.HTML
	Headings  []docmodel.Heading
	Tags      docmodel.Tags
	Published time.Time
	Updated   time.Time
	Summary   string
	Author    docmodel.Author
	Meta      map[string]any
	Feeds     []feedLink
	// TagLinks holds one entry per tag, linking its tag feed when one exists.
	TagLinks []feedLink
	// TagsFeeds links the feeds of the page's tags-feed entries.
	TagsFeeds []feedLink
	// Children lists the pages of the site on the index page.
	Children []child
}

type feedLink struct {
	Title string
	Href  string
}

type child struct {
	ID        string
	Title     string
	Href      string
	Published time.Time
	Summary   string
	Tags      docmodel.Tags
}

// children returns the discoverable, non-hidden, published pages other than
// the index, newest first.
func children(docs []*docmodel.Document, basePath string) []child {
	var out []child
	for _, d := range docs {
		if d.ID == docmodel.IndexID || d.Hidden || !d.Discoverable || d.Published.IsZero() {
			continue
		}
		out = append(out, child{
			ID:        d.ID,
			Title:     d.Title,
			Href:      basePath + docmodel.PageRoute(d.ID),
			Published: d.Published,
			Summary:   d.Summary,
			Tags:      d.Tags,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Published.Equal(out[j].Published) {
			return out[i].Published.After(out[j].Published)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Routes renders every document through the layout, reads every attachment
// and serialises every feed. root is the project directory the optional
// layout file is resolved against. Wiki link hrefs are substituted from the
// validation report.
func Routes(result *build.BuildResult, cfg *config.Config, root string) (*Set, error) {
	if result == nil || result.Report == nil {
		return nil, errors.BuildError("build result is incomplete").Build()
	}
	layout, err := loadLayout(cfg, root)
	if err != nil {
		return nil, err
	}

	basePath := cfg.BasePath()
	index, _ := result.Document(docmodel.IndexID)
	siteCfg := cfg.Site
	siteCfg.Title = feed.NewSite(cfg, index).Title

	var feeds []feedLink
	tagFeeds := make(map[string]string)
	feedTitles := make(map[string]string, len(result.Feeds))
	for _, f := range result.Feeds {
		feedTitles[f.Spec.Route()] = f.Title
		if f.Spec.PerTag {
			if len(f.Spec.Tags) == 1 {
				if _, seen := tagFeeds[f.Spec.Tags[0]]; !seen {
					tagFeeds[f.Spec.Tags[0]] = basePath + f.Spec.Route()
				}
			}
			continue
		}
		feeds = append(feeds, feedLink{Title: f.Title, Href: basePath + f.Spec.Route()})
	}

	templates := &pageTemplates{root: root, dir: cfg.Site.Templates, fallback: layout}
	routes := make([]Route, 0, len(result.Documents)+len(result.Attachments)+len(result.Feeds))
	for _, d := range result.Documents {
		data := pageData{
			Site:      siteCfg,
			BasePath:  basePath,
			ID:        d.ID,
			Title:     d.Title,
			Body:      template.HTML(result.Report.RewriteWikiHrefs(d.Body, basePath)), // #nosec G203 -- body is rendered by the markdown pipeline
			Headings:  d.Headings,
			Tags:      d.Tags,
			Published: d.Published,
			Updated:   d.Updated,
			Summary:   d.Summary,
			Author:    d.Author,
			Meta:      d.Meta,
			Feeds:     feeds,
		}
		for _, tag := range d.Tags {
			data.TagLinks = append(data.TagLinks, feedLink{Title: tag, Href: tagFeeds[tag]})
		}
		for _, combo := range d.TagsFeed {
			spec := feed.Spec{ID: d.ID, Tags: feed.TagFilter(combo...), PerTag: true}
			if title, ok := feedTitles[spec.Route()]; ok {
				data.TagsFeeds = append(data.TagsFeeds, feedLink{Title: title, Href: basePath + spec.Route()})
			}
		}
		if d.ID == docmodel.IndexID {
			data.Children = children(result.Documents, basePath)
		}
		layout, err := templates.lookup(d.ID)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := layout.Execute(&buf, data); err != nil {
			return nil, errors.WrapError(err, errors.CategoryRender, "failed to execute layout").
				WithContext("path", d.Path).
				Build()
		}
		routes = append(routes, Route{
			Path:        docmodel.PageRoute(d.ID),
			Kind:        RoutePage,
			ContentType: ContentTypeHTML,
			Body:        buf.Bytes(),
		})
	}

	for _, a := range result.Attachments {
		// #nosec G304 -- attachment paths come from enumerating the files directory
		data, err := os.ReadFile(a.AbsPath)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read attachment").
				WithContext("path", a.AbsPath).
				Build()
		}
		routes = append(routes, Route{
			Path:        docmodel.AttachmentRoute(a.ID),
			Kind:        RouteAttachment,
			ContentType: a.MIME,
			Body:        data,
		})
	}

	for _, f := range result.Feeds {
		data, err := f.XML()
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryBuild, "failed to encode feed").
				WithContext("feed", f.Spec.Route()).
				Build()
		}
		routes = append(routes, Route{
			Path:        f.Spec.Route(),
			Kind:        RouteFeed,
			ContentType: ContentTypeAtom,
			Body:        data,
		})
	}
	return newSet(routes)
}

// pageTemplates resolves the per-page layouts <dir>/<id>.html, falling back to
// the site layout.
type pageTemplates struct {
	root     string
	dir      string
	fallback *template.Template
}

func (p *pageTemplates) lookup(id string) (*template.Template, error) {
	if p.dir == "" {
		return p.fallback, nil
	}
	file := filepath.Join(p.root, filepath.FromSlash(p.dir), filepath.FromSlash(id)+".html")
	if _, err := os.Stat(file); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return p.fallback, nil
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read page layout").
			WithContext("path", file).
			Build()
	}
	t, err := template.New(filepath.Base(file)).Funcs(funcs).ParseFiles(file)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to load page layout").
			Fatal().
			WithContext("path", file).
			Build()
	}
	return t, nil
}

func loadLayout(cfg *config.Config, root string) (*template.Template, error) {
	if cfg.Site.Layout == "" {
		return defaultLayout, nil
	}
	p := filepath.Join(root, filepath.FromSlash(cfg.Site.Layout))
	t, err := template.New(filepath.Base(p)).Funcs(funcs).ParseFiles(p)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to load layout").
			Fatal().
			WithContext("path", p).
			Build()
	}
	return t, nil
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02")
	},
	"route": func(basePath, id string) string { return basePath + docmodel.PageRoute(id) },
}

var defaultLayout = template.Must(template.New("layout").Funcs(funcs).Parse(defaultLayoutHTML))

const defaultLayoutHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{ if eq .ID "index" }}{{ .Title }}{{ else }}{{ .Title }} - {{ .Site.Title }}{{ end }}</title>
{{- range .Feeds }}
<link rel="alternate" type="application/atom+xml" title="{{ .Title }}" href="{{ .Href }}">
{{- end }}
{{- range .TagsFeeds }}
<link rel="alternate" type="application/atom+xml" title="{{ .Title }}" href="{{ .Href }}">
{{- end }}
</head>
<body>
<header><a href="{{ route .BasePath "index" }}">{{ .Site.Title }}</a></header>
<main>
<article>
{{ .Body }}
</article>
{{- with .Children }}
<ul class="children">
{{- range . }}
<li><a href="{{ .Href }}">{{ .Title }}</a> <time>{{ date .Published }}</time>{{ with .Summary }} <span class="summary">{{ . }}</span>{{ end }}</li>
{{- end }}
</ul>
{{- end }}
{{- if or (date .Published) .TagLinks }}
<footer>
{{- with date .Published }}<p class="published">Published {{ . }}</p>{{ end }}
{{- with .TagLinks }}<p class="tags">{{ range . }}{{ if .Href }}<a href="{{ .Href }}">#{{ .Title }}</a>{{ else }}#{{ .Title }}{{ end }} {{ end }}</p>{{ end }}
</footer>
{{- end }}
</main>
</body>
</html>
`
