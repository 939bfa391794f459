package feed

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
)

var (
	t1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	t3 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

func post(id string, updated time.Time, tags ...string) *docmodel.Document {
	return &docmodel.Document{
		ID:           id,
		Path:         "content/" + id + ".md",
		Title:        "Post " + id,
		Published:    updated,
		Updated:      updated,
		Tags:         docmodel.NormalizeTags(tags),
		Discoverable: true,
		Body:         "<p>" + id + "</p>\n",
	}
}

var site = Site{Title: "Home", BaseURL: "https://example.com", Author: docmodel.Author{Name: "Ann"}}

func ids(f *Feed) []string {
	var out []string
	for _, e := range f.Entries {
		out = append(out, e.DocID)
	}
	return out
}

func TestGenerate_TagFeedCap(t *testing.T) {
	docs := []*docmodel.Document{post("one", t1, "rust"), post("three", t3, "rust"), post("two", t2, "rust"), post("go", t3, "go")}
	feeds := Generate(docs, []Spec{{ID: "index", Tags: docmodel.Tags{"rust"}, Limit: 2}}, site)

	require.Len(t, feeds, 1)
	require.Equal(t, []string{"three", "two"}, ids(feeds[0]))
	require.Equal(t, t3, feeds[0].Updated)
}

func TestGenerate_FiltersAndTieBreak(t *testing.T) {
	hidden := post("hidden", t3)
	hidden.Hidden = true
	undiscoverable := post("quiet", t3)
	undiscoverable.Discoverable = false
	undated := post("undated", time.Time{})
	index := post("index", t3)

	docs := []*docmodel.Document{post("b", t2), post("a", t2), hidden, undiscoverable, undated, index, post("c", t1)}
	f := Generate(docs, []Spec{{ID: "index"}}, site)[0]
	require.Equal(t, []string{"a", "b", "c"}, ids(f))
}

func TestGenerate_UpdatedFallsBackToPublished(t *testing.T) {
	d := post("a", time.Time{})
	d.Published = t2
	f := Generate([]*docmodel.Document{d}, []Spec{{ID: "index"}}, site)[0]
	require.Equal(t, t2, f.Entries[0].Updated)
	require.Equal(t, t2, f.Entries[0].Published)
}

func TestGenerate_EmptyFeed(t *testing.T) {
	f := Generate(nil, []Spec{{ID: "index"}}, site)[0]
	require.Empty(t, f.Entries)
	require.Equal(t, Epoch, f.Updated)

	out, err := f.XML()
	require.NoError(t, err)
	require.Contains(t, string(out), "<updated>1970-01-01T00:00:00Z</updated>")
}

func TestFeedTitles(t *testing.T) {
	cases := []struct {
		spec Spec
		want string
	}{
		{Spec{ID: "index"}, "Home"},
		{Spec{ID: "index", Tags: docmodel.Tags{"rust"}, PerTag: true}, "Home #rust"},
		{Spec{ID: "notes", Title: "Notes"}, "Home: Notes"},
		{Spec{ID: "notes"}, "Home: notes"},
		{Spec{ID: "notes", Title: "Notes", Tags: docmodel.Tags{"go"}, PerTag: true}, "Home: Notes #go"},
		{Spec{ID: "index", Tags: docmodel.Tags{"go", "web"}, PerTag: true}, "Home #go #web"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, feedTitle(tc.spec, site))
	}
}

func TestRoutes(t *testing.T) {
	require.Equal(t, "/_feed/index.xml", Spec{ID: "index"}.Route())
	require.Equal(t, "/_feed/rust.xml", Spec{ID: "rust", Tags: docmodel.Tags{"rust"}}.Route())
	require.Equal(t, "/_feed/index/_tags/rust.xml", Spec{ID: "index", Tags: docmodel.Tags{"rust"}, PerTag: true}.Route())
	require.Equal(t, "/_feed/index/_tags/go,web.xml", Spec{ID: "index", Tags: TagFilter("Web", "go"), PerTag: true}.Route())
}

func TestSpecs(t *testing.T) {
	cfg := config.Default()
	cfg.Feeds = []config.FeedConfig{{ID: "index", Limit: 20}, {ID: "rusty", Tag: "rust", Limit: 5}}
	cfg.TagFeeds = config.TagFeedConfig{Enabled: true, Limit: 3}
	hidden := post("h", t1, "secret")
	hidden.Hidden = true
	docs := []*docmodel.Document{post("a", t1, "rust", "go"), post("b", t2, "Go"), hidden}

	require.Equal(t, []Spec{
		{ID: "index", Limit: 20},
		{ID: "rusty", Tags: docmodel.Tags{"rust"}, Limit: 5},
		{ID: "index", Tags: docmodel.Tags{"go"}, Limit: 3, PerTag: true},
		{ID: "index", Tags: docmodel.Tags{"rust"}, Limit: 3, PerTag: true},
	}, Specs(cfg, docs))

	cfg.TagFeeds.Enabled = false
	require.Len(t, Specs(cfg, docs), 2)
}

func TestSpecs_TagsFeedAndMultiTagFilters(t *testing.T) {
	cfg := config.Default()
	cfg.Feeds = []config.FeedConfig{{ID: "index", Limit: 20}, {ID: "langs", Tags: []string{"rust", "Go"}, Limit: 5}}
	cfg.TagFeeds = config.TagFeedConfig{Enabled: true, Limit: 3}
	index := &docmodel.Document{ID: "index", Title: "Home", Discoverable: true,
		TagsFeed: []docmodel.Tags{{"web", "go"}, {"go"}}}
	docs := []*docmodel.Document{index, post("a", t1, "rust"), post("b", t2, "go", "web")}

	require.Equal(t, []Spec{
		{ID: "index", Limit: 20},
		{ID: "langs", Tags: docmodel.Tags{"go", "rust"}, Limit: 5},
		{ID: "index", Tags: docmodel.Tags{"go", "web"}, Limit: 20, PerTag: true},
		{ID: "index", Tags: docmodel.Tags{"go"}, Limit: 20, PerTag: true},
		{ID: "index", Tags: docmodel.Tags{"rust"}, Limit: 3, PerTag: true},
		{ID: "index", Tags: docmodel.Tags{"web"}, Limit: 3, PerTag: true},
	}, Specs(cfg, docs))

	cfg.TagFeeds.Enabled = false
	require.Len(t, Specs(cfg, docs), 4, "tags-feed entries do not depend on automatic tag feeds")

	feeds := Generate(docs, []Spec{{ID: "index", Tags: TagFilter("web", "rust"), PerTag: true}}, site)
	require.Equal(t, []string{"b", "a"}, ids(feeds[0]))
	require.Equal(t, "Home #rust #web", feeds[0].Title)
}

func TestNewSite(t *testing.T) {
	cfg := config.Default()
	cfg.Site.BaseURL = "https://example.com/blog/"
	cfg.Site.Author = config.AuthorConfig{Name: "Cfg"}

	s := NewSite(cfg, nil)
	require.Equal(t, Site{Title: config.DefaultTitle, BaseURL: "https://example.com/blog", Author: docmodel.Author{Name: "Cfg"}}, s)

	index := &docmodel.Document{ID: "index", Title: "My Blog", Author: docmodel.Author{Name: "Page"}}
	s = NewSite(cfg, index)
	require.Equal(t, "My Blog", s.Title)
	require.Equal(t, "Page", s.Author.Name)
}

func TestXML(t *testing.T) {
	d := post("a", t2, "rust")
	d.Summary = "short"
	d.Body = "<p>x & y</p>\n"
	f := Generate([]*docmodel.Document{d}, []Spec{{ID: "index"}}, site)[0]

	out, err := f.XML()
	require.NoError(t, err)
	xml := string(out)

	entryID := "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://example.com/a")).String()
	require.Contains(t, xml, `<feed xmlns="http://www.w3.org/2005/Atom">`)
	require.Contains(t, xml, `<link href="https://example.com/_feed/index.xml" rel="self"></link>`)
	require.Contains(t, xml, `<entry xml:base="https://example.com/a">`)
	require.Contains(t, xml, "<id>"+entryID+"</id>")
	require.Contains(t, xml, `<content type="html">&lt;p&gt;x &amp; y&lt;/p&gt;`)
	require.Contains(t, xml, "<summary>short</summary>")
	require.Contains(t, xml, "<name>Ann</name>")
	require.Contains(t, xml, "<updated>2024-02-01T00:00:00Z</updated>")
}

func TestDeterminism(t *testing.T) {
	docs := []*docmodel.Document{post("a", t1, "x"), post("b", t1, "x"), post("c", t3)}
	specs := []Spec{{ID: "index"}, {ID: "index", Tags: docmodel.Tags{"x"}, PerTag: true}}

	first := Generate(docs, specs, site)
	second := Generate([]*docmodel.Document{docs[2], docs[1], docs[0]}, specs, site)
	for i := range first {
		a, err := first[i].XML()
		require.NoError(t, err)
		b, err := second[i].XML()
		require.NoError(t, err)
		require.Equal(t, string(a), string(b))
	}
}
