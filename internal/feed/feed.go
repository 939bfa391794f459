// Package feed derives Atom feeds from a validated document set.
//
// Generation is a pure function of its inputs: entries are ordered by update
// timestamp (newest first, ties by path) and every id is a name-based UUID
// derived from a URL, so unchanged content produces byte-identical XML.
package feed

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
)

// Epoch is the updated time of a feed without entries.
var Epoch = time.Unix(0, 0).UTC()

// Spec describes one feed.
type Spec struct {
	ID    string
	Title string
	// Tags restricts entries to documents carrying any of them. They are
	// kept sorted.
	Tags  docmodel.Tags
	Limit int
	// PerTag marks tag feeds of feed ID, generated per distinct tag or per
	// tags-feed entry of the page ID.
	PerTag bool
}

// Route is the URL path the feed is served at.
func (s Spec) Route() string {
	if s.PerTag {
		return "/_feed/" + s.ID + "/_tags/" + strings.Join(s.Tags, ",") + ".xml"
	}
	return "/_feed/" + s.ID + ".xml"
}

// TagFilter normalizes raw tags into the sorted form specs carry.
func TagFilter(raw ...string) docmodel.Tags {
	tags := docmodel.NormalizeTags(raw)
	if len(tags) == 0 {
		return nil
	}
	slices.Sort(tags)
	return tags
}

// Site is the site-level information a feed needs.
type Site struct {
	// Title is the title of the index page.
	Title string
	// BaseURL is the absolute site URL without a trailing slash.
	BaseURL string
	Author  docmodel.Author
}

// NewSite derives feed site information from cfg and the index document, if any.
func NewSite(cfg *config.Config, index *docmodel.Document) Site {
	s := Site{
		Title:   cfg.Site.Title,
		BaseURL: strings.TrimSuffix(cfg.Site.BaseURL, "/"),
		Author:  docmodel.Author{Name: cfg.Site.Author.Name, Email: cfg.Site.Author.Email},
	}
	if index != nil {
		if index.Title != "" {
			s.Title = index.Title
		}
		if !index.Author.IsZero() {
			s.Author = index.Author
		}
	}
	return s
}

// Feed is a generated feed.
type Feed struct {
	Spec    Spec
	ID      string
	Title   string
	Link    string
	Self    string
	Updated time.Time
	Author  docmodel.Author
	Entries []Entry
}

// Entry is one document in a feed.
type Entry struct {
	ID        string
	DocID     string
	Title     string
	Link      string
	Updated   time.Time
	Published time.Time
	Author    docmodel.Author
	Summary   string
	Content   string
}

// Specs returns the configured feeds followed by the tag feeds of every
// configured feed without a tag filter: one per tags-feed entry of the page
// sharing the feed id and, when tag feeds are enabled, one per distinct tag.
func Specs(cfg *config.Config, docs []*docmodel.Document) []Spec {
	var specs []Spec
	for _, f := range cfg.Feeds {
		specs = append(specs, Spec{ID: f.ID, Title: f.Title, Tags: TagFilter(f.Filter()...), Limit: f.Limit})
	}

	pages := make(map[string]*docmodel.Document, len(docs))
	for _, d := range docs {
		pages[d.ID] = d
	}
	var tags []string
	if cfg.TagFeeds.Enabled {
		tags = distinctTags(docs)
	}
	for _, f := range cfg.Feeds {
		if len(f.Filter()) > 0 {
			continue
		}
		seen := make(map[string]bool)
		add := func(filter docmodel.Tags, limit int) {
			spec := Spec{ID: f.ID, Title: f.Title, Tags: filter, Limit: limit, PerTag: true}
			if len(filter) == 0 || seen[spec.Route()] {
				return
			}
			seen[spec.Route()] = true
			specs = append(specs, spec)
		}
		if page, ok := pages[f.ID]; ok {
			for _, combo := range page.TagsFeed {
				add(TagFilter(combo...), f.Limit)
			}
		}
		for _, tag := range tags {
			add(TagFilter(tag), cfg.TagFeeds.Limit)
		}
	}
	return specs
}

func distinctTags(docs []*docmodel.Document) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, d := range docs {
		if !eligible(d) {
			continue
		}
		for _, t := range d.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	sort.Strings(tags)
	return tags
}

// eligible reports whether d may appear in any feed.
func eligible(d *docmodel.Document) bool {
	return d.ID != docmodel.IndexID && !d.Hidden && d.Discoverable && !d.Timestamp().IsZero()
}

// Generate builds one feed per spec.
func Generate(docs []*docmodel.Document, specs []Spec, site Site) []*Feed {
	feeds := make([]*Feed, 0, len(specs))
	for _, spec := range specs {
		feeds = append(feeds, generate(docs, spec, site))
	}
	return feeds
}

func generate(docs []*docmodel.Document, spec Spec, site Site) *Feed {
	var selected []*docmodel.Document
	for _, d := range docs {
		if !eligible(d) {
			continue
		}
		if len(spec.Tags) > 0 && !slices.ContainsFunc(spec.Tags, d.Tags.Contains) {
			continue
		}
		selected = append(selected, d)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		ti, tj := selected[i].Timestamp(), selected[j].Timestamp()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return selected[i].Path < selected[j].Path
	})
	if spec.Limit > 0 && len(selected) > spec.Limit {
		selected = selected[:spec.Limit]
	}

	self := site.BaseURL + spec.Route()
	f := &Feed{
		Spec:    spec,
		ID:      urnFor(self),
		Title:   feedTitle(spec, site),
		Link:    site.BaseURL + docmodel.PageRoute(docmodel.IndexID),
		Self:    self,
		Updated: Epoch,
		Author:  site.Author,
		Entries: make([]Entry, 0, len(selected)),
	}

	for _, d := range selected {
		link := site.BaseURL + docmodel.PageRoute(d.ID)
		e := Entry{
			ID:        urnFor(link),
			DocID:     d.ID,
			Title:     d.Title,
			Link:      link,
			Updated:   d.Timestamp().UTC(),
			Published: d.Published.UTC(),
			Author:    d.Author,
			Summary:   d.Summary,
			Content:   d.Body,
		}
		if d.Published.IsZero() {
			e.Published = e.Updated
		}
		for _, t := range []time.Time{e.Updated, e.Published} {
			if t.After(f.Updated) {
				f.Updated = t
			}
		}
		f.Entries = append(f.Entries, e)
	}
	return f
}

func feedTitle(spec Spec, site Site) string {
	title := site.Title
	if spec.ID != docmodel.IndexID {
		name := spec.Title
		if name == "" {
			name = spec.ID
		}
		title += ": " + name
	}
	for _, tag := range spec.Tags {
		title += " #" + tag
	}
	return title
}

func urnFor(url string) string {
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}
