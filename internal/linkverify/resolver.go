package linkverify

import (
	"sort"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
)

// Resolver finds pages by the names links use for them. Lookups are
// case-insensitive and try, in order: page id, page title, then the target
// slugified segment by segment as an id. When several pages share a name the
// smallest id wins.
type Resolver struct {
	docs    map[string]*docmodel.Document
	byID    map[string]string
	byTitle map[string]string
}

// NewResolver indexes docs.
func NewResolver(docs []*docmodel.Document) *Resolver {
	sorted := make([]*docmodel.Document, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	r := &Resolver{
		docs:    make(map[string]*docmodel.Document, len(docs)),
		byID:    make(map[string]string, len(docs)),
		byTitle: make(map[string]string, len(docs)),
	}
	for _, d := range sorted {
		r.docs[d.ID] = d
		setOnce(r.byID, strings.ToLower(d.ID), d.ID)
		if d.Title != "" {
			setOnce(r.byTitle, strings.ToLower(strings.TrimSpace(d.Title)), d.ID)
		}
	}
	return r
}

func setOnce(m map[string]string, key, value string) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

// Document returns the page with the exact id.
func (r *Resolver) Document(id string) (*docmodel.Document, bool) {
	d, ok := r.docs[id]
	return d, ok
}

// Resolve returns the page a link target refers to.
func (r *Resolver) Resolve(target string) (*docmodel.Document, bool) {
	key := strings.ToLower(strings.TrimSpace(target))
	if key == "" {
		return nil, false
	}
	if id, ok := r.byID[key]; ok {
		return r.docs[id], true
	}
	if id, ok := r.byTitle[key]; ok {
		return r.docs[id], true
	}
	if id, ok := r.byID[slugPath(key)]; ok {
		return r.docs[id], true
	}
	return nil, false
}

// slugPath slugifies every "/"-separated segment of target.
func slugPath(target string) string {
	parts := strings.Split(strings.Trim(target, "/"), "/")
	for i, p := range parts {
		parts[i] = docmodel.Slugify(p)
	}
	return strings.Join(parts, "/")
}
