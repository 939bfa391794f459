package markdown

import (
	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	"git.home.luguber.info/inful/sitebuilder/internal/frontmatter"
)

// renderState collects everything one render produces besides HTML.
type renderState struct {
	p        *Pipeline
	page     Page
	slugger  *docmodel.Slugger
	headings []docmodel.Heading
	links    []docmodel.Link
	anchors  []string
	includes []Include
	errors   []docmodel.RenderError
}

func newRenderState(p *Pipeline, page Page) *renderState {
	return &renderState{
		p:       p,
		page:    page,
		slugger: docmodel.NewSlugger(),
	}
}

func (st *renderState) fail(stage, msg string) {
	st.errors = append(st.errors, docmodel.RenderError{
		Path:    st.page.Path,
		Stage:   stage,
		Message: msg,
	})
}

func (st *renderState) touch(target, fingerprint string) {
	for _, inc := range st.includes {
		if inc.Target == target {
			return
		}
	}
	st.includes = append(st.includes, Include{Target: target, Fingerprint: fingerprint})
}

func (st *renderState) document(meta frontmatter.Metadata, body string) *docmodel.Document {
	title := meta.Title
	if title == "" {
		for _, h := range st.headings {
			if h.Level == 1 {
				title = h.Text
				break
			}
		}
	}
	if title == "" {
		title = st.page.ID
	}

	return &docmodel.Document{
		Path:         st.page.Path,
		ID:           st.page.ID,
		Title:        title,
		Headings:     st.headings,
		Tags:         meta.Tags,
		Published:    meta.Published,
		Updated:      meta.Updated,
		Summary:      meta.Summary,
		Author:       meta.Author,
		Hidden:       meta.Hidden,
		Discoverable: meta.Discoverable,
		TagsFeed:     meta.TagsFeed,
		Body:         body,
		Links:        st.links,
		Anchors:      st.anchors,
		Meta:         meta.Extra,
		Errors:       st.errors,
	}
}
