package linkverify

import (
	"net/url"
	"regexp"

	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	"git.home.luguber.info/inful/sitebuilder/internal/markdown"
)

var wikiHref = regexp.MustCompile(`href="` + regexp.QuoteMeta(markdown.WikiScheme) + `([^"#]*)(#[^"]*)?"`)

// RewriteWikiHrefs replaces the symbolic hrefs of wiki links in body with
// the route of the page each target resolved to. A target that did not
// resolve keeps a route derived from the raw target.
func (r *Report) RewriteWikiHrefs(body, basePath string) string {
	return wikiHref.ReplaceAllStringFunc(body, func(m string) string {
		parts := wikiHref.FindStringSubmatch(m)
		target, err := url.QueryUnescape(parts[1])
		if err != nil {
			target = parts[1]
		}
		id, ok := r.WikiTargets[target]
		if !ok {
			id = url.PathEscape(target)
		}
		return `href="` + basePath + docmodel.PageRoute(id) + parts[2] + `"`
	})
}
