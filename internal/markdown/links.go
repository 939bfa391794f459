package markdown

import (
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
)

// Classify determines the kind and target of a link destination written in
// page pageID, and returns the href to render in its place. basePath is
// prepended to rewritten internal routes.
func Classify(raw, pageID, basePath string) (docmodel.Link, string) {
	link := docmodel.Link{Raw: raw, Kind: docmodel.LinkUnresolved}

	if frag, ok := strings.CutPrefix(raw, "#"); ok {
		link.Kind = docmodel.LinkInternalPage
		link.Target = pageID
		link.Fragment = frag
		return link, raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return link, raw
	}
	link.Fragment = u.Fragment
	suffix := ""
	if u.Fragment != "" {
		suffix = "#" + u.EscapedFragment()
	}

	switch {
	case u.Scheme == "node":
		id := u.Opaque
		if id == "" {
			id = u.Path
		}
		if u.Host != "" || id == "" {
			return link, raw
		}
		link.Kind = docmodel.LinkInternalPage
		link.Target = cleanID(id)
	case u.Scheme == "attachment":
		link.Kind = docmodel.LinkInternalAttachment
		if u.Host != "" {
			link.Target = path.Clean(u.Host + u.Path)
		} else {
			link.Target = path.Clean(pageID + "/" + u.Opaque)
		}
		return link, basePath + docmodel.AttachmentRoute(link.Target) + suffix
	case u.Scheme != "" || u.Host != "":
		link.Kind = docmodel.LinkExternal
		link.Target = raw
		link.Fragment = ""
		return link, raw
	case u.Path == "":
		return link, raw
	case path.Ext(u.Path) != "" && path.Ext(u.Path) != ".md":
		link.Kind = docmodel.LinkInternalAttachment
		if strings.HasPrefix(u.Path, "/") {
			link.Target = path.Clean(strings.TrimPrefix(u.Path, "/"))
		} else {
			link.Target = path.Clean(pageID + "/" + u.Path)
		}
		return link, basePath + docmodel.AttachmentRoute(link.Target) + suffix
	default:
		link.Kind = docmodel.LinkInternalPage
		link.Target = cleanID(u.Path)
	}
	return link, basePath + docmodel.PageRoute(link.Target) + suffix
}

// cleanID turns "/guide/setup.md" into "guide/setup"; "" and "/" mean the index.
func cleanID(p string) string {
	p = strings.TrimSuffix(strings.Trim(p, "/"), ".md")
	if p == "" || p == "." {
		return docmodel.IndexID
	}
	return path.Clean(p)
}

// linkTransformer classifies, rewrites and collects every link of the document.
type linkTransformer struct {
	st *renderState
}

func (t *linkTransformer) Transform(doc *gmast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	page := t.st.page.ID
	base := t.st.p.basePath

	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *gmast.Link:
			link, href := Classify(string(v.Destination), page, base)
			v.Destination = []byte(href)
			t.st.links = append(t.st.links, link)
		case *gmast.Image:
			link, href := Classify(string(v.Destination), page, base)
			v.Destination = []byte(href)
			v.SetAttributeString("class", []byte("img-responsive"))
			t.st.links = append(t.st.links, link)
		case *gmast.AutoLink:
			raw := string(v.URL(source))
			if v.AutoLinkType == gmast.AutoLinkEmail && !strings.HasPrefix(raw, "mailto:") {
				raw = "mailto:" + raw
			}
			t.st.links = append(t.st.links, docmodel.Link{Raw: raw, Kind: docmodel.LinkExternal, Target: raw})
		case *WikiLink:
			target := v.Target
			if v.Self {
				target = page
			}
			t.st.links = append(t.st.links, docmodel.Link{
				Raw:      v.Raw,
				Kind:     docmodel.LinkInternalPage,
				Target:   target,
				Fragment: v.Fragment,
				Wiki:     true,
			})
		}
		return gmast.WalkContinue, nil
	})
}

func linksExtender(st *renderState) goldmark.Extender {
	return extenderFunc(func(m goldmark.Markdown) {
		m.Parser().AddOptions(parser.WithASTTransformers(util.Prioritized(&linkTransformer{st: st}, 200)))
	})
}
