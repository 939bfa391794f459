package markdown

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// WikiScheme prefixes the symbolic href of a wiki link until routes are built.
const WikiScheme = "wiki:"

// WikiHref returns the symbolic href emitted for a wiki link to target.
// The escaping leaves no characters that need HTML escaping.
func WikiHref(target string) string {
	return WikiScheme + url.QueryEscape(target)
}

// KindWikiLink is the node kind of [[...]] links.
var KindWikiLink = gmast.NewNodeKind("WikiLink")

// WikiLink is an inline [[Target#fragment|Text]] reference.
type WikiLink struct {
	gmast.BaseInline
	Raw      string
	Target   string
	Fragment string
	// Self is set for [[#fragment]] links to the current page.
	Self bool
}

func (n *WikiLink) Kind() gmast.NodeKind { return KindWikiLink }

func (n *WikiLink) Dump(source []byte, level int) {
	gmast.DumpHelper(n, source, level, map[string]string{
		"Target":   n.Target,
		"Fragment": n.Fragment,
	}, nil)
}

// Href returns the href written into the rendered body.
func (n *WikiLink) Href() string {
	frag := ""
	if n.Fragment != "" {
		frag = "#" + n.Fragment
	}
	if n.Self {
		return frag
	}
	return WikiHref(n.Target) + frag
}

type wikiLinkParser struct{}

func (wikiLinkParser) Trigger() []byte { return []byte{'['} }

func (wikiLinkParser) Parse(_ gmast.Node, block text.Reader, _ parser.Context) gmast.Node {
	line, _ := block.PeekLine()
	if !bytes.HasPrefix(line, []byte("[[")) {
		return nil
	}
	end := bytes.Index(line[2:], []byte("]]"))
	if end < 0 {
		return nil
	}
	inner := string(line[2 : 2+end])
	if strings.TrimSpace(inner) == "" || strings.ContainsAny(inner, "[]\n") {
		return nil
	}
	block.Advance(end + 4)

	ref, label, hasLabel := strings.Cut(inner, "|")
	target, fragment, _ := strings.Cut(ref, "#")
	node := &WikiLink{
		Raw:      inner,
		Target:   strings.TrimSpace(target),
		Fragment: strings.TrimSpace(fragment),
	}
	node.Self = node.Target == ""

	if !hasLabel || strings.TrimSpace(label) == "" {
		label = ref
	}
	node.AppendChild(node, gmast.NewString([]byte(strings.TrimSpace(label))))
	return node
}

type wikiLinkRenderer struct{}

func (wikiLinkRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindWikiLink, renderWikiLink)
}

func renderWikiLink(w util.BufWriter, _ []byte, node gmast.Node, entering bool) (gmast.WalkStatus, error) {
	n := node.(*WikiLink)
	if entering {
		_, _ = w.WriteString(`<a href="`)
		_, _ = w.Write(util.EscapeHTML([]byte(n.Href())))
		_, _ = w.WriteString(`">`)
		return gmast.WalkContinue, nil
	}
	_, _ = w.WriteString("</a>")
	return gmast.WalkContinue, nil
}

func wikiLinkExtender(*renderState) goldmark.Extender {
	return extenderFunc(func(m goldmark.Markdown) {
		// Ahead of the standard link parser (priority 200) so "[[" is claimed first.
		m.Parser().AddOptions(parser.WithInlineParsers(util.Prioritized(wikiLinkParser{}, 199)))
		m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(wikiLinkRenderer{}, 100)))
	})
}
