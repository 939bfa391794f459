package markdown

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
)

// headingTransformer assigns every heading a unique slug as its id.
type headingTransformer struct {
	st *renderState
}

func (t *headingTransformer) Transform(doc *gmast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		h, ok := n.(*gmast.Heading)
		if !entering || !ok {
			return gmast.WalkContinue, nil
		}
		label := strings.TrimSpace(plainText(h, source))
		slug := t.st.slugger.Slug(label)
		h.SetAttributeString("id", []byte(slug))
		t.st.headings = append(t.st.headings, docmodel.Heading{Level: h.Level, Text: label, Slug: slug})
		return gmast.WalkSkipChildren, nil
	})
}

// plainText concatenates the text content below n.
func plainText(n gmast.Node, source []byte) string {
	var b strings.Builder
	_ = gmast.Walk(n, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *gmast.Text:
			b.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *gmast.String:
			b.Write(v.Value)
		case *gmast.RawHTML:
			return gmast.WalkSkipChildren, nil
		}
		return gmast.WalkContinue, nil
	})
	return b.String()
}

// headingRenderer appends a permalink to every heading.
type headingRenderer struct{}

func (headingRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(gmast.KindHeading, renderHeading)
}

func renderHeading(w util.BufWriter, _ []byte, node gmast.Node, entering bool) (gmast.WalkStatus, error) {
	n := node.(*gmast.Heading)
	tag := "h" + strconv.Itoa(n.Level)
	if entering {
		_, _ = w.WriteString("<" + tag)
		if n.Attributes() != nil {
			html.RenderAttributes(w, node, html.HeadingAttributeFilter)
		}
		_ = w.WriteByte('>')
		return gmast.WalkContinue, nil
	}

	if id, ok := n.AttributeString("id"); ok {
		if slug, ok := id.([]byte); ok {
			_, _ = w.WriteString(`<span class="headerlink"> <a href="#`)
			_, _ = w.Write(util.EscapeHTML(util.URLEscape(slug, true)))
			_, _ = w.WriteString(`" title="permalink">#</a></span>`)
		}
	}
	_, _ = w.WriteString("</" + tag + ">\n")
	return gmast.WalkContinue, nil
}

func headingExtender(st *renderState, anchors bool) goldmark.Extender {
	return extenderFunc(func(m goldmark.Markdown) {
		m.Parser().AddOptions(parser.WithASTTransformers(util.Prioritized(&headingTransformer{st: st}, 100)))
		if anchors {
			m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(headingRenderer{}, 100)))
		}
	})
}
