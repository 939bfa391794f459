// Package markdown renders page sources to HTML through a fixed, ordered set
// of goldmark-based stages and extracts what the rest of the build needs:
// headings, outgoing links, anchors and the files a render touched.
//
// A goldmark engine is assembled for every render and bound to that render's
// state, so a Pipeline is safe for concurrent use.
package markdown

import (
	"bytes"
	"context"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/sitebuilder/internal/checksum"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	"git.home.luguber.info/inful/sitebuilder/internal/frontmatter"
)

// RenderVersion is folded into every cache key. Bump it whenever a change to
// this package alters rendered output, so every cached document is rebuilt.
const RenderVersion = "4"

// Page identifies the document being rendered.
type Page struct {
	ID   string
	Path string
}

// Include is a file read during a render together with its fingerprint.
type Include struct {
	Target      string `json:"target"`
	Fingerprint string `json:"fingerprint"`
}

// Rendered is the output of one render.
type Rendered struct {
	Document *docmodel.Document
	Includes []Include
}

// Touched returns the fingerprints of every file the render read, keyed by target.
func (r *Rendered) Touched() map[string]string {
	out := make(map[string]string, len(r.Includes))
	for _, inc := range r.Includes {
		out[inc.Target] = inc.Fingerprint
	}
	return out
}

// Pipeline renders Markdown through an ordered list of stages.
type Pipeline struct {
	cfg         config.MarkdownConfig
	basePath    string
	stages      []Stage
	highlighter Highlighter
	loader      IncludeLoader
	fingerprint string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHighlighter replaces the default PlainHighlighter.
func WithHighlighter(h Highlighter) Option {
	return func(p *Pipeline) { p.highlighter = h }
}

// WithIncludeLoader sets the loader used by the literal include directive.
func WithIncludeLoader(l IncludeLoader) Option {
	return func(p *Pipeline) { p.loader = l }
}

// New creates a pipeline for cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:         cfg.Markdown,
		basePath:    cfg.BasePath(),
		highlighter: PlainHighlighter{},
		loader:      missingLoader{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.stages = buildStages(cfg.Markdown)
	p.fingerprint = checksum.Combine(cfg.RenderFingerprint(), RenderVersion, p.highlighter.Name())
	return p
}

// Stages returns the enabled stages in execution order.
func (p *Pipeline) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Fingerprint identifies the rendering configuration: settings, stage code
// version and highlighter. Any change invalidates every cached document.
func (p *Pipeline) Fingerprint() string {
	return p.fingerprint
}

// Loader returns the include loader, used to re-fingerprint touched files.
func (p *Pipeline) Loader() IncludeLoader {
	return p.loader
}

// Render renders src as page. Problems with the document itself are recorded
// as render errors on the returned document; the error return is reserved for
// cancellation.
func (p *Pipeline) Render(ctx context.Context, page Page, src []byte) (*Rendered, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := newRenderState(p, page)
	meta, body, err := frontmatter.Decode(src)
	if err != nil {
		st.fail("frontmatter", err.Error())
	}

	extenders := make([]goldmark.Extender, 0, len(p.stages))
	for _, s := range p.stages {
		if ext := s.extender(st); ext != nil {
			extenders = append(extenders, ext)
		}
	}
	md := goldmark.New(
		goldmark.WithExtensions(extenders...),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	root := md.Parser().Parse(text.NewReader(body))
	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, body, root); err != nil {
		return nil, fmt.Errorf("render %s: %w", page.Path, err)
	}

	out := buf.Bytes()
	for _, s := range p.stages {
		out = s.post(st, out)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Rendered{
		Document: st.document(meta, string(out)),
		Includes: st.includes,
	}, nil
}
