package markdown

import (
	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// Capability tells where in the render a stage hooks in.
type Capability string

const (
	CapInlineSpan  Capability = "inline-span"
	CapBlock       Capability = "block"
	CapPostProcess Capability = "post-process"
)

// Stage is one step of the pipeline. The set of stages is closed: they are
// created by this package only, in a fixed order.
type Stage interface {
	Name() string
	Capability() Capability
	extender(st *renderState) goldmark.Extender
	post(st *renderState, body []byte) []byte
}

type stage struct {
	name       string
	capability Capability
	extend     func(st *renderState) goldmark.Extender
	postFn     func(st *renderState, body []byte) []byte
}

func (s *stage) Name() string           { return s.name }
func (s *stage) Capability() Capability { return s.capability }

func (s *stage) extender(st *renderState) goldmark.Extender {
	if s.extend == nil {
		return nil
	}
	return s.extend(st)
}

func (s *stage) post(st *renderState, body []byte) []byte {
	if s.postFn == nil {
		return body
	}
	return s.postFn(st, body)
}

// extenderFunc adapts a function to goldmark.Extender.
type extenderFunc func(m goldmark.Markdown)

func (f extenderFunc) Extend(m goldmark.Markdown) { f(m) }

func fixed(exts ...goldmark.Extender) func(*renderState) goldmark.Extender {
	return func(*renderState) goldmark.Extender {
		return extenderFunc(func(m goldmark.Markdown) {
			for _, e := range exts {
				e.Extend(m)
			}
		})
	}
}

func buildStages(cfg config.MarkdownConfig) []Stage {
	var stages []Stage

	var gfm []goldmark.Extender
	if cfg.Enabled(config.ExtTables) {
		gfm = append(gfm, extension.Table, extenderFunc(func(m goldmark.Markdown) {
			m.Parser().AddOptions(parser.WithASTTransformers(util.Prioritized(tableClass{}, 900)))
		}))
	}
	if cfg.Enabled(config.ExtStrikethrough) {
		gfm = append(gfm, extension.Strikethrough)
	}
	if cfg.Enabled(config.ExtTaskList) {
		gfm = append(gfm, extension.TaskList)
	}
	if len(gfm) > 0 {
		stages = append(stages, &stage{name: "gfm", capability: CapBlock, extend: fixed(gfm...)})
	}

	if cfg.Enabled(config.ExtDefinitionList) {
		stages = append(stages, &stage{name: "definition_list", capability: CapBlock, extend: fixed(extension.DefinitionList)})
	}
	if cfg.Enabled(config.ExtFootnotes) {
		stages = append(stages, &stage{name: "footnotes", capability: CapBlock, extend: fixed(extension.Footnote)})
	}
	if cfg.Enabled(config.ExtWikiLinks) {
		stages = append(stages, &stage{name: "wikilinks", capability: CapInlineSpan, extend: wikiLinkExtender})
	}
	if cfg.Enabled(config.ExtLiteralInclude) {
		stages = append(stages, &stage{name: "literal_include", capability: CapBlock, extend: literalIncludeExtender})
	}
	if cfg.Enabled(config.ExtHighlight) {
		stages = append(stages, &stage{name: "highlight", capability: CapBlock, extend: highlightExtender})
	}

	anchors := cfg.Enabled(config.ExtHeadingAnchors)
	stages = append(stages,
		&stage{name: "headings", capability: CapBlock, extend: func(st *renderState) goldmark.Extender {
			return headingExtender(st, anchors)
		}},
		&stage{name: "links", capability: CapPostProcess, extend: linksExtender},
		&stage{name: "anchors", capability: CapPostProcess, postFn: harvestAnchors},
	)
	return stages
}

// tableClass adds class="table" to every table.
type tableClass struct{}

func (tableClass) Transform(doc *gmast.Document, _ text.Reader, _ parser.Context) {
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if entering && n.Kind() == extast.KindTable {
			n.SetAttributeString("class", []byte("table"))
		}
		return gmast.WalkContinue, nil
	})
}
