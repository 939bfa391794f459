package markdown

import (
	"bytes"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// CodeOptions are the presentation options of one code fragment.
type CodeOptions struct {
	Lang        string
	LineNumbers bool
	// LineStart is the number of the first line when LineNumbers is set.
	LineStart int
	// Emphasize holds 1-based line numbers relative to the fragment.
	Emphasize []int
}

// Highlighter turns code into HTML. Implementations must be pure functions of
// their input; Name identifies the implementation and its version in cache keys.
type Highlighter interface {
	Name() string
	Highlight(code string, opts CodeOptions) (string, error)
}

// PlainHighlighter escapes code without tokenizing it.
type PlainHighlighter struct{}

func (PlainHighlighter) Name() string { return "plain/1" }

func (PlainHighlighter) Highlight(code string, opts CodeOptions) (string, error) {
	var b strings.Builder
	b.WriteString(`<pre class="code code-container"`)
	if opts.Lang != "" {
		b.WriteString(` data-lang="`)
		b.WriteString(html.EscapeString(opts.Lang))
		b.WriteString(`"`)
	}
	b.WriteString("><code>")

	emphasize := make(map[int]bool, len(opts.Emphasize))
	for _, n := range opts.Emphasize {
		emphasize[n] = true
	}
	start := opts.LineStart
	if start <= 0 {
		start = 1
	}
	for i, line := range splitLines(code) {
		if opts.LineNumbers {
			fmt.Fprintf(&b, `<span class="lineno">%d</span>`, start+i)
		}
		if emphasize[i+1] {
			b.WriteString(`<span class="hll">`)
			b.WriteString(html.EscapeString(line))
			b.WriteString(`</span>`)
		} else {
			b.WriteString(html.EscapeString(line))
		}
	}
	b.WriteString("</code></pre>\n")
	return b.String(), nil
}

// splitLines splits code keeping line terminators.
func splitLines(code string) []string {
	if code == "" {
		return nil
	}
	lines := strings.SplitAfter(code, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// parseCodeInfo parses a fence info string: "<lang> linenos emphasize-lines=2,4-6 lineno-start=10".
// Unknown options are ignored.
func parseCodeInfo(info string, lineCount int) (CodeOptions, error) {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return CodeOptions{}, nil
	}
	opts := CodeOptions{Lang: fields[0]}
	raw := make(map[string]string, len(fields)-1)
	for _, f := range fields[1:] {
		k, v, _ := strings.Cut(f, "=")
		raw[k] = v
	}
	return opts, applyCodeOptions(&opts, raw, lineCount)
}

func applyCodeOptions(opts *CodeOptions, raw map[string]string, lineCount int) error {
	if v, ok := raw["linenos"]; ok {
		switch strings.ToLower(v) {
		case "n", "no", "false", "off":
			opts.LineNumbers = false
		default:
			opts.LineNumbers = true
		}
	}
	if v, ok := raw["emphasize-lines"]; ok {
		idx, err := parseLineSpec(v, lineCount)
		if err != nil {
			return err
		}
		opts.Emphasize = opts.Emphasize[:0]
		for _, i := range idx {
			opts.Emphasize = append(opts.Emphasize, i+1)
		}
	}
	if v, ok := raw["lineno-start"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid lineno-start %q", v)
		}
		opts.LineStart = n
		if _, explicit := raw["linenos"]; !explicit {
			opts.LineNumbers = true
		}
	}
	return nil
}

// parseLineSpec parses "2,4-6,8-" into 0-based line indexes. Open ranges are
// bounded by total; a line past total is invalid.
func parseLineSpec(spec string, total int) ([]int, error) {
	var out []int
	invalid := fmt.Errorf("invalid line number spec: %q", spec)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			n, err := strconv.Atoi(part)
			if err != nil || n < 1 || n > total {
				return nil, invalid
			}
			out = append(out, n-1)
			continue
		}
		if (lo == "" && hi == "") || strings.Contains(hi, "-") {
			return nil, invalid
		}
		start, end := 1, max(1, total)
		var err error
		if lo != "" {
			if start, err = strconv.Atoi(lo); err != nil || start < 1 {
				return nil, invalid
			}
			end = max(start, total)
		}
		if hi != "" {
			if end, err = strconv.Atoi(hi); err != nil {
				return nil, invalid
			}
		}
		if start > end || end > total {
			return nil, invalid
		}
		for i := start - 1; i < end; i++ {
			out = append(out, i)
		}
	}
	return out, nil
}

type codeRenderer struct {
	st *renderState
}

func (r *codeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(gmast.KindFencedCodeBlock, r.renderFencedCode)
}

func (r *codeRenderer) renderFencedCode(w util.BufWriter, source []byte, node gmast.Node, entering bool) (gmast.WalkStatus, error) {
	if !entering {
		return gmast.WalkSkipChildren, nil
	}
	n := node.(*gmast.FencedCodeBlock)

	var code bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}
	var info string
	if n.Info != nil {
		info = string(n.Info.Segment.Value(source))
	}

	opts, err := parseCodeInfo(info, lines.Len())
	if err != nil {
		r.st.fail("highlight", err.Error())
		opts = CodeOptions{Lang: opts.Lang}
	}
	_, _ = w.WriteString(r.st.highlight(code.String(), opts))
	return gmast.WalkSkipChildren, nil
}

// highlight runs the configured highlighter, falling back to plain output.
func (st *renderState) highlight(code string, opts CodeOptions) string {
	out, err := st.p.highlighter.Highlight(code, opts)
	if err != nil {
		st.fail("highlight", err.Error())
		out, _ = PlainHighlighter{}.Highlight(code, CodeOptions{})
	}
	return out
}

func highlightExtender(st *renderState) goldmark.Extender {
	return extenderFunc(func(m goldmark.Markdown) {
		m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(&codeRenderer{st: st}, 100)))
	})
}
