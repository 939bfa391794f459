package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"git.home.luguber.info/inful/sitebuilder/internal/checksum"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// IncludeLoader reads files referenced by the literal include directive.
// Targets are "<page id>/<path>" relative to the attachments directory.
type IncludeLoader interface {
	// Load returns the file content and its fingerprint. A missing file
	// returns checksum.Absent with an error wrapping fs.ErrNotExist.
	Load(target string) ([]byte, string, error)
	Fingerprint(target string) (string, error)
}

// FileLoader loads include targets from a directory on disk.
type FileLoader struct {
	Root string
}

func (l FileLoader) path(target string) (string, error) {
	clean := path.Clean(target)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("include path %q escapes the files directory", target)
	}
	return filepath.Join(l.Root, filepath.FromSlash(clean)), nil
}

func (l FileLoader) Load(target string) ([]byte, string, error) {
	p, err := l.path(target)
	if err != nil {
		return nil, "", err
	}
	// #nosec G304 -- path is confined to the files directory above
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, checksum.Absent, fmt.Errorf("include file %q not found: %w", target, err)
	}
	if err != nil {
		return nil, "", err
	}
	return data, checksum.Sum(data), nil
}

func (l FileLoader) Fingerprint(target string) (string, error) {
	p, err := l.path(target)
	if err != nil {
		return "", err
	}
	return checksum.File(p)
}

type missingLoader struct{}

func (missingLoader) Load(target string) ([]byte, string, error) {
	return nil, checksum.Absent, fmt.Errorf("include file %q not found: %w", target, fs.ErrNotExist)
}

func (missingLoader) Fingerprint(string) (string, error) { return checksum.Absent, nil }

// KindLiteralInclude is the node kind of the literal include directive.
var KindLiteralInclude = gmast.NewNodeKind("LiteralInclude")

// LiteralInclude is a ".. literalinclude:: path" directive with its options.
type LiteralInclude struct {
	gmast.BaseBlock
	Arg     string
	Options map[string]string
	// HTML is filled when the block is closed.
	HTML string
}

func (n *LiteralInclude) Kind() gmast.NodeKind { return KindLiteralInclude }

func (n *LiteralInclude) Dump(source []byte, level int) {
	gmast.DumpHelper(n, source, level, map[string]string{"Arg": n.Arg}, nil)
}

var (
	includePrefix  = []byte(".. literalinclude::")
	includeOptions = []string{"lines", "region", "language", "linenos", "emphasize-lines", "lineno-start"}
)

type includeParser struct {
	st *renderState
}

func (p *includeParser) Trigger() []byte { return []byte{'.'} }

func (p *includeParser) Open(_ gmast.Node, reader text.Reader, pc parser.Context) (gmast.Node, parser.State) {
	line, segment := reader.PeekLine()
	pos := pc.BlockOffset()
	if pos < 0 || pos >= len(line) {
		return nil, parser.NoChildren
	}
	arg, ok := bytes.CutPrefix(bytes.TrimRight(line[pos:], "\r\n"), includePrefix)
	if !ok {
		return nil, parser.NoChildren
	}
	reader.Advance(segment.Len() - 1)
	return &LiteralInclude{Arg: strings.TrimSpace(string(arg)), Options: map[string]string{}}, parser.NoChildren
}

func (p *includeParser) Continue(node gmast.Node, reader text.Reader, _ parser.Context) parser.State {
	line, segment := reader.PeekLine()
	if util.IsBlank(line) {
		return parser.Close
	}
	opt := strings.TrimSpace(string(line))
	if !strings.HasPrefix(opt, ":") {
		return parser.Close
	}
	n := node.(*LiteralInclude)
	name, value, ok := strings.Cut(opt[1:], ":")
	if !ok {
		name, value = opt[1:], ""
	}
	n.Options[strings.TrimSpace(name)] = strings.TrimSpace(value)
	reader.Advance(segment.Len() - 1)
	return parser.Continue | parser.NoChildren
}

func (p *includeParser) Close(node gmast.Node, _ text.Reader, _ parser.Context) {
	n := node.(*LiteralInclude)
	out, err := p.st.literalInclude(n)
	if err != nil {
		p.st.fail("literal_include", err.Error())
		n.HTML = `<div class="error">literalinclude: ` + html.EscapeString(err.Error()) + "</div>\n"
		return
	}
	n.HTML = out
}

func (p *includeParser) CanInterruptParagraph() bool { return true }
func (p *includeParser) CanAcceptIndentedLine() bool { return false }

func (st *renderState) literalInclude(n *LiteralInclude) (string, error) {
	var unknown []string
	for k := range n.Options {
		if !slices.Contains(includeOptions, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return "", fmt.Errorf("unknown option(s) %s", strings.Join(unknown, ", "))
	}
	if n.Arg == "" {
		return "", errors.New("missing file argument")
	}
	target, err := includeTarget(n.Arg, st.page.ID)
	if err != nil {
		return "", err
	}

	data, fp, err := st.p.loader.Load(target)
	if fp != "" {
		st.touch(target, fp)
	}
	if err != nil {
		return "", err
	}

	lines := splitLines(string(data))
	raw := make(map[string]string, len(n.Options))
	for k, v := range n.Options {
		raw[k] = v
	}

	spec, region := n.Options["lines"], n.Options["region"]
	first := 0
	switch {
	case spec != "" && region != "":
		return "", errors.New("options lines and region are mutually exclusive")
	case spec != "":
		if lines, first, err = selectLines(lines, spec); err != nil {
			return "", err
		}
	case region != "":
		if lines, first, err = selectRegion(lines, region); err != nil {
			return "", err
		}
	}
	if (spec != "" || region != "") && raw["lineno-start"] == "" {
		raw["lineno-start"] = strconv.Itoa(first + 1)
	}

	opts := CodeOptions{Lang: n.Options["language"]}
	if opts.Lang == "" {
		opts.Lang = languageFor(target)
	}
	if err := applyCodeOptions(&opts, raw, len(lines)); err != nil {
		return "", err
	}

	code := strings.Join(lines, "")
	if !st.p.cfg.Enabled(config.ExtHighlight) {
		out, _ := PlainHighlighter{}.Highlight(code, CodeOptions{Lang: opts.Lang})
		return out, nil
	}
	return st.highlight(code, opts), nil
}

// includeTarget resolves a directive argument to "<page id>/<path>".
func includeTarget(arg, pageID string) (string, error) {
	u, err := url.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("invalid include path %q", arg)
	}
	var target string
	switch {
	case u.Scheme == "attachment" && u.Host != "":
		target = u.Host + u.Path
	case u.Scheme == "attachment":
		target = pageID + "/" + u.Opaque
	case u.Scheme != "" || u.Host != "":
		return "", fmt.Errorf("include path must not have a scheme, got %q", arg)
	case path.IsAbs(u.Path):
		return "", fmt.Errorf("include path must be relative, got %q", arg)
	default:
		target = pageID + "/" + u.Path
	}
	target = path.Clean(target)
	if target == ".." || strings.HasPrefix(target, "../") {
		return "", fmt.Errorf("include path %q escapes the files directory", arg)
	}
	return target, nil
}

func selectLines(lines []string, spec string) ([]string, int, error) {
	idx, err := parseLineSpec(spec, len(lines))
	if err != nil {
		return nil, 0, err
	}
	for i := 1; i < len(idx); i++ {
		if idx[i] != idx[i-1]+1 {
			return nil, 0, fmt.Errorf("lines must be contiguous: %q", spec)
		}
	}
	if len(idx) == 0 || idx[len(idx)-1] >= len(lines) {
		return nil, 0, fmt.Errorf("lines %q out of range (file has %d lines)", spec, len(lines))
	}
	return lines[idx[0] : idx[len(idx)-1]+1], idx[0], nil
}

func selectRegion(lines []string, name string) ([]string, int, error) {
	start, end := -1, -1
	for i, l := range lines {
		if start < 0 && strings.Contains(l, "[START "+name+"]") {
			start = i
			continue
		}
		if start >= 0 && strings.Contains(l, "[END "+name+"]") {
			end = i
			break
		}
	}
	if start < 0 || end < 0 {
		return nil, 0, fmt.Errorf("region %q not found", name)
	}
	return lines[start+1 : end], start + 1, nil
}

var languages = map[string]string{
	".py":   "python",
	".go":   "go",
	".js":   "javascript",
	".ts":   "typescript",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".java": "java",
	".rb":   "ruby",
	".sh":   "bash",
	".yaml": "yaml",
	".yml":  "yaml",
	".json": "json",
	".toml": "toml",
	".html": "html",
	".css":  "css",
	".sql":  "sql",
	".md":   "markdown",
	".txt":  "text",
}

func languageFor(target string) string {
	return languages[strings.ToLower(path.Ext(target))]
}

type includeRenderer struct{}

func (includeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindLiteralInclude, func(w util.BufWriter, _ []byte, node gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if entering {
			_, _ = w.WriteString(node.(*LiteralInclude).HTML)
		}
		return gmast.WalkSkipChildren, nil
	})
}

func literalIncludeExtender(st *renderState) goldmark.Extender {
	return extenderFunc(func(m goldmark.Markdown) {
		m.Parser().AddOptions(parser.WithBlockParsers(util.Prioritized(&includeParser{st: st}, 150)))
		m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(includeRenderer{}, 100)))
	})
}
