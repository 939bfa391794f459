package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		raw      string
		kind     docmodel.LinkKind
		target   string
		fragment string
		href     string
	}{
		{"#frag", docmodel.LinkInternalPage, "cur", "frag", "#frag"},
		{"node:b#x", docmodel.LinkInternalPage, "b", "x", "/b#x"},
		{"node:index", docmodel.LinkInternalPage, "index", "", "/"},
		{"b", docmodel.LinkInternalPage, "b", "", "/b"},
		{"/guide/setup.md#install", docmodel.LinkInternalPage, "guide/setup", "install", "/guide/setup#install"},
		{"/", docmodel.LinkInternalPage, "index", "", "/"},
		{"attachment:img.png", docmodel.LinkInternalAttachment, "cur/img.png", "", "/_file/cur/img.png"},
		{"attachment://other/doc.pdf", docmodel.LinkInternalAttachment, "other/doc.pdf", "", "/_file/other/doc.pdf"},
		{"sub/diagram.svg", docmodel.LinkInternalAttachment, "cur/sub/diagram.svg", "", "/_file/cur/sub/diagram.svg"},
		{"https://example.com/a#b", docmodel.LinkExternal, "https://example.com/a#b", "", "https://example.com/a#b"},
		{"mailto:me@example.com", docmodel.LinkExternal, "mailto:me@example.com", "", "mailto:me@example.com"},
		{"node://host/x", docmodel.LinkUnresolved, "", "", "node://host/x"},
		{"%zz", docmodel.LinkUnresolved, "", "", "%zz"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			link, href := Classify(tc.raw, "cur", "")
			require.Equal(t, tc.kind, link.Kind)
			require.Equal(t, tc.target, link.Target)
			require.Equal(t, tc.fragment, link.Fragment)
			require.Equal(t, tc.raw, link.Raw)
			require.Equal(t, tc.href, href)
		})
	}
}

func TestClassifyPrefixesBasePath(t *testing.T) {
	_, href := Classify("node:b", "a", "/sub")
	require.Equal(t, "/sub/b", href)
	_, href = Classify("#x", "a", "/sub")
	require.Equal(t, "#x", href)
}

func TestWikiHref(t *testing.T) {
	require.Equal(t, "wiki:Setup+Guide", WikiHref("Setup Guide"))
	require.Equal(t, "wiki:a%26b", WikiHref("a&b"))
}

func TestParseLineSpec(t *testing.T) {
	got, err := parseLineSpec("2,4-6,8-", 9)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 4, 5, 7, 8}, got)

	got, err = parseLineSpec("-2", 5)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, got)

	for _, bad := range []string{"-", "3-1", "x", "1-2-3", "0", "6", "2-6", "6-", "2-1000000000", "1000000000"} {
		_, err := parseLineSpec(bad, 5)
		require.Error(t, err, bad)
	}
}

func TestParseCodeInfo(t *testing.T) {
	opts, err := parseCodeInfo("python lineno-start=10 emphasize-lines=1,3 foo=bar", 3)
	require.NoError(t, err)
	require.Equal(t, CodeOptions{Lang: "python", LineNumbers: true, LineStart: 10, Emphasize: []int{1, 3}}, opts)

	opts, err = parseCodeInfo("go linenos=off lineno-start=3", 1)
	require.NoError(t, err)
	require.False(t, opts.LineNumbers)

	_, err = parseCodeInfo("go lineno-start=x", 1)
	require.Error(t, err)
}

func TestPlainHighlighter(t *testing.T) {
	out, err := PlainHighlighter{}.Highlight("a < b\n", CodeOptions{})
	require.NoError(t, err)
	require.Equal(t, "<pre class=\"code code-container\"><code>a &lt; b\n</code></pre>\n", out)
}
