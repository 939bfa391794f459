package linkverify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
)

func page(id, title string, slugs []string, links ...docmodel.Link) *docmodel.Document {
	d := &docmodel.Document{ID: id, Path: "content/" + id + ".md", Title: title, Links: links}
	for _, s := range slugs {
		d.Headings = append(d.Headings, docmodel.Heading{Level: 2, Text: s, Slug: s})
	}
	return d
}

func wiki(target, frag string) docmodel.Link {
	raw := target
	if frag != "" {
		raw += "#" + frag
	}
	return docmodel.Link{Raw: raw, Kind: docmodel.LinkInternalPage, Target: target, Fragment: frag, Wiki: true}
}

func TestValidate_FragmentScenario(t *testing.T) {
	a := page("a", "A", []string{"setup"}, wiki("B", ""), wiki("B", "setup"), wiki("B", "setup-guide"))
	b := page("b", "B page", []string{"setup-guide"})

	report := Validate([]*docmodel.Document{b, a}, nil)

	require.Len(t, report.Findings, 3)
	require.Equal(t, OutcomeResolved, report.Findings[0].Outcome)
	require.Equal(t, OutcomeBrokenFragment, report.Findings[1].Outcome)
	require.Equal(t, OutcomeResolved, report.Findings[2].Outcome)
	require.Equal(t, "b", report.Findings[2].Resolved)
	require.Equal(t, map[string]string{"B": "b"}, report.WikiTargets)
	require.True(t, report.HasBroken())
	require.Equal(t, map[Outcome]int{OutcomeResolved: 2, OutcomeBrokenFragment: 1}, report.Counts())
}

func TestValidate_OrderAndTotality(t *testing.T) {
	ext := docmodel.Link{Raw: "https://example.com", Kind: docmodel.LinkExternal, Target: "https://example.com"}
	z := page("z", "Z", nil, wiki("a", ""), ext, wiki("missing", ""))
	a := page("a", "A", []string{"x"},
		docmodel.Link{Raw: "#x", Kind: docmodel.LinkInternalPage, Target: "a", Fragment: "x"},
		docmodel.Link{Raw: "#nope", Kind: docmodel.LinkInternalPage, Target: "a", Fragment: "nope"},
		docmodel.Link{Raw: "img.png", Kind: docmodel.LinkInternalAttachment, Target: "a/img.png"},
		docmodel.Link{Raw: "gone.pdf", Kind: docmodel.LinkInternalAttachment, Target: "a/gone.pdf"},
		docmodel.Link{Raw: "node://x/y", Kind: docmodel.LinkUnresolved},
	)

	report := Validate([]*docmodel.Document{z, a}, []docmodel.Attachment{{ID: "a/img.png"}})

	var got []string
	for _, f := range report.Findings {
		got = append(got, f.Source+" "+f.Link.Raw+" "+string(f.Outcome))
	}
	require.Equal(t, []string{
		"content/a.md #x resolved",
		"content/a.md #nope broken-fragment",
		"content/a.md img.png resolved",
		"content/a.md gone.pdf broken-target",
		"content/a.md node://x/y broken-target",
		"content/z.md a resolved",
		"content/z.md missing broken-target",
	}, got)
	require.Equal(t, 2, report.Findings[6].Index)
}

func TestValidate_Idempotent(t *testing.T) {
	docs := []*docmodel.Document{
		page("a", "A", nil, wiki("b", "")),
		page("b", "B", nil, wiki("a", "")),
	}
	require.Equal(t, Validate(docs, nil), Validate(docs, nil))
}

func TestResolver(t *testing.T) {
	r := NewResolver([]*docmodel.Document{
		page("guide/setup-guide", "Installing", nil),
		page("notes", "Shared", nil),
		page("alpha", "Shared", nil),
		page("Readme", "Read me", nil),
	})

	cases := map[string]string{
		"guide/setup-guide": "guide/setup-guide",
		"GUIDE/Setup-Guide": "guide/setup-guide",
		"installing":        "guide/setup-guide",
		"Guide/Setup Guide": "guide/setup-guide",
		"shared":            "alpha",
		"readme":            "Readme",
		"Read Me":           "Readme",
	}
	for target, want := range cases {
		d, ok := r.Resolve(target)
		require.True(t, ok, target)
		require.Equal(t, want, d.ID, target)
	}

	_, ok := r.Resolve("")
	require.False(t, ok)
	_, ok = r.Resolve("nothing")
	require.False(t, ok)
}

func TestWriteBroken(t *testing.T) {
	report := Validate([]*docmodel.Document{page("a", "A", nil, wiki("x", "y"), wiki("a", ""))}, nil)
	var buf bytes.Buffer
	require.NoError(t, report.WriteBroken(&buf))
	require.Equal(t, "content/a.md: [[x#y]] (broken-target)\n", buf.String())
}

func TestReport_RewriteWikiHrefs(t *testing.T) {
	a := page("a", "A", nil, wiki("Setup Guide", "install"), wiki("Nowhere", ""))
	b := page("guide/setup", "Setup Guide", []string{"install"})
	report := Validate([]*docmodel.Document{a, b}, nil)

	body := `<a href="wiki:Setup+Guide#install">x</a> <a href="wiki:Nowhere">y</a> <a href="/a">z</a>`
	got := report.RewriteWikiHrefs(body, "/blog")
	require.Equal(t, `<a href="/blog/guide/setup#install">x</a> <a href="/blog/Nowhere">y</a> <a href="/a">z</a>`, got)
}
