package markdown

import (
	"bytes"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// harvestAnchors records every id attribute and named anchor of the rendered body.
func harvestAnchors(st *renderState, body []byte) []byte {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(bytes.NewReader(body), ctx)
	if err != nil {
		st.fail("anchors", err.Error())
		return body
	}

	seen := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Namespace != "" || a.Val == "" {
					continue
				}
				if a.Key == "id" || (a.Key == "name" && n.DataAtom == atom.A) {
					if !seen[a.Val] {
						seen[a.Val] = true
						st.anchors = append(st.anchors, a.Val)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return body
}
