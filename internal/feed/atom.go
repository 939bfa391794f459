package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
)

type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	ID      string      `xml:"id"`
	Title   string      `xml:"title"`
	Updated string      `xml:"updated"`
	Links   []atomLink  `xml:"link"`
	Author  *atomPerson `xml:"author,omitempty"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type atomPerson struct {
	Name  string `xml:"name"`
	Email string `xml:"email,omitempty"`
}

type atomText struct {
	Type string `xml:"type,attr,omitempty"`
	Body string `xml:",chardata"`
}

type atomEntry struct {
	Base      string      `xml:"http://www.w3.org/XML/1998/namespace base,attr,omitempty"`
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Updated   string      `xml:"updated"`
	Published string      `xml:"published"`
	Links     []atomLink  `xml:"link"`
	Author    *atomPerson `xml:"author,omitempty"`
	Summary   *atomText   `xml:"summary,omitempty"`
	Content   atomText    `xml:"content"`
}

func person(a docmodel.Author) *atomPerson {
	if a.IsZero() {
		return nil
	}
	return &atomPerson{Name: a.Name, Email: a.Email}
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// XML renders the feed as an Atom document.
func (f *Feed) XML() ([]byte, error) {
	doc := atomFeed{
		ID:      f.ID,
		Title:   f.Title,
		Updated: stamp(f.Updated),
		Links: []atomLink{
			{Href: f.Link, Rel: "alternate"},
			{Href: f.Self, Rel: "self"},
		},
		Author:  person(f.Author),
		Entries: make([]atomEntry, 0, len(f.Entries)),
	}
	for _, e := range f.Entries {
		ae := atomEntry{
			Base:      e.Link,
			ID:        e.ID,
			Title:     e.Title,
			Updated:   stamp(e.Updated),
			Published: stamp(e.Published),
			Links:     []atomLink{{Href: e.Link, Rel: "alternate"}},
			Author:    person(e.Author),
			Content:   atomText{Type: "html", Body: e.Content},
		}
		if e.Summary != "" {
			ae.Summary = &atomText{Body: e.Summary}
		}
		doc.Entries = append(doc.Entries, ae)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode feed %s: %w", f.Spec.Route(), err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
