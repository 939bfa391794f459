// Package docmodel defines the typed representation of a site build: source
// entries, rendered documents, attachments and the derivation rules for
// heading slugs and tags.
//
// A Document is produced once per stale input by the markdown pipeline and
// replaced wholesale on re-render. Nothing in this package performs I/O.
package docmodel

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// IndexID is the identity of the site root page.
const IndexID = "index"

// SourceKind distinguishes pages from attachments.
type SourceKind string

const (
	KindPage       SourceKind = "page"
	KindAttachment SourceKind = "attachment"
)

// SourceEntry is one input file discovered during enumeration.
type SourceEntry struct {
	// Path is project-relative with forward slashes (e.g. "content/a.md").
	Path string
	// AbsPath is the location on disk.
	AbsPath string
	// ID is the page identity for pages and "<page id>/<file>" for attachments.
	ID          string
	Kind        SourceKind
	Data        []byte
	Fingerprint string
	ModTime     time.Time
	Size        int64
}

// Author identifies the author of a page or feed.
type Author struct {
	Name  string `json:"name,omitempty" yaml:"name"`
	Email string `json:"email,omitempty" yaml:"email"`
}

// IsZero reports whether no author information is present.
func (a Author) IsZero() bool { return a.Name == "" && a.Email == "" }

// Heading is one heading of a rendered document.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	Slug  string `json:"slug"`
}

// RenderError is a recoverable problem attached to the document that produced it.
type RenderError struct {
	Path    string `json:"path"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func (e RenderError) String() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Stage, e.Message)
}

// Document is the rendered unit for a page.
type Document struct {
	Path         string         `json:"path"`
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Headings     []Heading      `json:"headings,omitempty"`
	Tags         Tags           `json:"tags,omitempty"`
	Published    time.Time      `json:"published,omitzero"`
	Updated      time.Time      `json:"updated,omitzero"`
	Summary      string         `json:"summary,omitempty"`
	Author       Author         `json:"author,omitzero"`
	Hidden       bool           `json:"hidden,omitempty"`
	Discoverable bool           `json:"discoverable"`
	TagsFeed     []Tags         `json:"tags_feed,omitempty"`
	Body         string         `json:"body"`
	Links        []Link         `json:"links,omitempty"`
	Anchors      []string       `json:"anchors,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	Errors       []RenderError  `json:"errors,omitempty"`
}

// HasFragment reports whether frag names a heading slug or any other anchor of d.
func (d *Document) HasFragment(frag string) bool {
	for _, h := range d.Headings {
		if h.Slug == frag {
			return true
		}
	}
	for _, a := range d.Anchors {
		if a == frag {
			return true
		}
	}
	return false
}

// Timestamp is the update time used for ordering, falling back to Published.
func (d *Document) Timestamp() time.Time {
	if !d.Updated.IsZero() {
		return d.Updated
	}
	return d.Published
}

// Attachment is a non-rendered file referenced by documents.
type Attachment struct {
	// ID is "<page id>/<relative path>".
	ID      string
	AbsPath string
	Hash    string
	MIME    string
	Size    int64
}

// PageID derives a page identity from a content-relative path ("guide/setup.md" -> "guide/setup").
func PageID(rel string) string {
	rel = path.Clean(strings.TrimPrefix(filepathToSlash(rel), "/"))
	return strings.TrimSuffix(rel, ".md")
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// PageRoute returns the site-relative route of a page id.
func PageRoute(id string) string {
	if id == IndexID {
		return "/"
	}
	return "/" + id
}

// AttachmentRoute returns the site-relative route of an attachment id.
func AttachmentRoute(id string) string {
	return "/_file/" + id
}
