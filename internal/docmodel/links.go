package docmodel

// LinkKind is the resolved kind of an outgoing link.
type LinkKind string

const (
	LinkInternalPage       LinkKind = "internal-page"
	LinkInternalAttachment LinkKind = "internal-attachment"
	LinkExternal           LinkKind = "external"
	LinkUnresolved         LinkKind = "unresolved"
)

// Link is an outgoing reference of a document. Targets stay plain strings until
// the validator resolves them against the full document set.
type Link struct {
	// Raw is the link destination as written in the source.
	Raw  string   `json:"raw"`
	Kind LinkKind `json:"kind"`
	// Target is a page id or title for internal pages, "<page id>/<path>" for
	// attachments, or the URL for external links. Empty with Kind page means
	// the current document.
	Target   string `json:"target,omitempty"`
	Fragment string `json:"fragment,omitempty"`
	// Wiki marks links written with [[...]] syntax, whose target may be a title.
	Wiki bool `json:"wiki,omitempty"`
}

// IsInternal reports whether the link points inside the site.
func (l Link) IsInternal() bool {
	return l.Kind == LinkInternalPage || l.Kind == LinkInternalAttachment
}

// Display renders the link the way it appears in reports.
func (l Link) Display() string {
	if l.Wiki {
		s := "[[" + l.Target
		if l.Fragment != "" {
			s += "#" + l.Fragment
		}
		return s + "]]"
	}
	return l.Raw
}
