package docmodel

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const emptySlug = "section"

var foldASCII = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// Slugify ASCII-folds and lowercases text, collapsing every run of other
// characters into a single hyphen.
func Slugify(text string) string {
	folded, _, err := transform.String(foldASCII, text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	if b.Len() == 0 {
		return emptySlug
	}
	return b.String()
}

// Slugger hands out unique slugs within one document in first-seen order.
type Slugger struct {
	used map[string]bool
}

// NewSlugger returns an empty Slugger.
func NewSlugger() *Slugger {
	return &Slugger{used: make(map[string]bool)}
}

// Slug returns a slug for text that has not been returned before by s.
func (s *Slugger) Slug(text string) string {
	return s.Reserve(Slugify(text))
}

// Reserve claims base, appending -2, -3, ... until the slug is unused.
func (s *Slugger) Reserve(base string) string {
	if !s.used[base] {
		s.used[base] = true
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !s.used[candidate] {
			s.used[candidate] = true
			return candidate
		}
	}
}
