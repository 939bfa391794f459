package docmodel

import (
	"slices"
	"strings"
)

// Tags is a normalized tag set that keeps insertion order for display.
type Tags []string

// NormalizeTags trims, lowercases and de-duplicates raw tags. Empty tags are dropped.
func NormalizeTags(raw []string) Tags {
	out := make(Tags, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Contains reports whether tag (normalized) is in the set.
func (t Tags) Contains(tag string) bool {
	return slices.Contains(t, strings.ToLower(strings.TrimSpace(tag)))
}

// Equal compares two tag sets ignoring order.
func (t Tags) Equal(other Tags) bool {
	if len(t) != len(other) {
		return false
	}
	a := slices.Clone(t)
	b := slices.Clone(other)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
