package frontmatter

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
)

// Metadata holds the recognised frontmatter keys of a page.
type Metadata struct {
	Title        string
	Tags         docmodel.Tags
	Published    time.Time
	Updated      time.Time
	Summary      string
	Author       docmodel.Author
	Hidden       bool
	Discoverable bool
	// TagsFeed lists the tag combinations the page offers feeds for.
	TagsFeed []docmodel.Tags
	// Extra carries keys the builder does not interpret.
	Extra map[string]any
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Decode splits content and decodes its frontmatter. On error the returned body
// is the whole input and meta carries defaults, so callers can still render.
func Decode(content []byte) (meta Metadata, body []byte, err error) {
	meta = Metadata{Discoverable: true}

	fm, body, had, err := Split(content)
	if err != nil {
		return meta, content, err
	}
	if !had {
		return meta, body, nil
	}

	fields, err := ParseYAML(fm)
	if err != nil {
		return meta, content, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if err := meta.apply(fields); err != nil {
		return Metadata{Discoverable: true}, content, err
	}
	if meta.Updated.IsZero() {
		meta.Updated = meta.Published
	}
	return meta, body, nil
}

func (m *Metadata) apply(fields map[string]any) error {
	var err error
	for key, value := range fields {
		switch key {
		case "title":
			m.Title, err = asString(key, value)
		case "summary":
			m.Summary, err = asString(key, value)
		case "tags":
			var raw []string
			raw, err = asStrings(key, value)
			m.Tags = docmodel.NormalizeTags(raw)
		case "published":
			m.Published, err = asTime(key, value)
		case "updated":
			m.Updated, err = asTime(key, value)
		case "author":
			m.Author, err = asAuthor(value)
		case "hidden":
			m.Hidden, err = asBool(key, value)
		case "discoverable":
			m.Discoverable, err = asBool(key, value)
		case "tags-feed":
			m.TagsFeed, err = asTagLists(key, value)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[key] = value
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func asString(key string, v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case int, float64, bool:
		return fmt.Sprint(s), nil
	default:
		return "", fmt.Errorf("frontmatter %q: expected a string, got %T", key, v)
	}
}

func asStrings(key string, v any) ([]string, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.Split(list, ","), nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, err := asString(key, item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("frontmatter %q: expected a list of strings, got %T", key, v)
	}
}

func asTagLists(key string, v any) ([]docmodel.Tags, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("frontmatter %q: expected a list of tag lists, got %T", key, v)
	}
	out := make([]docmodel.Tags, 0, len(list))
	for _, item := range list {
		inner, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("frontmatter %q: expected a list of tags, got %T", key, item)
		}
		raw, err := asStrings(key, inner)
		if err != nil {
			return nil, err
		}
		tags := docmodel.NormalizeTags(raw)
		if len(tags) == 0 {
			return nil, fmt.Errorf("frontmatter %q: empty tag list", key)
		}
		out = append(out, tags)
	}
	return out, nil
}

func asTime(key string, v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, strings.TrimSpace(t)); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("frontmatter %q: unrecognised timestamp %q", key, t)
	default:
		return time.Time{}, fmt.Errorf("frontmatter %q: expected a timestamp, got %T", key, v)
	}
}

func asBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("frontmatter %q: expected true or false, got %T", key, v)
	}
	return b, nil
}

func asAuthor(v any) (docmodel.Author, error) {
	switch a := v.(type) {
	case nil:
		return docmodel.Author{}, nil
	case string:
		return docmodel.Author{Name: a}, nil
	case map[string]any:
		name, err := asString("author.name", a["name"])
		if err != nil {
			return docmodel.Author{}, err
		}
		email, err := asString("author.email", a["email"])
		if err != nil {
			return docmodel.Author{}, err
		}
		return docmodel.Author{Name: name, Email: email}, nil
	default:
		return docmodel.Author{}, fmt.Errorf("frontmatter \"author\": expected a name or mapping, got %T", v)
	}
}
