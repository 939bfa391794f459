// Package linkverify resolves every internal link of a complete document set
// and reports the outcome of each one.
package linkverify

import (
	"fmt"
	"io"
	"sort"

	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
)

// Outcome is the result of resolving one internal link.
type Outcome string

const (
	OutcomeResolved       Outcome = "resolved"
	OutcomeBrokenTarget   Outcome = "broken-target"
	OutcomeBrokenFragment Outcome = "broken-fragment"
)

// Broken reports whether the outcome fails a freeze.
func (o Outcome) Broken() bool { return o != OutcomeResolved }

// Finding is the outcome of one link of one document.
type Finding struct {
	Source   string        `json:"source"`
	SourceID string        `json:"source_id"`
	Index    int           `json:"index"`
	Link     docmodel.Link `json:"link"`
	Outcome  Outcome       `json:"outcome"`
	// Resolved is the page or attachment id the link points to, when found.
	Resolved string `json:"resolved,omitempty"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s (%s)", f.Source, f.Link.Display(), f.Outcome)
}

// Report is the flat, ordered list of findings of a build: by source
// document path, then by link order within the document.
type Report struct {
	Findings []Finding `json:"findings"`
	// WikiTargets maps every resolved wiki link target to its page id.
	WikiTargets map[string]string `json:"wiki_targets,omitempty"`
}

// Broken returns the findings that are not resolved.
func (r *Report) Broken() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Outcome.Broken() {
			out = append(out, f)
		}
	}
	return out
}

// HasBroken reports whether any link is broken.
func (r *Report) HasBroken() bool {
	for _, f := range r.Findings {
		if f.Outcome.Broken() {
			return true
		}
	}
	return false
}

// Counts returns the number of findings per outcome.
func (r *Report) Counts() map[Outcome]int {
	out := make(map[Outcome]int, 3)
	for _, f := range r.Findings {
		out[f.Outcome]++
	}
	return out
}

// WriteBroken writes one line per broken finding.
func (r *Report) WriteBroken(w io.Writer) error {
	for _, f := range r.Broken() {
		if _, err := fmt.Fprintln(w, f.String()); err != nil {
			return err
		}
	}
	return nil
}

// Validate resolves the internal links of docs against docs and attachments.
// It must only be called once every document of the build exists. External
// links are not part of the report.
func Validate(docs []*docmodel.Document, attachments []docmodel.Attachment) *Report {
	resolver := NewResolver(docs)
	files := make(map[string]bool, len(attachments))
	for _, a := range attachments {
		files[a.ID] = true
	}

	ordered := make([]*docmodel.Document, len(docs))
	copy(ordered, docs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	report := &Report{Findings: []Finding{}, WikiTargets: map[string]string{}}
	for _, d := range ordered {
		for i, link := range d.Links {
			if link.Kind == docmodel.LinkExternal {
				continue
			}
			f := Finding{Source: d.Path, SourceID: d.ID, Index: i, Link: link}
			switch link.Kind {
			case docmodel.LinkInternalAttachment:
				f.Outcome = OutcomeBrokenTarget
				if files[link.Target] {
					f.Outcome = OutcomeResolved
					f.Resolved = link.Target
				}
			case docmodel.LinkInternalPage:
				resolvePage(&f, d, resolver)
				if link.Wiki && f.Outcome != OutcomeBrokenTarget {
					report.WikiTargets[link.Target] = f.Resolved
				}
			default:
				f.Outcome = OutcomeBrokenTarget
			}
			report.Findings = append(report.Findings, f)
		}
	}
	return report
}

func resolvePage(f *Finding, source *docmodel.Document, resolver *Resolver) {
	var target *docmodel.Document
	if f.Link.Target == source.ID {
		target = source
	} else if t, ok := resolver.Resolve(f.Link.Target); ok {
		target = t
	}
	if target == nil {
		f.Outcome = OutcomeBrokenTarget
		return
	}
	f.Resolved = target.ID
	f.Outcome = OutcomeResolved
	if f.Link.Fragment != "" && !target.HasFragment(f.Link.Fragment) {
		f.Outcome = OutcomeBrokenFragment
	}
}
