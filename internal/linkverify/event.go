package linkverify

import (
	"time"
)

// BrokenLinkEvent represents a broken link discovered during a build.
// It is published to NATS for downstream processing (e.g. opening issues).
type BrokenLinkEvent struct {
	// Link information
	Raw      string  `json:"raw"`
	Kind     string  `json:"kind"`
	Target   string  `json:"target"`
	Fragment string  `json:"fragment,omitempty"`
	Wiki     bool    `json:"wiki,omitempty"`
	Outcome  Outcome `json:"outcome"`

	// Source page
	SourcePath string `json:"source_path"`
	SourceID   string `json:"source_id"`
	SourceURL  string `json:"source_url,omitempty"`

	// Build context
	BuildID   string    `json:"build_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBrokenLinkEvent describes finding f of build buildID.
func NewBrokenLinkEvent(f Finding, buildID, sourceURL string, now time.Time) *BrokenLinkEvent {
	return &BrokenLinkEvent{
		Raw:        f.Link.Raw,
		Kind:       string(f.Link.Kind),
		Target:     f.Link.Target,
		Fragment:   f.Link.Fragment,
		Wiki:       f.Link.Wiki,
		Outcome:    f.Outcome,
		SourcePath: f.Source,
		SourceID:   f.SourceID,
		SourceURL:  sourceURL,
		BuildID:    buildID,
		Timestamp:  now,
	}
}
