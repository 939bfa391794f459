package build

import (
	"context"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	"git.home.luguber.info/inful/sitebuilder/internal/feed"
	"git.home.luguber.info/inful/sitebuilder/internal/incremental"
	"git.home.luguber.info/inful/sitebuilder/internal/linkverify"
)

// BuildService is the canonical interface for executing site builds.
// The build, freeze, check and serve commands are thin wrappers over it.
type BuildService interface {
	// Run executes a complete build: enumerate → render → validate → feeds.
	// Returns a BuildResult with detailed outcomes and any fatal error encountered.
	Run(ctx context.Context, req BuildRequest) (*BuildResult, error)
}

// BuildRequest contains all inputs required to execute a site build.
type BuildRequest struct {
	// Root is the project directory holding content/, files/ and site.yaml.
	Root string

	// Config is the loaded configuration for this build.
	Config *config.Config

	// Options provides optional build behavior modifiers.
	Options BuildOptions
}

// BuildOptions provides optional configuration for build behavior.
type BuildOptions struct {
	// Rebuild renders every page regardless of the cache. The fresh results
	// are still stored, so the next build is incremental again.
	Rebuild bool

	// NoCache builds against an in-memory cache and leaves the persisted one untouched.
	NoCache bool

	// Workers overrides build.workers from the configuration (0 = use config).
	Workers int

	// Mode labels log records ("build", "freeze", "check", "preview").
	Mode string
}

// BuildResult contains the outcome of a build execution.
type BuildResult struct {
	// Status indicates overall build outcome.
	Status BuildStatus

	// BuildID identifies this build in logs and broken-link events.
	BuildID string

	// State is the terminal state of the build state machine and Trace
	// every state it went through.
	State State
	Trace []State

	// Documents are ordered by source path.
	Documents   []*docmodel.Document
	Attachments []docmodel.Attachment
	Feeds       []*feed.Feed

	// Report is the link validation report. Nil when the build failed before validating.
	Report *linkverify.Report

	// RenderErrors collects the recoverable errors of every document.
	RenderErrors []docmodel.RenderError

	// Cache reports hits, misses, stores and evictions.
	Cache incremental.Stats

	// Rendered and Reused split Documents by whether the pipeline ran for them.
	Rendered int
	Reused   int

	// Duration is the total build execution time.
	Duration time.Duration

	// StartTime is when the build started.
	StartTime time.Time

	// EndTime is when the build completed.
	EndTime time.Time
}

// Document returns the document with the given page id.
func (r *BuildResult) Document(id string) (*docmodel.Document, bool) {
	for _, d := range r.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return nil, false
}

// BuildStatus represents the outcome of a build execution.
type BuildStatus string

const (
	// BuildStatusSuccess indicates the build completed without findings.
	BuildStatusSuccess BuildStatus = "success"

	// BuildStatusWarning indicates the build completed with render errors or broken links.
	BuildStatusWarning BuildStatus = "warning"

	// BuildStatusFailed indicates the build encountered a fatal error.
	BuildStatusFailed BuildStatus = "failed"

	// BuildStatusCancelled indicates the build was cancelled.
	BuildStatusCancelled BuildStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state.
func (s BuildStatus) IsTerminal() bool {
	return s == BuildStatusSuccess || s == BuildStatusWarning ||
		s == BuildStatusFailed || s == BuildStatusCancelled
}

// IsSuccess returns true if the build produced a complete result.
func (s BuildStatus) IsSuccess() bool {
	return s == BuildStatusSuccess || s == BuildStatusWarning
}
