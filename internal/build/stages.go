package build

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	"git.home.luguber.info/inful/sitebuilder/internal/feed"
	"git.home.luguber.info/inful/sitebuilder/internal/incremental"
	"git.home.luguber.info/inful/sitebuilder/internal/linkverify"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/markdown"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
)

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage State
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage State, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}

func newCanceledStageError(stage State, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// classify turns a stage failure into a StageError, treating context errors
// as cancellation.
func classify(stage State, err error) *StageError {
	var se *StageError
	if stderrors.As(err, &se) {
		return se
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return newCanceledStageError(stage, err)
	}
	return newFatalStageError(stage, err)
}

// stageFunc is one step of the build.
type stageFunc func(ctx context.Context, bs *buildState) error

type stage struct {
	state State
	fn    stageFunc
}

// buildState carries mutable state across stages.
type buildState struct {
	root     string
	cfg      *config.Config
	pipeline *markdown.Pipeline
	cache    *incremental.Cache
	recorder metrics.Recorder
	notifier linkverify.Notifier
	workers  int
	rebuild  bool

	machine *machine
	sources *sources
	result  *BuildResult
	timings map[State]time.Duration
}

var stages = []stage{
	{StateEnumerating, stageEnumerate},
	{StateRendering, stageRender},
	{StateValidating, stageValidate},
	{StateFeedGenerating, stageFeeds},
}

// runStages executes stages in order, recording timing and stopping on the
// first failure. The machine enters each stage before it runs, so a stage
// never starts before its predecessor has processed every item.
func runStages(ctx context.Context, bs *buildState) error {
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return newCanceledStageError(st.state, err)
		}
		if err := bs.machine.to(st.state); err != nil {
			return newFatalStageError(st.state, err)
		}

		sctx := observability.WithStage(ctx, string(st.state))
		observability.DebugContext(sctx, "Stage started")
		t0 := time.Now()
		err := st.fn(sctx, bs)
		dur := time.Since(t0)
		bs.timings[st.state] = dur
		bs.recorder.ObserveStageDuration(string(st.state), dur)

		if err != nil {
			se := classify(st.state, err)
			switch se.Kind {
			case StageErrorCanceled:
				bs.recorder.IncStageResult(string(st.state), metrics.ResultCanceled)
			default:
				bs.recorder.IncStageResult(string(st.state), metrics.ResultFatal)
			}
			return se
		}
		bs.recorder.IncStageResult(string(st.state), metrics.ResultSuccess)
		observability.DebugContext(sctx, "Stage completed", logfields.DurationMS(float64(dur.Microseconds())/1000))
	}
	return nil
}

func stageEnumerate(ctx context.Context, bs *buildState) error {
	src, err := enumerate(ctx, bs.root, bs.cfg)
	if err != nil {
		return err
	}
	bs.sources = src
	bs.result.Attachments = src.Attachments
	observability.InfoContext(ctx, "Sources enumerated",
		slog.Int("pages", len(src.Pages)),
		slog.Int("attachments", len(src.Attachments)))
	return nil
}

func stageRender(ctx context.Context, bs *buildState) error {
	r := &renderer{
		pipeline: bs.pipeline,
		cache:    bs.cache,
		recorder: bs.recorder,
		workers:  bs.workers,
		rebuild:  bs.rebuild,
	}
	out, err := r.run(ctx, bs.sources.Pages)
	if err != nil {
		return err
	}

	docs := out.Documents
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	bs.result.Documents = docs
	bs.result.Rendered = out.Rendered
	bs.result.Reused = out.Reused

	for _, d := range docs {
		bs.result.RenderErrors = append(bs.result.RenderErrors, d.Errors...)
	}
	bs.recorder.SetDocuments(len(docs))
	bs.recorder.IncRenderErrors(len(bs.result.RenderErrors))

	observability.InfoContext(ctx, "Documents rendered",
		slog.Int("rendered", out.Rendered),
		slog.Int("reused", out.Reused),
		slog.Int("render_errors", len(bs.result.RenderErrors)))
	return nil
}

func stageValidate(ctx context.Context, bs *buildState) error {
	report := linkverify.Validate(bs.result.Documents, bs.result.Attachments)
	bs.result.Report = report

	broken := report.Broken()
	bs.recorder.SetBrokenLinks(len(broken))
	for _, f := range broken {
		observability.WarnContext(ctx, "Broken link",
			logfields.Path(f.Source),
			logfields.Target(f.Link.Display()),
			logfields.Outcome(string(f.Outcome)))
	}

	if len(broken) > 0 && bs.notifier != nil {
		if err := bs.notifier.NotifyBroken(ctx, bs.result.BuildID, report); err != nil {
			observability.WarnContext(ctx, "Failed to publish broken link events", logfields.Error(err))
		}
	}
	return nil
}

func stageFeeds(ctx context.Context, bs *buildState) error {
	index, _ := bs.result.Document(docmodel.IndexID)
	site := feed.NewSite(bs.cfg, index)
	specs := feed.Specs(bs.cfg, bs.result.Documents)
	feeds := feed.Generate(bs.result.Documents, specs, site)
	basePath := bs.cfg.BasePath()
	for _, f := range feeds {
		for i := range f.Entries {
			f.Entries[i].Content = bs.result.Report.RewriteWikiHrefs(f.Entries[i].Content, basePath)
		}
	}
	bs.result.Feeds = feeds
	observability.InfoContext(ctx, "Feeds generated", logfields.Count(len(bs.result.Feeds)))
	return nil
}
