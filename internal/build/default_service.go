package build

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/incremental"
	"git.home.luguber.info/inful/sitebuilder/internal/linkverify"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/markdown"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
	"git.home.luguber.info/inful/sitebuilder/internal/storage"
)

// StoreFactory opens the persistent cache store for a build.
type StoreFactory func(root string, cfg *config.Config) (storage.Store, error)

// DefaultStoreFactory opens the configured backend under root, or an
// in-memory store when caching is disabled.
func DefaultStoreFactory(root string, cfg *config.Config) (storage.Store, error) {
	if !cfg.Cache.Enabled {
		return storage.NewMemoryStore(), nil
	}
	return storage.Open(cfg.Cache.Backend, filepath.Join(root, filepath.FromSlash(cfg.Cache.Dir)))
}

// DefaultBuildService is the standard implementation of BuildService.
// It orchestrates the full pipeline: enumerate → render → validate → feeds.
type DefaultBuildService struct {
	storeFactory StoreFactory
	highlighter  markdown.Highlighter
	notifier     linkverify.Notifier
	recorder     metrics.Recorder
	logger       *slog.Logger
	onTransition func(State)
}

// NewBuildService creates a new DefaultBuildService with default dependencies.
func NewBuildService() *DefaultBuildService {
	return &DefaultBuildService{
		storeFactory: DefaultStoreFactory,
		highlighter:  markdown.PlainHighlighter{},
		recorder:     metrics.NoopRecorder{},
		logger:       slog.Default(),
	}
}

// WithStoreFactory allows injecting a custom cache store (for testing).
func (s *DefaultBuildService) WithStoreFactory(factory StoreFactory) *DefaultBuildService {
	s.storeFactory = factory
	return s
}

// WithHighlighter sets the syntax highlighter used for fenced code and includes.
func (s *DefaultBuildService) WithHighlighter(h markdown.Highlighter) *DefaultBuildService {
	s.highlighter = h
	return s
}

// WithNotifier publishes broken links after validation. Publishing failures
// are logged and never fail the build.
func (s *DefaultBuildService) WithNotifier(n linkverify.Notifier) *DefaultBuildService {
	s.notifier = n
	return s
}

// WithRecorder sets the metrics recorder.
func (s *DefaultBuildService) WithRecorder(r metrics.Recorder) *DefaultBuildService {
	if r != nil {
		s.recorder = r
	}
	return s
}

// WithLogger sets the logger handed to the cache layer.
func (s *DefaultBuildService) WithLogger(logger *slog.Logger) *DefaultBuildService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithTransitionHook registers a callback invoked on every state change.
func (s *DefaultBuildService) WithTransitionHook(fn func(State)) *DefaultBuildService {
	s.onTransition = fn
	return s
}

// Run executes the complete build pipeline.
func (s *DefaultBuildService) Run(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	startTime := time.Now()
	result := &BuildResult{
		BuildID:   uuid.NewString(),
		StartTime: startTime,
	}

	ctx = observability.WithBuildID(ctx, result.BuildID)
	if req.Options.Mode != "" {
		ctx = observability.WithMode(ctx, req.Options.Mode)
	}

	m := newMachine(func(st State) {
		observability.DebugContext(ctx, "Build state changed", logfields.State(string(st)))
		if s.onTransition != nil {
			s.onTransition(st)
		}
	})
	finish := func(status BuildStatus, err error) (*BuildResult, error) {
		if status == BuildStatusFailed || status == BuildStatusCancelled {
			_ = m.to(StateFailed)
		}
		result.Status = status
		result.State = m.current()
		result.Trace = m.trace()
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(startTime)
		s.recorder.IncBuildOutcome(outcomeLabel(status))
		s.recorder.ObserveBuildDuration(result.Duration)
		return result, err
	}

	// Configuration problems fail before Enumerating.
	if req.Config == nil {
		return finish(BuildStatusFailed, errors.WrapError(ErrConfig, errors.CategoryConfig, "config required").Fatal().Build())
	}
	if err := req.Config.Validate(); err != nil {
		return finish(BuildStatusFailed, errors.WrapError(fmt.Errorf("%w: %w", ErrConfig, err), errors.CategoryConfig, "invalid configuration").Fatal().Build())
	}
	cfg := req.Config
	root := req.Root
	if root == "" {
		root = "."
	}

	pipeline := markdown.New(cfg,
		markdown.WithHighlighter(s.highlighter),
		markdown.WithIncludeLoader(markdown.FileLoader{Root: filepath.Join(root, filepath.FromSlash(cfg.Content.FilesDir))}),
	)

	cache, err := s.openCache(ctx, root, cfg, req.Options, pipeline.Fingerprint())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(BuildStatusCancelled, ctxErr)
		}
		return finish(BuildStatusFailed, err)
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil {
			observability.WarnContext(ctx, "Failed to close cache store", logfields.Error(cerr))
		}
	}()

	workers := req.Options.Workers
	if workers <= 0 {
		workers = cfg.Workers()
	}

	bs := &buildState{
		root:     root,
		cfg:      cfg,
		pipeline: pipeline,
		cache:    cache,
		recorder: s.recorder,
		notifier: s.notifier,
		workers:  workers,
		rebuild:  req.Options.Rebuild,
		machine:  m,
		result:   result,
		timings:  make(map[State]time.Duration),
	}

	observability.InfoContext(ctx, "Build started",
		slog.String("root", root),
		slog.Int("workers", workers))

	if err := runStages(ctx, bs); err != nil {
		se := classify(m.current(), err)
		// Completed renders are whole entries; keep them but evict nothing,
		// since enumeration may not have finished.
		if ferr := cache.Flush(context.WithoutCancel(ctx), nil); ferr != nil {
			observability.WarnContext(ctx, "Failed to flush cache after an aborted build", logfields.Error(ferr))
		}
		result.Cache = cache.Stats()
		if se.Kind == StageErrorCanceled {
			observability.InfoContext(ctx, "Build cancelled", logfields.Stage(string(se.Stage)))
			return finish(BuildStatusCancelled, se.Err)
		}
		observability.ErrorContext(ctx, "Build failed", logfields.Stage(string(se.Stage)), logfields.Error(se.Err))
		return finish(BuildStatusFailed, fatalError(se))
	}

	if err := cache.Flush(ctx, bs.sources.Paths()); err != nil {
		return finish(BuildStatusFailed, errors.WrapError(fmt.Errorf("%w: %w", ErrCacheStore, err), errors.CategoryCache, "failed to persist cache").Fatal().Build())
	}
	result.Cache = cache.Stats()
	if err := m.to(StateDone); err != nil {
		return finish(BuildStatusFailed, errors.InternalError(err.Error()).Build())
	}

	status := BuildStatusSuccess
	if len(result.RenderErrors) > 0 || result.Report.HasBroken() {
		status = BuildStatusWarning
	}
	observability.InfoContext(ctx, "Build completed",
		slog.String("status", string(status)),
		slog.Int("documents", len(result.Documents)),
		slog.Int("hits", result.Cache.Hits),
		slog.Int("misses", result.Cache.Misses),
		slog.Int("evicted", result.Cache.Evicted),
		logfields.DurationMS(float64(time.Since(startTime).Microseconds())/1000))
	return finish(status, nil)
}

func (s *DefaultBuildService) openCache(ctx context.Context, root string, cfg *config.Config, opts BuildOptions, fingerprint string) (*incremental.Cache, error) {
	var store storage.Store
	var err error
	if opts.NoCache {
		store = storage.NewMemoryStore()
	} else {
		store, err = s.storeFactory(root, cfg)
	}
	if err != nil {
		return nil, errors.WrapError(fmt.Errorf("%w: %w", ErrCacheStore, err), errors.CategoryCache, "failed to open cache store").
			Fatal().
			WithContext("backend", cfg.Cache.Backend).
			Build()
	}

	cache, err := incremental.Open(ctx, store, fingerprint, incremental.WithLogger(s.logger))
	if err != nil {
		_ = store.Close()
		return nil, errors.WrapError(fmt.Errorf("%w: %w", ErrCacheStore, err), errors.CategoryCache, "failed to load cache").
			Fatal().
			WithContext("backend", cfg.Cache.Backend).
			Build()
	}
	return cache, nil
}

// fatalError keeps classified errors as they are and classifies the rest as build errors.
func fatalError(se *StageError) error {
	if _, ok := errors.AsClassified(se.Err); ok {
		return se.Err
	}
	return errors.WrapError(se.Err, errors.CategoryBuild, "build failed").
		Fatal().
		WithContext("stage", string(se.Stage)).
		Build()
}

func outcomeLabel(status BuildStatus) metrics.BuildOutcomeLabel {
	switch status {
	case BuildStatusSuccess:
		return metrics.BuildOutcomeSuccess
	case BuildStatusWarning:
		return metrics.BuildOutcomeWarning
	case BuildStatusCancelled:
		return metrics.BuildOutcomeCanceled
	default:
		return metrics.BuildOutcomeFailed
	}
}
