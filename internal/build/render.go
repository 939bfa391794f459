package build

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	"git.home.luguber.info/inful/sitebuilder/internal/incremental"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/markdown"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
)

// renderer runs the rendering stage: one cache lookup per page and a render
// on every miss, spread over a bounded worker pool.
type renderer struct {
	pipeline *markdown.Pipeline
	cache    *incremental.Cache
	recorder metrics.Recorder
	workers  int
	rebuild  bool
}

// renderOutput holds the documents in enumeration order.
type renderOutput struct {
	Documents []*docmodel.Document
	Rendered  int
	Reused    int
}

func (r *renderer) run(ctx context.Context, pages []docmodel.SourceEntry) (*renderOutput, error) {
	docs := make([]*docmodel.Document, len(pages))
	fresh := make([]bool, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	r.recorder.SetRenderConcurrency(r.workers)

	for i := range pages {
		page := pages[i]
		g.Go(func() error {
			doc, rendered, err := r.renderOne(gctx, page)
			if err != nil {
				return err
			}
			docs[i] = doc
			fresh[i] = rendered
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &renderOutput{Documents: docs}
	for _, f := range fresh {
		if f {
			out.Rendered++
		} else {
			out.Reused++
		}
	}
	return out, nil
}

func (r *renderer) renderOne(ctx context.Context, page docmodel.SourceEntry) (*docmodel.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	release, ok := r.cache.Claim(page.Path)
	if !ok {
		return nil, false, fmt.Errorf("page %s claimed twice", page.Path)
	}
	defer release()

	ctx = observability.WithPath(ctx, page.Path)
	if !r.rebuild {
		lookup := r.cache.Lookup(page.Path, page.Fingerprint, r.pipeline.Loader())
		r.recorder.IncCacheLookup(string(lookup.Reason))
		if lookup.Hit() {
			observability.DebugContext(ctx, "Reusing cached document", logfields.Cache(true))
			return lookup.Document, false, nil
		}
		observability.DebugContext(ctx, "Rendering document",
			logfields.Cache(false),
			slog.String("reason", string(lookup.Reason)))
	}

	start := time.Now()
	out, err := r.pipeline.Render(ctx, markdown.Page{ID: page.ID, Path: page.Path}, page.Data)
	if err != nil {
		return nil, false, err
	}
	r.recorder.ObserveRenderDuration(time.Since(start))
	for _, re := range out.Document.Errors {
		observability.WarnContext(ctx, "Render error",
			logfields.Stage(re.Stage),
			slog.String("message", re.Message))
	}

	// Stored only after the render completed, so a cancelled build never
	// leaves a partial entry behind.
	r.cache.Store(page.Path, page.Fingerprint, out.Touched(), out.Document)
	return out.Document, true, nil
}
