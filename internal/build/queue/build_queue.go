// Package queue serializes preview rebuilds. At most one build runs at a
// time; a newer request cancels the running build and replaces any request
// still waiting, so the queue always converges on the latest change.
package queue

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// BuildType represents what triggered a build job.
type BuildType string

const (
	BuildTypeManual    BuildType = "manual"    // Initial build or explicit request
	BuildTypeWatch     BuildType = "watch"     // File change notification
	BuildTypeScheduled BuildType = "scheduled" // Periodic full rebuild
)

// BuildStatus represents the current status of a build job.
type BuildStatus string

const (
	BuildStatusQueued     BuildStatus = "queued"
	BuildStatusRunning    BuildStatus = "running"
	BuildStatusCompleted  BuildStatus = "completed"
	BuildStatusFailed     BuildStatus = "failed"
	BuildStatusCancelled  BuildStatus = "canceled"
	BuildStatusSuperseded BuildStatus = "superseded"
)

// BuildJob represents a single build request.
type BuildJob struct {
	ID          string        `json:"id"`
	Type        BuildType     `json:"type"`
	Status      BuildStatus   `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`

	// Paths lists the changed files that triggered the job, merged across
	// the requests it replaced.
	Paths []string `json:"paths,omitempty"`

	// Result is set only for completed jobs. The result of a cancelled
	// build is discarded.
	Result *build.BuildResult `json:"-"`

	// Internal processing
	cancel context.CancelFunc `json:"-"`
}

// Builder executes a build job.
type Builder interface {
	Build(ctx context.Context, job *BuildJob) (*build.BuildResult, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, job *BuildJob) (*build.BuildResult, error)

func (f BuilderFunc) Build(ctx context.Context, job *BuildJob) (*build.BuildResult, error) {
	return f(ctx, job)
}

// BuildQueue runs build jobs one at a time, latest request wins.
type BuildQueue struct {
	trigger     chan struct{}
	mu          sync.RWMutex
	pending     *BuildJob
	active      *BuildJob
	history     []*BuildJob
	historySize int
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	builder     Builder
	onComplete  func(*BuildJob)
}

// NewBuildQueue creates a build queue around builder.
func NewBuildQueue(builder Builder) *BuildQueue {
	if builder == nil {
		panic("NewBuildQueue: builder is required")
	}
	return &BuildQueue{
		trigger:     make(chan struct{}, 1),
		history:     make([]*BuildJob, 0),
		historySize: 50,
		stopChan:    make(chan struct{}),
		builder:     builder,
	}
}

// OnComplete registers a callback invoked with every completed job. It runs
// on the queue goroutine, before the next job starts.
func (bq *BuildQueue) OnComplete(fn func(*BuildJob)) {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	bq.onComplete = fn
}

// Start begins processing jobs.
func (bq *BuildQueue) Start(ctx context.Context) {
	slog.Info("Starting build queue")
	bq.wg.Add(1)
	go bq.worker(ctx)
}

// Stop cancels the running job and waits for the worker to exit.
func (bq *BuildQueue) Stop(_ context.Context) {
	bq.stopOnce.Do(func() { close(bq.stopChan) })

	bq.mu.Lock()
	if bq.active != nil && bq.active.cancel != nil {
		bq.active.cancel()
	}
	bq.mu.Unlock()

	bq.wg.Wait()
}

// Length returns the number of waiting jobs (0 or 1).
func (bq *BuildQueue) Length() int {
	bq.mu.RLock()
	defer bq.mu.RUnlock()
	if bq.pending != nil {
		return 1
	}
	return 0
}

// Enqueue submits a job. A waiting job is replaced and a running job is
// cancelled.
func (bq *BuildQueue) Enqueue(job *BuildJob) error {
	if job == nil {
		return stdErrors.New("job cannot be nil")
	}
	if job.ID == "" {
		return stdErrors.New("job ID is required")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	bq.mu.Lock()
	job.Status = BuildStatusQueued
	if prev := bq.pending; prev != nil {
		job.Paths = mergePaths(prev.Paths, job.Paths)
		prev.Status = BuildStatusSuperseded
		bq.addToHistory(prev)
	}
	bq.pending = job
	if bq.active != nil && bq.active.cancel != nil {
		slog.Debug("Cancelling superseded build", slog.String("job_id", bq.active.ID))
		bq.active.cancel()
	}
	bq.mu.Unlock()

	select {
	case bq.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Active returns a copy of the running job, if any.
func (bq *BuildQueue) Active() (*BuildJob, bool) {
	bq.mu.RLock()
	defer bq.mu.RUnlock()
	if bq.active == nil {
		return nil, false
	}
	cp := *bq.active
	return &cp, true
}

// JobSnapshot returns a copy of a job (active first, then pending, then history).
func (bq *BuildQueue) JobSnapshot(id string) (*BuildJob, bool) {
	bq.mu.RLock()
	defer bq.mu.RUnlock()

	for _, j := range []*BuildJob{bq.active, bq.pending} {
		if j != nil && j.ID == id {
			cp := *j
			return &cp, true
		}
	}
	for _, j := range bq.history {
		if j.ID == id {
			cp := *j
			return &cp, true
		}
	}
	return nil, false
}

func (bq *BuildQueue) worker(ctx context.Context) {
	defer bq.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-bq.stopChan:
			return
		case <-bq.trigger:
			bq.mu.Lock()
			job := bq.pending
			bq.pending = nil
			bq.mu.Unlock()
			if job != nil {
				bq.processJob(ctx, job)
			}
		}
	}
}

func (bq *BuildQueue) processJob(ctx context.Context, job *BuildJob) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	startTime := time.Now()
	bq.mu.Lock()
	job.cancel = cancel
	job.StartedAt = &startTime
	job.Status = BuildStatusRunning
	bq.active = job
	bq.mu.Unlock()

	result, err := bq.builder.Build(jobCtx, job)

	if bq.markJobCompleted(jobCtx, job, result, err) {
		bq.mu.RLock()
		fn := bq.onComplete
		bq.mu.RUnlock()
		if fn != nil {
			fn(job)
		}
	}
}

// markJobCompleted records the outcome and reports whether the job completed.
func (bq *BuildQueue) markJobCompleted(ctx context.Context, job *BuildJob, result *build.BuildResult, err error) bool {
	endTime := time.Now()
	bq.mu.Lock()
	defer bq.mu.Unlock()

	job.CompletedAt = &endTime
	if job.StartedAt != nil {
		job.Duration = endTime.Sub(*job.StartedAt)
	}
	job.cancel = nil
	if bq.active == job {
		bq.active = nil
	}
	bq.addToHistory(job)

	switch {
	case ctx.Err() != nil || stdErrors.Is(err, context.Canceled):
		job.Status = BuildStatusCancelled
		slog.Debug("Build discarded", slog.String("job_id", job.ID))
	case err != nil:
		job.Status = BuildStatusFailed
		job.Error = err.Error()
		slog.Warn("Build failed", slog.String("job_id", job.ID), logfields.Error(err))
	default:
		job.Status = BuildStatusCompleted
		job.Result = result
	}
	return job.Status == BuildStatusCompleted
}

func (bq *BuildQueue) addToHistory(job *BuildJob) {
	bq.history = append(bq.history, job)
	if len(bq.history) > bq.historySize {
		copy(bq.history, bq.history[len(bq.history)-bq.historySize:])
		bq.history = bq.history[:bq.historySize]
	}
}

func mergePaths(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, p := range append(append([]string{}, a...), b...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
