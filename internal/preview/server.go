// Package preview serves the routes of the latest successful build and
// rebuilds the site when its sources change.
package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/build/queue"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// Server owns the build queue of a preview session and answers requests
// from the routes of the latest completed build.
type Server struct {
	root     string
	cfg      *config.Config
	service  build.BuildService
	registry *prom.Registry
	logger   *slog.Logger
	options  build.BuildOptions

	queue  *queue.BuildQueue
	routes atomic.Pointer[site.Set]
	router *chi.Mux
	seq    atomic.Uint64

	mu      sync.RWMutex
	lastErr error
	last    *build.BuildResult
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry exposes registry on /metrics.
func WithRegistry(reg *prom.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithBuildOptions sets the options of every build. Mode is always "preview".
func WithBuildOptions(opts build.BuildOptions) Option {
	return func(s *Server) { s.options = opts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a preview server for the project at root. Builds run
// through service.
func NewServer(root string, cfg *config.Config, service build.BuildService, opts ...Option) *Server {
	s := &Server{
		root:    root,
		cfg:     cfg,
		service: service,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = queue.NewBuildQueue(queue.BuilderFunc(s.runBuild))
	s.queue.OnComplete(s.publish)
	s.router = s.setupRoutes()
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Routes returns the routes currently served, nil before the first build completes.
func (s *Server) Routes() *site.Set { return s.routes.Load() }

// LastResult returns the result of the latest completed build and the error
// of the latest failed one, if it failed after that.
func (s *Server) LastResult() (*build.BuildResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastErr
}

// Rebuild requests a build. Requests made while a build runs cancel it.
func (s *Server) Rebuild(typ queue.BuildType, paths ...string) error {
	id := fmt.Sprintf("%s-%d", typ, s.seq.Add(1))
	return s.queue.Enqueue(&queue.BuildJob{ID: id, Type: typ, Paths: paths})
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/_status", s.handleStatus)
	r.Handle("/metrics", metrics.HTTPHandler(s.registry))

	base := strings.TrimSuffix(s.cfg.BasePath(), "/")
	if base == "" {
		r.Get("/*", s.handleRoute)
		return r
	}
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, base+"/", http.StatusFound)
	})
	r.Route(base, func(sub chi.Router) {
		sub.Get("/*", http.StripPrefix(base, http.HandlerFunc(s.handleRoute)).ServeHTTP)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.routes.Load() == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"building"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// buildStatus is the /_status payload of a completed build.
type buildStatus struct {
	BuildID      string    `json:"build_id"`
	Status       string    `json:"status"`
	Documents    int       `json:"documents"`
	Rendered     int       `json:"rendered"`
	Reused       int       `json:"reused"`
	BrokenLinks  int       `json:"broken_links"`
	RenderErrors int       `json:"render_errors"`
	FinishedAt   time.Time `json:"finished_at"`
}

// handleStatus reports the latest build, or the error of a failed one.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.LastResult()
	if err != nil {
		ferrors.NewHTTPErrorAdapter(s.logger).WriteErrorResponse(w, r, err)
		return
	}
	if result == nil {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	status := buildStatus{
		BuildID:      result.BuildID,
		Status:       string(result.Status),
		Documents:    len(result.Documents),
		Rendered:     result.Rendered,
		Reused:       result.Reused,
		RenderErrors: len(result.RenderErrors),
		FinishedAt:   result.EndTime,
	}
	if result.Report != nil {
		status.BrokenLinks = len(result.Report.Broken())
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	routes := s.routes.Load()
	if routes == nil {
		s.writeUnavailable(w)
		return
	}
	p := r.URL.Path
	if p == "" {
		p = "/"
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(strings.TrimSuffix(p, "/"), ".html")
	}
	route, ok := routes.Get(p)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", route.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(route.Body))
}

func (s *Server) writeUnavailable(w http.ResponseWriter) {
	_, err := s.LastResult()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusServiceUnavailable)
	if err != nil {
		_, _ = fmt.Fprintf(w, "build failed: %v\n", err)
		return
	}
	_, _ = w.Write([]byte("site is building\n"))
}

func (s *Server) runBuild(ctx context.Context, job *queue.BuildJob) (*build.BuildResult, error) {
	s.logger.Info("Rebuilding site",
		slog.String("job_id", job.ID),
		slog.String("trigger", string(job.Type)),
		logfields.Count(len(job.Paths)))
	opts := s.options
	opts.Mode = "preview"
	result, err := s.service.Run(ctx, build.BuildRequest{Root: s.root, Config: s.cfg, Options: opts})
	if err != nil {
		if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
		}
		return nil, err
	}
	if result.Status == build.BuildStatusCancelled {
		return nil, context.Canceled
	}
	return result, nil
}

// publish swaps in the routes of a completed build. A result that cannot be
// materialised leaves the previous routes in place.
func (s *Server) publish(job *queue.BuildJob) {
	routes, err := site.Routes(job.Result, s.cfg, s.root)
	if err != nil {
		s.logger.Warn("Failed to build routes", slog.String("job_id", job.ID), logfields.Error(err))
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	s.last = job.Result
	s.lastErr = nil
	s.mu.Unlock()
	s.routes.Store(routes)

	s.logger.Info("Preview updated",
		logfields.BuildID(job.Result.BuildID),
		slog.String("status", string(job.Result.Status)),
		logfields.Count(routes.Len()),
		logfields.DurationMS(float64(job.Duration.Milliseconds())))
}
