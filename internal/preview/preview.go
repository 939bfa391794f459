package preview

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/build/queue"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

const shutdownTimeout = 5 * time.Second

// Run serves the site until ctx is done. It builds once at start, rebuilds
// after source changes settle for the configured debounce delay and, when
// preview.rebuild_interval is set, periodically. configPath is the project
// configuration file; changes to it and to the .env files trigger a rebuild
// with the configuration loaded at start.
func (s *Server) Run(ctx context.Context, configPath string) error {
	s.queue.Start(ctx)
	defer s.queue.Stop(context.Background())

	if err := s.Rebuild(queue.BuildTypeManual); err != nil {
		return err
	}

	dirs := []string{
		filepath.Join(s.root, filepath.FromSlash(s.cfg.Content.Dir)),
		filepath.Join(s.root, filepath.FromSlash(s.cfg.Content.FilesDir)),
	}
	files := []string{filepath.Join(s.root, ".env"), filepath.Join(s.root, ".env.local")}
	if configPath != "" {
		files = append(files, configPath)
	}
	w, err := newWatcher(s.root, dirs, files, s.logger)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	deb := newDebouncer(s.cfg.Preview.Debounce, func(paths []string) {
		if err := s.Rebuild(queue.BuildTypeWatch, paths...); err != nil {
			s.logger.Warn("Failed to enqueue rebuild", logfields.Error(err))
		}
	})
	defer deb.stop()
	go w.run(ctx, deb.add)

	if interval := s.cfg.Preview.RebuildInterval; interval > 0 {
		sched, err := NewScheduler(s.Rebuild, s.logger)
		if err != nil {
			return err
		}
		if _, err := sched.SchedulePeriodicBuild(interval); err != nil {
			return err
		}
		sched.Start()
		defer func() {
			if err := sched.Stop(); err != nil {
				s.logger.Warn("Scheduler shutdown error", logfields.Error(err))
			}
		}()
	}

	return s.serve(ctx)
}

func (s *Server) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Preview.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("Preview server listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("url", "http://"+ln.Addr().String()+s.cfg.BasePath()+"/"))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down preview server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP server shutdown error", logfields.Error(err))
		}
		return nil
	}
}
