package preview

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sitebuilder/internal/build/queue"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Scheduler wraps gocron to request periodic full rebuilds, which recover
// from filesystem events the watcher missed.
type Scheduler struct {
	scheduler gocron.Scheduler
	rebuild   func(queue.BuildType, ...string) error
	logger    *slog.Logger
}

// NewScheduler creates a scheduler that requests builds through rebuild.
func NewScheduler(rebuild func(queue.BuildType, ...string) error, logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{scheduler: s, rebuild: rebuild, logger: logger}, nil
}

// SchedulePeriodicBuild requests a rebuild every interval and returns the
// gocron job id.
func (s *Scheduler) SchedulePeriodicBuild(interval time.Duration) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.executeBuild),
		gocron.WithName("scheduled-build"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create periodic build job: %w", err)
	}
	return job.ID().String(), nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for a running task.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

func (s *Scheduler) executeBuild() {
	if err := s.rebuild(queue.BuildTypeScheduled); err != nil {
		s.logger.Error("Failed to enqueue scheduled build", logfields.Error(err))
	}
}
