package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/edgard/cupidbot/internal/app/tasks"
	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/logger"
)

// Scheduler runs the registered tasks on their configured cron schedules.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	cfg       config.SchedulerConfig
	taskMap   map[string]tasks.ScheduledTaskFunc
	mu        sync.Mutex
	running   bool
}

// NewScheduler creates a scheduler for taskMap.
func NewScheduler(log *slog.Logger, cfg config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		logger:    logger.OrDiscard(log).With("component", "scheduler"),
		cfg:       cfg,
		taskMap:   taskMap,
	}, nil
}

// Start schedules every enabled task and starts ticking. Tasks that are
// unknown, disabled or without a schedule are skipped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}

	scheduled := 0
	for _, name := range slices.Sorted(maps.Keys(s.cfg.Tasks)) {
		taskCfg := s.cfg.Tasks[name]
		if !taskCfg.Enabled {
			s.logger.Info("Skipping disabled task", "task_name", name)
			continue
		}
		taskFunc, ok := s.taskMap[name]
		if !ok {
			s.logger.Warn("Scheduled task configured but not registered, skipping", "task_name", name)
			continue
		}
		if taskCfg.Schedule == "" {
			s.logger.Warn("Scheduled task enabled but has empty schedule, skipping", "task_name", name)
			continue
		}

		_, err := s.scheduler.NewJob(
			gocron.CronJob(taskCfg.Schedule, true),
			gocron.NewTask(
				func(ctx context.Context, name string) {
					s.logger.Info("Running scheduled task", "task_name", name)
					start := time.Now()
					if err := taskFunc(ctx); err != nil {
						s.logger.Error("Scheduled task failed", "task_name", name, "error", err)
					}
					s.logger.Info("Finished scheduled task", "task_name", name, "duration", time.Since(start))
				},
				context.Background(),
				name,
			),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.logger.Error("Failed to schedule task", "task_name", name, "schedule", taskCfg.Schedule, "error", err)
			continue
		}

		s.logger.Info("Scheduled task", "task_name", name, "schedule", taskCfg.Schedule)
		scheduled++
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler started", "tasks_scheduled", scheduled)
	return nil
}

// Jobs lists the names of the scheduled jobs.
func (s *Scheduler) Jobs() []string {
	var names []string
	for _, j := range s.scheduler.Jobs() {
		names = append(names, j.Name())
	}
	slices.Sort(names)
	return names
}

// Stop shuts the scheduler down, waiting for running jobs to complete.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped")
	}
	s.running = false
	return err
}
