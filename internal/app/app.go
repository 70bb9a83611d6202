// Package app wires cupidbot's components together and runs the long-lived
// pieces: the task scheduler, the template watcher and conversation monitors.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/cupidbot/internal/ai"
	"github.com/edgard/cupidbot/internal/analytics"
	"github.com/edgard/cupidbot/internal/analyzer"
	"github.com/edgard/cupidbot/internal/app/tasks"
	"github.com/edgard/cupidbot/internal/assistant"
	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/database"
	"github.com/edgard/cupidbot/internal/generator"
	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/notify"
	"github.com/edgard/cupidbot/internal/platform"
	"github.com/edgard/cupidbot/internal/random"
	"github.com/edgard/cupidbot/internal/tracker"
)

// App holds every component built from a Config.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	base      *slog.Logger
	db        *sqlx.DB
	templates *generator.TemplateBank
	scheduler *Scheduler

	Store     database.Store
	Platforms *platform.Manager
	Notifier  *notify.Notifier
	Tracker   *tracker.Tracker
	Analytics *analytics.Service
	Assistant *assistant.Assistant
}

// New opens storage and builds all components. Close releases them.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	log = logger.OrDiscard(log)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := database.NewStore(db, log)

	a := &App{cfg: cfg, logger: log.With("component", "app"), base: log, db: db, Store: store}
	if err := a.build(ctx); err != nil {
		database.CloseDB(db)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, log := a.cfg, a.base

	backend, err := ai.NewBackend(ctx, cfg.AI, log)
	if err != nil {
		return fmt.Errorf("failed to create AI backend: %w", err)
	}
	if backend != nil {
		a.logger.InfoContext(ctx, "Enhanced generation enabled", "backend", backend.Name())
	}

	a.templates, err = generator.NewTemplateBank(cfg.Templates.Path, log)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	rng := random.New()
	an := analyzer.New(backend, rng, log)
	gen := generator.New(an, backend, a.templates, rng, log)

	a.Platforms, err = platform.NewManagerFromConfig(cfg.Platforms, a.Store, log)
	if err != nil {
		return fmt.Errorf("failed to create platform manager: %w", err)
	}
	a.Notifier, err = notify.NewFromConfig(cfg.Notifications, log)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}

	a.Tracker = tracker.New(a.Store, a.Platforms, a.Notifier, tracker.OptionsFromConfig(cfg.Tracker), log)
	a.Analytics = analytics.NewService(a.Store, cfg.Analytics.ActivityDays, log)
	a.Assistant = assistant.New(a.Store, an, gen, a.Platforms, a.Notifier, cfg.Tracker.HistoryLimit, log)

	taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:    log,
		Store:     a.Store,
		Platforms: a.Platforms,
		Notifier:  a.Notifier,
		Config:    cfg,
	})
	a.scheduler, err = NewScheduler(log, cfg.Scheduler, taskMap)
	if err != nil {
		return err
	}
	return nil
}

// Run starts the scheduler, the template watcher and, when enabled, a
// monitor for every active AI-enabled conversation. It blocks until ctx is
// cancelled or a component fails, then stops every monitor.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "Starting cupidbot")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		<-gCtx.Done()
		a.logger.Info("Shutdown signal received, stopping scheduler")
		if err := a.scheduler.Stop(); err != nil {
			a.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	if a.cfg.Templates.Watch {
		g.Go(func() error {
			return a.templates.Watch(gCtx)
		})
	}

	g.Go(func() error {
		if a.cfg.Sync.MonitorActive {
			if err := a.MonitorActive(gCtx); err != nil {
				a.logger.ErrorContext(gCtx, "Failed to start conversation monitors", "error", err)
			}
		}
		<-gCtx.Done()
		a.Tracker.Close(context.Background())
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("cupidbot stopped due to error", "error", err)
		return err
	}
	a.logger.Info("cupidbot stopped")
	return nil
}

// MonitorActive starts monitors for the active, AI-enabled conversations of
// the configured user. Conversations that fail to start are logged and skipped.
func (a *App) MonitorActive(ctx context.Context) error {
	convs, err := a.Store.GetActiveConversations(ctx, a.cfg.Sync.UserID, 0)
	if err != nil {
		return err
	}
	started := 0
	for _, c := range convs {
		if !c.AIEnabled {
			continue
		}
		if err := a.Tracker.StartMonitoring(ctx, c.ID, "", 0); err != nil {
			a.logger.WarnContext(ctx, "Failed to monitor conversation", "conversation_id", c.ID, "error", err)
			continue
		}
		started++
	}
	a.logger.InfoContext(ctx, "Conversation monitors started", "count", started)
	return nil
}

// Close stops monitors and closes the database.
func (a *App) Close() {
	a.Tracker.Close(context.Background())
	database.CloseDB(a.db)
}
