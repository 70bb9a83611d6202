// Package tasks implements the scheduled background jobs: match syncing,
// inactivity reminders and database maintenance.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/model"
)

// Store is the storage subset used by scheduled tasks.
type Store interface {
	GetMatch(ctx context.Context, id string) (*model.Profile, error)
	GetInactiveConversations(ctx context.Context, before time.Time, limit int) ([]*model.Conversation, error)
	RunSQLMaintenance(ctx context.Context) error
}

// Platforms syncs remote matches into storage.
type Platforms interface {
	IsAuthenticated(platform string) bool
	SyncMatches(ctx context.Context, platform string, limit int) (all, fresh []model.Profile, err error)
}

// Notifier delivers task events to the user.
type Notifier interface {
	NotifyNewMatch(ctx context.Context, match *model.Profile) (bool, error)
	NotifyConversationInactive(ctx context.Context, conv *model.Conversation, match *model.Profile, idle time.Duration) (bool, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     Store
	Platforms Platforms
	Notifier  Notifier
	Config    *config.Config
	Now       func() time.Time
}

func (d TaskDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
