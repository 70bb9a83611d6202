package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// newMatchSyncTask fetches matches from every configured platform and
// announces the ones not seen before. Unauthenticated platforms are skipped.
func newMatchSyncTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", MatchSync)

	return func(ctx context.Context) error {
		startTime := time.Now()
		var errs []error
		var synced, fresh int

		for _, name := range deps.Config.Sync.Platforms {
			if !deps.Platforms.IsAuthenticated(name) {
				log.WarnContext(ctx, "Platform not authenticated, skipping match sync", "platform", name)
				continue
			}

			all, newMatches, err := deps.Platforms.SyncMatches(ctx, name, deps.Config.Sync.MatchLimit)
			if err != nil {
				log.ErrorContext(ctx, "Match sync failed", "platform", name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				continue
			}
			synced += len(all)
			fresh += len(newMatches)

			for i := range newMatches {
				if _, err := deps.Notifier.NotifyNewMatch(ctx, &newMatches[i]); err != nil {
					log.WarnContext(ctx, "Failed to notify new match", "match_id", newMatches[i].ID, "error", err)
				}
			}
		}

		log.InfoContext(ctx, "Match sync finished", "synced", synced, "new", fresh, "duration", time.Since(startTime))
		if len(errs) > 0 {
			return fmt.Errorf("match sync failed: %w", errors.Join(errs...))
		}
		return nil
	}
}
