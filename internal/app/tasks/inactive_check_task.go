package tasks

import (
	"context"
	"fmt"
)

const inactiveBatch = 100

// newInactiveCheckTask reminds the user about active conversations with no
// message for longer than sync.inactive_after.
func newInactiveCheckTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", InactiveCheck)

	return func(ctx context.Context) error {
		now := deps.now()
		cutoff := now.Add(-deps.Config.Sync.InactiveAfter)

		convs, err := deps.Store.GetInactiveConversations(ctx, cutoff, inactiveBatch)
		if err != nil {
			log.ErrorContext(ctx, "Failed to load inactive conversations", "error", err)
			return fmt.Errorf("failed to load inactive conversations: %w", err)
		}

		var sent int
		for _, conv := range convs {
			match, err := deps.Store.GetMatch(ctx, conv.MatchID)
			if err != nil {
				log.WarnContext(ctx, "Failed to load match for inactive conversation", "conversation_id", conv.ID, "error", err)
				continue
			}
			idle := now.Sub(conv.LastMessageAt)
			if conv.LastMessageAt.IsZero() {
				idle = now.Sub(conv.StartedAt)
			}
			ok, err := deps.Notifier.NotifyConversationInactive(ctx, conv, match, idle)
			if err != nil {
				log.WarnContext(ctx, "Failed to notify inactive conversation", "conversation_id", conv.ID, "error", err)
				continue
			}
			if ok {
				sent++
			}
		}

		log.InfoContext(ctx, "Inactive check finished", "inactive", len(convs), "notified", sent)
		return nil
	}
}
