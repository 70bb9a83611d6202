package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/edgard/cupidbot/internal/model"
)

// run polls once immediately and then every interval until ctx is cancelled.
func (t *Tracker) run(ctx context.Context, id string, m *monitor, interval time.Duration) {
	defer close(m.done)

	log := t.log.With("conversation_id", id, "platform", m.platform)
	log.DebugContext(ctx, "Monitor started")
	defer log.DebugContext(ctx, "Monitor exited")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := t.tick(ctx, id, m.platform); err != nil {
			log.WarnContext(ctx, "Monitor tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick compares the remote message count with the last known count and
// notifies once when it grew. An unauthenticated platform skips the tick.
func (t *Tracker) tick(ctx context.Context, id, platform string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitor tick panic: %v", r)
		}
	}()

	if ctx.Err() != nil {
		return nil
	}
	if !t.platforms.IsAuthenticated(platform) {
		t.log.DebugContext(ctx, "Not authenticated, skipping tick", "conversation_id", id, "platform", platform)
		return nil
	}

	t.mu.Lock()
	e, ok := t.entries[id]
	var ref string
	var known int
	if ok {
		ref = e.conv.PlatformID
		if ref == "" {
			ref = e.conv.ID
		}
		known = e.knownCount
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}

	remote, err := t.platforms.GetConversationMessages(ctx, platform, ref, t.opts.FetchLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch remote messages: %w", err)
	}
	if len(remote) <= known {
		return nil
	}

	t.mu.Lock()
	e, ok = t.entries[id]
	if !ok || e.knownCount >= len(remote) {
		t.mu.Unlock()
		return nil
	}
	e.knownCount = len(remote)
	e.conv.MessageCount = len(remote)
	conv := e.conv
	var match *model.Profile
	if e.match != nil {
		mp := *e.match
		match = &mp
	}
	t.mu.Unlock()

	t.log.InfoContext(ctx, "New messages detected", "conversation_id", id, "previous", known, "current", len(remote))
	if t.notifier == nil {
		return nil
	}
	if _, err := t.notifier.NotifyNewMessage(ctx, &conv, match, remote[len(remote)-1], false); err != nil {
		return fmt.Errorf("failed to notify new messages: %w", err)
	}
	return nil
}
