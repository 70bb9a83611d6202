// Package notify delivers user-facing notifications about matches and
// conversations. Every notification is gated by the global switch, a
// per-kind flag and the quiet-hours window, then fanned out to the enabled
// channels concurrently.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/model"
)

const (
	previewLength      = 50
	defaultHistorySize = 100
	unknownMatchName   = "your match"
)

// Kind identifies the event a notification reports.
type Kind string

const (
	KindNewMessage           Kind = "new_message"
	KindNewMatch             Kind = "new_match"
	KindConversationInactive Kind = "conversation_inactive"
	KindSuggestedResponse    Kind = "suggested_response"
)

// Notification is a single delivered notification.
type Notification struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	Title          string    `json:"title"`
	Text           string    `json:"text"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MatchID        string    `json:"match_id,omitempty"`
	Urgent         bool      `json:"urgent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Channel is a delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notifier gates and dispatches notifications.
type Notifier struct {
	cfg      config.NotificationsConfig
	channels []Channel
	now      func() time.Time
	log      *slog.Logger

	mu      sync.Mutex
	history []Notification
}

// New creates a Notifier delivering to channels.
func New(cfg config.NotificationsConfig, channels []Channel, log *slog.Logger) *Notifier {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	return &Notifier{
		cfg:      cfg,
		channels: channels,
		now:      time.Now,
		log:      logger.OrDiscard(log).With("component", "notifier"),
	}
}

// NewFromConfig builds the channels enabled in cfg and returns a Notifier using them.
func NewFromConfig(cfg config.NotificationsConfig, log *slog.Logger) (*Notifier, error) {
	var channels []Channel
	if cfg.Channels.Console {
		channels = append(channels, NewConsoleChannel(nil))
	}
	if cfg.Channels.Email {
		channels = append(channels, NewEmailChannel(cfg.Email))
	}
	if cfg.Channels.Push {
		tg, err := NewTelegramChannel(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram channel: %w", err)
		}
		channels = append(channels, tg)
	}
	return New(cfg, channels, log), nil
}

// IsQuietHours reports whether now falls in the [start, end) quiet window.
// A window whose start is after its end wraps past midnight; equal bounds
// describe an empty window.
func (n *Notifier) IsQuietHours(now time.Time) bool {
	q := n.cfg.QuietHours
	if !q.Enabled || q.StartHour == q.EndHour {
		return false
	}
	h := now.Hour()
	if q.StartHour < q.EndHour {
		return h >= q.StartHour && h < q.EndHour
	}
	return h >= q.StartHour || h < q.EndHour
}

// NotifyNewMessage reports new activity in conv; msg is the latest message.
// Urgent notifications ignore quiet hours.
func (n *Notifier) NotifyNewMessage(ctx context.Context, conv *model.Conversation, match *model.Profile, msg model.Message, urgent bool) (bool, error) {
	name := matchName(match)
	return n.dispatch(ctx, n.cfg.Types.NewMessage, Notification{
		Kind:           KindNewMessage,
		Title:          "New message from " + name,
		Text:           fmt.Sprintf("%s: %s", name, logger.Truncate(msg.Content, previewLength)),
		ConversationID: conversationID(conv),
		MatchID:        matchID(match),
		Urgent:         urgent,
	})
}

// NotifyNewMatch reports a newly synced match.
func (n *Notifier) NotifyNewMatch(ctx context.Context, match *model.Profile) (bool, error) {
	name := matchName(match)
	platform := ""
	if match != nil {
		platform = match.Platform
	}
	return n.dispatch(ctx, n.cfg.Types.NewMatch, Notification{
		Kind:    KindNewMatch,
		Title:   "New match: " + name,
		Text:    fmt.Sprintf("You matched with %s on %s", name, platform),
		MatchID: matchID(match),
	})
}

// NotifyConversationInactive reports a conversation idle for the given duration.
func (n *Notifier) NotifyConversationInactive(ctx context.Context, conv *model.Conversation, match *model.Profile, idle time.Duration) (bool, error) {
	name := matchName(match)
	return n.dispatch(ctx, n.cfg.Types.ConversationInactive, Notification{
		Kind:           KindConversationInactive,
		Title:          "Inactive conversation with " + name,
		Text:           fmt.Sprintf("No messages with %s for %.0f hours", name, idle.Hours()),
		ConversationID: conversationID(conv),
		MatchID:        matchID(match),
	})
}

// NotifySuggestedResponse reports a generated reply waiting for approval.
func (n *Notifier) NotifySuggestedResponse(ctx context.Context, conv *model.Conversation, match *model.Profile, suggestion model.Message) (bool, error) {
	name := matchName(match)
	return n.dispatch(ctx, n.cfg.Types.SuggestedResponse, Notification{
		Kind:           KindSuggestedResponse,
		Title:          "Suggested reply for " + name,
		Text:           fmt.Sprintf("Reply to %s: %s", name, logger.Truncate(suggestion.Content, previewLength)),
		ConversationID: conversationID(conv),
		MatchID:        matchID(match),
	})
}

// History returns up to limit of the most recent notifications, oldest
// first. A non-positive limit returns everything retained.
func (n *Notifier) History(limit int) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	h := n.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]Notification, len(h))
	copy(out, h)
	return out
}

// ClearHistory drops every retained notification.
func (n *Notifier) ClearHistory() {
	n.mu.Lock()
	n.history = nil
	n.mu.Unlock()
}

// dispatch reports whether the notification passed the gates. Channel
// failures are logged and returned joined.
func (n *Notifier) dispatch(ctx context.Context, kindEnabled bool, note Notification) (bool, error) {
	if !n.cfg.Enabled || !kindEnabled {
		n.log.DebugContext(ctx, "Notification disabled", "kind", note.Kind)
		return false, nil
	}
	now := n.now()
	if !note.Urgent && n.IsQuietHours(now) {
		n.log.DebugContext(ctx, "Notification suppressed by quiet hours", "kind", note.Kind)
		return false, nil
	}

	note.ID = uuid.New().String()
	note.CreatedAt = now
	n.record(note)

	// Channels deliver independently; one failing does not cancel the others.
	var g errgroup.Group
	errs := make([]error, len(n.channels))
	for i, ch := range n.channels {
		g.Go(func() error {
			if err := ch.Send(ctx, note); err != nil {
				n.log.ErrorContext(ctx, "Notification delivery failed", "channel", ch.Name(), "kind", note.Kind, "error", err)
				errs[i] = fmt.Errorf("%s channel: %w", ch.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		return true, err
	}
	n.log.InfoContext(ctx, "Notification sent", "kind", note.Kind, "channels", len(n.channels))
	return true, nil
}

func (n *Notifier) record(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.history = append(n.history, note)
	if over := len(n.history) - n.cfg.HistorySize; over > 0 {
		n.history = append([]Notification(nil), n.history[over:]...)
	}
}

func matchName(p *model.Profile) string {
	if p == nil || p.Name == "" {
		return unknownMatchName
	}
	return p.Name
}

func matchID(p *model.Profile) string {
	if p == nil {
		return ""
	}
	return p.ID
}

func conversationID(c *model.Conversation) string {
	if c == nil {
		return ""
	}
	return c.ID
}
