// Package assistant ties profile analysis, message generation, the approval
// gate and outbound delivery together. Generated drafts are never sent until
// the user approves or edits them.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/edgard/cupidbot/internal/analyzer"
	"github.com/edgard/cupidbot/internal/generator"
	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/model"
)

const defaultHistoryLimit = 50

// Store is the storage subset the assistant uses.
type Store interface {
	GetMatch(ctx context.Context, id string) (*model.Profile, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	GetConversationByPlatformID(ctx context.Context, platform, platformID string) (*model.Conversation, error)
	SaveConversation(ctx context.Context, c *model.Conversation) error
	GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	SaveMessage(ctx context.Context, m *model.Message) (bool, error)
}

// Sender delivers text to a match on a platform.
type Sender interface {
	SendMessage(ctx context.Context, platform, matchID, text string) error
}

// Notifier announces freshly generated replies.
type Notifier interface {
	NotifySuggestedResponse(ctx context.Context, conv *model.Conversation, match *model.Profile, suggestion model.Message) (bool, error)
}

// Assistant is the user-facing facade over the engine.
type Assistant struct {
	store        Store
	analyzer     *analyzer.Analyzer
	generator    *generator.Generator
	sender       Sender
	notifier     Notifier
	historyLimit int
	now          func() time.Time
	log          *slog.Logger
}

// New creates an Assistant. sender and notifier may be nil; without a sender
// Send always fails.
func New(store Store, a *analyzer.Analyzer, g *generator.Generator, sender Sender, notifier Notifier, historyLimit int, log *slog.Logger) *Assistant {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if a == nil {
		a = analyzer.New(nil, nil, log)
	}
	if g == nil {
		g = generator.New(a, nil, nil, nil, log)
	}
	return &Assistant{
		store:        store,
		analyzer:     a,
		generator:    g,
		sender:       sender,
		notifier:     notifier,
		historyLimit: historyLimit,
		now:          time.Now,
		log:          logger.OrDiscard(log).With("component", "assistant"),
	}
}

func (a *Assistant) match(ctx context.Context, id string) (*model.Profile, error) {
	p, err := a.store.GetMatch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", id, err)
	}
	if p == nil {
		a.log.WarnContext(ctx, "Match not found", "match_id", id)
		return nil, fmt.Errorf("match %s: %w", id, model.ErrNotFound)
	}
	return p, nil
}

// AnalyzeMatch analyzes the stored profile of matchID.
func (a *Assistant) AnalyzeMatch(ctx context.Context, matchID string) (model.Analysis, error) {
	p, err := a.match(ctx, matchID)
	if err != nil {
		return model.Analysis{}, err
	}
	return a.analyzer.Analyze(ctx, *p), nil
}

// GenerateInitialMessage drafts an opening message for matchID.
func (a *Assistant) GenerateInitialMessage(ctx context.Context, matchID string) (model.Message, error) {
	p, err := a.match(ctx, matchID)
	if err != nil {
		return model.Message{}, err
	}
	draft := a.generator.GenerateInitial(ctx, *p)
	a.log.InfoContext(ctx, "Initial message drafted", "match_id", matchID, "preview", logger.Truncate(draft.Content, 50))
	return draft, nil
}

// GenerateResponse drafts a reply in conversationID and announces it as a
// suggested response. Notification failures are logged only.
func (a *Assistant) GenerateResponse(ctx context.Context, conversationID string) (model.Message, error) {
	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if conv == nil {
		a.log.WarnContext(ctx, "Conversation not found", "conversation_id", conversationID)
		return model.Message{}, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}
	if conv.Status == model.StatusArchived {
		return model.Message{}, fmt.Errorf("conversation %s: %w", conversationID, model.ErrArchived)
	}
	p, err := a.match(ctx, conv.MatchID)
	if err != nil {
		return model.Message{}, err
	}

	history, err := a.store.GetConversationMessages(ctx, conversationID, a.historyLimit)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to load messages for %s: %w", conversationID, err)
	}
	slices.Reverse(history)

	draft := a.generator.GenerateReply(ctx, history, *p)
	draft.ConversationID = conv.ID

	if a.notifier != nil {
		if _, err := a.notifier.NotifySuggestedResponse(ctx, conv, p, draft); err != nil {
			a.log.WarnContext(ctx, "Failed to notify suggested response", "conversation_id", conversationID, "error", err)
		}
	}
	return draft, nil
}

// Approve marks a draft as approved for sending.
func (a *Assistant) Approve(draft *model.Message) {
	draft.AIApproved = true
}

// Edit replaces the draft text. Editing implies approval.
func (a *Assistant) Edit(draft *model.Message, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return errors.New("edited message is empty")
	}
	draft.Content = content
	draft.AIApproved = true
	return nil
}

// Send delivers draft on platform, defaulting to the match's platform, and
// stores it in the match's conversation, creating the conversation when the
// draft opens one. Generated drafts must be approved first.
func (a *Assistant) Send(ctx context.Context, platform string, draft *model.Message) error {
	if draft.AIGenerated && !draft.AIApproved {
		return model.ErrNotApproved
	}
	if strings.TrimSpace(draft.Content) == "" {
		return errors.New("cannot send an empty message")
	}
	if a.sender == nil {
		return fmt.Errorf("no platform sender configured: %w", model.ErrNotAuthenticated)
	}

	conv, p, err := a.target(ctx, draft)
	if err != nil {
		return err
	}
	if platform == "" {
		platform = p.Platform
	}

	if err := a.sender.SendMessage(ctx, platform, p.PlatformID, draft.Content); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", p.ID, err)
	}

	if conv == nil {
		conv = &model.Conversation{
			MatchID:    p.ID,
			UserID:     p.UserID,
			Platform:   platform,
			PlatformID: p.PlatformID,
			StartedAt:  a.now().UTC(),
			Status:     model.StatusActive,
			AIEnabled:  true,
		}
		if err := a.store.SaveConversation(ctx, conv); err != nil {
			return fmt.Errorf("message sent but conversation not stored: %w", err)
		}
	}

	draft.ConversationID = conv.ID
	draft.MatchID = p.ID
	draft.Sender = model.SenderUser
	if draft.SentAt.IsZero() {
		draft.SentAt = a.now().UTC()
	}
	if _, err := a.store.SaveMessage(ctx, draft); err != nil {
		return fmt.Errorf("message sent but not stored: %w", err)
	}

	a.log.InfoContext(ctx, "Message sent", "conversation_id", conv.ID, "match_id", p.ID, "platform", platform, "ai_generated", draft.AIGenerated)
	return nil
}

// target resolves the conversation and match a draft belongs to. conv is nil
// when the match has no stored conversation yet.
func (a *Assistant) target(ctx context.Context, draft *model.Message) (*model.Conversation, *model.Profile, error) {
	if draft.ConversationID != "" {
		conv, err := a.store.GetConversation(ctx, draft.ConversationID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load conversation %s: %w", draft.ConversationID, err)
		}
		if conv == nil {
			return nil, nil, fmt.Errorf("conversation %s: %w", draft.ConversationID, model.ErrNotFound)
		}
		if conv.Status == model.StatusArchived {
			return nil, nil, fmt.Errorf("conversation %s: %w", conv.ID, model.ErrArchived)
		}
		p, err := a.match(ctx, conv.MatchID)
		if err != nil {
			return nil, nil, err
		}
		return conv, p, nil
	}

	if draft.MatchID == "" {
		return nil, nil, errors.New("draft has neither a conversation nor a match")
	}
	p, err := a.match(ctx, draft.MatchID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := a.store.GetConversationByPlatformID(ctx, p.Platform, p.PlatformID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up conversation for %s: %w", p.ID, err)
	}
	if conv != nil && conv.Status == model.StatusArchived {
		return nil, nil, fmt.Errorf("conversation %s: %w", conv.ID, model.ErrArchived)
	}
	return conv, p, nil
}
