package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/model"
)

// Store is the storage subset the analytics service reads from.
type Store interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	GetMatch(ctx context.Context, id string) (*model.Profile, error)
	GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	GetMessagesBetween(ctx context.Context, start, end time.Time, userID string) ([]model.Message, error)
	CountMatchesByPlatform(ctx context.Context, userID string) (map[string]int, error)
	CountConversationsByPlatform(ctx context.Context, userID string) (map[string]int, error)
	CountMessagesByPlatform(ctx context.Context, userID string) (map[string]int, error)
	CountAIMessages(ctx context.Context, userID string) (generated, approved int, err error)
}

// PlatformTotals holds per-platform counts and their sum.
type PlatformTotals struct {
	Total      int            `json:"total"`
	ByPlatform map[string]int `json:"by_platform"`
}

// UserStats summarises a user's activity across platforms.
type UserStats struct {
	UserID         string         `json:"user_id,omitempty"`
	Matches        PlatformTotals `json:"matches"`
	Conversations  PlatformTotals `json:"conversations"`
	Messages       PlatformTotals `json:"messages"`
	AIGenerated    int            `json:"ai_generated"`
	AIApproved     int            `json:"ai_approved"`
	AIApprovalRate float64        `json:"ai_approval_rate"`
}

// Service runs the analytics over stored data.
type Service struct {
	store       Store
	defaultDays int
	now         func() time.Time
	log         *slog.Logger
}

// NewService creates a Service. defaultDays is used by Activity when called
// with a non-positive day count.
func NewService(store Store, defaultDays int, log *slog.Logger) *Service {
	if defaultDays <= 0 {
		defaultDays = 30
	}
	return &Service{
		store:       store,
		defaultDays: defaultDays,
		now:         time.Now,
		log:         logger.OrDiscard(log).With("component", "analytics"),
	}
}

// Insights builds the insight report for a stored conversation. Unknown ids
// yield model.ErrNotFound.
func (s *Service) Insights(ctx context.Context, conversationID string) (*InsightReport, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		s.log.WarnContext(ctx, "Conversation not found", "conversation_id", conversationID)
		return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}

	match, err := s.store.GetMatch(ctx, conv.MatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}

	messages, err := s.store.GetConversationMessages(ctx, conversationID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	slices.Reverse(messages)

	report := Insights(conv, match, messages)
	s.log.DebugContext(ctx, "Insights computed", "conversation_id", conversationID, "insights", len(report.Insights))
	return &report, nil
}

// Flow runs the flow analysis over a stored conversation.
func (s *Service) Flow(ctx context.Context, conversationID string) (*Flow, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, model.ErrNotFound)
	}
	messages, err := s.store.GetConversationMessages(ctx, conversationID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	slices.Reverse(messages)
	f := AnalyzeFlow(messages)
	return &f, nil
}

// Activity aggregates the user's messages over the last days days, today
// included. An empty userID covers every user.
func (s *Service) Activity(ctx context.Context, days int, userID string) (*Activity, error) {
	if days <= 0 {
		days = s.defaultDays
	}
	end := s.now()
	start := truncateDay(end).AddDate(0, 0, -(days - 1))

	messages, err := s.store.GetMessagesBetween(ctx, start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	a := Aggregate(messages, start, end)
	return &a, nil
}

// UserStats totals matches, conversations and messages per platform.
func (s *Service) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	matches, err := s.store.CountMatchesByPlatform(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}
	convs, err := s.store.CountConversationsByPlatform(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	msgs, err := s.store.CountMessagesByPlatform(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	generated, approved, err := s.store.CountAIMessages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count generated messages: %w", err)
	}

	return &UserStats{
		UserID:         userID,
		Matches:        totals(matches),
		Conversations:  totals(convs),
		Messages:       totals(msgs),
		AIGenerated:    generated,
		AIApproved:     approved,
		AIApprovalRate: ratio(approved, generated),
	}, nil
}

func totals(byPlatform map[string]int) PlatformTotals {
	if byPlatform == nil {
		byPlatform = map[string]int{}
	}
	t := PlatformTotals{ByPlatform: byPlatform}
	for _, n := range byPlatform {
		t.Total += n
	}
	return t
}
