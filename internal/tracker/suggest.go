package tracker

import (
	"context"
	"errors"

	"github.com/edgard/cupidbot/internal/analytics"
	"github.com/edgard/cupidbot/internal/model"
)

const (
	lowEngagement    = 0.3
	meetingThreshold = 20
	earlyThreshold   = 5
)

// SuggestActions recommends next steps for a conversation. Without a usable
// context it suggests starting the conversation.
func (t *Tracker) SuggestActions(ctx context.Context, id string) ([]model.Suggestion, error) {
	cc, err := t.Context(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return []model.Suggestion{{
			Action: model.ActionStartConversation,
			Reason: "No conversation history found",
		}}, nil
	}
	if err != nil {
		return nil, err
	}
	return suggest(cc), nil
}

func suggest(cc *ConversationContext) []model.Suggestion {
	count := cc.Conversation.MessageCount
	if count == 0 {
		count = cc.Flow.MessageCount
	}

	var out []model.Suggestion
	if cc.Flow.EngagementLevel < lowEngagement {
		out = append(out, model.Suggestion{
			Action:  model.ActionIncreaseEngagement,
			Reason:  "Low engagement detected",
			Details: "Try asking more personal questions or sharing more about yourself",
		})
	}
	if count >= meetingThreshold {
		out = append(out, model.Suggestion{
			Action:  model.ActionSuggestMeeting,
			Reason:  "Conversation has good momentum",
			Details: "Consider suggesting a phone call or meeting in person",
		})
	}
	if cc.Flow.Sentiment == analytics.SentimentNegative {
		out = append(out, model.Suggestion{
			Action:  model.ActionImproveTone,
			Reason:  "Conversation has negative sentiment",
			Details: "Try shifting to more positive topics or using more upbeat language",
		})
	}
	if len(out) > 0 {
		return out
	}

	if count < earlyThreshold {
		return []model.Suggestion{{
			Action:  model.ActionAskQuestion,
			Reason:  "Keep conversation flowing",
			Details: "Ask about their interests or recent activities",
		}}
	}
	return []model.Suggestion{{
		Action:  model.ActionDeepenConversation,
		Reason:  "Conversation is established",
		Details: "Move beyond small talk to more meaningful topics",
	}}
}
