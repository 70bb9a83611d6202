// Package model holds the data types shared by every cupidbot component:
// match profiles, conversations, messages, profile analyses and the
// insight/suggestion records produced by the analytics layer.
package model

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a referenced conversation or match does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthenticated is returned by platform operations without a valid session.
	ErrNotAuthenticated = errors.New("platform not authenticated")
	// ErrArchived is returned when an operation needs a live conversation.
	ErrArchived = errors.New("conversation archived")
	// ErrUnsupportedPlatform is returned for unknown platform tags.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrNotApproved is returned when sending a draft that was never approved.
	ErrNotApproved = errors.New("message not approved")
)

// TopicVocabulary is the fixed list of conversation topics recognised in bios
// and message text.
var TopicVocabulary = []string{"travel", "music", "food", "movies", "books", "sports", "hiking", "cooking"}

// Job is the occupation block of a profile.
type Job struct {
	Title   string `json:"title,omitempty"`
	Company string `json:"company,omitempty"`
}

// Profile is a normalized match profile.
type Profile struct {
	ID          string    `json:"id"`
	PlatformID  string    `json:"platform_id"`
	Platform    string    `json:"platform"`
	UserID      string    `json:"user_id,omitempty"`
	Name        string    `json:"name"`
	Age         int       `json:"age,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	Interests   []string  `json:"interests,omitempty"`
	Photos      []string  `json:"photos,omitempty"`
	Job         Job       `json:"job"`
	Education   string    `json:"education,omitempty"`
	Location    string    `json:"location,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
	Active      bool      `json:"is_active"`
}

// Summary renders the profile as the plain-text block handed to generation backends.
func (p Profile) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\n", p.Name)
	if p.Age > 0 {
		fmt.Fprintf(&sb, "Age: %d\n", p.Age)
	}
	fmt.Fprintf(&sb, "Bio: %s\n", p.Bio)
	fmt.Fprintf(&sb, "Interests: %s\n", strings.Join(p.Interests, ", "))
	if p.Job.Title != "" {
		if p.Job.Company != "" {
			fmt.Fprintf(&sb, "Job: %s at %s\n", p.Job.Title, p.Job.Company)
		} else {
			fmt.Fprintf(&sb, "Job: %s\n", p.Job.Title)
		}
	}
	if p.Education != "" {
		fmt.Fprintf(&sb, "Education: %s\n", p.Education)
	}
	return sb.String()
}

// SenderRole identifies who authored a message.
type SenderRole string

const (
	SenderUser  SenderRole = "user"
	SenderMatch SenderRole = "match"
)

// Message is a single conversation entry. A zero SentAt means the timestamp
// was missing or unparsable.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id,omitempty"`
	MatchID        string     `json:"match_id,omitempty"`
	Sender         SenderRole `json:"sender"`
	Content        string     `json:"content"`
	SentAt         time.Time  `json:"sent_at"`
	AIGenerated    bool       `json:"ai_generated"`
	AIApproved     bool       `json:"ai_approved"`
	PlatformID     string     `json:"platform_id,omitempty"`
}

// HasTimestamp reports whether SentAt carries a usable value.
func (m Message) HasTimestamp() bool {
	return !m.SentAt.IsZero()
}

// ConversationStatus is the persisted lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
)

// Conversation is the persisted thread between the user and one match.
// MessageCount is kept equal to the number of stored messages by the store.
type Conversation struct {
	ID            string             `json:"id"`
	MatchID       string             `json:"match_id"`
	UserID        string             `json:"user_id,omitempty"`
	Platform      string             `json:"platform"`
	PlatformID    string             `json:"platform_id"`
	StartedAt     time.Time          `json:"started_at"`
	LastMessageAt time.Time          `json:"last_message_at"`
	Status        ConversationStatus `json:"status"`
	AIEnabled     bool               `json:"ai_enabled"`
	MessageCount  int                `json:"message_count"`
}

// HookType classifies a conversation hook.
type HookType string

const (
	HookQuestion HookType = "question"
	HookComment  HookType = "comment"
)

// Topic is a scored subject of interest extracted from a profile.
type Topic struct {
	Name   string `json:"name"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// Hook is a conversation starter derived from a profile.
type Hook struct {
	Text string   `json:"text"`
	Type HookType `json:"type"`
}

// Analysis source tags.
const (
	SourceEnhanced = "enhanced"
	SourceBasic    = "basic"
)

// Analysis is the result of analyzing a profile.
type Analysis struct {
	Topics []Topic `json:"topics"`
	Hooks  []Hook  `json:"hooks"`
	Tone   string  `json:"tone"`
	Source string  `json:"source,omitempty"`
}

// Empty reports whether the analysis carries neither topics nor hooks.
func (a Analysis) Empty() bool {
	return len(a.Topics) == 0 && len(a.Hooks) == 0
}

// TopTopics returns up to n topics ordered by descending score. Equal scores
// keep their original order.
func (a Analysis) TopTopics(n int) []Topic {
	sorted := slices.Clone(a.Topics)
	slices.SortStableFunc(sorted, func(x, y Topic) int {
		return cmp.Compare(y.Score, x.Score)
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// InsightType classifies an insight.
type InsightType string

const (
	InsightWarning    InsightType = "warning"
	InsightSuggestion InsightType = "suggestion"
	InsightInfo       InsightType = "info"
)

// Insight is a single observation about a conversation.
type Insight struct {
	Type    InsightType `json:"type"`
	Message string      `json:"message"`
	Details string      `json:"details"`
}

// Suggestion actions.
const (
	ActionStartConversation  = "start_conversation"
	ActionIncreaseEngagement = "increase_engagement"
	ActionSuggestMeeting     = "suggest_meeting"
	ActionImproveTone        = "improve_tone"
	ActionAskQuestion        = "ask_question"
	ActionDeepenConversation = "deepen_conversation"
)

// Suggestion is a recommended next action for a conversation.
type Suggestion struct {
	Action  string `json:"action"`
	Reason  string `json:"reason"`
	Details string `json:"details"`
}
