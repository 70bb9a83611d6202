package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/edgard/cupidbot/internal/model"
)

// timeLayout is fixed width so that stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

// parseTime returns the zero time for empty or malformed values.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}

type matchRow struct {
	ID          string `db:"id"`
	Platform    string `db:"platform"`
	PlatformID  string `db:"platform_id"`
	UserID      string `db:"user_id"`
	Name        string `db:"name"`
	Age         int    `db:"age"`
	Bio         string `db:"bio"`
	Interests   string `db:"interests"`
	Photos      string `db:"photos"`
	Job         string `db:"job"`
	Education   string `db:"education"`
	Location    string `db:"location"`
	LastUpdated string `db:"last_updated"`
	IsActive    bool   `db:"is_active"`
}

func newMatchRow(p *model.Profile) (matchRow, error) {
	interests, err := json.Marshal(nonNil(p.Interests))
	if err != nil {
		return matchRow{}, err
	}
	photos, err := json.Marshal(nonNil(p.Photos))
	if err != nil {
		return matchRow{}, err
	}
	job, err := json.Marshal(p.Job)
	if err != nil {
		return matchRow{}, err
	}
	return matchRow{
		ID:          p.ID,
		Platform:    p.Platform,
		PlatformID:  p.PlatformID,
		UserID:      p.UserID,
		Name:        p.Name,
		Age:         p.Age,
		Bio:         p.Bio,
		Interests:   string(interests),
		Photos:      string(photos),
		Job:         string(job),
		Education:   p.Education,
		Location:    p.Location,
		LastUpdated: formatTime(p.LastUpdated),
		IsActive:    p.Active,
	}, nil
}

func (r matchRow) toModel() (*model.Profile, error) {
	p := &model.Profile{
		ID:          r.ID,
		Platform:    r.Platform,
		PlatformID:  r.PlatformID,
		UserID:      r.UserID,
		Name:        r.Name,
		Age:         r.Age,
		Bio:         r.Bio,
		Education:   r.Education,
		Location:    r.Location,
		LastUpdated: parseTime(r.LastUpdated),
		Active:      r.IsActive,
	}
	if r.Interests != "" {
		if err := json.Unmarshal([]byte(r.Interests), &p.Interests); err != nil {
			return nil, err
		}
	}
	if r.Photos != "" {
		if err := json.Unmarshal([]byte(r.Photos), &p.Photos); err != nil {
			return nil, err
		}
	}
	if r.Job != "" {
		if err := json.Unmarshal([]byte(r.Job), &p.Job); err != nil {
			return nil, err
		}
	}
	return p, nil
}

type conversationRow struct {
	ID            string         `db:"id"`
	MatchID       string         `db:"match_id"`
	UserID        string         `db:"user_id"`
	Platform      string         `db:"platform"`
	PlatformID    string         `db:"platform_id"`
	StartedAt     string         `db:"started_at"`
	LastMessageAt sql.NullString `db:"last_message_at"`
	Status        string         `db:"status"`
	AIEnabled     bool           `db:"ai_enabled"`
	MessageCount  int            `db:"message_count"`
}

func newConversationRow(c *model.Conversation) conversationRow {
	status := c.Status
	if status == "" {
		status = model.StatusActive
	}
	return conversationRow{
		ID:            c.ID,
		MatchID:       c.MatchID,
		UserID:        c.UserID,
		Platform:      c.Platform,
		PlatformID:    c.PlatformID,
		StartedAt:     formatTime(c.StartedAt),
		LastMessageAt: formatNullTime(c.LastMessageAt),
		Status:        string(status),
		AIEnabled:     c.AIEnabled,
		MessageCount:  c.MessageCount,
	}
}

func (r conversationRow) toModel() *model.Conversation {
	return &model.Conversation{
		ID:            r.ID,
		MatchID:       r.MatchID,
		UserID:        r.UserID,
		Platform:      r.Platform,
		PlatformID:    r.PlatformID,
		StartedAt:     parseTime(r.StartedAt),
		LastMessageAt: parseTime(r.LastMessageAt.String),
		Status:        model.ConversationStatus(r.Status),
		AIEnabled:     r.AIEnabled,
		MessageCount:  r.MessageCount,
	}
}

type messageRow struct {
	Seq            int64          `db:"seq"`
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	SenderType     string         `db:"sender_type"`
	Content        string         `db:"content"`
	SentAt         sql.NullString `db:"sent_at"`
	AIGenerated    bool           `db:"ai_generated"`
	AIApproved     bool           `db:"ai_approved"`
	PlatformID     string         `db:"platform_id"`
}

func newMessageRow(m *model.Message) messageRow {
	return messageRow{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderType:     string(m.Sender),
		Content:        m.Content,
		SentAt:         formatNullTime(m.SentAt),
		AIGenerated:    m.AIGenerated,
		AIApproved:     m.AIApproved,
		PlatformID:     m.PlatformID,
	}
}

func (r messageRow) toModel() model.Message {
	return model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Sender:         model.SenderRole(r.SenderType),
		Content:        r.Content,
		SentAt:         parseTime(r.SentAt.String),
		AIGenerated:    r.AIGenerated,
		AIApproved:     r.AIApproved,
		PlatformID:     r.PlatformID,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
