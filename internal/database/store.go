package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/cupidbot/internal/model"
)

// Store defines the persistence operations used by the engine.
// Getters return nil, nil when the record does not exist.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMatch upserts a profile keyed by (platform, platform_id). An empty ID
	// becomes "<platform>_<platform_id>"; the stored ID is written back to p.
	SaveMatch(ctx context.Context, p *model.Profile) error
	GetMatch(ctx context.Context, id string) (*model.Profile, error)
	GetMatchByPlatformID(ctx context.Context, platform, platformID string) (*model.Profile, error)

	// SaveConversation upserts a conversation keyed by ID, generating one if empty.
	SaveConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	GetConversationByPlatformID(ctx context.Context, platform, platformID string) (*model.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id string, status model.ConversationStatus) error

	// SaveMessage inserts a message and bumps the owning conversation's
	// message_count and last_message_at in the same transaction. It reports
	// false when a message with the same platform reference already exists.
	SaveMessage(ctx context.Context, m *model.Message) (bool, error)

	// GetConversationMessages returns up to limit messages, most recent first.
	// A non-positive limit returns every message.
	GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)

	// GetActiveConversations returns active conversations ordered by latest activity.
	// An empty userID matches every user.
	GetActiveConversations(ctx context.Context, userID string, limit int) ([]*model.Conversation, error)

	// GetInactiveConversations returns active conversations whose last message predates before.
	GetInactiveConversations(ctx context.Context, before time.Time, limit int) ([]*model.Conversation, error)

	// GetMessagesBetween returns messages sent within [start, end] in chronological order.
	GetMessagesBetween(ctx context.Context, start, end time.Time, userID string) ([]model.Message, error)

	CountMatchesByPlatform(ctx context.Context, userID string) (map[string]int, error)
	CountConversationsByPlatform(ctx context.Context, userID string) (map[string]int, error)
	CountMessagesByPlatform(ctx context.Context, userID string) (map[string]int, error)
	CountAIMessages(ctx context.Context, userID string) (generated, approved int, err error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx. A nil logger discards output.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rollback is deferred by every write transaction; it is a no-op after commit.
func (s *sqlxStore) rollback(ctx context.Context, tx *sqlx.Tx) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.WarnContext(ctx, "Error rolling back transaction", "error", err)
	}
}

func (s *sqlxStore) SaveMatch(ctx context.Context, p *model.Profile) error {
	if p == nil {
		return errors.New("cannot save nil profile")
	}
	if p.Platform == "" || p.PlatformID == "" {
		return errors.New("profile must have platform and platform_id")
	}
	if p.ID == "" {
		p.ID = p.Platform + "_" + p.PlatformID
	}
	if p.LastUpdated.IsZero() {
		p.LastUpdated = time.Now().UTC()
	}

	row, err := newMatchRow(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile %s: %w", p.ID, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { s.rollback(ctx, tx) }()

	query := `
        INSERT INTO matches (id, platform, platform_id, user_id, name, age, bio, interests, photos, job, education, location, last_updated, is_active)
        VALUES (:id, :platform, :platform_id, :user_id, :name, :age, :bio, :interests, :photos, :job, :education, :location, :last_updated, :is_active)
        ON CONFLICT (platform, platform_id) DO UPDATE SET
            user_id = excluded.user_id,
            name = excluded.name,
            age = excluded.age,
            bio = excluded.bio,
            interests = excluded.interests,
            photos = excluded.photos,
            job = excluded.job,
            education = excluded.education,
            location = excluded.location,
            last_updated = excluded.last_updated,
            is_active = excluded.is_active;
    `
	if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
		s.logger.ErrorContext(ctx, "Error saving match", "match_id", p.ID, "error", err)
		return fmt.Errorf("failed to save match %s: %w", p.ID, err)
	}

	// An earlier save may have stored the same platform profile under another id.
	var storedID string
	if err := tx.GetContext(ctx, &storedID, `SELECT id FROM matches WHERE platform = ? AND platform_id = ?`, p.Platform, p.PlatformID); err != nil {
		return fmt.Errorf("failed to read back match id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	p.ID = storedID
	s.logger.DebugContext(ctx, "Match saved", "match_id", p.ID, "platform", p.Platform)
	return nil
}

const matchColumns = `id, platform, platform_id, user_id, name, age, bio, interests, photos, job, education, location, last_updated, is_active`

func (s *sqlxStore) getMatch(ctx context.Context, query string, args ...any) (*model.Profile, error) {
	var row matchRow
	err := s.db.GetContext(ctx, &row, query, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	p, err := row.toModel()
	if err != nil {
		return nil, fmt.Errorf("failed to decode match %s: %w", row.ID, err)
	}
	return p, nil
}

func (s *sqlxStore) GetMatch(ctx context.Context, id string) (*model.Profile, error) {
	if id == "" {
		return nil, errors.New("match id cannot be empty")
	}
	return s.getMatch(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
}

func (s *sqlxStore) GetMatchByPlatformID(ctx context.Context, platform, platformID string) (*model.Profile, error) {
	return s.getMatch(ctx, `SELECT `+matchColumns+` FROM matches WHERE platform = ? AND platform_id = ?`, platform, platformID)
}

func (s *sqlxStore) SaveConversation(ctx context.Context, c *model.Conversation) error {
	if c == nil {
		return errors.New("cannot save nil conversation")
	}
	if c.MatchID == "" {
		return errors.New("conversation must reference a match")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = model.StatusActive
	}

	query := `
        INSERT INTO conversations (id, match_id, user_id, platform, platform_id, started_at, last_message_at, status, ai_enabled, message_count)
        VALUES (:id, :match_id, :user_id, :platform, :platform_id, :started_at, :last_message_at, :status, :ai_enabled, :message_count)
        ON CONFLICT (id) DO UPDATE SET
            platform_id = excluded.platform_id,
            last_message_at = COALESCE(excluded.last_message_at, conversations.last_message_at),
            status = excluded.status,
            ai_enabled = excluded.ai_enabled;
    `
	if _, err := s.db.NamedExecContext(ctx, query, newConversationRow(c)); err != nil {
		s.logger.ErrorContext(ctx, "Error saving conversation", "conversation_id", c.ID, "error", err)
		return fmt.Errorf("failed to save conversation %s: %w", c.ID, err)
	}
	return nil
}

const conversationColumns = `id, match_id, user_id, platform, platform_id, started_at, last_message_at, status, ai_enabled, message_count`

func (s *sqlxStore) getConversation(ctx context.Context, query string, args ...any) (*model.Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, query, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return row.toModel(), nil
}

func (s *sqlxStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	if id == "" {
		return nil, errors.New("conversation id cannot be empty")
	}
	return s.getConversation(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
}

func (s *sqlxStore) GetConversationByPlatformID(ctx context.Context, platform, platformID string) (*model.Conversation, error) {
	if platformID == "" {
		return nil, nil
	}
	return s.getConversation(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE platform = ? AND platform_id = ?`, platform, platformID)
}

func (s *sqlxStore) UpdateConversationStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update conversation %s status: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("conversation %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *sqlxStore) SaveMessage(ctx context.Context, m *model.Message) (bool, error) {
	if m == nil {
		return false, errors.New("cannot save nil message")
	}
	if m.ConversationID == "" {
		return false, errors.New("message must have a conversation_id")
	}
	if m.Sender != model.SenderUser && m.Sender != model.SenderMatch {
		return false, fmt.Errorf("invalid sender %q", m.Sender)
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { s.rollback(ctx, tx) }()

	query := `
        INSERT INTO messages (id, conversation_id, sender_type, content, sent_at, ai_generated, ai_approved, platform_id)
        VALUES (:id, :conversation_id, :sender_type, :content, :sent_at, :ai_generated, :ai_approved, :platform_id)
        ON CONFLICT DO NOTHING;
    `
	res, err := tx.NamedExecContext(ctx, query, newMessageRow(m))
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message", "conversation_id", m.ConversationID, "error", err)
		return false, fmt.Errorf("failed to save message in conversation %s: %w", m.ConversationID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.DebugContext(ctx, "Message already stored", "conversation_id", m.ConversationID, "platform_id", m.PlatformID)
		return false, nil
	}

	sentAt := formatTime(m.SentAt)
	upd, err := tx.ExecContext(ctx, `
        UPDATE conversations
        SET message_count = message_count + 1,
            last_message_at = CASE
                WHEN last_message_at IS NULL OR last_message_at < ? THEN ?
                ELSE last_message_at
            END
        WHERE id = ?;
    `, sentAt, sentAt, m.ConversationID)
	if err != nil {
		return false, fmt.Errorf("failed to update conversation %s counters: %w", m.ConversationID, err)
	}
	if n, err := upd.RowsAffected(); err == nil && n == 0 {
		return false, fmt.Errorf("conversation %s: %w", m.ConversationID, model.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message saved", "conversation_id", m.ConversationID, "message_id", m.ID)
	return true, nil
}

const messageColumns = `m.seq, m.id, m.conversation_id, m.sender_type, m.content, m.sent_at, m.ai_generated, m.ai_approved, m.platform_id`

func (s *sqlxStore) selectMessages(ctx context.Context, query string, args ...any) ([]model.Message, error) {
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *sqlxStore) GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	msgs, err := s.selectMessages(ctx, `
        SELECT `+messageColumns+`
        FROM messages m
        WHERE m.conversation_id = ?
        ORDER BY m.sent_at DESC, m.seq DESC
        LIMIT ?;
    `, conversationID, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching conversation messages", "conversation_id", conversationID, "error", err)
		return nil, fmt.Errorf("failed to get messages for conversation %s: %w", conversationID, err)
	}
	return msgs, nil
}

func (s *sqlxStore) selectConversations(ctx context.Context, query string, args ...any) ([]*model.Conversation, error) {
	var rows []conversationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*model.Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *sqlxStore) GetActiveConversations(ctx context.Context, userID string, limit int) ([]*model.Conversation, error) {
	if limit <= 0 {
		limit = -1
	}
	convs, err := s.selectConversations(ctx, `
        SELECT `+conversationColumns+`
        FROM conversations
        WHERE status = 'active' AND (? = '' OR user_id = ?)
        ORDER BY last_message_at DESC
        LIMIT ?;
    `, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get active conversations: %w", err)
	}
	return convs, nil
}

func (s *sqlxStore) GetInactiveConversations(ctx context.Context, before time.Time, limit int) ([]*model.Conversation, error) {
	if limit <= 0 {
		limit = -1
	}
	convs, err := s.selectConversations(ctx, `
        SELECT `+conversationColumns+`
        FROM conversations
        WHERE status = 'active' AND last_message_at IS NOT NULL AND last_message_at < ?
        ORDER BY last_message_at ASC
        LIMIT ?;
    `, formatTime(before), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get inactive conversations: %w", err)
	}
	return convs, nil
}

func (s *sqlxStore) GetMessagesBetween(ctx context.Context, start, end time.Time, userID string) ([]model.Message, error) {
	msgs, err := s.selectMessages(ctx, `
        SELECT `+messageColumns+`
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        WHERE m.sent_at >= ? AND m.sent_at <= ? AND (? = '' OR c.user_id = ?)
        ORDER BY m.sent_at ASC, m.seq ASC;
    `, formatTime(start), formatTime(end), userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages between %s and %s: %w", start, end, err)
	}
	return msgs, nil
}

type platformCount struct {
	Platform string `db:"platform"`
	Count    int    `db:"count"`
}

func (s *sqlxStore) countByPlatform(ctx context.Context, query, userID string) (map[string]int, error) {
	var rows []platformCount
	if err := s.db.SelectContext(ctx, &rows, query, userID, userID); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Platform] = r.Count
	}
	return out, nil
}

func (s *sqlxStore) CountMatchesByPlatform(ctx context.Context, userID string) (map[string]int, error) {
	counts, err := s.countByPlatform(ctx, `
        SELECT platform, COUNT(*) AS count FROM matches
        WHERE (? = '' OR user_id = ?)
        GROUP BY platform;
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}
	return counts, nil
}

func (s *sqlxStore) CountConversationsByPlatform(ctx context.Context, userID string) (map[string]int, error) {
	counts, err := s.countByPlatform(ctx, `
        SELECT platform, COUNT(*) AS count FROM conversations
        WHERE (? = '' OR user_id = ?)
        GROUP BY platform;
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	return counts, nil
}

func (s *sqlxStore) CountMessagesByPlatform(ctx context.Context, userID string) (map[string]int, error) {
	counts, err := s.countByPlatform(ctx, `
        SELECT c.platform AS platform, COUNT(m.seq) AS count
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        WHERE (? = '' OR c.user_id = ?)
        GROUP BY c.platform;
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	return counts, nil
}

func (s *sqlxStore) CountAIMessages(ctx context.Context, userID string) (int, int, error) {
	var row struct {
		Generated int `db:"generated"`
		Approved  int `db:"approved"`
	}
	err := s.db.GetContext(ctx, &row, `
        SELECT
            COUNT(CASE WHEN m.ai_generated = 1 THEN 1 END) AS generated,
            COUNT(CASE WHEN m.ai_generated = 1 AND m.ai_approved = 1 THEN 1 END) AS approved
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        WHERE (? = '' OR c.user_id = ?);
    `, userID, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count ai messages: %w", err)
	}
	return row.Generated, row.Approved, nil
}

// RunSQLMaintenance executes VACUUM and refreshes planner statistics.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)")
	start := time.Now()

	// VACUUM cannot run inside a transaction.
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
		}
		s.logger.ErrorContext(ctx, "VACUUM failed", "error", err)
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		s.logger.WarnContext(ctx, "ANALYZE failed", "error", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed", "duration", time.Since(start))
	return nil
}
