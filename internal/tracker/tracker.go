// Package tracker keeps the in-memory registry of conversations the user
// is actively following and runs one polling monitor per conversation to
// detect new remote messages.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/edgard/cupidbot/internal/analytics"
	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/model"
)

// State is the lifecycle state of a conversation in the tracker.
type State string

const (
	StateUntracked  State = "untracked"
	StateTracked    State = "tracked"
	StateMonitoring State = "monitoring"
	StateStopped    State = "stopped"
	StateArchived   State = "archived"
)

const recentTopicWindow = 5

// Store is the storage subset the tracker reads and writes.
type Store interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	GetMatch(ctx context.Context, id string) (*model.Profile, error)
	GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	UpdateConversationStatus(ctx context.Context, id string, status model.ConversationStatus) error
}

// Platforms is the platform access the monitors need.
type Platforms interface {
	IsAuthenticated(platform string) bool
	GetConversationMessages(ctx context.Context, platform, conversationRef string, limit int) ([]model.Message, error)
}

// Notifier receives new-message events from monitors.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, conv *model.Conversation, match *model.Profile, msg model.Message, urgent bool) (bool, error)
}

// Options tune polling.
type Options struct {
	PollInterval time.Duration
	FetchLimit   int
	HistoryLimit int
	StopTimeout  time.Duration
}

// OptionsFromConfig converts the tracker configuration section.
func OptionsFromConfig(cfg config.TrackerConfig) Options {
	return Options{
		PollInterval: cfg.PollInterval,
		FetchLimit:   cfg.FetchLimit,
		HistoryLimit: cfg.HistoryLimit,
		StopTimeout:  cfg.StopTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = config.DefaultPollInterval
	}
	if o.FetchLimit <= 0 {
		o.FetchLimit = config.DefaultFetchLimit
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = config.DefaultHistoryLimit
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = config.DefaultStopTimeout
	}
	return o
}

// Snapshot is a copy of a tracked conversation's cached state.
type Snapshot struct {
	Conversation model.Conversation `json:"conversation"`
	Match        *model.Profile     `json:"match,omitempty"`
	Messages     []model.Message    `json:"messages"`
	KnownCount   int                `json:"known_count"`
	State        State              `json:"state"`
}

type monitor struct {
	platform string
	cancel   context.CancelFunc
	done     chan struct{}
}

func (m *monitor) running() bool {
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

type entry struct {
	conv       model.Conversation
	match      *model.Profile
	messages   []model.Message
	knownCount int
	state      State
	monitor    *monitor
}

// Tracker is safe for concurrent use. Every registry read and write, from
// callers and from monitors alike, happens under mu.
type Tracker struct {
	store     Store
	platforms Platforms
	notifier  Notifier
	opts      Options
	log       *slog.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	archived map[string]struct{}
}

// New creates a Tracker. notifier may be nil.
func New(store Store, platforms Platforms, notifier Notifier, opts Options, log *slog.Logger) *Tracker {
	return &Tracker{
		store:     store,
		platforms: platforms,
		notifier:  notifier,
		opts:      opts.withDefaults(),
		log:       logger.OrDiscard(log).With("component", "conversation_tracker"),
		entries:   make(map[string]*entry),
		archived:  make(map[string]struct{}),
	}
}

// Track loads a conversation and its message snapshot into the registry.
// Tracking an already tracked conversation is a no-op.
func (t *Tracker) Track(ctx context.Context, id string) error {
	t.mu.Lock()
	_, ok := t.entries[id]
	t.mu.Unlock()
	if ok {
		return nil
	}

	conv, match, messages, err := t.load(ctx, id)
	if err != nil {
		return err
	}
	if conv.Status == model.StatusArchived {
		return fmt.Errorf("conversation %s: %w", id, model.ErrArchived)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; ok {
		return nil
	}
	t.entries[id] = &entry{
		conv:       *conv,
		match:      match,
		messages:   messages,
		knownCount: conv.MessageCount,
		state:      StateTracked,
	}
	t.log.InfoContext(ctx, "Tracking conversation", "conversation_id", id, "message_count", conv.MessageCount)
	return nil
}

// load reads a conversation, its match and its chronological history.
func (t *Tracker) load(ctx context.Context, id string) (*model.Conversation, *model.Profile, []model.Message, error) {
	conv, err := t.store.GetConversation(ctx, id)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	if conv == nil {
		t.log.WarnContext(ctx, "Conversation not found", "conversation_id", id)
		return nil, nil, nil, fmt.Errorf("conversation %s: %w", id, model.ErrNotFound)
	}
	match, err := t.store.GetMatch(ctx, conv.MatchID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load match %s: %w", conv.MatchID, err)
	}
	messages, err := t.store.GetConversationMessages(ctx, id, t.opts.HistoryLimit)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load messages for %s: %w", id, err)
	}
	slices.Reverse(messages)
	return conv, match, messages, nil
}

// StopTracking drops a conversation from the registry and stops its monitor.
func (t *Tracker) StopTracking(ctx context.Context, id string) error {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}

	if e.monitor != nil {
		t.join(ctx, id, e.monitor)
	}
	t.log.InfoContext(ctx, "Stopped tracking conversation", "conversation_id", id)
	return nil
}

// StartMonitoring tracks id if needed and starts its polling monitor on
// platform, defaulting to the conversation's own platform. A non-positive
// interval uses the configured poll interval. Calling it while a monitor
// runs is a no-op.
func (t *Tracker) StartMonitoring(ctx context.Context, id, platform string, interval time.Duration) error {
	if err := t.Track(ctx, id); err != nil {
		return err
	}
	if interval <= 0 {
		interval = t.opts.PollInterval
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, model.ErrNotFound)
	}
	if e.monitor != nil && e.monitor.running() {
		return nil
	}
	if platform == "" {
		platform = e.conv.Platform
	}

	mctx, cancel := context.WithCancel(context.Background())
	m := &monitor{platform: platform, cancel: cancel, done: make(chan struct{})}
	e.monitor = m
	e.state = StateMonitoring

	go t.run(mctx, id, m, interval)
	t.log.InfoContext(ctx, "Monitoring conversation", "conversation_id", id, "platform", platform, "interval", interval)
	return nil
}

// StopMonitoring cancels the monitor of id and waits up to the stop timeout
// for it to exit. The handle is dropped either way.
func (t *Tracker) StopMonitoring(ctx context.Context, id string) error {
	t.mu.Lock()
	e, ok := t.entries[id]
	var m *monitor
	if ok && e.monitor != nil {
		m = e.monitor
		e.monitor = nil
		e.state = StateStopped
	}
	t.mu.Unlock()

	if m != nil {
		t.join(ctx, id, m)
	}
	return nil
}

// join cancels m and waits a bounded time for it to finish.
func (t *Tracker) join(ctx context.Context, id string, m *monitor) bool {
	m.cancel()
	timer := time.NewTimer(t.opts.StopTimeout)
	defer timer.Stop()

	select {
	case <-m.done:
		return true
	case <-timer.C:
		t.log.WarnContext(ctx, "Monitor did not stop in time, abandoning it", "conversation_id", id, "timeout", t.opts.StopTimeout)
		return false
	}
}

// Archive persists the archived status and stops tracking the conversation.
func (t *Tracker) Archive(ctx context.Context, id string) error {
	if err := t.store.UpdateConversationStatus(ctx, id, model.StatusArchived); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			t.log.WarnContext(ctx, "Cannot archive unknown conversation", "conversation_id", id)
		}
		return fmt.Errorf("failed to archive conversation %s: %w", id, err)
	}
	if err := t.StopTracking(ctx, id); err != nil {
		return err
	}

	t.mu.Lock()
	t.archived[id] = struct{}{}
	t.mu.Unlock()

	t.log.InfoContext(ctx, "Conversation archived", "conversation_id", id)
	return nil
}

// State reports the tracker state of id.
func (t *Tracker) State(id string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		return e.state
	}
	if _, ok := t.archived[id]; ok {
		return StateArchived
	}
	return StateUntracked
}

// Snapshot returns a copy of the cached state of a tracked conversation.
func (t *Tracker) Snapshot(id string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

func (e *entry) snapshot() Snapshot {
	s := Snapshot{
		Conversation: e.conv,
		Messages:     slices.Clone(e.messages),
		KnownCount:   e.knownCount,
		State:        e.state,
	}
	if e.match != nil {
		m := *e.match
		s.Match = &m
	}
	return s
}

// Tracked lists the tracked conversation ids in sorted order.
func (t *Tracker) Tracked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close stops every monitor. Tracked entries are kept.
func (t *Tracker) Close(ctx context.Context) {
	t.mu.Lock()
	var ids []string
	monitors := map[string]*monitor{}
	for id, e := range t.entries {
		if e.monitor != nil {
			ids = append(ids, id)
			monitors[id] = e.monitor
			e.monitor = nil
			e.state = StateStopped
		}
	}
	t.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.join(ctx, id, monitors[id])
		}()
	}
	wg.Wait()
	if len(ids) > 0 {
		t.log.InfoContext(ctx, "All monitors stopped", "count", len(ids))
	}
}

// ConversationContext is the derived view used for suggestions and replies.
type ConversationContext struct {
	Conversation model.Conversation `json:"conversation"`
	Match        model.Profile      `json:"match"`
	Messages     []model.Message    `json:"messages"`
	Flow         analytics.Flow     `json:"flow"`
	RecentTopics []string           `json:"recent_topics"`
}

// Context derives the conversation context of id from the tracked snapshot,
// or from storage when id is not tracked. A missing conversation or match
// yields model.ErrNotFound.
func (t *Tracker) Context(ctx context.Context, id string) (*ConversationContext, error) {
	var (
		conv     model.Conversation
		match    *model.Profile
		messages []model.Message
	)

	if snap, ok := t.Snapshot(id); ok {
		conv, match, messages = snap.Conversation, snap.Match, snap.Messages
	} else {
		c, m, msgs, err := t.load(ctx, id)
		if err != nil {
			return nil, err
		}
		conv, match, messages = *c, m, msgs
	}
	if match == nil {
		t.log.WarnContext(ctx, "Match not found for conversation", "conversation_id", id, "match_id", conv.MatchID)
		return nil, fmt.Errorf("match %s: %w", conv.MatchID, model.ErrNotFound)
	}

	return &ConversationContext{
		Conversation: conv,
		Match:        *match,
		Messages:     messages,
		Flow:         analytics.AnalyzeFlow(messages),
		RecentTopics: analytics.RecentTopics(messages, recentTopicWindow),
	}, nil
}
