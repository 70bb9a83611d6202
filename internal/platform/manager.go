package platform

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/model"
)

// Store is the storage subset the manager persists matches through.
type Store interface {
	SaveMatch(ctx context.Context, p *model.Profile) error
	GetMatchByPlatformID(ctx context.Context, platform, platformID string) (*model.Profile, error)
}

// Manager routes requests to the registered platforms by tag.
type Manager struct {
	store Store
	log   *slog.Logger

	mu        sync.RWMutex
	platforms map[string]Platform
}

// NewManager creates a Manager over the given platforms.
func NewManager(store Store, log *slog.Logger, platforms ...Platform) *Manager {
	m := &Manager{
		store:     store,
		log:       logger.OrDiscard(log).With("component", "platform_manager"),
		platforms: make(map[string]Platform, len(platforms)),
	}
	for _, p := range platforms {
		m.Register(p)
	}
	return m
}

// NewManagerFromConfig registers every supported platform, sharing one
// credential store.
func NewManagerFromConfig(cfg config.PlatformsConfig, store Store, log *slog.Logger) (*Manager, error) {
	creds := NewCredentialStore(cfg.KeyringService, cfg.Accounts, log)
	m := NewManager(store, log)
	for _, name := range []string{Tinder, Hinge} {
		p, err := New(name, cfg, creds, log)
		if err != nil {
			return nil, err
		}
		m.Register(p)
	}
	return m, nil
}

// Register adds or replaces a platform.
func (m *Manager) Register(p Platform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.platforms[p.Name()] = p
}

// Platforms lists the registered tags in sorted order.
func (m *Manager) Platforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.platforms))
	for name := range m.platforms {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Get returns the platform registered under name.
func (m *Manager) Get(name string) (Platform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.platforms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedPlatform, name)
	}
	return p, nil
}

// IsAuthenticated reports whether name has a valid session. Unknown
// platforms are never authenticated.
func (m *Manager) IsAuthenticated(name string) bool {
	p, err := m.Get(name)
	if err != nil {
		return false
	}
	return p.IsAuthenticated()
}

// Authenticate starts a session on name.
func (m *Manager) Authenticate(ctx context.Context, name string, req AuthRequest) error {
	p, err := m.Get(name)
	if err != nil {
		return err
	}
	return p.Authenticate(ctx, req)
}

func (m *Manager) authenticated(name string) (Platform, error) {
	p, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	if !p.IsAuthenticated() {
		return nil, fmt.Errorf("%s: %w", name, model.ErrNotAuthenticated)
	}
	return p, nil
}

// GetMatches fetches up to limit matches from name and stores them.
func (m *Manager) GetMatches(ctx context.Context, name string, limit int) ([]model.Profile, error) {
	all, _, err := m.SyncMatches(ctx, name, limit)
	return all, err
}

// SyncMatches fetches and stores matches, also reporting the ones that were
// not stored before.
func (m *Manager) SyncMatches(ctx context.Context, name string, limit int) (all, fresh []model.Profile, err error) {
	p, err := m.authenticated(name)
	if err != nil {
		return nil, nil, err
	}
	profiles, err := p.GetMatches(ctx, limit)
	if err != nil {
		m.log.ErrorContext(ctx, "Failed to fetch matches", "platform", name, "error", err)
		return nil, nil, fmt.Errorf("failed to fetch %s matches: %w", name, err)
	}

	for i := range profiles {
		profile := &profiles[i]
		existing, err := m.store.GetMatchByPlatformID(ctx, profile.Platform, profile.PlatformID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to look up match %s: %w", profile.PlatformID, err)
		}
		if err := m.store.SaveMatch(ctx, profile); err != nil {
			m.log.ErrorContext(ctx, "Failed to save match", "platform", name, "platform_id", profile.PlatformID, "error", err)
			return nil, nil, fmt.Errorf("failed to save match %s: %w", profile.PlatformID, err)
		}
		if existing == nil {
			fresh = append(fresh, *profile)
		}
	}

	m.log.InfoContext(ctx, "Matches synced", "platform", name, "total", len(profiles), "new", len(fresh))
	return profiles, fresh, nil
}

// GetConversations lists remote conversations on name.
func (m *Manager) GetConversations(ctx context.Context, name string, limit int) ([]RemoteConversation, error) {
	p, err := m.authenticated(name)
	if err != nil {
		return nil, err
	}
	return p.GetConversations(ctx, limit)
}

// GetConversationMessages returns up to limit of the latest remote messages, oldest first.
func (m *Manager) GetConversationMessages(ctx context.Context, name, conversationRef string, limit int) ([]model.Message, error) {
	p, err := m.authenticated(name)
	if err != nil {
		return nil, err
	}
	return p.GetMessages(ctx, conversationRef, limit)
}

// SendMessage delivers text to the match identified by its platform reference.
func (m *Manager) SendMessage(ctx context.Context, name, matchID, text string) error {
	p, err := m.authenticated(name)
	if err != nil {
		return err
	}
	if err := p.SendMessage(ctx, matchID, text); err != nil {
		m.log.ErrorContext(ctx, "Failed to send message", "platform", name, "match_id", matchID, "error", err)
		return err
	}
	m.log.InfoContext(ctx, "Message sent", "platform", name, "match_id", matchID)
	return nil
}
