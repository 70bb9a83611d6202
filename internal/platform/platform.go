// Package platform talks to the dating platforms. Each platform is one
// implementation of Platform; New maps a platform tag to its
// implementation, and Manager exposes the operations the rest of the
// application consumes.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/model"
)

// Supported platform tags.
const (
	Tinder = "tinder"
	Hinge  = "hinge"
)

const defaultRequestTimeout = 30 * time.Second

// AuthRequest carries whatever a platform needs to start a session. Tinder
// takes a token; Hinge takes either a token or a phone number with its
// verification code.
type AuthRequest struct {
	Token            string
	PhoneNumber      string
	VerificationCode string
}

// RemoteConversation is a conversation as listed by a platform.
type RemoteConversation struct {
	ID           string    `json:"id"`
	MatchID      string    `json:"match_id"`
	LastActivity time.Time `json:"last_activity"`
}

// Platform is the capability set every platform implements.
type Platform interface {
	Name() string
	IsAuthenticated() bool
	Authenticate(ctx context.Context, req AuthRequest) error
	// GetMatches returns normalized match profiles.
	GetMatches(ctx context.Context, limit int) ([]model.Profile, error)
	GetConversations(ctx context.Context, limit int) ([]RemoteConversation, error)
	// GetMessages returns up to limit of the latest messages, oldest first.
	GetMessages(ctx context.Context, conversationRef string, limit int) ([]model.Message, error)
	SendMessage(ctx context.Context, matchID, text string) error
	NormalizeProfile(raw json.RawMessage) (model.Profile, error)
}

// New creates the Platform registered for name.
func New(name string, cfg config.PlatformsConfig, creds *CredentialStore, log *slog.Logger) (Platform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	account := cfg.Accounts[name]

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	switch name {
	case Tinder:
		return newTinder(account.BaseURL, httpClient, creds, log), nil
	case Hinge:
		return newHinge(account.BaseURL, httpClient, creds, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedPlatform, name)
	}
}

// matchKey is the local id of a match profile.
func matchKey(platform, platformID string) string {
	return platform + "_" + platformID
}
