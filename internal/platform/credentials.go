package platform

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/logger"
)

const defaultKeyringService = "cupidbot"

// Credentials is a platform session.
type Credentials struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"expiry"`
	UserID string    `json:"user_id,omitempty"`
}

// Valid reports whether the session has a token that has not expired.
// A session without an expiry is not valid.
func (c Credentials) Valid(now time.Time) bool {
	return c.Token != "" && !c.Expiry.IsZero() && now.Before(c.Expiry)
}

// CredentialStore keeps platform sessions in the OS keyring, falling back
// to tokens from the configuration file when the keyring has none.
type CredentialStore struct {
	service  string
	fallback map[string]config.PlatformConfig
	log      *slog.Logger
}

// NewCredentialStore creates a store under the given keyring service name.
func NewCredentialStore(service string, fallback map[string]config.PlatformConfig, log *slog.Logger) *CredentialStore {
	if service == "" {
		service = defaultKeyringService
	}
	return &CredentialStore{
		service:  service,
		fallback: fallback,
		log:      logger.OrDiscard(log).With("component", "credentials"),
	}
}

// Load returns the stored session for platform, or the configured token
// when the keyring has nothing usable. A zero Credentials means none.
func (s *CredentialStore) Load(platform string) Credentials {
	raw, err := keyring.Get(s.service, platform)
	if err == nil {
		var c Credentials
		if err := json.Unmarshal([]byte(raw), &c); err == nil {
			return c
		}
		s.log.Warn("Ignoring malformed keyring entry", "platform", platform)
	} else if !errors.Is(err, keyring.ErrNotFound) {
		s.log.Debug("Keyring unavailable, using configured credentials", "platform", platform, "error", err)
	}

	account := s.fallback[platform]
	return Credentials{Token: account.Token, Expiry: account.TokenExpiry}
}

// Save stores c for platform.
func (s *CredentialStore) Save(platform string, c Credentials) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := keyring.Set(s.service, platform, string(data)); err != nil {
		return fmt.Errorf("failed to store credentials for %s: %w", platform, err)
	}
	return nil
}

// Delete removes the stored session for platform.
func (s *CredentialStore) Delete(platform string) error {
	if err := keyring.Delete(s.service, platform); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete credentials for %s: %w", platform, err)
	}
	return nil
}
