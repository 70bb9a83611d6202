package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgard/cupidbot/internal/config"
)

// NewBackend returns the backend selected by cfg.Backend, or nil when
// enhanced generation is disabled.
func NewBackend(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (Backend, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	switch cfg.Backend {
	case "gemini":
		b, err := newGeminiBackend(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini backend: %w", err)
		}
		return b, nil
	case "openai":
		b, err := newOpenAIBackend(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai backend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown AI backend: %s", cfg.Backend)
	}
}
