// Package ai implements the optional text-generation backends used for
// enhanced profile analysis and message composition.
package ai

import (
	"context"

	"github.com/edgard/cupidbot/internal/model"
)

// Role is the speaker of a turn from the model's point of view. Messages the
// user sent are RoleAssistant; messages the match sent are RoleUser.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a chat transcript.
type Turn struct {
	Role Role
	Text string
}

// CompletionRequest is a system instruction plus an ordered transcript.
type CompletionRequest struct {
	System string
	Turns  []Turn
}

// Backend is a text-generation service. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// AnalyzeProfile extracts topics, hooks and tone from a profile summary.
	AnalyzeProfile(ctx context.Context, profile model.Profile) (model.Analysis, error)
	// Complete returns the model's reply to the request.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// TurnsFromHistory maps a chronological message history to model turns.
func TurnsFromHistory(history []model.Message) []Turn {
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		role := RoleUser
		if m.Sender == model.SenderUser {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Text: m.Content})
	}
	return turns
}
