package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/model"
)

type geminiBackend struct {
	client        *genai.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	model         string
	timeout       time.Duration
	maxRetries    int
	retryDelay    time.Duration
}

var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"topics": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":   {Type: genai.TypeString, Description: "Topic of interest."},
					"score":  {Type: genai.TypeInteger, Description: "Relevance from 1 to 10."},
					"reason": {Type: genai.TypeString, Description: "Why the topic was picked."},
				},
				Required: []string{"name", "score", "reason"},
			},
		},
		"hooks": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"text": {Type: genai.TypeString, Description: "Conversation starter."},
					"type": {Type: genai.TypeString, Enum: []string{"question", "comment"}},
				},
				Required: []string{"text", "type"},
			},
		},
		"tone": {Type: genai.TypeString, Description: "Overall tone of the profile."},
	},
	Required: []string{"topics", "hooks", "tone"},
}

func newGeminiBackend(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (*geminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	l := logger.OrDiscard(log).With("component", "gemini_backend")
	l.Info("Gemini backend initialized", "model", cfg.Model)

	return &geminiBackend{
		client: client,
		log:    l,
		contentConfig: &genai.GenerateContentConfig{
			Temperature: &temperature,
		},
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

func (g *geminiBackend) Name() string { return "gemini" }

func (g *geminiBackend) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err == nil {
			return g.extractText(resp)
		}
		lastErr = err

		var apiErr *genai.APIError
		if !errors.As(err, &apiErr) || (apiErr.Code != 500 && apiErr.Code != 503) || attempt == g.maxRetries {
			break
		}

		g.log.WarnContext(ctx, "Retrying Gemini call after server error", "attempt", attempt+1, "code", apiErr.Code, "delay", g.retryDelay)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.retryDelay):
		}
	}
	return "", fmt.Errorf("gemini API call failed: %w", lastErr)
}

func (g *geminiBackend) extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("request blocked by safety filter: %v", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini returned empty content")
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini returned empty text")
	}
	return text, nil
}

func (g *geminiBackend) AnalyzeProfile(ctx context.Context, p model.Profile) (model.Analysis, error) {
	cfg := *g.contentConfig
	cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: AnalyzerSystemInstruction}}}
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = analysisSchema

	contents := []*genai.Content{genai.NewContentFromText(AnalyzeProfilePrompt(p), genai.RoleUser)}
	text, err := g.generate(ctx, contents, &cfg)
	if err != nil {
		return model.Analysis{}, err
	}
	return ParseAnalysis(text)
}

func (g *geminiBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if len(req.Turns) == 0 {
		return "", errors.New("completion request has no turns")
	}

	cfg := *g.contentConfig
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, t := range req.Turns {
		var role genai.Role = genai.RoleUser
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}

	text, err := g.generate(ctx, contents, &cfg)
	if err != nil {
		return "", err
	}
	return CleanReply(text), nil
}
