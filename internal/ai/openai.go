package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/model"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

type openAIBackend struct {
	client      openaigo.Client
	log         *slog.Logger
	model       string
	temperature float64
}

func newOpenAIBackend(cfg config.AIConfig, log *slog.Logger) (*openAIBackend, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai API key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" || strings.HasPrefix(modelName, "gemini") {
		modelName = defaultOpenAIModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := openaigo.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(timeout),
	)

	l := logger.OrDiscard(log).With("component", "openai_backend")
	l.Info("OpenAI backend initialized", "model", modelName, "base_url", baseURL)

	return &openAIBackend{
		client:      client,
		log:         l,
		model:       modelName,
		temperature: float64(cfg.Temperature),
	}, nil
}

func (o *openAIBackend) Name() string { return "openai" }

func (o *openAIBackend) chat(ctx context.Context, messages []openaigo.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model:       openaigo.ChatModel(o.model),
		Messages:    messages,
		Temperature: openaigo.Float(o.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openai returned empty content")
	}
	return text, nil
}

func (o *openAIBackend) AnalyzeProfile(ctx context.Context, p model.Profile) (model.Analysis, error) {
	text, err := o.chat(ctx, []openaigo.ChatCompletionMessageParamUnion{
		openaigo.SystemMessage(AnalyzerSystemInstruction),
		openaigo.UserMessage(AnalyzeProfilePrompt(p)),
	})
	if err != nil {
		return model.Analysis{}, err
	}
	return ParseAnalysis(text)
}

func (o *openAIBackend) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if len(req.Turns) == 0 {
		return "", errors.New("completion request has no turns")
	}

	messages := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)
	if req.System != "" {
		messages = append(messages, openaigo.SystemMessage(req.System))
	}
	for _, t := range req.Turns {
		if t.Role == RoleAssistant {
			messages = append(messages, openaigo.AssistantMessage(t.Text))
		} else {
			messages = append(messages, openaigo.UserMessage(t.Text))
		}
	}

	text, err := o.chat(ctx, messages)
	if err != nil {
		o.log.WarnContext(ctx, "Completion failed", "error", err)
		return "", err
	}
	return CleanReply(text), nil
}
