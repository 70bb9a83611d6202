package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/edgard/cupidbot/internal/model"
	"github.com/edgard/cupidbot/internal/sanitize"
)

// AnalyzerSystemInstruction frames the profile analysis request.
const AnalyzerSystemInstruction = "You are an expert dating profile analyzer."

const analyzeProfilePrompt = `Analyze this dating profile and identify:
1. Key topics of interest, each with a relevance score from 1 to 10 and a short reason
2. Conversation hooks: specific, personal openers, marked as "question" or "comment"
3. The overall tone of the profile (for example friendly, witty, serious, adventurous)

Return JSON only, in this shape:
{"topics":[{"name":"...","score":7,"reason":"..."}],"hooks":[{"text":"...","type":"question"}],"tone":"..."}

Profile:
%s`

// AnalyzeProfilePrompt renders the user prompt for profile analysis.
func AnalyzeProfilePrompt(p model.Profile) string {
	return fmt.Sprintf(analyzeProfilePrompt, p.Summary())
}

type analysisPayload struct {
	Topics []struct {
		Name   string `json:"name"`
		Score  int    `json:"score"`
		Reason string `json:"reason"`
	} `json:"topics"`
	Hooks []struct {
		Text string `json:"text"`
		Type string `json:"type"`
	} `json:"hooks"`
	Tone string `json:"tone"`
}

// ParseAnalysis decodes a backend reply into an Analysis. Text around the
// outermost JSON object is ignored; scores are clamped to [1, 10].
func ParseAnalysis(text string) (model.Analysis, error) {
	raw, err := extractJSONObject(text)
	if err != nil {
		return model.Analysis{}, err
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return model.Analysis{}, fmt.Errorf("invalid analysis JSON: %w", err)
	}

	out := model.Analysis{Tone: strings.TrimSpace(payload.Tone), Source: model.SourceEnhanced}
	for _, t := range payload.Topics {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		out.Topics = append(out.Topics, model.Topic{Name: name, Score: min(max(t.Score, 1), 10), Reason: t.Reason})
	}
	for _, h := range payload.Hooks {
		text := strings.TrimSpace(h.Text)
		if text == "" {
			continue
		}
		kind := model.HookQuestion
		if strings.EqualFold(h.Type, string(model.HookComment)) {
			kind = model.HookComment
		}
		out.Hooks = append(out.Hooks, model.Hook{Text: text, Type: kind})
	}
	if out.Tone == "" {
		out.Tone = "friendly"
	}
	if out.Empty() {
		return model.Analysis{}, errors.New("analysis contains no topics or hooks")
	}
	return out, nil
}

func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", errors.New("no JSON object in response")
	}
	return text[start : end+1], nil
}

var plainText = sanitize.NewPlainTextPolicy()

// CleanReply strips wrapping quotes, markdown and whitespace that models tend
// to add.
func CleanReply(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	return plainText.Text(text)
}
