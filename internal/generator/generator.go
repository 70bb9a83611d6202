// Package generator composes candidate outbound messages for a match. A
// generation backend is tried first when configured; the template composer
// always runs last and always produces a message.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/cupidbot/internal/ai"
	"github.com/edgard/cupidbot/internal/analyzer"
	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/model"
	"github.com/edgard/cupidbot/internal/random"
)

const (
	genericInterest = "what you shared"
	fallbackHook    = "What's your favorite hobby?"
)

// Request is the input to a composer. History is chronological and may be
// empty for a reply.
type Request struct {
	Profile  model.Profile
	Analysis model.Analysis
	History  []model.Message
	Reply    bool
}

// Initial reports whether the request is for an opening message.
func (r Request) Initial() bool {
	return !r.Reply
}

// Composer produces message text for a request.
type Composer interface {
	Name() string
	Compose(ctx context.Context, req Request) (string, error)
}

// Generator runs composers in order until one succeeds.
type Generator struct {
	analyzer  *analyzer.Analyzer
	composers []Composer
	now       func() time.Time
	log       *slog.Logger
}

// New builds a Generator. backend may be nil, in which case only templates are used.
func New(a *analyzer.Analyzer, backend ai.Backend, bank *TemplateBank, rng *random.Source, log *slog.Logger) *Generator {
	if rng == nil {
		rng = random.New()
	}
	if bank == nil {
		bank, _ = NewTemplateBank("", log)
	}
	if a == nil {
		a = analyzer.New(backend, rng, log)
	}
	l := logger.OrDiscard(log).With("component", "message_generator")

	var composers []Composer
	if backend != nil {
		composers = append(composers, &enhancedComposer{backend: backend})
	}
	composers = append(composers, &templateComposer{bank: bank, rng: rng})

	return &Generator{
		analyzer:  a,
		composers: composers,
		now:       time.Now,
		log:       l,
	}
}

// GenerateInitial produces an opening message for p.
func (g *Generator) GenerateInitial(ctx context.Context, p model.Profile) model.Message {
	return g.generate(ctx, Request{Profile: p, Analysis: g.analyzer.Analyze(ctx, p)})
}

// GenerateReply produces a reply given the chronological history with p.
// Replies work from the raw history and skip profile analysis.
func (g *Generator) GenerateReply(ctx context.Context, history []model.Message, p model.Profile) model.Message {
	return g.generate(ctx, Request{Profile: p, History: history, Reply: true})
}

func (g *Generator) generate(ctx context.Context, req Request) model.Message {
	var text string
	for _, c := range g.composers {
		out, err := c.Compose(ctx, req)
		if err == nil && strings.TrimSpace(out) != "" {
			text = out
			g.log.DebugContext(ctx, "Message composed", "composer", c.Name(), "match_id", req.Profile.ID, "initial", req.Initial())
			break
		}
		if err == nil {
			err = errors.New("empty message")
		}
		g.log.WarnContext(ctx, "Composer failed, trying next", "composer", c.Name(), "match_id", req.Profile.ID, "error", err)
	}
	if text == "" {
		text = fallbackHook
	}

	return model.Message{
		ID:          uuid.New().String(),
		MatchID:     req.Profile.ID,
		Sender:      model.SenderUser,
		Content:     text,
		SentAt:      g.now().UTC(),
		AIGenerated: true,
		AIApproved:  false,
	}
}

type enhancedComposer struct {
	backend ai.Backend
}

func (c *enhancedComposer) Name() string { return "enhanced:" + c.backend.Name() }

func (c *enhancedComposer) Compose(ctx context.Context, req Request) (string, error) {
	if req.Initial() {
		return c.backend.Complete(ctx, ai.CompletionRequest{
			Turns: []ai.Turn{{Role: ai.RoleUser, Text: initialPrompt(req.Profile, req.Analysis)}},
		})
	}
	turns := ai.TurnsFromHistory(req.History)
	if len(turns) == 0 {
		turns = []ai.Turn{{Role: ai.RoleUser, Text: "No messages have been exchanged yet. Write a short message to get the conversation going."}}
	}
	return c.backend.Complete(ctx, ai.CompletionRequest{
		System: replySystemPrompt(req.Profile),
		Turns:  turns,
	})
}

func initialPrompt(p model.Profile, a model.Analysis) string {
	var topics []string
	for _, t := range a.TopTopics(3) {
		topics = append(topics, fmt.Sprintf("%s (%d/10)", t.Name, t.Score))
	}
	var hooks []string
	for _, h := range a.Hooks {
		hooks = append(hooks, "- "+h.Text)
	}

	var sb strings.Builder
	sb.WriteString("Write the first message to send to a new match on a dating app.\n\n")
	sb.WriteString("Profile:\n")
	sb.WriteString(p.Summary())
	fmt.Fprintf(&sb, "\nTop topics: %s\n", strings.Join(topics, ", "))
	fmt.Fprintf(&sb, "Possible hooks:\n%s\n", strings.Join(hooks, "\n"))
	fmt.Fprintf(&sb, "Profile tone: %s\n\n", a.Tone)
	sb.WriteString(`Guidelines:
- Be friendly, genuine and a little playful
- Reference something specific from the profile
- Include exactly one question
- Keep it brief: 1 to 3 sentences
- Match the profile's tone
- No pickup lines and no mention of this analysis
Return only the message text.`)
	return sb.String()
}

func replySystemPrompt(p model.Profile) string {
	return fmt.Sprintf(`You are helping someone chat with %s, a match on a dating app.
Reply as them to the latest message in the conversation.
The match's interests: %s.
Keep the reply friendly and to 1 to 3 sentences, respond to what was said, and keep the conversation going with a question when it fits.
Return only the reply text.`, p.Name, strings.Join(p.Interests, ", "))
}

type templateComposer struct {
	bank *TemplateBank
	rng  *random.Source
}

func (c *templateComposer) Name() string { return "template" }

// Compose never fails.
func (c *templateComposer) Compose(_ context.Context, req Request) (string, error) {
	category := CategoryOpener
	var hook string
	if !req.Initial() {
		category = CategoryGeneric
		if lastMatchMessage(req.History) != nil {
			category = CategoryFollowUp
		}
	}

	interest := c.pickInterest(req)
	if h, ok := random.Choice(c.rng, req.Analysis.Hooks); ok {
		hook = h.Text
	}
	if hook == "" {
		if q, ok := random.Choice(c.rng, c.bank.Templates(CategoryQuestion)); ok {
			hook = fill(q, req.Profile.Name, interest, "")
		}
	}
	if hook == "" {
		hook = fallbackHook
	}

	tmpl, ok := random.Choice(c.rng, c.bank.Templates(category))
	if !ok {
		tmpl = "{hook}"
	}
	return strings.Join(strings.Fields(fill(tmpl, req.Profile.Name, interest, hook)), " "), nil
}

func (c *templateComposer) pickInterest(req Request) string {
	if interest, ok := random.Choice(c.rng, req.Profile.Interests); ok {
		return interest
	}
	if top := req.Analysis.TopTopics(1); len(top) > 0 {
		return top[0].Name
	}
	return genericInterest
}

func fill(tmpl, name, interest, hook string) string {
	return strings.NewReplacer("{name}", name, "{interest}", interest, "{hook}", hook).Replace(tmpl)
}

func lastMatchMessage(history []model.Message) *model.Message {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Sender == model.SenderMatch {
			return &history[i]
		}
	}
	return nil
}
