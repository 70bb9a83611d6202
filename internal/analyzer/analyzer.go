// Package analyzer extracts scored topics, conversation hooks and tone from
// match profiles. A configured generation backend is tried first; any failure
// falls back to a deterministic keyword analysis, so Analyze never fails.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/edgard/cupidbot/internal/ai"
	"github.com/edgard/cupidbot/internal/logger"
	"github.com/edgard/cupidbot/internal/model"
	"github.com/edgard/cupidbot/internal/random"
)

const defaultTone = "friendly"

// Analyzer analyzes profiles.
type Analyzer struct {
	backend ai.Backend
	rng     *random.Source
	log     *slog.Logger
}

// New creates an Analyzer. backend may be nil; rng defaults to a clock-seeded source.
func New(backend ai.Backend, rng *random.Source, log *slog.Logger) *Analyzer {
	if rng == nil {
		rng = random.New()
	}
	return &Analyzer{
		backend: backend,
		rng:     rng,
		log:     logger.OrDiscard(log).With("component", "profile_analyzer"),
	}
}

// Analyze returns the analysis for p.
func (a *Analyzer) Analyze(ctx context.Context, p model.Profile) model.Analysis {
	if a.backend != nil {
		analysis, err := a.backend.AnalyzeProfile(ctx, p)
		switch {
		case err != nil:
			a.log.WarnContext(ctx, "Enhanced analysis failed, using basic analysis", "match_id", p.ID, "backend", a.backend.Name(), "error", err)
		case analysis.Empty():
			a.log.WarnContext(ctx, "Enhanced analysis was empty, using basic analysis", "match_id", p.ID, "backend", a.backend.Name())
		default:
			analysis.Source = model.SourceEnhanced
			return analysis
		}
	}
	return a.Basic(p)
}

// Basic runs the deterministic keyword analysis.
func (a *Analyzer) Basic(p model.Profile) model.Analysis {
	out := model.Analysis{Tone: defaultTone, Source: model.SourceBasic}

	for _, interest := range p.Interests {
		out.Topics = append(out.Topics, model.Topic{
			Name:   interest,
			Score:  a.rng.IntRange(6, 9),
			Reason: "Explicitly mentioned in profile",
		})
	}

	for _, word := range strings.Fields(strings.ToLower(p.Bio)) {
		if slices.Contains(model.TopicVocabulary, word) {
			out.Topics = append(out.Topics, model.Topic{
				Name:   word,
				Score:  a.rng.IntRange(5, 8),
				Reason: "Mentioned in bio",
			})
		}
	}

	if interest, ok := random.Choice(a.rng, p.Interests); ok {
		out.Hooks = append(out.Hooks, model.Hook{
			Text: fmt.Sprintf("I see you're into %s. What got you interested in that?", interest),
			Type: model.HookQuestion,
		})
	}
	if p.Job.Title != "" {
		out.Hooks = append(out.Hooks, model.Hook{
			Text: fmt.Sprintf("How do you like working as a %s?", p.Job.Title),
			Type: model.HookQuestion,
		})
	}
	if len(out.Hooks) < 2 {
		out.Hooks = append(out.Hooks, model.Hook{
			Text: fmt.Sprintf("Hey %s, what's been the highlight of your week so far?", p.Name),
			Type: model.HookQuestion,
		})
	}
	return out
}
