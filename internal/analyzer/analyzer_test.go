package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/edgard/cupidbot/internal/ai"
	"github.com/edgard/cupidbot/internal/model"
	"github.com/edgard/cupidbot/internal/random"
)

type fakeBackend struct {
	analysis model.Analysis
	err      error
	calls    int
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) AnalyzeProfile(context.Context, model.Profile) (model.Analysis, error) {
	f.calls++
	return f.analysis, f.err
}

func (f *fakeBackend) Complete(context.Context, ai.CompletionRequest) (string, error) {
	return "", errors.New("not implemented")
}

func TestBasicAnalysis(t *testing.T) {
	t.Parallel()

	a := New(nil, random.NewSeeded(3), nil)
	p := model.Profile{
		Name:      "Ana",
		Bio:       "I love travel and good music",
		Interests: []string{"hiking"},
		Job:       model.Job{Title: "Engineer"},
	}
	got := a.Analyze(context.Background(), p)

	if got.Source != model.SourceBasic || got.Tone != "friendly" {
		t.Errorf("Source/Tone = %q/%q, want basic/friendly", got.Source, got.Tone)
	}
	if len(got.Topics) != 3 {
		t.Fatalf("Topics = %+v, want hiking, travel, music", got.Topics)
	}
	if got.Topics[0].Name != "hiking" || got.Topics[0].Score < 6 || got.Topics[0].Score > 9 {
		t.Errorf("interest topic = %+v, want hiking scored 6-9", got.Topics[0])
	}
	for _, topic := range got.Topics[1:] {
		if topic.Reason != "Mentioned in bio" || topic.Score < 5 || topic.Score > 8 {
			t.Errorf("bio topic = %+v, want bio reason scored 5-8", topic)
		}
	}
	if len(got.Hooks) != 2 {
		t.Fatalf("Hooks = %+v, want interest and job hooks", got.Hooks)
	}
	if !strings.Contains(got.Hooks[0].Text, "hiking") || !strings.Contains(got.Hooks[1].Text, "Engineer") {
		t.Errorf("Hooks = %+v", got.Hooks)
	}
}

func TestBasicAnalysisSparseProfile(t *testing.T) {
	t.Parallel()

	got := New(nil, random.NewSeeded(1), nil).Basic(model.Profile{Name: "Sam"})
	if len(got.Topics) != 0 {
		t.Errorf("Topics = %+v, want none", got.Topics)
	}
	if len(got.Hooks) != 1 || got.Hooks[0].Text != "Hey Sam, what's been the highlight of your week so far?" {
		t.Errorf("Hooks = %+v, want generic hook", got.Hooks)
	}
}

func TestAnalyzeBackend(t *testing.T) {
	t.Parallel()

	enhanced := model.Analysis{Topics: []model.Topic{{Name: "jazz", Score: 8}}, Tone: "witty"}

	tests := []struct {
		name       string
		backend    *fakeBackend
		wantSource string
	}{
		{name: "success", backend: &fakeBackend{analysis: enhanced}, wantSource: model.SourceEnhanced},
		{name: "error falls back", backend: &fakeBackend{err: errors.New("boom")}, wantSource: model.SourceBasic},
		{name: "empty falls back", backend: &fakeBackend{}, wantSource: model.SourceBasic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := New(tt.backend, random.NewSeeded(1), nil)
			got := a.Analyze(context.Background(), model.Profile{Name: "Ana", Interests: []string{"jazz"}})
			if got.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", got.Source, tt.wantSource)
			}
			if tt.backend.calls != 1 {
				t.Errorf("backend calls = %d, want 1", tt.backend.calls)
			}
			if got.Empty() {
				t.Error("analysis is empty")
			}
		})
	}
}
