package assistant_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgard/cupidbot/internal/analyzer"
	"github.com/edgard/cupidbot/internal/assistant"
	"github.com/edgard/cupidbot/internal/database"
	"github.com/edgard/cupidbot/internal/generator"
	"github.com/edgard/cupidbot/internal/model"
	"github.com/edgard/cupidbot/internal/random"
)

type sent struct {
	platform, matchID, text string
}

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, platform, matchID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{platform, matchID, text})
	return nil
}

type fakeNotifier struct {
	suggestions []model.Message
}

func (f *fakeNotifier) NotifySuggestedResponse(_ context.Context, _ *model.Conversation, _ *model.Profile, m model.Message) (bool, error) {
	f.suggestions = append(f.suggestions, m)
	return true, nil
}

type fixture struct {
	store    database.Store
	sender   *fakeSender
	notifier *fakeNotifier
	asst     *assistant.Assistant
	match    *model.Profile
	conv     *model.Conversation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "assistant.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)
	ctx := context.Background()

	match := &model.Profile{
		PlatformID: "abc",
		Platform:   "tinder",
		Name:       "Maya",
		Bio:        "Weekend hiking and live music",
		Interests:  []string{"hiking", "music"},
		Active:     true,
	}
	if err := store.SaveMatch(ctx, match); err != nil {
		t.Fatalf("SaveMatch() error = %v", err)
	}

	rng := random.NewSeeded(3)
	an := analyzer.New(nil, rng, nil)
	gen := generator.New(an, nil, nil, rng, nil)
	f := &fixture{
		store:    store,
		sender:   &fakeSender{},
		notifier: &fakeNotifier{},
		match:    match,
	}
	f.asst = assistant.New(store, an, gen, f.sender, f.notifier, 0, nil)
	return f
}

func (f *fixture) withConversation(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	f.conv = &model.Conversation{MatchID: f.match.ID, Platform: "tinder", PlatformID: "abc", AIEnabled: true}
	if err := f.store.SaveConversation(ctx, f.conv); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}
	base := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)
	for i, m := range []model.Message{
		{Sender: model.SenderUser, Content: "Hi Maya!"},
		{Sender: model.SenderMatch, Content: "Hey! Have you been to any concerts lately?"},
	} {
		m.ConversationID = f.conv.ID
		m.SentAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := f.store.SaveMessage(ctx, &m); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}
}

func TestAnalyzeMatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	a, err := f.asst.AnalyzeMatch(context.Background(), f.match.ID)
	if err != nil {
		t.Fatalf("AnalyzeMatch() error = %v", err)
	}
	if a.Source != model.SourceBasic || len(a.Topics) == 0 {
		t.Errorf("AnalyzeMatch() = %+v, want basic analysis with topics", a)
	}

	if _, err := f.asst.AnalyzeMatch(context.Background(), "nobody"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("AnalyzeMatch(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestInitialMessageApprovalGate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	draft, err := f.asst.GenerateInitialMessage(ctx, f.match.ID)
	if err != nil {
		t.Fatalf("GenerateInitialMessage() error = %v", err)
	}
	if !draft.AIGenerated || draft.AIApproved || draft.Content == "" {
		t.Fatalf("draft = %+v, want unapproved generated text", draft)
	}

	if err := f.asst.Send(ctx, "", &draft); !errors.Is(err, model.ErrNotApproved) {
		t.Fatalf("Send(unapproved) error = %v, want ErrNotApproved", err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("unapproved draft reached the platform")
	}

	f.asst.Approve(&draft)
	if err := f.asst.Send(ctx, "", &draft); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := f.sender.sent; len(got) != 1 || got[0].platform != "tinder" || got[0].matchID != "abc" {
		t.Errorf("sent = %+v", got)
	}

	conv, err := f.store.GetConversationByPlatformID(ctx, "tinder", "abc")
	if err != nil || conv == nil {
		t.Fatalf("conversation not created: %v", err)
	}
	if conv.MessageCount != 1 || draft.ConversationID != conv.ID {
		t.Errorf("conversation = %+v, draft conversation = %q", conv, draft.ConversationID)
	}
	msgs, err := f.store.GetConversationMessages(ctx, conv.ID, 10)
	if err != nil {
		t.Fatalf("GetConversationMessages() error = %v", err)
	}
	if len(msgs) != 1 || !msgs[0].AIApproved || !msgs[0].AIGenerated {
		t.Errorf("stored messages = %+v", msgs)
	}
}

func TestGenerateResponse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.withConversation(t)
	ctx := context.Background()

	draft, err := f.asst.GenerateResponse(ctx, f.conv.ID)
	if err != nil {
		t.Fatalf("GenerateResponse() error = %v", err)
	}
	if draft.ConversationID != f.conv.ID || draft.Sender != model.SenderUser || draft.Content == "" {
		t.Errorf("draft = %+v", draft)
	}
	if len(f.notifier.suggestions) != 1 {
		t.Errorf("suggestion notifications = %d, want 1", len(f.notifier.suggestions))
	}

	if err := f.asst.Edit(&draft, "  Which band was it?  "); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if draft.Content != "Which band was it?" || !draft.AIApproved {
		t.Errorf("edited draft = %+v", draft)
	}
	if err := f.asst.Send(ctx, "tinder", &draft); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	conv, err := f.store.GetConversation(ctx, f.conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if conv.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", conv.MessageCount)
	}
}

func TestGenerateResponseErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.withConversation(t)
	ctx := context.Background()

	if _, err := f.asst.GenerateResponse(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GenerateResponse(missing) error = %v, want ErrNotFound", err)
	}

	if err := f.store.UpdateConversationStatus(ctx, f.conv.ID, model.StatusArchived); err != nil {
		t.Fatalf("UpdateConversationStatus() error = %v", err)
	}
	if _, err := f.asst.GenerateResponse(ctx, f.conv.ID); !errors.Is(err, model.ErrArchived) {
		t.Errorf("GenerateResponse(archived) error = %v, want ErrArchived", err)
	}
}

func TestEditRejectsEmpty(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	draft := model.Message{Content: "original", AIGenerated: true}

	if err := f.asst.Edit(&draft, "   "); err == nil {
		t.Fatal("Edit() with blank text succeeded")
	}
	if draft.Content != "original" || draft.AIApproved {
		t.Errorf("draft changed on failed edit: %+v", draft)
	}
}

func TestSendFailureStoresNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.withConversation(t)
	ctx := context.Background()
	f.sender.err = model.ErrNotAuthenticated

	draft := model.Message{ConversationID: f.conv.ID, Content: "See you Friday?"}
	if err := f.asst.Send(ctx, "", &draft); !errors.Is(err, model.ErrNotAuthenticated) {
		t.Fatalf("Send() error = %v, want ErrNotAuthenticated", err)
	}
	conv, err := f.store.GetConversation(ctx, f.conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if conv.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", conv.MessageCount)
	}
}
