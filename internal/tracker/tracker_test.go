package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/edgard/cupidbot/internal/model"
)

var t0 = time.Date(2025, 2, 1, 18, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	matches       map[string]*model.Profile
	messages      map[string][]model.Message // chronological
	convLoads     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: map[string]*model.Conversation{},
		matches:       map[string]*model.Profile{},
		messages:      map[string][]model.Message{},
	}
}

func (f *fakeStore) add(id string, contents ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matchID := "m-" + id
	f.matches[matchID] = &model.Profile{ID: matchID, Name: "Ana", Platform: "tinder"}
	var msgs []model.Message
	for i, c := range contents {
		sender := model.SenderUser
		if i%2 == 1 {
			sender = model.SenderMatch
		}
		msgs = append(msgs, model.Message{ConversationID: id, Sender: sender, Content: c, SentAt: t0.Add(time.Duration(i) * time.Minute)})
	}
	f.messages[id] = msgs
	f.conversations[id] = &model.Conversation{
		ID:           id,
		MatchID:      matchID,
		Platform:     "tinder",
		PlatformID:   "remote-" + id,
		Status:       model.StatusActive,
		MessageCount: len(msgs),
	}
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convLoads++
	c, ok := f.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetMatch(_ context.Context, id string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.matches[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetConversationMessages(_ context.Context, id string, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := slices.Clone(f.messages[id])
	slices.Reverse(msgs)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (f *fakeStore) UpdateConversationStatus(_ context.Context, id string, status model.ConversationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, model.ErrNotFound)
	}
	c.Status = status
	return nil
}

type fakePlatforms struct {
	authenticated atomic.Bool
	remoteCount   atomic.Int32
	calls         atomic.Int32
	block         chan struct{}
	err           error
}

func (f *fakePlatforms) IsAuthenticated(string) bool { return f.authenticated.Load() }

func (f *fakePlatforms) GetConversationMessages(_ context.Context, _, _ string, limit int) ([]model.Message, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	n := min(int(f.remoteCount.Load()), limit)
	msgs := make([]model.Message, n)
	for i := range msgs {
		msgs[i] = model.Message{Sender: model.SenderMatch, Content: fmt.Sprintf("remote %d", i)}
	}
	return msgs, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []model.Message
}

func (f *fakeNotifier) NotifyNewMessage(_ context.Context, _ *model.Conversation, _ *model.Profile, msg model.Message, _ bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	return true, nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testOptions() Options {
	return Options{PollInterval: 5 * time.Millisecond, FetchLimit: 20, HistoryLimit: 50, StopTimeout: time.Second}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTrackIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	store.add("c1", "hi", "hello", "how are you?")
	tr := New(store, &fakePlatforms{}, nil, testOptions(), nil)

	if got := tr.State("c1"); got != StateUntracked {
		t.Fatalf("State() = %q, want untracked", got)
	}
	if err := tr.Track(ctx, "c1"); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	first, _ := tr.Snapshot("c1")

	if err := tr.Track(ctx, "c1"); err != nil {
		t.Fatalf("second Track() error = %v", err)
	}
	second, _ := tr.Snapshot("c1")

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("snapshot changed (-first +second):\n%s", diff)
	}
	if store.convLoads != 1 {
		t.Errorf("conversation loaded %d times, want 1", store.convLoads)
	}
	if diff := cmp.Diff([]string{"c1"}, tr.Tracked()); diff != "" {
		t.Errorf("Tracked() mismatch (-want +got):\n%s", diff)
	}
	if first.KnownCount != 3 || first.State != StateTracked || first.Messages[0].Content != "hi" {
		t.Errorf("snapshot = %+v", first)
	}
}

func TestTrackErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	store.add("old")
	store.conversations["old"].Status = model.StatusArchived
	tr := New(store, &fakePlatforms{}, nil, testOptions(), nil)

	if err := tr.Track(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Track(missing) error = %v, want ErrNotFound", err)
	}
	if err := tr.Track(ctx, "old"); !errors.Is(err, model.ErrArchived) {
		t.Errorf("Track(archived) error = %v, want ErrArchived", err)
	}
	if len(tr.Tracked()) != 0 {
		t.Errorf("Tracked() = %v, want empty", tr.Tracked())
	}
}

func TestMonitorNotifiesOnceOnGrowth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	store.add("c1", "a", "b", "c")
	platforms := &fakePlatforms{}
	platforms.authenticated.Store(true)
	platforms.remoteCount.Store(5)
	notifier := &fakeNotifier{}
	tr := New(store, platforms, notifier, testOptions(), nil)
	defer tr.Close(ctx)

	if err := tr.StartMonitoring(ctx, "c1", "", 0); err != nil {
		t.Fatalf("StartMonitoring() error = %v", err)
	}
	waitFor(t, "notification", func() bool { return notifier.count() == 1 })
	// Let several more ticks observe the same remote count.
	calls := platforms.calls.Load()
	waitFor(t, "more ticks", func() bool { return platforms.calls.Load() >= calls+3 })

	if n := notifier.count(); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
	snap, _ := tr.Snapshot("c1")
	if snap.KnownCount != 5 || snap.Conversation.MessageCount != 5 || snap.State != StateMonitoring {
		t.Errorf("snapshot = %+v", snap)
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.calls[0].Content != "remote 4" {
		t.Errorf("notified message = %+v, want latest", notifier.calls[0])
	}
}

func TestMonitorSkipsWhenNotAuthenticated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	store.add("c1", "a")
	platforms := &fakePlatforms{}
	notifier := &fakeNotifier{}
	tr := New(store, platforms, notifier, testOptions(), nil)

	if err := tr.StartMonitoring(ctx, "c1", "tinder", 0); err != nil {
		t.Fatalf("StartMonitoring() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if platforms.calls.Load() != 0 {
		t.Errorf("fetched %d times while unauthenticated", platforms.calls.Load())
	}
	if tr.State("c1") != StateMonitoring {
		t.Errorf("State() = %q, want monitoring", tr.State("c1"))
	}

	// Authenticating later lets the same monitor resume.
	platforms.remoteCount.Store(2)
	platforms.authenticated.Store(true)
	waitFor(t, "notification after login", func() bool { return notifier.count() == 1 })

	if err := tr.StopMonitoring(ctx, "c1"); err != nil {
		t.Fatalf("StopMonitoring() error = %v", err)
	}
	if tr.State("c1") != StateStopped {
		t.Errorf("State() = %q, want stopped", tr.State("c1"))
	}
}

func TestMonitorSurvivesErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	store.add("c1", "a")
	platforms := &fakePlatforms{err: errors.New("connection reset")}
	platforms.authenticated.Store(true)
	tr := New(store, platforms, &fakeNotifier{}, testOptions(), nil)
	defer tr.Close(ctx)

	if err := tr.StartMonitoring(ctx, "c1", "", 0); err != nil {
		t.Fatalf("StartMonitoring() error = %v", err)
	}
	waitFor(t, "repeated ticks", func() bool { return platforms.calls.Load() >= 3 })
	if tr.State("c1") != StateMonitoring {
		t.Errorf("State() = %q, want monitoring", tr.State("c1"))
	}
}

func TestStartMonitoringIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	store.add("c1")
	tr := New(store, &fakePlatforms{}, nil, testOptions(), nil)
	defer tr.Close(ctx)

	if err := tr.StartMonitoring(ctx, "c1", "", time.Hour); err != nil {
		t.Fatalf("StartMonitoring() error = %v", err)
	}
	tr.mu.Lock()
	first := tr.entries["c1"].monitor
	tr.mu.Unlock()

	if err := tr.StartMonitoring(ctx, "c1", "", time.Hour); err != nil {
		t.Fatalf("second StartMonitoring() error = %v", err)
	}
	tr.mu.Lock()
	second := tr.entries["c1"].monitor
	tr.mu.Unlock()

	if first != second {
		t.Error("second StartMonitoring replaced a live monitor")
	}
}

func TestStopMonitoringBoundedWait(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	store.add("c1")
	platforms := &fakePlatforms{block: make(chan struct{})}
	platforms.authenticated.Store(true)
	opts := testOptions()
	opts.StopTimeout = 20 * time.Millisecond
	tr := New(store, platforms, nil, opts, nil)

	if err := tr.StartMonitoring(ctx, "c1", "", 0); err != nil {
		t.Fatalf("StartMonitoring() error = %v", err)
	}
	waitFor(t, "blocked fetch", func() bool { return platforms.calls.Load() == 1 })

	start := time.Now()
	if err := tr.StopMonitoring(ctx, "c1"); err != nil {
		t.Fatalf("StopMonitoring() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("StopMonitoring() took %v, want bounded by the stop timeout", elapsed)
	}
	tr.mu.Lock()
	handle := tr.entries["c1"].monitor
	tr.mu.Unlock()
	if handle != nil {
		t.Error("monitor handle kept after stop")
	}
	close(platforms.block)
}

func TestArchive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	store.add("c1", "a", "b")
	tr := New(store, &fakePlatforms{}, nil, testOptions(), nil)

	if err := tr.StartMonitoring(ctx, "c1", "", time.Hour); err != nil {
		t.Fatalf("StartMonitoring() error = %v", err)
	}
	if err := tr.Archive(ctx, "c1"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if got := tr.State("c1"); got != StateArchived {
		t.Errorf("State() = %q, want archived", got)
	}
	if store.conversations["c1"].Status != model.StatusArchived {
		t.Error("archived status not persisted")
	}
	if err := tr.Track(ctx, "c1"); !errors.Is(err, model.ErrArchived) {
		t.Errorf("Track() after archive error = %v, want ErrArchived", err)
	}
	if err := tr.Archive(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Archive(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStopTracking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	store.add("c1")
	tr := New(store, &fakePlatforms{}, nil, testOptions(), nil)

	if err := tr.StartMonitoring(ctx, "c1", "", time.Hour); err != nil {
		t.Fatalf("StartMonitoring() error = %v", err)
	}
	tr.mu.Lock()
	m := tr.entries["c1"].monitor
	tr.mu.Unlock()

	if err := tr.StopTracking(ctx, "c1"); err != nil {
		t.Fatalf("StopTracking() error = %v", err)
	}
	if m.running() {
		t.Error("monitor still running after StopTracking")
	}
	if tr.State("c1") != StateUntracked {
		t.Errorf("State() = %q, want untracked", tr.State("c1"))
	}
	if err := tr.StopTracking(ctx, "c1"); err != nil {
		t.Errorf("repeated StopTracking() error = %v", err)
	}
}

func alternating(n int, content string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = content
	}
	return out
}

func TestSuggestActions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	store.add("fresh", "hello", "hey there", "how are you", "doing well")
	store.add("long", alternating(25, "ok")...)
	store.add("gloomy", alternating(8, "that was boring and sad")...)
	store.add("steady", alternating(8, "ok")...)
	store.add("quiet")
	store.add("orphan", "hi")
	delete(store.matches, "m-orphan")
	tr := New(store, &fakePlatforms{}, nil, testOptions(), nil)

	tests := []struct {
		id   string
		want []string
	}{
		{id: "missing", want: []string{model.ActionStartConversation}},
		{id: "orphan", want: []string{model.ActionStartConversation}},
		{id: "quiet", want: []string{model.ActionIncreaseEngagement}},
		{id: "fresh", want: []string{model.ActionAskQuestion}},
		{id: "long", want: []string{model.ActionSuggestMeeting}},
		{id: "gloomy", want: []string{model.ActionImproveTone}},
		{id: "steady", want: []string{model.ActionDeepenConversation}},
	}
	for _, tt := range tests {
		got, err := tr.SuggestActions(ctx, tt.id)
		if err != nil {
			t.Errorf("SuggestActions(%s) error = %v", tt.id, err)
			continue
		}
		var actions []string
		for _, s := range got {
			actions = append(actions, s.Action)
		}
		if diff := cmp.Diff(tt.want, actions); diff != "" {
			t.Errorf("SuggestActions(%s) mismatch (-want +got):\n%s", tt.id, diff)
		}
	}
}

func TestContextRecentTopics(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.add("c1", "I love cooking", "a", "b", "c", "d", "travel plans?", "music!")
	tr := New(store, &fakePlatforms{}, nil, testOptions(), nil)

	cc, err := tr.Context(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Context() error = %v", err)
	}
	if diff := cmp.Diff([]string{"travel", "music"}, cc.RecentTopics); diff != "" {
		t.Errorf("RecentTopics mismatch (-want +got):\n%s", diff)
	}
	if cc.Match.Name != "Ana" || len(cc.Messages) != 7 || cc.Messages[0].Content != "I love cooking" {
		t.Errorf("context = %+v", cc)
	}
}
