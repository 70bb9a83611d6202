package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zalando/go-keyring"

	"github.com/edgard/cupidbot/internal/app/tasks"
	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/model"
	"github.com/edgard/cupidbot/internal/tracker"
)

func TestMain(m *testing.M) {
	keyring.MockInit()
	os.Exit(m.Run())
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()
	noop := func(context.Context) error { return nil }
	cfg := config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"enabled":  {Enabled: true, Schedule: "0 0 4 * * *"},
		"disabled": {Enabled: false, Schedule: "0 0 4 * * *"},
		"unknown":  {Enabled: true, Schedule: "0 0 4 * * *"},
		"empty":    {Enabled: true},
	}}
	taskMap := map[string]tasks.ScheduledTaskFunc{"enabled": noop, "disabled": noop, "empty": noop}

	s, err := NewScheduler(nil, cfg, taskMap)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start() succeeded")
	}
	if diff := cmp.Diff([]string{"enabled"}, s.Jobs()); diff != "" {
		t.Errorf("Jobs() mismatch (-want +got):\n%s", diff)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.LoadConfig(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	cfg.Database.Path = filepath.Join(dir, "app.db")
	cfg.Templates.Path = ""
	cfg.Templates.Watch = false
	cfg.Notifications.Enabled = false
	cfg.Scheduler.Tasks = nil
	cfg.Tracker.PollInterval = time.Hour
	return cfg
}

func TestAppMonitorsActiveConversations(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	match := &model.Profile{Platform: "tinder", PlatformID: "p1", Name: "Noa"}
	if err := a.Store.SaveMatch(ctx, match); err != nil {
		t.Fatalf("SaveMatch() error = %v", err)
	}
	assisted := &model.Conversation{MatchID: match.ID, Platform: "tinder", PlatformID: "p1", AIEnabled: true}
	manual := &model.Conversation{MatchID: match.ID, Platform: "tinder", PlatformID: "p2"}
	for _, c := range []*model.Conversation{assisted, manual} {
		if err := a.Store.SaveConversation(ctx, c); err != nil {
			t.Fatalf("SaveConversation() error = %v", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	deadline := time.Now().Add(3 * time.Second)
	for a.Tracker.State(assisted.ID) != tracker.StateMonitoring {
		if time.Now().After(deadline) {
			t.Fatal("assisted conversation never monitored")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := a.Tracker.State(manual.ID); got != tracker.StateUntracked {
		t.Errorf("manual conversation state = %q, want untracked", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if got := a.Tracker.State(assisted.ID); got != tracker.StateStopped {
		t.Errorf("state after shutdown = %q, want stopped", got)
	}
}
