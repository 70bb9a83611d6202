package notify

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/cupidbot/internal/config"
	"github.com/edgard/cupidbot/internal/model"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingChannel) Name() string { return "recording" }

func (r *recordingChannel) Send(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func testConfig() config.NotificationsConfig {
	return config.NotificationsConfig{
		Enabled: true,
		Types: config.NotificationTypes{
			NewMessage:           true,
			NewMatch:             true,
			ConversationInactive: true,
			SuggestedResponse:    true,
		},
		QuietHours:  config.QuietHoursConfig{Enabled: true, StartHour: 22, EndHour: 8},
		HistorySize: 3,
	}
}

func at(hour int) time.Time {
	return time.Date(2025, 5, 1, hour, 30, 0, 0, time.UTC)
}

func TestIsQuietHours(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start, end int
		hour       int
		want       bool
	}{
		{name: "wrapping late", start: 22, end: 8, hour: 23, want: true},
		{name: "wrapping morning", start: 22, end: 8, hour: 9, want: false},
		{name: "wrapping start bound", start: 22, end: 8, hour: 22, want: true},
		{name: "wrapping end bound", start: 22, end: 8, hour: 8, want: false},
		{name: "wrapping after midnight", start: 22, end: 8, hour: 3, want: true},
		{name: "same day inside", start: 13, end: 15, hour: 14, want: true},
		{name: "same day outside", start: 13, end: 15, hour: 15, want: false},
		{name: "empty window", start: 5, end: 5, hour: 5, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.QuietHours.StartHour, cfg.QuietHours.EndHour = tt.start, tt.end
			n := New(cfg, nil, nil)
			if got := n.IsQuietHours(at(tt.hour)); got != tt.want {
				t.Errorf("IsQuietHours(%d) = %v, want %v", tt.hour, got, tt.want)
			}
		})
	}

	cfg := testConfig()
	cfg.QuietHours.Enabled = false
	if New(cfg, nil, nil).IsQuietHours(at(23)) {
		t.Error("disabled quiet hours reported quiet")
	}
}

func TestNotifyGates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	conv := &model.Conversation{ID: "c1"}
	match := &model.Profile{ID: "m1", Name: "Ana", Platform: "tinder"}
	latest := model.Message{Content: strings.Repeat("x", 80)}

	t.Run("quiet hours suppress", func(t *testing.T) {
		t.Parallel()
		ch := &recordingChannel{}
		n := New(testConfig(), []Channel{ch}, nil)
		n.now = func() time.Time { return at(23) }

		sent, err := n.NotifyNewMessage(ctx, conv, match, latest, false)
		if err != nil || sent || len(ch.sent) != 0 {
			t.Errorf("sent = %v, err = %v, delivered = %d", sent, err, len(ch.sent))
		}
	})

	t.Run("urgent bypasses quiet hours", func(t *testing.T) {
		t.Parallel()
		ch := &recordingChannel{}
		n := New(testConfig(), []Channel{ch}, nil)
		n.now = func() time.Time { return at(23) }

		sent, err := n.NotifyNewMessage(ctx, conv, match, latest, true)
		if err != nil || !sent || len(ch.sent) != 1 {
			t.Fatalf("sent = %v, err = %v, delivered = %d", sent, err, len(ch.sent))
		}
		got := ch.sent[0]
		if got.Kind != KindNewMessage || got.ConversationID != "c1" || !got.Urgent {
			t.Errorf("notification = %+v", got)
		}
		if want := "Ana: " + strings.Repeat("x", 47) + "..."; got.Text != want {
			t.Errorf("Text = %q, want %q", got.Text, want)
		}
	})

	t.Run("type disabled", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Types.NewMatch = false
		ch := &recordingChannel{}
		n := New(cfg, []Channel{ch}, nil)
		n.now = func() time.Time { return at(12) }

		if sent, _ := n.NotifyNewMatch(ctx, match); sent || len(ch.sent) != 0 {
			t.Errorf("disabled type delivered")
		}
	})

	t.Run("globally disabled", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Enabled = false
		ch := &recordingChannel{}
		n := New(cfg, []Channel{ch}, nil)
		n.now = func() time.Time { return at(12) }

		if sent, _ := n.NotifySuggestedResponse(ctx, conv, match, latest); sent || len(ch.sent) != 0 {
			t.Errorf("disabled notifier delivered")
		}
	})

	t.Run("channel error surfaces", func(t *testing.T) {
		t.Parallel()
		ch := &recordingChannel{err: errors.New("boom")}
		n := New(testConfig(), []Channel{ch}, nil)
		n.now = func() time.Time { return at(12) }

		sent, err := n.NotifyConversationInactive(ctx, conv, match, 80*time.Hour)
		if !sent || err == nil {
			t.Errorf("sent = %v, err = %v, want true and error", sent, err)
		}
	})
}

type slowChannel struct {
	delay     time.Duration
	delivered atomic.Bool
}

func (s *slowChannel) Name() string { return "slow" }

func (s *slowChannel) Send(ctx context.Context, _ Notification) error {
	select {
	case <-time.After(s.delay):
		s.delivered.Store(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestChannelsDeliverIndependently(t *testing.T) {
	t.Parallel()

	failing := &recordingChannel{err: errors.New("smtp down")}
	slow := &slowChannel{delay: 50 * time.Millisecond}
	other := &recordingChannel{err: errors.New("telegram down")}
	n := New(testConfig(), []Channel{failing, slow, other}, nil)
	n.now = func() time.Time { return at(12) }

	sent, err := n.NotifyNewMatch(context.Background(), &model.Profile{ID: "m1", Name: "Ana"})
	if !sent {
		t.Fatal("NotifyNewMatch() not sent")
	}
	if !slow.delivered.Load() {
		t.Error("a failing channel cancelled delivery on the slow one")
	}
	if err == nil || !strings.Contains(err.Error(), "smtp down") || !strings.Contains(err.Error(), "telegram down") {
		t.Errorf("error = %v, want both channel failures", err)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	n := New(testConfig(), nil, nil)
	n.now = func() time.Time { return at(12) }
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C", "D"} {
		if _, err := n.NotifyNewMatch(ctx, &model.Profile{Name: name, Platform: "hinge"}); err != nil {
			t.Fatalf("NotifyNewMatch() error = %v", err)
		}
	}

	all := n.History(0)
	if len(all) != 3 || all[0].Title != "New match: B" || all[2].Title != "New match: D" {
		t.Fatalf("History(0) = %+v", all)
	}
	if last := n.History(1); len(last) != 1 || last[0].Text != "You matched with D on hinge" {
		t.Errorf("History(1) = %+v", last)
	}

	n.ClearHistory()
	if got := n.History(0); len(got) != 0 {
		t.Errorf("History after clear = %+v", got)
	}
}

func TestConsoleChannel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n := New(testConfig(), []Channel{NewConsoleChannel(&buf)}, nil)
	n.now = func() time.Time { return at(12) }
	ctx := context.Background()

	if _, err := n.NotifyNewMatch(ctx, &model.Profile{Name: "Kai", Platform: "tinder"}); err != nil {
		t.Fatalf("NotifyNewMatch() error = %v", err)
	}
	if _, err := n.NotifyNewMessage(ctx, nil, nil, model.Message{Content: "hello"}, false); err != nil {
		t.Fatalf("NotifyNewMessage() error = %v", err)
	}

	want := "[NEW MATCH] You matched with Kai on tinder\n[NEW MESSAGE] your match: hello\n"
	if buf.String() != want {
		t.Errorf("console output = %q, want %q", buf.String(), want)
	}
}

func TestEmailChannel(t *testing.T) {
	t.Parallel()

	ch := NewEmailChannel(config.EmailConfig{
		SMTPHost: "smtp.example.com",
		Username: "me@example.com",
		Password: "secret",
		To:       "you@example.com",
	})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	ch.sendMail = func(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	note := Notification{Title: "New match: Ana", Text: "You matched with Ana on tinder", CreatedAt: at(12)}
	if err := ch.Send(context.Background(), note); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "me@example.com" || len(gotTo) != 1 || gotTo[0] != "you@example.com" {
		t.Errorf("envelope = %s %s %v", gotAddr, gotFrom, gotTo)
	}
	body := string(gotMsg)
	if !strings.Contains(body, "Subject: New match: Ana\r\n") || !strings.HasSuffix(body, "You matched with Ana on tinder\r\n") {
		t.Errorf("message = %q", body)
	}

	note.Title = "New match: Ana\r\nBcc: everyone@example.com"
	if err := ch.Send(context.Background(), note); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if body := string(gotMsg); strings.Contains(body, "\r\nBcc:") || !strings.Contains(body, "Subject: New match: Ana Bcc: everyone@example.com\r\n") {
		t.Errorf("header line breaks not removed: %q", body)
	}
}

func TestSendMailHonorsContext(t *testing.T) {
	t.Parallel()

	// A relay that accepts connections and never greets.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = sendMail(ctx, ln.Addr().String(), nil, "me@example.com", []string{"you@example.com"}, []byte("hi\r\n"))
	if err == nil {
		t.Fatal("sendMail() to a silent relay succeeded")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("sendMail() took %v, want it bounded by the context", elapsed)
	}
}

func TestTelegramChannel(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	ch, err := NewTelegramChannel("123:token", 42, tgbot.WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("NewTelegramChannel() error = %v", err)
	}
	if err := ch.Send(context.Background(), Notification{Title: "t", Text: "x"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || paths[0] != "/bot123:token/sendMessage" {
		t.Errorf("requests = %v", paths)
	}
}
