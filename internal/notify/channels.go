package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/cupidbot/internal/config"
)

var consoleLabels = map[Kind]string{
	KindNewMessage:           "NEW MESSAGE",
	KindNewMatch:             "NEW MATCH",
	KindConversationInactive: "INACTIVE",
	KindSuggestedResponse:    "SUGGESTION",
}

// ConsoleChannel writes one line per notification.
type ConsoleChannel struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleChannel writes to w, or stdout when w is nil.
func NewConsoleChannel(w io.Writer) *ConsoleChannel {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleChannel{w: w}
}

func (c *ConsoleChannel) Name() string { return "console" }

func (c *ConsoleChannel) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.w, "[%s] %s\n", consoleLabels[n.Kind], n.Text)
	return err
}

const smtpTimeout = 30 * time.Second

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel sends notifications through an SMTP relay.
type EmailChannel struct {
	cfg      config.EmailConfig
	sendMail sendMailFunc
}

// NewEmailChannel creates an EmailChannel for cfg.
func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	return &EmailChannel{cfg: cfg, sendMail: sendMail}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, n Notification) error {
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPHost)
	}
	from := e.cfg.From
	if from == "" {
		from = e.cfg.Username
	}

	addr := net.JoinHostPort(e.cfg.SMTPHost, strconv.Itoa(e.cfg.SMTPPort))
	if err := e.sendMail(ctx, addr, auth, from, []string{e.cfg.To}, buildMail(from, e.cfg.To, n)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// sendMail is smtp.SendMail bounded by ctx: the dial honors it, and the
// session is cut off at its deadline (smtpTimeout when it has none) or on
// cancellation.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, smtpTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		conn.Close()
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func buildMail(from, to string, n Notification) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", headerBreaks.Replace(from))
	fmt.Fprintf(&sb, "To: %s\r\n", headerBreaks.Replace(to))
	fmt.Fprintf(&sb, "Subject: %s\r\n", headerBreaks.Replace(n.Title))
	fmt.Fprintf(&sb, "Date: %s\r\n", n.CreatedAt.Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(n.Text)
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

// TelegramChannel pushes notifications to a Telegram chat.
type TelegramChannel struct {
	bot    *tgbot.Bot
	chatID int64
}

// NewTelegramChannel creates a send-only bot client for chatID. The bot
// identity is not checked at construction.
func NewTelegramChannel(token string, chatID int64, opts ...tgbot.Option) (*TelegramChannel, error) {
	opts = append([]tgbot.Option{tgbot.WithSkipGetMe()}, opts...)
	b, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramChannel{bot: b, chatID: chatID}, nil
}

func (t *TelegramChannel) Name() string { return "push" }

func (t *TelegramChannel) Send(ctx context.Context, n Notification) error {
	_, err := t.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: t.chatID,
		Text:   n.Title + "\n" + n.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
