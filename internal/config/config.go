// Package config loads cupidbot configuration from a YAML file, environment
// variables and built-in defaults, and validates the result.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Logger        LoggerConfig        `mapstructure:"logger"`
	Database      DatabaseConfig      `mapstructure:"database"`
	AI            AIConfig            `mapstructure:"ai"`
	Templates     TemplatesConfig     `mapstructure:"templates"`
	Tracker       TrackerConfig       `mapstructure:"tracker"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Platforms     PlatformsConfig     `mapstructure:"platforms"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Analytics     AnalyticsConfig     `mapstructure:"analytics"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// AIConfig selects the optional generation backend. An empty backend or
// "none" disables enhanced generation entirely.
type AIConfig struct {
	Backend     string        `mapstructure:"backend"      validate:"omitempty,oneof=none gemini openai"`
	APIKey      string        `mapstructure:"api_key"      validate:"required_if=Backend gemini,required_if=Backend openai"`
	BaseURL     string        `mapstructure:"base_url"     validate:"omitempty,url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"  validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"      validate:"min=1s,max=10m"`
	MaxRetries  int           `mapstructure:"max_retries"  validate:"min=0,max=10"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"  validate:"min=0"`
}

// Enabled reports whether a generation backend is configured.
func (c AIConfig) Enabled() bool {
	return c.Backend != "" && c.Backend != "none"
}

type TemplatesConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

type TrackerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"min=1s"`
	FetchLimit   int           `mapstructure:"fetch_limit"   validate:"min=1,max=100"`
	HistoryLimit int           `mapstructure:"history_limit" validate:"min=1"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"  validate:"min=10ms"`
}

type NotificationsConfig struct {
	Enabled     bool                `mapstructure:"enabled"`
	Types       NotificationTypes   `mapstructure:"types"`
	Channels    NotificationChannel `mapstructure:"channels"`
	QuietHours  QuietHoursConfig    `mapstructure:"quiet_hours"`
	Email       EmailConfig         `mapstructure:"email"`
	Telegram    TelegramConfig      `mapstructure:"telegram"`
	HistorySize int                 `mapstructure:"history_size" validate:"min=1"`
}

type NotificationTypes struct {
	NewMessage           bool `mapstructure:"new_message"`
	NewMatch             bool `mapstructure:"new_match"`
	ConversationInactive bool `mapstructure:"conversation_inactive"`
	SuggestedResponse    bool `mapstructure:"suggested_response"`
}

type NotificationChannel struct {
	Console bool `mapstructure:"console"`
	Email   bool `mapstructure:"email"`
	Push    bool `mapstructure:"push"`
}

// QuietHoursConfig describes a daily [StartHour, EndHour) window that may wrap midnight.
type QuietHoursConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	StartHour int  `mapstructure:"start_hour" validate:"min=0,max=23"`
	EndHour   int  `mapstructure:"end_hour"   validate:"min=0,max=23"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port" validate:"min=0,max=65535"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"omitempty,email"`
	To       string `mapstructure:"to"   validate:"omitempty,email"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type PlatformsConfig struct {
	KeyringService string                    `mapstructure:"keyring_service"`
	RequestTimeout time.Duration             `mapstructure:"request_timeout" validate:"min=1s"`
	Accounts       map[string]PlatformConfig `mapstructure:"accounts" validate:"dive"`
}

// PlatformConfig holds per-platform endpoint and fallback credentials.
type PlatformConfig struct {
	BaseURL     string    `mapstructure:"base_url"     validate:"omitempty,url"`
	Token       string    `mapstructure:"token"`
	TokenExpiry time.Time `mapstructure:"token_expiry"`
}

type SyncConfig struct {
	Platforms     []string      `mapstructure:"platforms"`
	UserID        string        `mapstructure:"user_id"`
	MatchLimit    int           `mapstructure:"match_limit"    validate:"min=1"`
	InactiveAfter time.Duration `mapstructure:"inactive_after" validate:"min=1m"`
	MonitorActive bool          `mapstructure:"monitor_active"`
}

type AnalyticsConfig struct {
	ActivityDays int `mapstructure:"activity_days" validate:"min=1,max=3650"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
