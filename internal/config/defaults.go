package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPollInterval  = 60 * time.Second
	DefaultFetchLimit    = 20
	DefaultStopTimeout   = 5 * time.Second
	DefaultActivityDays  = 30
	DefaultQuietStart    = 22
	DefaultQuietEnd      = 8
	DefaultHistoryLimit  = 50
	DefaultInactiveAfter = 72 * time.Hour
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", "cupidbot.db")

	v.SetDefault("ai.backend", "none")
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.retry_delay", 2*time.Second)

	v.SetDefault("templates.path", "templates.yaml")
	v.SetDefault("templates.watch", true)

	v.SetDefault("tracker.poll_interval", DefaultPollInterval)
	v.SetDefault("tracker.fetch_limit", DefaultFetchLimit)
	v.SetDefault("tracker.history_limit", DefaultHistoryLimit)
	v.SetDefault("tracker.stop_timeout", DefaultStopTimeout)

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.types.new_message", true)
	v.SetDefault("notifications.types.new_match", true)
	v.SetDefault("notifications.types.conversation_inactive", true)
	v.SetDefault("notifications.types.suggested_response", true)
	v.SetDefault("notifications.channels.console", true)
	v.SetDefault("notifications.channels.email", false)
	v.SetDefault("notifications.channels.push", false)
	v.SetDefault("notifications.quiet_hours.enabled", false)
	v.SetDefault("notifications.quiet_hours.start_hour", DefaultQuietStart)
	v.SetDefault("notifications.quiet_hours.end_hour", DefaultQuietEnd)
	v.SetDefault("notifications.email.smtp_port", 587)
	v.SetDefault("notifications.history_size", 100)

	v.SetDefault("platforms.keyring_service", "cupidbot")
	v.SetDefault("platforms.request_timeout", 15*time.Second)

	v.SetDefault("sync.match_limit", 50)
	v.SetDefault("sync.inactive_after", DefaultInactiveAfter)
	v.SetDefault("sync.monitor_active", true)

	v.SetDefault("analytics.activity_days", DefaultActivityDays)

	v.SetDefault("scheduler.tasks", map[string]any{
		"match_sync":      map[string]any{"enabled": false, "schedule": "0 */15 * * * *"},
		"inactive_check":  map[string]any{"enabled": true, "schedule": "0 0 */6 * * *"},
		"sql_maintenance": map[string]any{"enabled": true, "schedule": "0 0 4 * * *"},
	})
}
