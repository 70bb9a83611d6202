package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	for name, task := range c.Scheduler.Tasks {
		if task.Enabled && task.Schedule == "" {
			return fmt.Errorf("scheduler task %q is enabled but has no schedule", name)
		}
	}

	n := c.Notifications
	if n.Channels.Email && (n.Email.SMTPHost == "" || n.Email.To == "") {
		return fmt.Errorf("email notifications require smtp_host and to")
	}
	if n.Channels.Push && (n.Telegram.Token == "" || n.Telegram.ChatID == 0) {
		return fmt.Errorf("push notifications require telegram token and chat_id")
	}
	return nil
}
