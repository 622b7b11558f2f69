package alert

import (
	"strings"
	"time"

	"netsentinel/internal/utils"

	"github.com/sirupsen/logrus"
)

// NewDispatcherFromConfig builds a Dispatcher with every channel the
// configuration enables. The log channel is always registered so alerts
// are never invisible.
func NewDispatcherFromConfig(cfg *utils.Config, logger *logrus.Logger) *Dispatcher {
	a := cfg.Alerting
	d := NewDispatcher(
		time.Duration(a.RenotifyIntervalSeconds)*time.Second,
		a.RetryCount,
		time.Duration(a.RetryBackoffSeconds)*time.Second,
		a.Routes,
		logger,
	)

	d.RegisterNotifier(NewLogAlertNotifier(logger))

	ch := a.Channels
	if ch.Email.Enabled {
		d.RegisterNotifier(NewEmailNotifier(
			ch.Email.SMTPServer, ch.Email.SMTPPort,
			ch.Email.Username, ch.Email.Password,
			ch.Email.From, splitRecipients(ch.Email.To),
			true, logger))
	}
	if ch.Slack.Enabled {
		d.RegisterNotifier(NewSlackNotifier(
			ch.Slack.WebhookURL, "", "",
			true, logger))
	}
	if ch.Webhook.Enabled {
		d.RegisterNotifier(NewWebhookNotifier(
			ch.Webhook.URL, ch.Webhook.Headers,
			true, logger))
	}
	if ch.Telegram.Enabled {
		d.RegisterNotifier(NewTelegramNotifier(
			ch.Telegram.BotToken, ch.Telegram.ChatID, ch.Telegram.ParseMode,
			true, logger))
	}

	return d
}

func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
