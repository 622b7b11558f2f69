package alert

import (
	"fmt"
	"net/smtp"
	"strings"

	"netsentinel/internal/model"

	"github.com/sirupsen/logrus"
)

// EmailNotifier sends alerts over SMTP
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	enabled  bool
	send     sendMailFunc
	logger   *logrus.Logger
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

func NewEmailNotifier(host string, port int, username, password, from string, to []string, enabled bool, logger *logrus.Logger) *EmailNotifier {
	return &EmailNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		enabled:  enabled,
		send:     smtp.SendMail,
		logger:   logger,
	}
}

func (en *EmailNotifier) Name() string {
	return "email"
}

func (en *EmailNotifier) SendAlert(t model.AlertTransition) error {
	if !en.enabled {
		en.logger.Debug("Email notifier is disabled, skipping alert")
		return nil
	}
	if len(en.to) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	a := t.Alert
	subject := fmt.Sprintf("[%s] Network Alert: %s", a.Severity, a.RuleName)
	if t.Kind == model.TransitionResolved {
		subject = fmt.Sprintf("[RESOLVED] %s", a.RuleName)
	}

	body := fmt.Sprintf("Rule: %s\r\nSeverity: %s\r\nTarget: %s (%s)\r\nEndpoint: %s\r\nOpened: %s\r\n\r\n%s\r\n",
		a.RuleName, a.Severity, a.TargetID, a.TargetKind, a.Endpoint,
		a.OpenedAt.Format("2006-01-02 15:04:05"), a.Message)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		en.from, strings.Join(en.to, ", "), subject, body)

	var auth smtp.Auth
	if en.username != "" {
		auth = smtp.PlainAuth("", en.username, en.password, en.host)
	}
	addr := fmt.Sprintf("%s:%d", en.host, en.port)

	if err := en.send(addr, auth, en.from, en.to, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %v", err)
	}

	en.logger.Debugf("Alert emailed to %d recipients: %s", len(en.to), a.RuleName)
	return nil
}
