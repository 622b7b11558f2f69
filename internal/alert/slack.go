package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"netsentinel/internal/model"

	"github.com/sirupsen/logrus"
)

// SlackNotifier posts alerts to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	enabled    bool
	client     *http.Client
	logger     *logrus.Logger
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

var severityColors = map[model.Severity]string{
	model.SeverityLow:      "#36a64f",
	model.SeverityMedium:   "#ffcc00",
	model.SeverityHigh:     "#ff6600",
	model.SeverityCritical: "#ff0000",
}

func NewSlackNotifier(webhookURL, channel, username string, enabled bool, logger *logrus.Logger) *SlackNotifier {
	if username == "" {
		username = "netsentinel"
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		channel:    channel,
		username:   username,
		enabled:    enabled,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (sn *SlackNotifier) Name() string {
	return "slack"
}

func (sn *SlackNotifier) SendAlert(t model.AlertTransition) error {
	if !sn.enabled {
		sn.logger.Debug("Slack notifier is disabled, skipping alert")
		return nil
	}

	a := t.Alert
	title := fmt.Sprintf("Network Alert: %s", a.RuleName)
	color := severityColors[a.Severity]
	if t.Kind == model.TransitionResolved {
		title = fmt.Sprintf("Resolved: %s", a.RuleName)
		color = "#36a64f"
	}

	payload := slackPayload{
		Channel:  sn.channel,
		Username: sn.username,
		Attachments: []slackAttachment{{
			Color: color,
			Title: title,
			Text:  a.Message,
			Fields: []slackField{
				{Title: "Severity", Value: string(a.Severity), Short: true},
				{Title: "Target", Value: a.TargetID, Short: true},
				{Title: "Endpoint", Value: a.Endpoint, Short: true},
				{Title: "Type", Value: string(a.TargetKind), Short: true},
			},
			Ts: a.OpenedAt.Unix(),
		}},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), "POST", sn.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := sn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	sn.logger.Debugf("Alert sent to Slack: %s", a.RuleName)
	return nil
}

func (sn *SlackNotifier) IsEnabled() bool {
	return sn.enabled
}
