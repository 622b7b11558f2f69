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

// WebhookNotifier POSTs alerts as JSON to a configured endpoint
type WebhookNotifier struct {
	url     string
	headers map[string]string
	enabled bool
	client  *http.Client
	logger  *logrus.Logger
}

type webhookPayload struct {
	Event      string    `json:"event"`
	AlertID    string    `json:"alert_id"`
	Rule       string    `json:"rule"`
	Severity   string    `json:"severity"`
	TargetID   string    `json:"target_id"`
	TargetKind string    `json:"target_kind"`
	Endpoint   string    `json:"endpoint"`
	Message    string    `json:"message"`
	Value      float64   `json:"value"`
	OpenedAt   time.Time `json:"opened_at"`
	ResolvedAt string    `json:"resolved_at,omitempty"`
}

func NewWebhookNotifier(url string, headers map[string]string, enabled bool, logger *logrus.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		headers: headers,
		enabled: enabled,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (wn *WebhookNotifier) Name() string {
	return "webhook"
}

func (wn *WebhookNotifier) SendAlert(t model.AlertTransition) error {
	if !wn.enabled {
		wn.logger.Debug("Webhook notifier is disabled, skipping alert")
		return nil
	}

	a := t.Alert
	payload := webhookPayload{
		Event:      t.Kind.String(),
		AlertID:    a.ID,
		Rule:       a.RuleName,
		Severity:   string(a.Severity),
		TargetID:   a.TargetID,
		TargetKind: string(a.TargetKind),
		Endpoint:   a.Endpoint,
		Message:    a.Message,
		Value:      a.Value,
		OpenedAt:   a.OpenedAt,
	}
	if a.ResolvedAt != nil {
		payload.ResolvedAt = a.ResolvedAt.Format(time.RFC3339)
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), "POST", wn.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range wn.headers {
		req.Header.Set(k, v)
	}

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	wn.logger.Debugf("Alert sent to webhook: %s", a.RuleName)
	return nil
}
