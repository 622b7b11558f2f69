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

// TelegramNotifier sends alerts through the Telegram bot API
type TelegramNotifier struct {
	botToken  string
	chatID    string
	parseMode string
	enabled   bool
	baseURL   string
	client    *http.Client
	logger    *logrus.Logger
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

func NewTelegramNotifier(botToken, chatID, parseMode string, enabled bool, logger *logrus.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		botToken:  botToken,
		chatID:    chatID,
		parseMode: parseMode,
		enabled:   enabled,
		baseURL:   "https://api.telegram.org",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (tn *TelegramNotifier) Name() string {
	return "telegram"
}

func (tn *TelegramNotifier) SendAlert(t model.AlertTransition) error {
	if !tn.enabled {
		tn.logger.Debug("Telegram notifier is disabled, skipping alert")
		return nil
	}

	a := t.Alert
	header := "NETWORK ALERT"
	if t.Kind == model.TransitionResolved {
		header = "ALERT RESOLVED"
	}

	text := fmt.Sprintf("%s\n\n"+
		"rule: %s\n"+
		"severity: %s\n"+
		"target: %s (%s)\n"+
		"endpoint: %s\n"+
		"time: %s\n"+
		"description: %s",
		header, a.RuleName, a.Severity, a.TargetID, a.TargetKind, a.Endpoint,
		a.OpenedAt.Format("2006-01-02 15:04:05"), a.Message)

	return tn.sendMessage(text)
}

func (tn *TelegramNotifier) sendMessage(text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", tn.baseURL, tn.botToken)

	jsonData, err := json.Marshal(telegramMessage{ChatID: tn.chatID, Text: text, ParseMode: tn.parseMode})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %v", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	var tgResp telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tgResp); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	if !tgResp.OK {
		return fmt.Errorf("telegram API error: %s", tgResp.Description)
	}
	return nil
}

func (tn *TelegramNotifier) IsEnabled() bool {
	return tn.enabled
}
