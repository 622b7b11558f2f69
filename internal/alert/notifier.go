package alert

import "netsentinel/internal/model"

// Notifier interface for alert notification channels
type Notifier interface {
	Name() string
	SendAlert(transition model.AlertTransition) error
}
