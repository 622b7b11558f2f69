package alert

import (
	"netsentinel/internal/model"

	"github.com/sirupsen/logrus"
)

// LogAlertNotifier sends alerts to local logs
type LogAlertNotifier struct {
	logger *logrus.Logger
}

// NewLogAlertNotifier creates a new log alert notifier
func NewLogAlertNotifier(logger *logrus.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{
		logger: logger,
	}
}

func (ln *LogAlertNotifier) Name() string {
	return "log"
}

// SendAlert implements Notifier interface - sends alert to logs
func (ln *LogAlertNotifier) SendAlert(t model.AlertTransition) error {
	a := t.Alert
	switch t.Kind {
	case model.TransitionResolved:
		ln.logger.Infof("RESOLVED [%s] %s on %s/%s: %s", a.Severity, a.RuleName, a.TargetID, a.Endpoint, a.Message)
	default:
		ln.logger.Warnf("ALERT [%s] %s on %s/%s: %s", a.Severity, a.RuleName, a.TargetID, a.Endpoint, a.Message)
	}
	return nil
}
