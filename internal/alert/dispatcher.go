package alert

import (
	"sync"
	"time"

	"netsentinel/internal/model"

	"github.com/sirupsen/logrus"
)

// defaultRoutes is the severity fan-out used when no routes are configured.
var defaultRoutes = map[model.Severity][]string{
	model.SeverityLow:      {"slack"},
	model.SeverityMedium:   {"slack", "webhook"},
	model.SeverityHigh:     {"email", "slack", "webhook"},
	model.SeverityCritical: {"email", "slack", "webhook"},
}

// Dispatcher routes alert transitions to notification channels by
// severity, deduplicates repeat notifications for alerts that stay open,
// and retries failed sends. A channel failure never blocks the others.
type Dispatcher struct {
	notifiers        map[string]Notifier
	routes           map[model.Severity][]string
	renotifyInterval time.Duration
	retryCount       int
	retryBackoff     time.Duration
	logger           *logrus.Logger

	// OnNotified is called after at least one channel accepted a
	// notification for an open alert.
	OnNotified func(alert model.Alert, at time.Time)
	// OnResult is called once per channel attempt outcome.
	OnResult func(channel string, success bool)

	mu       sync.Mutex
	lastSent map[string]time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewDispatcher creates a Dispatcher. routes maps severity names to
// channel names and overrides the default fan-out for the severities it
// lists; unknown channel names are dropped with a warning.
func NewDispatcher(renotifyInterval time.Duration, retryCount int, retryBackoff time.Duration, routes map[string][]string, logger *logrus.Logger) *Dispatcher {
	d := &Dispatcher{
		notifiers:        make(map[string]Notifier),
		routes:           make(map[model.Severity][]string),
		renotifyInterval: renotifyInterval,
		retryCount:       retryCount,
		retryBackoff:     retryBackoff,
		logger:           logger,
		lastSent:         make(map[string]time.Time),
		now:              time.Now,
		sleep:            time.Sleep,
	}
	if d.retryCount < 1 {
		d.retryCount = 1
	}

	for sev, channels := range defaultRoutes {
		d.routes[sev] = channels
	}
	for name, channels := range routes {
		sev, err := model.ParseSeverity(name)
		if err != nil {
			logger.Warnf("Ignoring route for unknown severity %q", name)
			continue
		}
		d.routes[sev] = channels
	}

	return d
}

// RegisterNotifier adds a channel. Channels not named by any route are
// registered but never receive alerts.
func (d *Dispatcher) RegisterNotifier(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
	d.logger.Infof("Registered notifier: %s", n.Name())
}

// Dispatch fans out a cycle's transitions. Opened and Resolved always
// notify; StillOpen notifies only when the renotify interval has elapsed
// since the alert was last sent.
func (d *Dispatcher) Dispatch(transitions []model.AlertTransition) {
	for _, t := range transitions {
		d.dispatchOne(t)
	}
}

func (d *Dispatcher) dispatchOne(t model.AlertTransition) {
	now := d.now()

	d.mu.Lock()
	switch t.Kind {
	case model.TransitionStillOpen:
		if last, ok := d.lastSent[t.Alert.ID]; ok && now.Sub(last) < d.renotifyInterval {
			d.mu.Unlock()
			return
		}
	case model.TransitionResolved:
		// The alert ID never recurs, so the dedup entry must go even if
		// every channel fails below.
		delete(d.lastSent, t.Alert.ID)
	}
	channels := d.routes[t.Alert.Severity]
	targets := make([]Notifier, 0, len(channels))
	for _, name := range channels {
		if n, ok := d.notifiers[name]; ok {
			targets = append(targets, n)
		}
	}
	d.mu.Unlock()

	if len(targets) == 0 {
		d.logger.Debugf("No notifiers routed for severity %s, skipping %s", t.Alert.Severity, t.Alert.RuleName)
		return
	}

	delivered := false
	for _, n := range targets {
		if err := d.sendWithRetry(n, t); err != nil {
			d.logger.Errorf("Notifier %s failed for alert %s: %v", n.Name(), t.Alert.ID, err)
			if d.OnResult != nil {
				d.OnResult(n.Name(), false)
			}
			continue
		}
		delivered = true
		if d.OnResult != nil {
			d.OnResult(n.Name(), true)
		}
	}

	if !delivered || t.Kind == model.TransitionResolved {
		return
	}

	d.mu.Lock()
	d.lastSent[t.Alert.ID] = now
	d.mu.Unlock()

	if d.OnNotified != nil {
		d.OnNotified(t.Alert, now)
	}
}

func (d *Dispatcher) sendWithRetry(n Notifier, t model.AlertTransition) error {
	var err error
	backoff := d.retryBackoff
	for attempt := 1; attempt <= d.retryCount; attempt++ {
		err = n.SendAlert(t)
		if err == nil {
			return nil
		}
		if attempt < d.retryCount {
			d.logger.Warnf("Notifier %s attempt %d/%d failed: %v", n.Name(), attempt, d.retryCount, err)
			d.sleep(backoff)
			backoff *= 2
		}
	}
	return err
}
