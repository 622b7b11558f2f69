package rules

import (
	"fmt"
	"sync"
	"time"

	"netsentinel/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type openKey struct {
	rule     string
	targetID string
	endpoint string
}

// Engine evaluates the configured alert rules against health aggregates
// and tracks alert lifecycle. The open-alert table is mutated only by
// Evaluate, which runs once per cycle; the invariant is at most one open
// alert per (rule, target, endpoint) triple.
type Engine struct {
	rules  []model.AlertRule
	logger *logrus.Logger

	mu   sync.RWMutex
	open map[openKey]*model.Alert

	now func() time.Time
}

// NewEngine creates an Engine over a resolved rule list. Rules are
// evaluated in the order given (configuration order).
func NewEngine(rules []model.AlertRule, logger *logrus.Logger) *Engine {
	return &Engine{
		rules:  rules,
		logger: logger,
		open:   make(map[openKey]*model.Alert),
		now:    time.Now,
	}
}

// SetRules swaps the rule list on config reload. Open alerts whose rule
// was removed or disabled are resolved by the next Evaluate call.
func (e *Engine) SetRules(rules []model.AlertRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
}

// Evaluate tests every enabled rule against every aggregate matching its
// target filter and returns the resulting lifecycle transitions in
// deterministic order: rules in configuration order, aggregates in
// (target, endpoint) order.
func (e *Engine) Evaluate(aggregates []model.HealthAggregate) []model.AlertTransition {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var transitions []model.AlertTransition
	evaluated := make(map[openKey]struct{}, len(e.open))

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		for _, agg := range aggregates {
			if !rule.Matches(agg.TargetKind) {
				continue
			}

			k := openKey{rule.Name, agg.TargetID, agg.Endpoint}
			evaluated[k] = struct{}{}
			fires, value := evalCondition(rule, agg)
			existing, isOpen := e.open[k]

			switch {
			case fires && !isOpen:
				alert := &model.Alert{
					ID:         uuid.NewString(),
					RuleName:   rule.Name,
					TargetID:   agg.TargetID,
					TargetKind: agg.TargetKind,
					Endpoint:   agg.Endpoint,
					Severity:   rule.Severity,
					Message:    alertMessage(rule, agg, value),
					Value:      value,
					OpenedAt:   now,
				}
				e.open[k] = alert
				e.logger.Warnf("Alert opened [%s] %s: %s", alert.Severity, rule.Name, alert.Message)
				transitions = append(transitions, model.AlertTransition{Kind: model.TransitionOpened, Alert: *alert})

			case fires && isOpen:
				existing.Value = value
				transitions = append(transitions, model.AlertTransition{Kind: model.TransitionStillOpen, Alert: *existing})

			case !fires && isOpen:
				resolved := now
				existing.ResolvedAt = &resolved
				delete(e.open, k)
				e.logger.Infof("Alert resolved [%s] %s on %s/%s", existing.Severity, rule.Name, agg.TargetID, agg.Endpoint)
				transitions = append(transitions, model.AlertTransition{Kind: model.TransitionResolved, Alert: *existing})
			}
		}
	}

	// Open alerts no longer covered by any (rule, aggregate) pair, because
	// the rule was removed or disabled or the endpoint left the registry,
	// would otherwise stay open forever. Resolve them now.
	for k, a := range e.open {
		if _, ok := evaluated[k]; ok {
			continue
		}
		resolved := now
		a.ResolvedAt = &resolved
		delete(e.open, k)
		e.logger.Infof("Alert resolved [%s] %s on %s/%s, no longer evaluated", a.Severity, k.rule, k.targetID, k.endpoint)
		transitions = append(transitions, model.AlertTransition{Kind: model.TransitionResolved, Alert: *a})
	}

	return transitions
}

// MarkNotified records the dispatcher's last successful notification time
// on the open alert so StillOpen dedup survives across cycles.
func (e *Engine) MarkNotified(alert model.Alert, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.open[openKey{alert.RuleName, alert.TargetID, alert.Endpoint}]; ok && a.ID == alert.ID {
		a.LastNotifiedAt = at
	}
}

// OpenAlerts returns copies of all currently open alerts.
func (e *Engine) OpenAlerts() []model.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.Alert, 0, len(e.open))
	for _, a := range e.open {
		out = append(out, *a)
	}
	return out
}

// Restore seeds the open-alert table from persisted alerts at startup so
// a restart does not re-open incidents that are already open.
func (e *Engine) Restore(alerts []model.Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range alerts {
		a := alerts[i]
		if a.ResolvedAt != nil {
			continue
		}
		e.open[openKey{a.RuleName, a.TargetID, a.Endpoint}] = &a
	}
}

func alertMessage(rule model.AlertRule, agg model.HealthAggregate, value float64) string {
	switch rule.Kind {
	case model.ConditionPercentage:
		return fmt.Sprintf("%s: %s/%s success ratio %.2f below %.2f",
			rule.Name, agg.TargetID, agg.Endpoint, value, rule.Threshold)
	case model.ConditionConsecutiveFailures:
		return fmt.Sprintf("%s: %s/%s failed %d consecutive probes (threshold %d)",
			rule.Name, agg.TargetID, agg.Endpoint, agg.ConsecutiveFailures, int(rule.Threshold))
	}

	switch rule.Metric {
	case model.MetricLatency:
		return fmt.Sprintf("%s: %s/%s average latency %.1fms above %.1fms",
			rule.Name, agg.TargetID, agg.Endpoint, value, rule.Threshold)
	case model.MetricRouteChange:
		return fmt.Sprintf("%s: %s/%s network route changed", rule.Name, agg.TargetID, agg.Endpoint)
	default:
		return fmt.Sprintf("%s: %s/%s packet loss %.1f%% at or above %.1f%%",
			rule.Name, agg.TargetID, agg.Endpoint, value, rule.Threshold)
	}
}
