package model

import (
	"fmt"
	"time"
)

// Severity of an alert, ordered LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity validates a severity string from configuration.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// ConditionKind selects how a rule's threshold is compared against an
// aggregate. The kind is resolved once at configuration load, never
// re-parsed during evaluation.
type ConditionKind int

const (
	ConditionThreshold ConditionKind = iota
	ConditionPercentage
	ConditionConsecutiveFailures
)

// ParseConditionKind maps the configuration string to its tagged kind.
func ParseConditionKind(s string) (ConditionKind, error) {
	switch s {
	case "threshold":
		return ConditionThreshold, nil
	case "percentage":
		return ConditionPercentage, nil
	case "consecutive_failures":
		return ConditionConsecutiveFailures, nil
	}
	return 0, fmt.Errorf("unknown condition kind %q", s)
}

func (k ConditionKind) String() string {
	switch k {
	case ConditionThreshold:
		return "threshold"
	case ConditionPercentage:
		return "percentage"
	case ConditionConsecutiveFailures:
		return "consecutive_failures"
	}
	return "unknown"
}

// ThresholdMetric selects the aggregate field a threshold-kind rule
// compares. Percentage and consecutive-failure rules have a fixed field
// and ignore it.
type ThresholdMetric int

const (
	MetricPacketLoss ThresholdMetric = iota
	MetricLatency
	MetricRouteChange
)

// ParseThresholdMetric maps the configuration string to its metric.
// An empty string keeps the packet-loss default.
func ParseThresholdMetric(s string) (ThresholdMetric, error) {
	switch s {
	case "", "packet_loss":
		return MetricPacketLoss, nil
	case "latency":
		return MetricLatency, nil
	case "route_change":
		return MetricRouteChange, nil
	}
	return 0, fmt.Errorf("unknown threshold metric %q", s)
}

// AlertRule is a named alert condition. TargetFilter empty means the rule
// applies to all target kinds.
type AlertRule struct {
	Name         string
	Kind         ConditionKind
	Metric       ThresholdMetric
	Threshold    float64
	TargetFilter TargetKind
	Severity     Severity
	Enabled      bool
}

// Matches reports whether the rule applies to the given target kind.
func (r AlertRule) Matches(kind TargetKind) bool {
	return r.TargetFilter == "" || r.TargetFilter == kind
}

// Alert is a stateful incident: a rule condition that became true for a
// (target, endpoint) pair. At most one open Alert exists per
// (rule, target, endpoint) triple at any time.
type Alert struct {
	ID             string     `json:"id"`
	RuleName       string     `json:"rule_name"`
	TargetID       string     `json:"target_id"`
	TargetKind     TargetKind `json:"target_kind"`
	Endpoint       string     `json:"endpoint"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Value          float64    `json:"value"`
	OpenedAt       time.Time  `json:"opened_at"`
	LastNotifiedAt time.Time  `json:"last_notified_at,omitzero"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// TransitionKind describes the lifecycle step an evaluation produced.
type TransitionKind int

const (
	TransitionOpened TransitionKind = iota
	TransitionStillOpen
	TransitionResolved
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionOpened:
		return "opened"
	case TransitionStillOpen:
		return "still_open"
	case TransitionResolved:
		return "resolved"
	}
	return "unknown"
}

// AlertTransition is one lifecycle step emitted by rule evaluation.
type AlertTransition struct {
	Kind  TransitionKind
	Alert Alert
}
