package rules

import "netsentinel/internal/model"

// evalCondition decides whether a rule fires for an aggregate and returns
// the observed value the alert records.
func evalCondition(rule model.AlertRule, agg model.HealthAggregate) (bool, float64) {
	switch rule.Kind {
	case model.ConditionPercentage:
		return agg.SuccessRatio < rule.Threshold, agg.SuccessRatio

	case model.ConditionConsecutiveFailures:
		return float64(agg.ConsecutiveFailures) >= rule.Threshold, float64(agg.ConsecutiveFailures)

	case model.ConditionThreshold:
		switch rule.Metric {
		case model.MetricLatency:
			return agg.AvgLatencyMs > rule.Threshold, agg.AvgLatencyMs
		case model.MetricRouteChange:
			v := 0.0
			if agg.RouteChanged {
				v = 1.0
			}
			return v > rule.Threshold, v
		default:
			loss := agg.PacketLossPct()
			return loss >= rule.Threshold, loss
		}
	}
	return false, 0
}
