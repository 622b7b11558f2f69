package model

import "time"

// Measurement is the result of one probe of one endpoint. Immutable once
// produced. LatencyMs is meaningful only when Reachable is true.
type Measurement struct {
	TargetID   string    `json:"target_id"`
	Endpoint   string    `json:"endpoint"`
	Timestamp  time.Time `json:"timestamp"`
	Reachable  bool      `json:"reachable"`
	LatencyMs  float64   `json:"latency_ms,omitempty"`
	PacketLoss float64   `json:"packet_loss"` // ratio 0.0-1.0 over the probe's attempts
}

// Hop is a single traceroute hop.
type Hop struct {
	Number  int     `json:"hop"`
	Address string  `json:"address"`
	RTTMs   float64 `json:"rtt_ms"`
	Country string  `json:"country,omitempty"`
}

// RouteSnapshot is the result of one traceroute/BGP query for one endpoint.
type RouteSnapshot struct {
	Endpoint     string    `json:"endpoint"`
	Timestamp    time.Time `json:"timestamp"`
	Hops         []Hop     `json:"hops"`
	ASPath       []uint32  `json:"as_path,omitempty"`
	OriginPrefix string    `json:"origin_prefix,omitempty"`
}

// HopAddresses returns the ordered hop IP sequence.
func (s RouteSnapshot) HopAddresses() []string {
	addrs := make([]string, 0, len(s.Hops))
	for _, h := range s.Hops {
		addrs = append(addrs, h.Address)
	}
	return addrs
}

// RouteChangeEvent is derived when an endpoint's hop sequence or AS path
// differs from the immediately preceding snapshot.
type RouteChangeEvent struct {
	Endpoint  string    `json:"endpoint"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"` // "hops" or "as_path"
	Previous  []string  `json:"previous"`
	Current   []string  `json:"current"`
}

// HealthAggregate is the rolling derived view over the most recent window
// of measurements for one (target, endpoint) pair. Read-only outside the
// state store.
type HealthAggregate struct {
	TargetID            string     `json:"target_id"`
	TargetKind          TargetKind `json:"target_kind"`
	Endpoint            string     `json:"endpoint"`
	SuccessRatio        float64    `json:"success_ratio"`
	AvgLatencyMs        float64    `json:"avg_latency_ms"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	RouteChanged        bool       `json:"route_changed"`
	LastUpdated         time.Time  `json:"last_updated"`
}

// PacketLossPct is the window loss expressed as a percentage, the unit
// threshold rules are configured in.
func (a HealthAggregate) PacketLossPct() float64 {
	return (1 - a.SuccessRatio) * 100
}
