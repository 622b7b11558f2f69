package routes

import (
	"context"
	"time"

	"netsentinel/internal/model"
)

// PathAnalysis is the one-shot summary produced for the analyze CLI mode.
type PathAnalysis struct {
	Destination  string      `json:"destination"`
	Timestamp    time.Time   `json:"timestamp"`
	Hops         []model.Hop `json:"hops"`
	ASPath       []string    `json:"as_path"`
	OriginPrefix string      `json:"origin_prefix,omitempty"`
	TotalHops    int         `json:"total_hops"`
	AvgLatencyMs float64     `json:"avg_latency_ms"`
	MaxLatencyMs float64     `json:"max_latency_ms"`
	MinLatencyMs float64     `json:"min_latency_ms"`
	Bottlenecks  []model.Hop `json:"bottlenecks,omitempty"`
}

// AnalyzePath traces the path to a destination and summarizes it: latency
// statistics per hop plus any bottleneck hops slower than twice the path
// average.
func (a *Analyzer) AnalyzePath(ctx context.Context, destination string) (PathAnalysis, error) {
	snapshot, err := a.Trace(ctx, destination)
	if err != nil {
		return PathAnalysis{}, err
	}
	return summarizePath(snapshot), nil
}

func summarizePath(snapshot model.RouteSnapshot) PathAnalysis {
	analysis := PathAnalysis{
		Destination:  snapshot.Endpoint,
		Timestamp:    snapshot.Timestamp,
		Hops:         snapshot.Hops,
		ASPath:       formatASPath(snapshot.ASPath),
		OriginPrefix: snapshot.OriginPrefix,
		TotalHops:    len(snapshot.Hops),
	}

	var sum float64
	for i, hop := range snapshot.Hops {
		sum += hop.RTTMs
		if i == 0 || hop.RTTMs > analysis.MaxLatencyMs {
			analysis.MaxLatencyMs = hop.RTTMs
		}
		if i == 0 || hop.RTTMs < analysis.MinLatencyMs {
			analysis.MinLatencyMs = hop.RTTMs
		}
	}
	if len(snapshot.Hops) > 0 {
		analysis.AvgLatencyMs = sum / float64(len(snapshot.Hops))
	}

	for _, hop := range snapshot.Hops {
		if hop.RTTMs > analysis.AvgLatencyMs*2 {
			analysis.Bottlenecks = append(analysis.Bottlenecks, hop)
		}
	}
	return analysis
}
