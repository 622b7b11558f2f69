package probe

import (
	"context"
	"time"

	"netsentinel/internal/model"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/sirupsen/logrus"
)

// Prober executes reachability and latency measurements against single
// endpoints. All network-level failures (timeout, unreachable host, DNS
// resolution) are folded into a Measurement with Reachable=false; Probe
// never returns an error for them. Address syntax is validated at
// configuration load, so malformed addresses never reach the prober.
type Prober struct {
	timeout    time.Duration
	retryCount int
	privileged bool
	logger     *logrus.Logger
}

// New creates a Prober. retryCount is the number of echo attempts per
// probe; timeout bounds each attempt, so one probe never blocks longer
// than timeout*retryCount.
func New(timeout time.Duration, retryCount int, logger *logrus.Logger) *Prober {
	if retryCount <= 0 {
		retryCount = 3
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		timeout:    timeout,
		retryCount: retryCount,
		logger:     logger,
	}
}

// SetPrivileged switches to raw ICMP sockets (needs CAP_NET_RAW). The
// default is unprivileged UDP ping.
func (p *Prober) SetPrivileged(privileged bool) {
	p.privileged = privileged
}

// Probe measures one endpoint of one target.
func (p *Prober) Probe(ctx context.Context, target model.Target, endpoint model.Endpoint) model.Measurement {
	now := time.Now()

	pinger, err := probing.NewPinger(endpoint.Address)
	if err != nil {
		// DNS resolution failure: unreachable, full loss.
		p.logger.Debugf("Probe %s: resolve failed: %v", endpoint.Address, err)
		return unreachable(target.ID, endpoint.Address, now)
	}

	pinger.SetPrivileged(p.privileged)
	pinger.Count = p.retryCount
	pinger.Interval = time.Second
	pinger.Timeout = p.timeout * time.Duration(p.retryCount)

	if err := pinger.RunWithContext(ctx); err != nil {
		p.logger.Debugf("Probe %s: ping failed: %v", endpoint.Address, err)
		return unreachable(target.ID, endpoint.Address, now)
	}

	return p.summarize(target.ID, endpoint.Address, now, pinger.Statistics())
}

// summarize folds raw ping statistics into a Measurement.
func (p *Prober) summarize(targetID, address string, ts time.Time, stats *probing.Statistics) model.Measurement {
	m := model.Measurement{
		TargetID:  targetID,
		Endpoint:  address,
		Timestamp: ts,
		Reachable: stats.PacketsRecv > 0,
	}

	sent := stats.PacketsSent
	if sent <= 0 {
		sent = p.retryCount
	}
	m.PacketLoss = float64(sent-stats.PacketsRecv) / float64(sent)

	if m.Reachable {
		m.LatencyMs = float64(stats.AvgRtt) / float64(time.Millisecond)
	}
	return m
}

func unreachable(targetID, address string, ts time.Time) model.Measurement {
	return model.Measurement{
		TargetID:   targetID,
		Endpoint:   address,
		Timestamp:  ts,
		Reachable:  false,
		PacketLoss: 1.0,
	}
}
