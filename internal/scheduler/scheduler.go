package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"netsentinel/internal/metrics"
	"netsentinel/internal/model"
	"netsentinel/internal/rules"
	"netsentinel/internal/state"

	"github.com/sirupsen/logrus"
)

// Prober measures reachability of one endpoint.
type Prober interface {
	Probe(ctx context.Context, target model.Target, endpoint model.Endpoint) model.Measurement
}

// RouteAnalyzer traces the network path to an endpoint and detects
// changes against the previous trace.
type RouteAnalyzer interface {
	Trace(ctx context.Context, endpoint string) (model.RouteSnapshot, error)
	CompareAndStore(snapshot model.RouteSnapshot) *model.RouteChangeEvent
}

// Dispatcher fans alert transitions out to notification channels.
type Dispatcher interface {
	Dispatch(transitions []model.AlertTransition)
}

// Persistence is the subset of the database layer the scheduler writes to.
type Persistence interface {
	SaveMeasurements(measurements []model.Measurement, kinds map[string]model.TargetKind) error
	SaveRouteSnapshot(snap model.RouteSnapshot) error
	SaveAlert(a model.Alert) error
	Prune(cutoff time.Time) error
}

const (
	stateIdle int32 = iota
	stateRunning
	stateStopRequested
)

// Scheduler drives monitoring cycles: probe every endpoint, update
// health state, evaluate rules, persist and dispatch the results.
type Scheduler struct {
	prober     Prober
	analyzer   RouteAnalyzer
	health     *state.Store
	engine     *rules.Engine
	dispatcher Dispatcher
	db         Persistence
	metrics    *metrics.Metrics
	logger     *logrus.Logger

	interval    time.Duration
	concurrency int
	retention   time.Duration

	mu      sync.RWMutex
	targets []model.Target
	kinds   map[string]model.TargetKind

	runState int32
}

// Options carries the scheduler's tunables.
type Options struct {
	Interval    time.Duration
	Concurrency int
	Retention   time.Duration
}

// New wires a Scheduler. analyzer, db and m may be nil to disable route
// analysis, persistence and instrumentation respectively.
func New(targets []model.Target, prober Prober, analyzer RouteAnalyzer, health *state.Store,
	engine *rules.Engine, dispatcher Dispatcher, db Persistence, m *metrics.Metrics,
	opts Options, logger *logrus.Logger) *Scheduler {

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	s := &Scheduler{
		prober:      prober,
		analyzer:    analyzer,
		health:      health,
		engine:      engine,
		dispatcher:  dispatcher,
		db:          db,
		metrics:     m,
		logger:      logger,
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
		retention:   opts.Retention,
	}
	s.SetTargets(targets)
	return s
}

// SetTargets swaps the probe registry, used on config reload.
func (s *Scheduler) SetTargets(targets []model.Target) {
	kinds := make(map[string]model.TargetKind, len(targets))
	for _, t := range targets {
		kinds[t.ID] = t.Kind
	}
	s.mu.Lock()
	s.targets = targets
	s.kinds = kinds
	s.mu.Unlock()
}

// Run executes cycles on the configured interval until the context is
// cancelled. A cycle that is still running when the next tick fires is
// not interrupted; the tick is skipped instead.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Infof("Starting monitoring loop, interval %s", s.interval)

	if _, err := s.TryCycle(ctx); err != nil {
		s.logger.Errorf("Monitoring cycle failed: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			atomic.CompareAndSwapInt32(&s.runState, stateRunning, stateStopRequested)
			s.logger.Info("Monitoring loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.TryCycle(ctx); err != nil && ctx.Err() == nil {
				s.logger.Errorf("Monitoring cycle failed: %v", err)
			}
		}
	}
}

// TryCycle runs a cycle unless one is already in flight. It returns false
// when the cycle was skipped because of overlap.
func (s *Scheduler) TryCycle(ctx context.Context) (bool, error) {
	if !atomic.CompareAndSwapInt32(&s.runState, stateIdle, stateRunning) {
		s.logger.Warn("Previous cycle still running, skipping tick")
		if s.metrics != nil {
			s.metrics.CyclesSkipped.Inc()
		}
		return false, nil
	}
	defer atomic.StoreInt32(&s.runState, stateIdle)
	return true, s.RunCycle(ctx)
}

// RunCycle performs one full monitoring cycle. Persistence errors fail
// the cycle; individual probe or trace failures do not.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	start := time.Now()

	s.mu.RLock()
	targets := s.targets
	kinds := s.kinds
	s.mu.RUnlock()

	type task struct {
		target   model.Target
		endpoint model.Endpoint
	}
	var tasks []task
	for _, t := range targets {
		for _, ep := range t.Endpoints {
			tasks = append(tasks, task{t, ep})
		}
	}

	var (
		wg           sync.WaitGroup
		sem          = make(chan struct{}, s.concurrency)
		resultsMu    sync.Mutex
		measurements []model.Measurement
		snapshots    []model.RouteSnapshot
	)

	for _, tk := range tasks {
		wg.Add(1)
		go func(tk task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}

			m := s.prober.Probe(ctx, tk.target, tk.endpoint)
			s.health.Record(m, tk.target.Kind)
			s.recordProbeMetrics(tk.target.ID, m)

			changed := false
			var snap *model.RouteSnapshot
			if s.analyzer != nil {
				if traced, err := s.analyzer.Trace(ctx, tk.endpoint.Address); err != nil {
					s.logger.Debugf("Trace failed for %s: %v", tk.endpoint.Address, err)
				} else {
					snap = &traced
					if ev := s.analyzer.CompareAndStore(traced); ev != nil {
						changed = true
						s.logger.Warnf("Route change on %s (%s)", ev.Endpoint, ev.Reason)
						if s.metrics != nil {
							s.metrics.RouteChangesTotal.WithLabelValues(ev.Endpoint).Inc()
						}
					}
				}
			}
			s.health.SetRouteChanged(tk.target.ID, tk.endpoint.Address, tk.target.Kind, changed)

			resultsMu.Lock()
			measurements = append(measurements, m)
			if snap != nil {
				snapshots = append(snapshots, *snap)
			}
			resultsMu.Unlock()
		}(tk)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	var persistErr error
	if s.db != nil {
		if err := s.db.SaveMeasurements(measurements, kinds); err != nil {
			s.logger.Errorf("Failed to persist measurements: %v", err)
			persistErr = err
		}
		for _, snap := range snapshots {
			if err := s.db.SaveRouteSnapshot(snap); err != nil {
				s.logger.Errorf("Failed to persist route snapshot for %s: %v", snap.Endpoint, err)
				persistErr = err
			}
		}
	}

	transitions := s.engine.Evaluate(s.health.Snapshot())
	if s.db != nil {
		for _, t := range transitions {
			if t.Kind == model.TransitionStillOpen {
				continue
			}
			if err := s.db.SaveAlert(t.Alert); err != nil {
				s.logger.Errorf("Failed to persist alert %s: %v", t.Alert.ID, err)
				persistErr = err
			}
		}
	}

	if s.dispatcher != nil && len(transitions) > 0 {
		s.dispatcher.Dispatch(transitions)
	}

	if s.db != nil && s.retention > 0 {
		if err := s.db.Prune(time.Now().Add(-s.retention)); err != nil {
			s.logger.Errorf("Failed to prune history: %v", err)
			persistErr = err
		}
	}

	s.updateAlertGauge()
	if s.metrics != nil {
		s.metrics.CyclesTotal.Inc()
		s.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}

	s.logger.Debugf("Cycle finished: %d endpoints, %d transitions, %s",
		len(tasks), len(transitions), time.Since(start).Round(time.Millisecond))
	return persistErr
}

func (s *Scheduler) recordProbeMetrics(targetID string, m model.Measurement) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if !m.Reachable {
		result = "failure"
	}
	s.metrics.ProbesTotal.WithLabelValues(targetID, result).Inc()
	if m.Reachable {
		s.metrics.ProbeLatency.WithLabelValues(targetID).Observe(m.LatencyMs)
	}
}

func (s *Scheduler) updateAlertGauge() {
	if s.metrics == nil {
		return
	}
	counts := map[model.Severity]int{
		model.SeverityLow:      0,
		model.SeverityMedium:   0,
		model.SeverityHigh:     0,
		model.SeverityCritical: 0,
	}
	for _, a := range s.engine.OpenAlerts() {
		counts[a.Severity]++
	}
	for sev, n := range counts {
		s.metrics.OpenAlerts.WithLabelValues(string(sev)).Set(float64(n))
	}
}
