package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"netsentinel/internal/model"
	"netsentinel/internal/rules"
	"netsentinel/internal/state"

	"github.com/sirupsen/logrus"
)

type fakeProber struct {
	mu        sync.Mutex
	reachable map[string]bool
	calls     int
	delay     time.Duration
}

func (f *fakeProber) Probe(ctx context.Context, target model.Target, endpoint model.Endpoint) model.Measurement {
	f.mu.Lock()
	f.calls++
	reachable, ok := f.reachable[endpoint.Address]
	f.mu.Unlock()
	if !ok {
		reachable = true
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	m := model.Measurement{
		TargetID:  target.ID,
		Endpoint:  endpoint.Address,
		Timestamp: time.Now(),
		Reachable: reachable,
	}
	if reachable {
		m.LatencyMs = 20
	} else {
		m.PacketLoss = 1
	}
	return m
}

type fakeAnalyzer struct {
	mu      sync.Mutex
	changed map[string]bool
}

func (f *fakeAnalyzer) Trace(ctx context.Context, endpoint string) (model.RouteSnapshot, error) {
	return model.RouteSnapshot{Endpoint: endpoint, Timestamp: time.Now()}, nil
}

func (f *fakeAnalyzer) CompareAndStore(snap model.RouteSnapshot) *model.RouteChangeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.changed[snap.Endpoint] {
		f.changed[snap.Endpoint] = false
		return &model.RouteChangeEvent{Endpoint: snap.Endpoint, Reason: "hops"}
	}
	return nil
}

type fakeDispatcher struct {
	mu          sync.Mutex
	transitions []model.AlertTransition
}

func (f *fakeDispatcher) Dispatch(ts []model.AlertTransition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, ts...)
}

func (f *fakeDispatcher) all() []model.AlertTransition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AlertTransition(nil), f.transitions...)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testTargets() []model.Target {
	return []model.Target{
		{
			ID:   "cable-1",
			Kind: model.KindCable,
			Endpoints: []model.Endpoint{
				{Address: "1.1.1.1"},
				{Address: "1.0.0.1"},
			},
		},
		{
			ID:        "isp-1",
			Kind:      model.KindISP,
			Endpoints: []model.Endpoint{{Address: "8.8.8.8"}},
		},
	}
}

func outageRule() model.AlertRule {
	return model.AlertRule{
		Name:      "complete_outage",
		Kind:      model.ConditionThreshold,
		Metric:    model.MetricPacketLoss,
		Threshold: 100,
		Severity:  model.SeverityHigh,
		Enabled:   true,
	}
}

func TestRunCycle_ProbesAllEndpoints(t *testing.T) {
	prober := &fakeProber{}
	health := state.New(10, time.Hour)
	engine := rules.NewEngine(nil, testLogger())
	dispatcher := &fakeDispatcher{}

	s := New(testTargets(), prober, nil, health, engine, dispatcher, nil, nil,
		Options{Interval: time.Minute, Concurrency: 2}, testLogger())

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if prober.calls != 3 {
		t.Errorf("probe calls = %d, want 3", prober.calls)
	}
	if got := len(health.Snapshot()); got != 3 {
		t.Errorf("health entries = %d, want 3", got)
	}
}

func TestRunCycle_OutageOpensAndResolves(t *testing.T) {
	prober := &fakeProber{reachable: map[string]bool{"8.8.8.8": false}}
	health := state.New(10, time.Hour)
	engine := rules.NewEngine([]model.AlertRule{outageRule()}, testLogger())
	dispatcher := &fakeDispatcher{}

	s := New(testTargets(), prober, nil, health, engine, dispatcher, nil, nil,
		Options{Interval: time.Minute, Concurrency: 2}, testLogger())

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	got := dispatcher.all()
	if len(got) != 1 || got[0].Kind != model.TransitionOpened {
		t.Fatalf("transitions = %+v, want one Opened", got)
	}
	if got[0].Alert.Endpoint != "8.8.8.8" {
		t.Errorf("alert endpoint = %s, want 8.8.8.8", got[0].Alert.Endpoint)
	}

	// Endpoint recovers; the window still holds the failure but the
	// packet loss ratio drops below 100%.
	prober.reachable["8.8.8.8"] = true
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}

	got = dispatcher.all()
	if len(got) != 2 || got[1].Kind != model.TransitionResolved {
		t.Fatalf("transitions after recovery = %+v, want Resolved", got)
	}
}

func TestRunCycle_RouteChangeVisibleForOneCycle(t *testing.T) {
	prober := &fakeProber{}
	analyzer := &fakeAnalyzer{changed: map[string]bool{"1.1.1.1": true}}
	health := state.New(10, time.Hour)
	routeRule := model.AlertRule{
		Name:      "route_change",
		Kind:      model.ConditionThreshold,
		Metric:    model.MetricRouteChange,
		Threshold: 0,
		Severity:  model.SeverityLow,
		Enabled:   true,
	}
	engine := rules.NewEngine([]model.AlertRule{routeRule}, testLogger())
	dispatcher := &fakeDispatcher{}

	s := New(testTargets(), prober, analyzer, health, engine, dispatcher, nil, nil,
		Options{Interval: time.Minute, Concurrency: 2}, testLogger())

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	got := dispatcher.all()
	if len(got) != 1 || got[0].Kind != model.TransitionOpened || got[0].Alert.Endpoint != "1.1.1.1" {
		t.Fatalf("transitions = %+v, want Opened for 1.1.1.1", got)
	}

	// Next cycle the route is stable again, the flag clears and the
	// alert resolves.
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	got = dispatcher.all()
	if len(got) != 2 || got[1].Kind != model.TransitionResolved {
		t.Fatalf("transitions = %+v, want Resolved second", got)
	}
}

func TestRun_SkipsOverlappingTick(t *testing.T) {
	prober := &fakeProber{delay: 50 * time.Millisecond}
	health := state.New(10, time.Hour)
	engine := rules.NewEngine(nil, testLogger())

	s := New(testTargets(), prober, nil, health, engine, &fakeDispatcher{}, nil, nil,
		Options{Interval: 5 * time.Millisecond, Concurrency: 1}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	// Three endpoints at 50ms each on one worker: a single cycle takes
	// ~150ms, so the 5ms ticks inside it must all be skipped.
	prober.mu.Lock()
	calls := prober.calls
	prober.mu.Unlock()
	if calls > 6 {
		t.Errorf("probe calls = %d, overlapping cycles were not skipped", calls)
	}
}

func TestTryCycle_SkipsWhenBusy(t *testing.T) {
	prober := &fakeProber{delay: 100 * time.Millisecond}
	health := state.New(10, time.Hour)
	engine := rules.NewEngine(nil, testLogger())

	s := New(testTargets(), prober, nil, health, engine, &fakeDispatcher{}, nil, nil,
		Options{Interval: time.Minute, Concurrency: 1}, testLogger())

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		_, _ = s.TryCycle(context.Background())
		close(done)
	}()

	<-started
	time.Sleep(20 * time.Millisecond)

	ran, err := s.TryCycle(context.Background())
	if err != nil {
		t.Fatalf("TryCycle: %v", err)
	}
	if ran {
		t.Error("second TryCycle ran while the first was in flight")
	}
	<-done

	ran, err = s.TryCycle(context.Background())
	if err != nil || !ran {
		t.Fatalf("TryCycle after completion: ran=%v err=%v", ran, err)
	}
}

func TestSetTargets_ReloadTakesEffect(t *testing.T) {
	prober := &fakeProber{}
	health := state.New(10, time.Hour)
	engine := rules.NewEngine(nil, testLogger())

	s := New(testTargets(), prober, nil, health, engine, &fakeDispatcher{}, nil, nil,
		Options{Interval: time.Minute, Concurrency: 2}, testLogger())

	s.SetTargets([]model.Target{{
		ID:        "only",
		Kind:      model.KindCloud,
		Endpoints: []model.Endpoint{{Address: "9.9.9.9"}},
	}})

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if prober.calls != 1 {
		t.Errorf("probe calls = %d, want 1 after reload", prober.calls)
	}
}
