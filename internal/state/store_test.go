package state

import (
	"testing"
	"time"

	"netsentinel/internal/model"
)

func measurement(reachable bool, latency float64, ts time.Time) model.Measurement {
	m := model.Measurement{
		TargetID:  "cable-1",
		Endpoint:  "203.0.113.1",
		Timestamp: ts,
		Reachable: reachable,
	}
	if reachable {
		m.LatencyMs = latency
	} else {
		m.PacketLoss = 1.0
	}
	return m
}

func TestRecord_HealthyEndpoint(t *testing.T) {
	st := New(20, time.Hour)
	base := time.Now()

	for i := 0; i < 5; i++ {
		st.Record(measurement(true, 20, base.Add(time.Duration(i)*time.Minute)), model.KindCable)
	}

	agg, ok := st.GetAggregate("cable-1", "203.0.113.1")
	if !ok {
		t.Fatal("GetAggregate: expected aggregate")
	}
	if agg.SuccessRatio != 1.0 {
		t.Errorf("SuccessRatio: got %v, want 1.0", agg.SuccessRatio)
	}
	if agg.AvgLatencyMs != 20 {
		t.Errorf("AvgLatencyMs: got %v, want 20", agg.AvgLatencyMs)
	}
	if agg.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures: got %d, want 0", agg.ConsecutiveFailures)
	}
}

func TestRecord_DegradedEndpoint(t *testing.T) {
	st := New(20, time.Hour)
	base := time.Now()

	// 10 measurements, 3 of them failures.
	for i := 0; i < 10; i++ {
		reachable := i != 2 && i != 5 && i != 8
		st.Record(measurement(reachable, 30, base.Add(time.Duration(i)*time.Minute)), model.KindCable)
	}

	agg, _ := st.GetAggregate("cable-1", "203.0.113.1")
	if agg.SuccessRatio != 0.7 {
		t.Errorf("SuccessRatio: got %v, want 0.7", agg.SuccessRatio)
	}
}

func TestRecord_ConsecutiveFailures(t *testing.T) {
	st := New(20, time.Hour)
	base := time.Now()

	st.Record(measurement(true, 20, base), model.KindISP)
	st.Record(measurement(false, 0, base.Add(time.Minute)), model.KindISP)
	st.Record(measurement(false, 0, base.Add(2*time.Minute)), model.KindISP)

	agg, _ := st.GetAggregate("cable-1", "203.0.113.1")
	if agg.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures: got %d, want 2", agg.ConsecutiveFailures)
	}

	// A success resets the streak.
	st.Record(measurement(true, 20, base.Add(3*time.Minute)), model.KindISP)
	agg, _ = st.GetAggregate("cable-1", "203.0.113.1")
	if agg.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures after success: got %d, want 0", agg.ConsecutiveFailures)
	}
}

func TestRecord_WindowBoundsAggregate(t *testing.T) {
	st := New(5, time.Hour)
	base := time.Now()

	// 5 old failures followed by 5 fresh successes; window of 5 sees only
	// the successes.
	for i := 0; i < 5; i++ {
		st.Record(measurement(false, 0, base.Add(time.Duration(i)*time.Minute)), model.KindCloud)
	}
	for i := 5; i < 10; i++ {
		st.Record(measurement(true, 10, base.Add(time.Duration(i)*time.Minute)), model.KindCloud)
	}

	agg, _ := st.GetAggregate("cable-1", "203.0.113.1")
	if agg.SuccessRatio != 1.0 {
		t.Errorf("SuccessRatio: got %v, want 1.0 (old failures outside window)", agg.SuccessRatio)
	}
}

func TestEviction_NeverCutsIntoWindow(t *testing.T) {
	st := New(5, time.Hour)
	base := time.Now()
	st.now = func() time.Time { return base }

	// All measurements far older than the retention horizon.
	for i := 0; i < 10; i++ {
		st.Record(measurement(true, 10, base.Add(-48*time.Hour)), model.KindCable)
	}

	history := st.GetHistory("cable-1", "203.0.113.1", 0)
	if len(history) != 5 {
		t.Errorf("history after eviction: got %d, want window of 5", len(history))
	}
}

func TestGetHistory_MostRecentFirst(t *testing.T) {
	st := New(20, time.Hour)
	base := time.Now()

	st.Record(measurement(true, 10, base), model.KindCable)
	st.Record(measurement(true, 20, base.Add(time.Minute)), model.KindCable)

	history := st.GetHistory("cable-1", "203.0.113.1", 2)
	if len(history) != 2 {
		t.Fatalf("history: got %d entries, want 2", len(history))
	}
	if !history[0].Timestamp.After(history[1].Timestamp) {
		t.Error("history: expected most recent first")
	}
}

func TestRouteChanged_LastsOneCycle(t *testing.T) {
	st := New(20, time.Hour)
	base := time.Now()

	st.Record(measurement(true, 10, base), model.KindCable)
	st.SetRouteChanged("cable-1", "203.0.113.1", model.KindCable, true)

	agg, _ := st.GetAggregate("cable-1", "203.0.113.1")
	if !agg.RouteChanged {
		t.Fatal("RouteChanged: got false after SetRouteChanged(true)")
	}

	// Next cycle's Record clears the flag.
	st.Record(measurement(true, 10, base.Add(time.Minute)), model.KindCable)
	agg, _ = st.GetAggregate("cable-1", "203.0.113.1")
	if agg.RouteChanged {
		t.Error("RouteChanged: still true one cycle later")
	}
}

func TestSnapshot_Ordered(t *testing.T) {
	st := New(20, time.Hour)
	base := time.Now()

	mb := measurement(true, 10, base)
	mb.TargetID = "isp-2"
	st.Record(mb, model.KindISP)

	ma := measurement(true, 10, base)
	ma.TargetID = "cable-1"
	st.Record(ma, model.KindCable)

	snap := st.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot: got %d aggregates, want 2", len(snap))
	}
	if snap[0].TargetID != "cable-1" || snap[1].TargetID != "isp-2" {
		t.Errorf("snapshot order: got %s, %s", snap[0].TargetID, snap[1].TargetID)
	}
}
