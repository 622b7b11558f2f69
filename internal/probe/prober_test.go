package probe

import (
	"testing"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestSummarize_AllSucceeded(t *testing.T) {
	p := New(time.Second, 4, testLogger())
	stats := &probing.Statistics{
		PacketsSent: 4,
		PacketsRecv: 4,
		AvgRtt:      20 * time.Millisecond,
	}

	m := p.summarize("cable-1", "203.0.113.1", time.Now(), stats)

	if !m.Reachable {
		t.Fatal("Reachable: got false, want true")
	}
	if m.LatencyMs != 20 {
		t.Errorf("LatencyMs: got %v, want 20", m.LatencyMs)
	}
	if m.PacketLoss != 0 {
		t.Errorf("PacketLoss: got %v, want 0", m.PacketLoss)
	}
}

func TestSummarize_PartialLoss(t *testing.T) {
	p := New(time.Second, 4, testLogger())
	stats := &probing.Statistics{
		PacketsSent: 4,
		PacketsRecv: 3,
		AvgRtt:      35 * time.Millisecond,
	}

	m := p.summarize("isp-1", "198.51.100.1", time.Now(), stats)

	if !m.Reachable {
		t.Fatal("Reachable: got false, want true")
	}
	if m.PacketLoss != 0.25 {
		t.Errorf("PacketLoss: got %v, want 0.25", m.PacketLoss)
	}
}

func TestSummarize_NothingReceived(t *testing.T) {
	p := New(time.Second, 3, testLogger())
	stats := &probing.Statistics{PacketsSent: 3, PacketsRecv: 0}

	m := p.summarize("cloud-1", "192.0.2.1", time.Now(), stats)

	if m.Reachable {
		t.Fatal("Reachable: got true, want false")
	}
	if m.PacketLoss != 1.0 {
		t.Errorf("PacketLoss: got %v, want 1.0", m.PacketLoss)
	}
	if m.LatencyMs != 0 {
		t.Errorf("LatencyMs: got %v, want 0 (omitted when unreachable)", m.LatencyMs)
	}
}

// Nothing was sent at all (e.g. the socket could not be opened); the
// measurement still reports full loss, never an error.
func TestSummarize_NothingSent(t *testing.T) {
	p := New(time.Second, 3, testLogger())
	m := p.summarize("cable-1", "203.0.113.1", time.Now(), &probing.Statistics{})

	if m.Reachable {
		t.Fatal("Reachable: got true, want false")
	}
	if m.PacketLoss != 1.0 {
		t.Errorf("PacketLoss: got %v, want 1.0", m.PacketLoss)
	}
}
