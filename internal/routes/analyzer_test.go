package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"netsentinel/internal/model"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestAnalyzer(bgpURL string) *Analyzer {
	return NewAnalyzer(30, time.Minute, bgpURL, nil, testLogger())
}

const sampleTraceroute = `traceroute to 203.0.113.9 (203.0.113.9), 30 hops max, 60 byte packets
 1  192.168.1.1  0.543 ms
 2  10.20.0.1  4.120 ms
 3  * * *
 4  203.0.113.9  32.815 ms
`

func TestParseTraceroute(t *testing.T) {
	a := newTestAnalyzer("")
	hops := a.parseTraceroute(sampleTraceroute)

	if len(hops) != 3 {
		t.Fatalf("hops: got %d, want 3 (silent hop skipped)", len(hops))
	}
	if hops[0].Address != "192.168.1.1" || hops[0].Number != 1 {
		t.Errorf("hop 0: got %+v", hops[0])
	}
	if hops[2].RTTMs != 32.815 {
		t.Errorf("hop 2 RTT: got %v, want 32.815", hops[2].RTTMs)
	}
}

func snapshotWithHops(endpoint string, addrs ...string) model.RouteSnapshot {
	s := model.RouteSnapshot{Endpoint: endpoint, Timestamp: time.Now()}
	for i, addr := range addrs {
		s.Hops = append(s.Hops, model.Hop{Number: i + 1, Address: addr})
	}
	return s
}

func TestCompareAndStore_FirstSnapshotIsNotAChange(t *testing.T) {
	a := newTestAnalyzer("")
	if ev := a.CompareAndStore(snapshotWithHops("203.0.113.9", "10.0.0.1")); ev != nil {
		t.Fatalf("first snapshot: got change event %+v, want nil", ev)
	}
}

func TestCompareAndStore_HopChange(t *testing.T) {
	a := newTestAnalyzer("")
	a.CompareAndStore(snapshotWithHops("203.0.113.9", "10.0.0.1", "10.0.0.2"))

	ev := a.CompareAndStore(snapshotWithHops("203.0.113.9", "10.0.0.1", "10.0.0.3"))
	if ev == nil {
		t.Fatal("hop change: got nil, want event")
	}
	if ev.Reason != "hops" {
		t.Errorf("Reason: got %q, want hops", ev.Reason)
	}
}

func TestCompareAndStore_ASPathChange(t *testing.T) {
	a := newTestAnalyzer("")

	s1 := snapshotWithHops("203.0.113.9", "10.0.0.1")
	s1.ASPath = []uint32{64500, 64501, 64502}
	a.CompareAndStore(s1)

	// Same snapshot again: no change.
	s2 := s1
	if ev := a.CompareAndStore(s2); ev != nil {
		t.Fatalf("identical snapshot: got %+v, want nil", ev)
	}

	// One ASN dropped from the path.
	s3 := snapshotWithHops("203.0.113.9", "10.0.0.1")
	s3.ASPath = []uint32{64500, 64502}
	ev := a.CompareAndStore(s3)
	if ev == nil {
		t.Fatal("AS path change: got nil, want event")
	}
	if ev.Reason != "as_path" {
		t.Errorf("Reason: got %q, want as_path", ev.Reason)
	}
}

func TestCompareAndStore_EndpointsAreIndependent(t *testing.T) {
	a := newTestAnalyzer("")
	a.CompareAndStore(snapshotWithHops("203.0.113.9", "10.0.0.1"))

	if ev := a.CompareAndStore(snapshotWithHops("198.51.100.7", "10.9.9.9")); ev != nil {
		t.Fatalf("different endpoint: got %+v, want nil", ev)
	}
}

func TestLookupBGP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ip/203.0.113.9" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		w.Write([]byte(`{"data":{"prefixes":[{"prefix":"203.0.113.0/24","asn":{"asn":64500}}]}}`))
	}))
	defer srv.Close()

	a := newTestAnalyzer(srv.URL)
	asPath, prefix, err := a.LookupBGP(context.Background(), "203.0.113.9")
	if err != nil {
		t.Fatalf("LookupBGP: %v", err)
	}
	if prefix != "203.0.113.0/24" {
		t.Errorf("prefix: got %q, want 203.0.113.0/24", prefix)
	}
	if len(asPath) != 1 || asPath[0] != 64500 {
		t.Errorf("asPath: got %v, want [64500]", asPath)
	}
}

func TestLookupBGP_NoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"prefixes":[]}}`))
	}))
	defer srv.Close()

	a := newTestAnalyzer(srv.URL)
	if _, _, err := a.LookupBGP(context.Background(), "192.0.2.1"); err == nil {
		t.Fatal("empty prefix list: got nil error")
	}
}

func TestSummarizePath_Bottlenecks(t *testing.T) {
	s := snapshotWithHops("203.0.113.9", "10.0.0.1", "10.0.0.2", "10.0.0.3")
	s.Hops[0].RTTMs = 5
	s.Hops[1].RTTMs = 10
	s.Hops[2].RTTMs = 100 // > 2x average

	analysis := summarizePath(s)
	if analysis.TotalHops != 3 {
		t.Errorf("TotalHops: got %d, want 3", analysis.TotalHops)
	}
	if len(analysis.Bottlenecks) != 1 || analysis.Bottlenecks[0].Address != "10.0.0.3" {
		t.Errorf("Bottlenecks: got %+v, want the 100ms hop", analysis.Bottlenecks)
	}
	if analysis.MaxLatencyMs != 100 || analysis.MinLatencyMs != 5 {
		t.Errorf("latency range: got [%v, %v], want [5, 100]", analysis.MinLatencyMs, analysis.MaxLatencyMs)
	}
}
