package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"netsentinel/internal/geo"
	"netsentinel/internal/model"

	"github.com/sirupsen/logrus"
)

// tracerouteFunc runs a path trace and returns the raw command output.
// Swappable in tests.
type tracerouteFunc func(ctx context.Context, address string, maxHops int, timeout time.Duration) (string, error)

// Analyzer executes path traces and BGP prefix lookups, and derives route
// change events by comparing each snapshot against the previous one for
// the same endpoint.
type Analyzer struct {
	maxHops      int
	traceTimeout time.Duration
	bgpAPIURL    string
	client       *http.Client
	geo          *geo.Resolver
	logger       *logrus.Logger
	trace        tracerouteFunc

	mu   sync.Mutex
	last map[string]model.RouteSnapshot
}

// NewAnalyzer creates an Analyzer. resolver may be nil to disable hop
// geolocation.
func NewAnalyzer(maxHops int, traceTimeout time.Duration, bgpAPIURL string, resolver *geo.Resolver, logger *logrus.Logger) *Analyzer {
	if maxHops <= 0 {
		maxHops = 30
	}
	if traceTimeout <= 0 {
		traceTimeout = 60 * time.Second
	}
	return &Analyzer{
		maxHops:      maxHops,
		traceTimeout: traceTimeout,
		bgpAPIURL:    strings.TrimRight(bgpAPIURL, "/"),
		client:       &http.Client{Timeout: 10 * time.Second},
		geo:          resolver,
		logger:       logger,
		trace:        runTraceroute,
		last:         make(map[string]model.RouteSnapshot),
	}
}

// Trace runs a traceroute and a BGP lookup for one endpoint and returns
// the combined snapshot. On failure the caller skips route comparison
// for this cycle and moves on.
func (a *Analyzer) Trace(ctx context.Context, endpoint string) (model.RouteSnapshot, error) {
	snapshot := model.RouteSnapshot{
		Endpoint:  endpoint,
		Timestamp: time.Now(),
	}

	output, err := a.trace(ctx, endpoint, a.maxHops, a.traceTimeout)
	if err != nil {
		return snapshot, fmt.Errorf("traceroute to %s failed: %v", endpoint, err)
	}
	snapshot.Hops = a.parseTraceroute(output)

	asPath, originPrefix, err := a.LookupBGP(ctx, endpoint)
	if err != nil {
		// Hops alone still make a usable snapshot.
		a.logger.Debugf("BGP lookup for %s failed: %v", endpoint, err)
	} else {
		snapshot.ASPath = asPath
		snapshot.OriginPrefix = originPrefix
	}

	return snapshot, nil
}

// CompareAndStore diffs a snapshot against the last stored one for the
// same endpoint, stores it, and returns a change event if the ordered hop
// sequence or the AS path differs. The first snapshot for an endpoint is
// never a change.
func (a *Analyzer) CompareAndStore(snapshot model.RouteSnapshot) *model.RouteChangeEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev, seen := a.last[snapshot.Endpoint]
	a.last[snapshot.Endpoint] = snapshot
	if !seen {
		return nil
	}

	if !equalStrings(prev.HopAddresses(), snapshot.HopAddresses()) {
		return &model.RouteChangeEvent{
			Endpoint:  snapshot.Endpoint,
			Timestamp: snapshot.Timestamp,
			Reason:    "hops",
			Previous:  prev.HopAddresses(),
			Current:   snapshot.HopAddresses(),
		}
	}
	if !equalASPaths(prev.ASPath, snapshot.ASPath) {
		return &model.RouteChangeEvent{
			Endpoint:  snapshot.Endpoint,
			Timestamp: snapshot.Timestamp,
			Reason:    "as_path",
			Previous:  formatASPath(prev.ASPath),
			Current:   formatASPath(snapshot.ASPath),
		}
	}
	return nil
}

// bgpPrefixResponse is the subset of the bgpview.io answer we consume.
type bgpPrefixResponse struct {
	Data struct {
		Prefixes []struct {
			Prefix string   `json:"prefix"`
			ASPath []uint32 `json:"as_path"`
			ASN    struct {
				ASN uint32 `json:"asn"`
			} `json:"asn"`
		} `json:"prefixes"`
	} `json:"data"`
}

// LookupBGP queries the route-prefix API for the AS path and origin
// prefix covering an address.
func (a *Analyzer) LookupBGP(ctx context.Context, address string) ([]uint32, string, error) {
	url := fmt.Sprintf("%s/ip/%s", a.bgpAPIURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("BGP query failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("BGP query returned HTTP %d", resp.StatusCode)
	}

	var parsed bgpPrefixResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, "", fmt.Errorf("failed to decode BGP response: %v", err)
	}
	if len(parsed.Data.Prefixes) == 0 {
		return nil, "", fmt.Errorf("no prefix data for %s", address)
	}

	p := parsed.Data.Prefixes[0]
	asPath := p.ASPath
	if len(asPath) == 0 && p.ASN.ASN != 0 {
		asPath = []uint32{p.ASN.ASN}
	}
	return asPath, p.Prefix, nil
}

var hopPattern = regexp.MustCompile(`^\s*(\d+)\s+(\S+)\s+([\d.]+)\s*ms`)

// parseTraceroute extracts hops from `traceroute -n` output. Lines with no
// reply ("* * *") are skipped.
func (a *Analyzer) parseTraceroute(output string) []model.Hop {
	var hops []model.Hop
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i, line := range lines {
		if i == 0 && strings.Contains(line, "traceroute to") {
			continue
		}
		m := hopPattern.FindStringSubmatch(line)
		if m == nil || m[2] == "*" {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		rtt, _ := strconv.ParseFloat(m[3], 64)
		hops = append(hops, model.Hop{
			Number:  num,
			Address: m[2],
			RTTMs:   rtt,
			Country: a.geo.Country(m[2]),
		})
	}
	return hops
}

func runTraceroute(ctx context.Context, address string, maxHops int, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "traceroute", "-n", "-q", "1", "-m", strconv.Itoa(maxHops), address)
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalASPaths(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatASPath(path []uint32) []string {
	out := make([]string, len(path))
	for i, asn := range path {
		out[i] = "AS" + strconv.FormatUint(uint64(asn), 10)
	}
	return out
}
