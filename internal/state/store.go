// Package state holds the rolling per-(target, endpoint) measurement
// history and the derived health aggregates. It is the only mutable state
// shared between cycle phases.
package state

import (
	"sort"
	"sync"
	"time"

	"netsentinel/internal/model"
)

type key struct {
	targetID string
	endpoint string
}

// entry carries its own lock so writes for distinct (target, endpoint)
// keys never block each other.
type entry struct {
	mu           sync.Mutex
	kind         model.TargetKind
	history      []model.Measurement // most recent first
	agg          model.HealthAggregate
	routeChanged bool
}

// Store is safe for concurrent use.
type Store struct {
	window    int
	retention time.Duration

	mu      sync.RWMutex
	entries map[key]*entry

	now func() time.Time
}

// New creates a Store. window is the number of most recent measurements
// aggregates are computed over; retention bounds how long older
// measurements are kept for history queries.
func New(window int, retention time.Duration) *Store {
	if window <= 0 {
		window = 20
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Store{
		window:    window,
		retention: retention,
		entries:   make(map[key]*entry),
		now:       time.Now,
	}
}

func (s *Store) entryFor(targetID, endpoint string, kind model.TargetKind) *entry {
	k := key{targetID, endpoint}

	s.mu.RLock()
	e, ok := s.entries[k]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[k]; ok {
		return e
	}
	e = &entry{kind: kind}
	s.entries[k] = e
	return e
}

// Record appends a measurement for its (target, endpoint) pair, evicts
// history past the retention horizon (never inside the aggregate window)
// and recomputes the pair's aggregate. It also resets the route-changed
// flag for the new cycle; SetRouteChanged re-arms it when the analyzer
// found a change.
func (s *Store) Record(m model.Measurement, kind model.TargetKind) {
	e := s.entryFor(m.TargetID, m.Endpoint, kind)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append([]model.Measurement{m}, e.history...)

	// Evict beyond the window once past the retention horizon.
	cutoff := s.now().Add(-s.retention)
	for len(e.history) > s.window && e.history[len(e.history)-1].Timestamp.Before(cutoff) {
		e.history = e.history[:len(e.history)-1]
	}

	e.routeChanged = false
	e.agg = s.recompute(e)
}

// SetRouteChanged records the analyzer's route diff result for the
// current cycle. The flag holds until the next Record for the same pair,
// so a change is visible to exactly one rule evaluation.
func (s *Store) SetRouteChanged(targetID, endpoint string, kind model.TargetKind, changed bool) {
	e := s.entryFor(targetID, endpoint, kind)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.routeChanged = changed
	e.agg.RouteChanged = changed
}

// recompute derives the aggregate over the window head of e.history.
// O(window); called once per cycle per endpoint. Caller holds e.mu.
func (s *Store) recompute(e *entry) model.HealthAggregate {
	window := e.history
	if len(window) > s.window {
		window = window[:s.window]
	}

	agg := model.HealthAggregate{
		TargetID:     window[0].TargetID,
		TargetKind:   e.kind,
		Endpoint:     window[0].Endpoint,
		RouteChanged: e.routeChanged,
		LastUpdated:  window[0].Timestamp,
	}

	successes := 0
	var latencySum float64
	for _, m := range window {
		if m.Reachable {
			successes++
			latencySum += m.LatencyMs
		}
	}
	agg.SuccessRatio = float64(successes) / float64(len(window))
	if successes > 0 {
		agg.AvgLatencyMs = latencySum / float64(successes)
	}

	for _, m := range window {
		if m.Reachable {
			break
		}
		agg.ConsecutiveFailures++
	}

	return agg
}

// GetAggregate returns the current aggregate for a pair.
func (s *Store) GetAggregate(targetID, endpoint string) (model.HealthAggregate, bool) {
	s.mu.RLock()
	e, ok := s.entries[key{targetID, endpoint}]
	s.mu.RUnlock()
	if !ok {
		return model.HealthAggregate{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) == 0 {
		return model.HealthAggregate{}, false
	}
	return e.agg, true
}

// GetHistory returns up to window measurements for a pair, most recent
// first.
func (s *Store) GetHistory(targetID, endpoint string, window int) []model.Measurement {
	s.mu.RLock()
	e, ok := s.entries[key{targetID, endpoint}]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if window <= 0 || window > len(e.history) {
		window = len(e.history)
	}
	out := make([]model.Measurement, window)
	copy(out, e.history[:window])
	return out
}

// Snapshot returns a consistent copy of all aggregates, ordered by
// (target, endpoint), for rule evaluation.
func (s *Store) Snapshot() []model.HealthAggregate {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	aggs := make([]model.HealthAggregate, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if len(e.history) > 0 {
			aggs = append(aggs, e.agg)
		}
		e.mu.Unlock()
	}

	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].TargetID != aggs[j].TargetID {
			return aggs[i].TargetID < aggs[j].TargetID
		}
		return aggs[i].Endpoint < aggs[j].Endpoint
	})
	return aggs
}
