package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"netsentinel/internal/model"
	"netsentinel/internal/rules"
	"netsentinel/internal/scheduler"
	"netsentinel/internal/state"
	"netsentinel/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Broadcaster fans alert transitions out to websocket subscribers.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

type subscriber struct {
	ch       chan model.AlertTransition
	severity string
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]*subscriber)}
}

// Publish sends transitions to every subscriber whose filter matches.
// Slow subscribers drop messages instead of blocking the cycle.
func (b *Broadcaster) Publish(transitions []model.AlertTransition) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range transitions {
		for _, sub := range b.subs {
			if sub.severity != "" && sub.severity != string(t.Alert.Severity) {
				continue
			}
			select {
			case sub.ch <- t:
			default:
			}
		}
	}
}

func (b *Broadcaster) subscribe(severity string) (string, chan model.AlertTransition) {
	id := uuid.NewString()
	ch := make(chan model.AlertTransition, 100)
	b.mu.Lock()
	b.subs[id] = &subscriber{ch: ch, severity: severity}
	b.mu.Unlock()
	return id, ch
}

func (b *Broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Handlers serves the HTTP API over the live engine components.
type Handlers struct {
	health      *state.Store
	db          *store.Store
	engine      *rules.Engine
	sched       *scheduler.Scheduler
	broadcaster *Broadcaster
	logger      *logrus.Logger

	mu      sync.RWMutex
	targets []model.Target

	upgrader websocket.Upgrader
}

func NewHandlers(targets []model.Target, health *state.Store, db *store.Store,
	engine *rules.Engine, sched *scheduler.Scheduler, broadcaster *Broadcaster,
	logger *logrus.Logger) *Handlers {
	return &Handlers{
		health:      health,
		db:          db,
		engine:      engine,
		sched:       sched,
		broadcaster: broadcaster,
		logger:      logger,
		targets:     targets,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// SetTargets updates the registry served by GetTargets on config reload.
func (h *Handlers) SetTargets(targets []model.Target) {
	h.mu.Lock()
	h.targets = targets
	h.mu.Unlock()
}

// GetStatus returns the live health snapshot for every endpoint.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := h.health.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"endpoints": snapshot,
		"count":     len(snapshot),
	})
}

// GetTargets returns the configured probe registry.
func (h *Handlers) GetTargets(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	targets := h.targets
	h.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"targets": targets,
		"count":   len(targets),
	})
}

// GetAlerts returns alert history, filtered by severity, lookback hours
// and open state.
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("open") == "true" {
		open := h.engine.OpenAlerts()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"alerts": open,
			"count":  len(open),
		})
		return
	}

	hours := queryInt(r, "hours", 24)
	limit := queryInt(r, "limit", 200)
	severity := r.URL.Query().Get("severity")

	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "alert history not available")
		return
	}
	alerts, err := h.db.LoadAlerts(time.Now().Add(-time.Duration(hours)*time.Hour), severity, limit)
	if err != nil {
		h.logger.Errorf("Failed to load alerts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetStats returns persisted status and alert aggregates.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "history not available")
		return
	}
	since := time.Now().Add(-time.Duration(queryInt(r, "hours", 24)) * time.Hour)

	status, err := h.db.StatusSummary(since)
	if err != nil {
		h.logger.Errorf("Failed to build status summary: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to build status summary")
		return
	}
	alertStats, err := h.db.AlertStatistics(since)
	if err != nil {
		h.logger.Errorf("Failed to build alert statistics: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to build alert statistics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"alerts": alertStats,
	})
}

// TriggerCycle runs one monitoring cycle immediately. Returns 409 when a
// cycle is already in flight.
func (h *Handlers) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	ran, err := h.sched.TryCycle(ctx)
	if err != nil {
		h.logger.Errorf("Manual cycle failed: %v", err)
		writeError(w, http.StatusInternalServerError, "cycle failed")
		return
	}
	if !ran {
		writeError(w, http.StatusConflict, "a cycle is already running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// StreamAlerts pushes alert transitions to a websocket client as they
// happen, optionally filtered by severity.
func (h *Handlers) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	severity := r.URL.Query().Get("severity")
	id, ch := h.broadcaster.subscribe(severity)
	defer h.broadcaster.unsubscribe(id)

	// Ping to keep the connection alive
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case t := <-ch:
			payload := map[string]interface{}{
				"event": t.Kind.String(),
				"alert": t.Alert,
			}
			if err := conn.WriteJSON(payload); err != nil {
				h.logger.Errorf("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
