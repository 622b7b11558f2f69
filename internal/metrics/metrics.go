package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics holds the instrumentation for the monitoring engine.
type Metrics struct {
	ProbesTotal        *prometheus.CounterVec
	ProbeLatency       *prometheus.HistogramVec
	CyclesTotal        prometheus.Counter
	CyclesSkipped      prometheus.Counter
	CycleDuration      prometheus.Histogram
	OpenAlerts         *prometheus.GaugeVec
	NotificationsTotal *prometheus.CounterVec
	RouteChangesTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the metric vectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		ProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsentinel_probes_total",
				Help: "Probe attempts by target and outcome",
			},
			[]string{"target", "result"},
		),
		ProbeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netsentinel_probe_latency_ms",
				Help:    "Average probe round trip time in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
			},
			[]string{"target"},
		),
		CyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "netsentinel_cycles_total",
				Help: "Completed monitoring cycles",
			},
		),
		CyclesSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "netsentinel_cycles_skipped_total",
				Help: "Cycles skipped because the previous cycle was still running",
			},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "netsentinel_cycle_duration_seconds",
				Help:    "Wall clock duration of a monitoring cycle",
				Buckets: prometheus.DefBuckets,
			},
		),
		OpenAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netsentinel_open_alerts",
				Help: "Currently open alerts by severity",
			},
			[]string{"severity"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsentinel_notifications_total",
				Help: "Notification attempts by channel and status",
			},
			[]string{"channel", "status"},
		),
		RouteChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netsentinel_route_changes_total",
				Help: "Detected route changes by endpoint",
			},
			[]string{"endpoint"},
		),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.ProbesTotal,
		m.ProbeLatency,
		m.CyclesTotal,
		m.CyclesSkipped,
		m.CycleDuration,
		m.OpenAlerts,
		m.NotificationsTotal,
		m.RouteChangesTotal,
	)

	return m
}

// Registry exposes the underlying registry for the exporter handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordNotification feeds dispatcher outcomes into the counter vector.
func (m *Metrics) RecordNotification(channel string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.NotificationsTotal.WithLabelValues(channel, status).Inc()
}

// Exporter serves the metrics registry over HTTP.
type Exporter struct {
	server *http.Server
	logger *logrus.Logger
	port   string
}

// NewExporter builds the /metrics and /health endpoints on the given port.
func NewExporter(m *Metrics, port string, logger *logrus.Logger) *Exporter {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Exporter{
		server: &http.Server{
			Addr:    ":" + port,
			Handler: mux,
		},
		logger: logger,
		port:   port,
	}
}

// Start serves until the context is cancelled, then shuts down cleanly.
func (e *Exporter) Start(ctx context.Context) error {
	e.logger.Infof("Starting metrics exporter on port %s", e.port)

	go func() {
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Errorf("Metrics exporter failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.server.Shutdown(shutdownCtx)
}
