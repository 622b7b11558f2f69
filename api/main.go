package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netsentinel/api/internal/handlers"
	"netsentinel/internal/alert"
	"netsentinel/internal/geo"
	"netsentinel/internal/metrics"
	"netsentinel/internal/model"
	"netsentinel/internal/probe"
	"netsentinel/internal/routes"
	"netsentinel/internal/rules"
	"netsentinel/internal/scheduler"
	"netsentinel/internal/state"
	"netsentinel/internal/store"
	"netsentinel/internal/utils"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// fanoutDispatcher pushes transitions to websocket subscribers before the
// regular notification channels.
type fanoutDispatcher struct {
	dispatcher  *alert.Dispatcher
	broadcaster *handlers.Broadcaster
}

func (f fanoutDispatcher) Dispatch(ts []model.AlertTransition) {
	f.broadcaster.Publish(ts)
	if f.dispatcher != nil {
		f.dispatcher.Dispatch(ts)
	}
}

func main() {
	var (
		configFile = flag.String("config", "configs/netsentinel.yaml", "Configuration file path (YAML)")
		port       = flag.String("port", "5001", "API server port")
	)
	flag.Parse()

	_ = godotenv.Load()

	config, err := utils.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)

	targets, err := config.BuildRegistry()
	if err != nil {
		logger.Fatalf("Invalid target registry: %v", err)
	}
	ruleSet, err := config.BuildRules()
	if err != nil {
		logger.Fatalf("Invalid alert rules: %v", err)
	}

	db, err := store.New(config.Database.Path)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	health := state.New(config.Monitoring.WindowSize, time.Duration(config.Monitoring.RetentionHours)*time.Hour)
	engine := rules.NewEngine(ruleSet, logger)
	if open, err := db.LoadOpenAlerts(); err != nil {
		logger.Warnf("Failed to restore open alerts: %v", err)
	} else {
		engine.Restore(open)
	}

	prober := probe.New(time.Duration(config.Monitoring.TimeoutSeconds)*time.Second, config.Monitoring.RetryCount, logger)
	prober.SetPrivileged(os.Geteuid() == 0)

	var resolver *geo.Resolver
	if config.Analysis.GeoIPDatabase != "" {
		if resolver, err = geo.Open(config.Analysis.GeoIPDatabase); err != nil {
			logger.Warnf("GeoIP database unavailable: %v", err)
			resolver = nil
		} else {
			defer resolver.Close()
		}
	}
	analyzer := routes.NewAnalyzer(config.Analysis.MaxHops,
		time.Duration(config.Analysis.TraceTimeoutSeconds)*time.Second,
		config.Analysis.BGPAPIURL, resolver, logger)

	m := metrics.New()
	broadcaster := handlers.NewBroadcaster()

	var notifier *alert.Dispatcher
	if config.Alerting.Enabled {
		notifier = alert.NewDispatcherFromConfig(config, logger)
		notifier.OnNotified = engine.MarkNotified
		notifier.OnResult = m.RecordNotification
	}

	sched := scheduler.New(targets, prober, analyzer, health, engine,
		fanoutDispatcher{dispatcher: notifier, broadcaster: broadcaster}, db, m,
		scheduler.Options{
			Interval:    time.Duration(config.Monitoring.PingIntervalSeconds) * time.Second,
			Concurrency: config.Monitoring.Concurrency,
			Retention:   time.Duration(config.Monitoring.RetentionHours) * time.Hour,
		}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("Monitoring loop exited: %v", err)
		}
	}()

	if config.Metrics.Enabled {
		exporter := metrics.NewExporter(m, config.Metrics.Port, logger)
		go func() {
			if err := exporter.Start(ctx); err != nil {
				logger.Errorf("Metrics exporter exited: %v", err)
			}
		}()
	}

	h := handlers.NewHandlers(targets, health, db, engine, sched, broadcaster, logger)

	// Reload targets and rules when the config file changes
	go func() {
		err := utils.WatchConfig(ctx, *configFile, logger, func(next *utils.Config) {
			nextTargets, err := next.BuildRegistry()
			if err != nil {
				logger.Errorf("Reload rejected, bad targets: %v", err)
				return
			}
			nextRules, err := next.BuildRules()
			if err != nil {
				logger.Errorf("Reload rejected, bad rules: %v", err)
				return
			}
			sched.SetTargets(nextTargets)
			engine.SetRules(nextRules)
			h.SetTargets(nextTargets)
			logger.Infof("Configuration reloaded: %d targets, %d rules", len(nextTargets), len(nextRules))
		})
		if err != nil && ctx.Err() == nil {
			logger.Warnf("Config watcher stopped: %v", err)
		}
	}()

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", h.GetStatus).Methods("GET")
	api.HandleFunc("/targets", h.GetTargets).Methods("GET")
	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/cycle", h.TriggerCycle).Methods("POST")
	api.HandleFunc("/stream/alerts", h.StreamAlerts).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	addr := fmt.Sprintf(":%s", *port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
	}

	logger.Infof("API server starting on port %s", *port)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down API server...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
