package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"netsentinel/internal/alert"
	"netsentinel/internal/geo"
	"netsentinel/internal/metrics"
	"netsentinel/internal/probe"
	"netsentinel/internal/routes"
	"netsentinel/internal/rules"
	"netsentinel/internal/scheduler"
	"netsentinel/internal/state"
	"netsentinel/internal/store"
	"netsentinel/internal/utils"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func getVersion() string {
	content, err := os.ReadFile("VERSION")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(content))
}

// loadConfig reads the configuration file. A missing file falls back to
// the built-in defaults; a file that exists but fails to parse or
// validate is a fatal startup error, never silently replaced.
func loadConfig(path string) (config *utils.Config, usedDefault bool, err error) {
	config, err = utils.LoadConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return utils.GetDefaultConfig(), true, nil
		}
		return nil, false, err
	}
	return config, false, nil
}

func main() {
	var (
		configFile = flag.String("config", "configs/netsentinel.yaml", "Configuration file path (YAML)")
		mode       = flag.String("mode", "monitor", "Run mode: monitor, single, status, stats, analyze")
		targetAddr = flag.String("target", "", "Destination address for analyze mode (more may follow as arguments)")
		hours      = flag.Int("hours", 24, "Lookback window for status and stats modes")
	)
	flag.Parse()

	_ = godotenv.Load()

	config, usedDefault, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if usedDefault {
		fmt.Printf("Config file %s not found, using default configuration\n", *configFile)
	} else {
		fmt.Printf("Loaded configuration from %s\n", *configFile)
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format)

	fmt.Printf("NetSentinel v%s\n", getVersion())

	switch *mode {
	case "monitor", "single":
		runMonitor(config, logger, *configFile, *mode == "single")
	case "status":
		runStatus(config, logger, *hours)
	case "stats":
		runStats(config, logger, *hours)
	case "analyze":
		addrs := flag.Args()
		if *targetAddr != "" {
			addrs = append([]string{*targetAddr}, addrs...)
		}
		runAnalyze(config, logger, addrs)
	default:
		fmt.Printf("Unknown mode: %s\n", *mode)
		os.Exit(1)
	}
}

func runMonitor(config *utils.Config, logger *logrus.Logger, configFile string, single bool) {
	targets, err := config.BuildRegistry()
	if err != nil {
		logger.Fatalf("Invalid target registry: %v", err)
	}
	ruleSet, err := config.BuildRules()
	if err != nil {
		logger.Fatalf("Invalid alert rules: %v", err)
	}

	endpoints := 0
	for _, t := range targets {
		endpoints += len(t.Endpoints)
	}
	fmt.Printf("Monitoring %d targets (%d endpoints), %d rules\n\n", len(targets), endpoints, len(ruleSet))

	db, err := store.New(config.Database.Path)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	health := state.New(config.Monitoring.WindowSize, time.Duration(config.Monitoring.RetentionHours)*time.Hour)
	engine := rules.NewEngine(ruleSet, logger)
	if open, err := db.LoadOpenAlerts(); err != nil {
		logger.Warnf("Failed to restore open alerts: %v", err)
	} else if len(open) > 0 {
		engine.Restore(open)
		logger.Infof("Restored %d open alerts", len(open))
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

	var dispatcher scheduler.Dispatcher
	if config.Alerting.Enabled {
		d := alert.NewDispatcherFromConfig(config, logger)
		d.OnNotified = engine.MarkNotified
		d.OnResult = m.RecordNotification
		dispatcher = d
	}

	sched := scheduler.New(targets, prober, analyzer, health, engine, dispatcher, db, m,
		scheduler.Options{
			Interval:    time.Duration(config.Monitoring.PingIntervalSeconds) * time.Second,
			Concurrency: config.Monitoring.Concurrency,
			Retention:   time.Duration(config.Monitoring.RetentionHours) * time.Hour,
		}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if single {
		if err := sched.RunCycle(ctx); err != nil {
			logger.Errorf("Cycle failed: %v", err)
			os.Exit(1)
		}
		printSnapshot(health)
		return
	}

	if config.Metrics.Enabled {
		exporter := metrics.NewExporter(m, config.Metrics.Port, logger)
		go func() {
			if err := exporter.Start(ctx); err != nil {
				logger.Errorf("Metrics exporter exited: %v", err)
			}
		}()
	}

	// Reload targets and rules on config file changes
	go func() {
		err := utils.WatchConfig(ctx, configFile, logger, func(next *utils.Config) {
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
			logger.Infof("Configuration reloaded: %d targets, %d rules", len(nextTargets), len(nextRules))
		})
		if err != nil && ctx.Err() == nil {
			logger.Warnf("Config watcher stopped: %v", err)
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	_ = sched.Run(ctx)
}

func runStatus(config *utils.Config, logger *logrus.Logger, hours int) {
	db, err := store.New(config.Database.Path)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	summary, err := db.StatusSummary(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		logger.Fatalf("Failed to load status: %v", err)
	}

	if len(summary) == 0 {
		fmt.Printf("No measurements in the last %dh\n", hours)
		return
	}

	fmt.Printf("Endpoint status, last %dh:\n\n", hours)
	fmt.Printf("%-24s %-8s %-18s %8s %10s %10s\n", "TARGET", "TYPE", "ENDPOINT", "SAMPLES", "SUCCESS", "LATENCY")
	for _, st := range summary {
		fmt.Printf("%-24s %-8s %-18s %8d %9.1f%% %8.1fms\n",
			st.TargetID, st.TargetKind, st.Endpoint, st.Samples, st.SuccessRatio*100, st.AvgLatencyMs)
	}
}

func runStats(config *utils.Config, logger *logrus.Logger, hours int) {
	db, err := store.New(config.Database.Path)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	stats, err := db.AlertStatistics(time.Now().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		logger.Fatalf("Failed to load statistics: %v", err)
	}

	fmt.Printf("Alert statistics, last %dh:\n\n", hours)
	fmt.Printf("Total: %d  Open: %d\n\n", stats.Total, stats.Open)
	fmt.Println("By severity:")
	for _, sev := range []string{"CRITICAL", "HIGH", "MEDIUM", "LOW"} {
		if n, ok := stats.BySeverity[sev]; ok {
			fmt.Printf("  %-10s %d\n", sev, n)
		}
	}
	fmt.Println("By rule:")
	for rule, n := range stats.ByRule {
		fmt.Printf("  %-24s %d\n", rule, n)
	}
}

func runAnalyze(config *utils.Config, logger *logrus.Logger, targets []string) {
	if len(targets) == 0 {
		fmt.Println("analyze mode requires -target <address> or trailing addresses")
		os.Exit(1)
	}

	var resolver *geo.Resolver
	var err error
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

	if analyzeAll(analyzer, targets, logger) == len(targets) {
		os.Exit(1)
	}
}

type pathAnalyzer interface {
	AnalyzePath(ctx context.Context, destination string) (routes.PathAnalysis, error)
}

// analyzeAll traces every address in turn. One failed trace does not
// stop the rest; the failure count is returned.
func analyzeAll(analyzer pathAnalyzer, targets []string, logger *logrus.Logger) int {
	failed := 0
	for _, target := range targets {
		if err := analyzeOne(analyzer, target); err != nil {
			logger.Errorf("Path analysis failed for %s: %v", target, err)
			failed++
		}
	}
	return failed
}

func analyzeOne(analyzer pathAnalyzer, target string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	analysis, err := analyzer.AnalyzePath(ctx, target)
	if err != nil {
		return err
	}

	fmt.Printf("Path to %s: %d hops\n\n", target, len(analysis.Hops))
	for _, hop := range analysis.Hops {
		country := hop.Country
		if country == "" {
			country = "--"
		}
		fmt.Printf("  %2d  %-18s %8.1fms  %s\n", hop.Number, hop.Address, hop.RTTMs, country)
	}
	if len(analysis.ASPath) > 0 {
		fmt.Printf("\nAS path: %s\n", strings.Join(analysis.ASPath, " -> "))
	}
	if analysis.OriginPrefix != "" {
		fmt.Printf("Origin prefix: %s\n", analysis.OriginPrefix)
	}
	fmt.Printf("\nLatency avg %.1fms, max %.1fms\n\n", analysis.AvgLatencyMs, analysis.MaxLatencyMs)
	for _, b := range analysis.Bottlenecks {
		fmt.Printf("Bottleneck at hop %d (%s): %.1fms\n", b.Number, b.Address, b.RTTMs)
	}
	return nil
}

func printSnapshot(health *state.Store) {
	snapshot := health.Snapshot()
	fmt.Printf("\n%-24s %-8s %-18s %10s %10s %6s\n", "TARGET", "TYPE", "ENDPOINT", "SUCCESS", "LATENCY", "FAILS")
	for _, agg := range snapshot {
		fmt.Printf("%-24s %-8s %-18s %9.1f%% %8.1fms %6d\n",
			agg.TargetID, agg.TargetKind, agg.Endpoint,
			agg.SuccessRatio*100, agg.AvgLatencyMs, agg.ConsecutiveFailures)
	}
}
