package utils

import (
	"fmt"
	"net"
	"os"
	"strings"

	"netsentinel/internal/model"

	"gopkg.in/yaml.v3"
)

// Config is the resolved YAML configuration for the monitoring engine.
type Config struct {
	Monitoring     MonitoringConfig `yaml:"monitoring"`
	SubmarineCable []TargetYAML     `yaml:"submarine_cables"`
	ISPs           []TargetYAML     `yaml:"isps"`
	CloudProviders []TargetYAML     `yaml:"cloud_providers"`
	Rules          []RuleYAML       `yaml:"rules"`
	Alerting       AlertingConfig   `yaml:"alerting"`
	Analysis       AnalysisConfig   `yaml:"analysis"`
	Database       DatabaseConfig   `yaml:"database"`
	Metrics        MetricsConfig    `yaml:"metrics"`
	Logging        LoggingConfig    `yaml:"logging"`
}

type MonitoringConfig struct {
	PingIntervalSeconds int `yaml:"ping_interval"`
	TimeoutSeconds      int `yaml:"timeout"`
	RetryCount          int `yaml:"retry_count"`
	Concurrency         int `yaml:"concurrency"`
	WindowSize          int `yaml:"window_size"`
	RetentionHours      int `yaml:"retention_hours"`
}

type TargetYAML struct {
	ID          string           `yaml:"id"`
	DisplayName string           `yaml:"display_name"`
	Endpoints   []model.Endpoint `yaml:"endpoints"`
}

type RuleYAML struct {
	Name       string  `yaml:"name"`
	Condition  string  `yaml:"condition"`
	Metric     string  `yaml:"metric,omitempty"`
	Threshold  float64 `yaml:"threshold"`
	TargetType string  `yaml:"target_type"`
	Severity   string  `yaml:"severity"`
	Enabled    *bool   `yaml:"enabled,omitempty"`
}

type AlertingConfig struct {
	Enabled                 bool                `yaml:"enabled"`
	RenotifyIntervalSeconds int                 `yaml:"renotify_interval_seconds"`
	RetryCount              int                 `yaml:"retry_count"`
	RetryBackoffSeconds     int                 `yaml:"retry_backoff_seconds"`
	Channels                AlertChannelsConfig `yaml:"channels"`
	Routes                  map[string][]string `yaml:"routes,omitempty"`
}

type AlertChannelsConfig struct {
	Log      bool           `yaml:"log"`
	Email    EmailConfig    `yaml:"email"`
	Slack    SlackConfig    `yaml:"slack"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type EmailConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`
	To         string `yaml:"to"`
}

type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type WebhookConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

type TelegramConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token"`
	ChatID    string `yaml:"chat_id"`
	ParseMode string `yaml:"parse_mode"`
}

type AnalysisConfig struct {
	MaxHops             int    `yaml:"max_hops"`
	TraceTimeoutSeconds int    `yaml:"trace_timeout_seconds"`
	BGPAPIURL           string `yaml:"bgp_api_url"`
	GeoIPDatabase       string `yaml:"geoip_db,omitempty"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = "configs/netsentinel.yaml"
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %v", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate fills defaults and rejects malformed targets and rules.
// Credentials may reference environment variables as ${VAR}.
func (c *Config) Validate() error {
	if c.Monitoring.PingIntervalSeconds <= 0 {
		c.Monitoring.PingIntervalSeconds = 60
	}
	if c.Monitoring.TimeoutSeconds <= 0 {
		c.Monitoring.TimeoutSeconds = 5
	}
	if c.Monitoring.RetryCount <= 0 {
		c.Monitoring.RetryCount = 3
	}
	if c.Monitoring.Concurrency <= 0 {
		c.Monitoring.Concurrency = 8
	}
	if c.Monitoring.WindowSize <= 0 {
		c.Monitoring.WindowSize = 20
	}
	if c.Monitoring.RetentionHours <= 0 {
		c.Monitoring.RetentionHours = 24
	}

	if c.Alerting.RenotifyIntervalSeconds <= 0 {
		c.Alerting.RenotifyIntervalSeconds = 300
	}
	if c.Alerting.RetryCount <= 0 {
		c.Alerting.RetryCount = 3
	}
	if c.Alerting.RetryBackoffSeconds <= 0 {
		c.Alerting.RetryBackoffSeconds = 2
	}

	if c.Analysis.MaxHops <= 0 {
		c.Analysis.MaxHops = 30
	}
	if c.Analysis.TraceTimeoutSeconds <= 0 {
		c.Analysis.TraceTimeoutSeconds = 60
	}
	if c.Analysis.BGPAPIURL == "" {
		c.Analysis.BGPAPIURL = "https://api.bgpview.io"
	}

	if c.Database.Path == "" {
		c.Database.Path = "netsentinel.db"
	}
	if c.Metrics.Port == "" {
		c.Metrics.Port = "9190"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	for severity := range c.Alerting.Routes {
		if _, err := model.ParseSeverity(severity); err != nil {
			return NewConfigError("alerting.routes", "%v", err)
		}
	}

	c.Alerting.Channels.Email.Password = os.ExpandEnv(c.Alerting.Channels.Email.Password)
	c.Alerting.Channels.Slack.WebhookURL = os.ExpandEnv(c.Alerting.Channels.Slack.WebhookURL)
	c.Alerting.Channels.Webhook.URL = os.ExpandEnv(c.Alerting.Channels.Webhook.URL)
	c.Alerting.Channels.Telegram.BotToken = os.ExpandEnv(c.Alerting.Channels.Telegram.BotToken)

	if _, err := c.BuildRegistry(); err != nil {
		return err
	}
	if _, err := c.BuildRules(); err != nil {
		return err
	}

	return nil
}

// BuildRegistry resolves the configured target sections into the immutable
// target registry the engine runs against.
func (c *Config) BuildRegistry() ([]model.Target, error) {
	var targets []model.Target

	sections := []struct {
		kind  model.TargetKind
		items []TargetYAML
	}{
		{model.KindCable, c.SubmarineCable},
		{model.KindISP, c.ISPs},
		{model.KindCloud, c.CloudProviders},
	}

	seen := make(map[string]bool)
	for _, section := range sections {
		for _, t := range section.items {
			if t.ID == "" {
				return nil, NewConfigError(string(section.kind), "target is missing an id")
			}
			if seen[t.ID] {
				return nil, NewConfigError(string(section.kind), "duplicate target id %q", t.ID)
			}
			seen[t.ID] = true
			if len(t.Endpoints) == 0 {
				return nil, NewConfigError(t.ID, "target has no endpoints")
			}
			for _, ep := range t.Endpoints {
				if err := ValidateAddress(ep.Address); err != nil {
					return nil, NewConfigError(t.ID, "%v", err)
				}
			}

			displayName := t.DisplayName
			if displayName == "" {
				displayName = t.ID
			}
			targets = append(targets, model.Target{
				ID:          t.ID,
				Kind:        section.kind,
				DisplayName: displayName,
				Endpoints:   t.Endpoints,
			})
		}
	}

	return targets, nil
}

// BuildRules resolves the configured rule list, parsing condition kinds
// once so evaluation never re-parses strings.
func (c *Config) BuildRules() ([]model.AlertRule, error) {
	rules := make([]model.AlertRule, 0, len(c.Rules))
	for _, r := range c.Rules {
		if r.Name == "" {
			return nil, NewConfigError("rules", "rule is missing a name")
		}

		kind, err := model.ParseConditionKind(r.Condition)
		if err != nil {
			return nil, NewConfigError(r.Name, "%v", err)
		}
		metric, err := model.ParseThresholdMetric(r.Metric)
		if err != nil {
			return nil, NewConfigError(r.Name, "%v", err)
		}
		severity, err := model.ParseSeverity(r.Severity)
		if err != nil {
			return nil, NewConfigError(r.Name, "%v", err)
		}

		var filter model.TargetKind
		if r.TargetType != "" && r.TargetType != "all" {
			filter, err = model.ParseTargetKind(r.TargetType)
			if err != nil {
				return nil, NewConfigError(r.Name, "%v", err)
			}
		}

		enabled := true
		if r.Enabled != nil {
			enabled = *r.Enabled
		}

		rules = append(rules, model.AlertRule{
			Name:         r.Name,
			Kind:         kind,
			Metric:       metric,
			Threshold:    r.Threshold,
			TargetFilter: filter,
			Severity:     severity,
			Enabled:      enabled,
		})
	}
	return rules, nil
}

// ValidateAddress rejects syntactically malformed probe addresses. Anything
// that parses as an IP or looks like a hostname is accepted; resolution
// failures at probe time are measurement data, not configuration errors.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("endpoint address is empty")
	}
	if net.ParseIP(addr) != nil {
		return nil
	}
	if strings.ContainsAny(addr, " \t/:") {
		return fmt.Errorf("malformed endpoint address %q", addr)
	}
	for _, label := range strings.Split(addr, ".") {
		if label == "" {
			return fmt.Errorf("malformed endpoint address %q", addr)
		}
	}
	return nil
}

// GetDefaultConfig returns a runnable default configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Monitoring: MonitoringConfig{
			PingIntervalSeconds: 60,
			TimeoutSeconds:      5,
			RetryCount:          3,
			Concurrency:         8,
			WindowSize:          20,
			RetentionHours:      24,
		},
		Rules: []RuleYAML{
			{Name: "high_packet_loss", Condition: "threshold", Threshold: 20, TargetType: "all", Severity: "MEDIUM"},
			{Name: "complete_outage", Condition: "threshold", Threshold: 100, TargetType: "all", Severity: "HIGH"},
			{Name: "cable_degraded", Condition: "percentage", Threshold: 0.8, TargetType: "cable", Severity: "HIGH"},
			{Name: "repeated_failures", Condition: "consecutive_failures", Threshold: 5, TargetType: "all", Severity: "CRITICAL"},
			{Name: "route_change", Condition: "threshold", Metric: "route_change", Threshold: 0, TargetType: "all", Severity: "LOW"},
		},
		Alerting: AlertingConfig{
			Enabled:                 true,
			RenotifyIntervalSeconds: 300,
			RetryCount:              3,
			RetryBackoffSeconds:     2,
			Channels:                AlertChannelsConfig{Log: true},
		},
	}
	// Validate never fails on the defaults above.
	_ = cfg.Validate()
	return cfg
}
