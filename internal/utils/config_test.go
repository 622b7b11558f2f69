package utils

import (
	"os"
	"path/filepath"
	"testing"

	"netsentinel/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
isps:
  - id: google-dns
    endpoints:
      - address: 8.8.8.8
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Monitoring.PingIntervalSeconds != 60 {
		t.Errorf("ping interval default = %d, want 60", cfg.Monitoring.PingIntervalSeconds)
	}
	if cfg.Monitoring.WindowSize != 20 {
		t.Errorf("window size default = %d, want 20", cfg.Monitoring.WindowSize)
	}
	if cfg.Alerting.RenotifyIntervalSeconds != 300 {
		t.Errorf("renotify default = %d, want 300", cfg.Alerting.RenotifyIntervalSeconds)
	}
	if cfg.Analysis.BGPAPIURL != "https://api.bgpview.io" {
		t.Errorf("bgp url default = %s", cfg.Analysis.BGPAPIURL)
	}
	if cfg.Database.Path != "netsentinel.db" {
		t.Errorf("db path default = %s", cfg.Database.Path)
	}
}

func TestBuildRegistry_KindsFromSections(t *testing.T) {
	path := writeConfig(t, `
submarine_cables:
  - id: sea-me-we-4
    display_name: SEA-ME-WE 4
    endpoints:
      - address: 1.1.1.1
isps:
  - id: google-dns
    endpoints:
      - address: 8.8.8.8
cloud_providers:
  - id: aws
    endpoints:
      - address: ec2.us-east-1.amazonaws.com
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	targets, err := cfg.BuildRegistry()
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("targets = %d, want 3", len(targets))
	}

	kinds := map[string]model.TargetKind{}
	for _, tgt := range targets {
		kinds[tgt.ID] = tgt.Kind
	}
	if kinds["sea-me-we-4"] != model.KindCable || kinds["google-dns"] != model.KindISP || kinds["aws"] != model.KindCloud {
		t.Errorf("kinds = %v", kinds)
	}

	// display_name falls back to the id
	for _, tgt := range targets {
		if tgt.ID == "google-dns" && tgt.DisplayName != "google-dns" {
			t.Errorf("display name fallback = %s", tgt.DisplayName)
		}
	}
}

func TestBuildRegistry_RejectsDuplicateID(t *testing.T) {
	path := writeConfig(t, `
isps:
  - id: dup
    endpoints:
      - address: 8.8.8.8
cloud_providers:
  - id: dup
    endpoints:
      - address: 8.8.4.4
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("duplicate target id accepted")
	}
}

func TestBuildRegistry_RejectsEmptyEndpoints(t *testing.T) {
	path := writeConfig(t, `
isps:
  - id: empty
    endpoints: []
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("target without endpoints accepted")
	}
}

func TestBuildRules_ParsesKindsOnce(t *testing.T) {
	path := writeConfig(t, `
rules:
  - name: cable_degraded
    condition: percentage
    threshold: 0.8
    target_type: cable
    severity: HIGH
  - name: slow
    condition: threshold
    metric: latency
    threshold: 200
    target_type: all
    severity: MEDIUM
    enabled: false
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	rules, err := cfg.BuildRules()
	if err != nil {
		t.Fatalf("BuildRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(rules))
	}

	if rules[0].Kind != model.ConditionPercentage || rules[0].TargetFilter != model.KindCable {
		t.Errorf("first rule = %+v", rules[0])
	}
	if !rules[0].Enabled {
		t.Error("enabled should default to true")
	}
	if rules[1].Metric != model.MetricLatency || rules[1].Enabled {
		t.Errorf("second rule = %+v", rules[1])
	}
}

func TestBuildRules_RejectsUnknownCondition(t *testing.T) {
	path := writeConfig(t, `
rules:
  - name: bad
    condition: sometimes
    threshold: 1
    severity: LOW
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unknown condition accepted")
	}
}

func TestValidate_ExpandsCredentialsFromEnv(t *testing.T) {
	t.Setenv("TEST_SLACK_HOOK", "https://hooks.slack.com/services/T000/B000/XXX")
	path := writeConfig(t, `
alerting:
  enabled: true
  channels:
    slack:
      enabled: true
      webhook_url: ${TEST_SLACK_HOOK}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Alerting.Channels.Slack.WebhookURL != "https://hooks.slack.com/services/T000/B000/XXX" {
		t.Errorf("webhook url = %s", cfg.Alerting.Channels.Slack.WebhookURL)
	}
}

func TestValidate_RejectsUnknownRouteSeverity(t *testing.T) {
	path := writeConfig(t, `
alerting:
  routes:
    URGENT: [slack]
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unknown route severity accepted")
	}
}

func TestValidateAddress(t *testing.T) {
	valid := []string{"8.8.8.8", "2001:4860:4860::8888", "ec2.us-east-1.amazonaws.com", "localhost"}
	for _, addr := range valid {
		if err := ValidateAddress(addr); err != nil {
			t.Errorf("ValidateAddress(%q) = %v, want nil", addr, err)
		}
	}

	invalid := []string{"", "bad host", "http://example.com", "a..b", ".example.com"}
	for _, addr := range invalid {
		if err := ValidateAddress(addr); err == nil {
			t.Errorf("ValidateAddress(%q) accepted", addr)
		}
	}
}

func TestGetDefaultConfig_IsUsable(t *testing.T) {
	cfg := GetDefaultConfig()
	rules, err := cfg.BuildRules()
	if err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}
	if len(rules) != 5 {
		t.Errorf("default rules = %d, want 5", len(rules))
	}
}
