package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"netsentinel/internal/routes"

	"github.com/sirupsen/logrus"
)

func TestLoadConfig_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, usedDefault, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !usedDefault {
		t.Error("missing file should fall back to the default configuration")
	}
	if cfg == nil || len(cfg.Rules) == 0 {
		t.Error("default configuration carries no rules")
	}
}

func TestLoadConfig_InvalidConfigIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := "submarine_cables:\n  - id: cable-1\n    endpoints: []\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := loadConfig(path); err == nil {
		t.Fatal("config with a malformed target must not fall back to defaults")
	}
}

type fakePathAnalyzer struct {
	traced []string
	fail   map[string]bool
}

func (f *fakePathAnalyzer) AnalyzePath(_ context.Context, destination string) (routes.PathAnalysis, error) {
	f.traced = append(f.traced, destination)
	if f.fail[destination] {
		return routes.PathAnalysis{}, errors.New("trace failed")
	}
	return routes.PathAnalysis{Destination: destination}, nil
}

func TestAnalyzeAll_TracesEveryAddress(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	fake := &fakePathAnalyzer{fail: map[string]bool{"10.0.0.2": true}}
	failed := analyzeAll(fake, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, logger)

	if len(fake.traced) != 3 {
		t.Fatalf("traced %d addresses, want 3", len(fake.traced))
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}
