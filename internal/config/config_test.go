package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadSyncNeverDefaultsCredentials(t *testing.T) {
	t.Setenv("OEM_API_USERNAME", "")
	t.Setenv("OEM_API_PASSWORD", "")

	cfg := LoadSync()
	if cfg.APIUsername != "" || cfg.APIPassword != "" {
		t.Fatalf("expected empty sync credentials when unset, got %q/%q", cfg.APIUsername, cfg.APIPassword)
	}
	if cfg.BatchSize != 50 || cfg.TokenRefreshEvery != 50 || cfg.TokenAttempts != 3 || cfg.ReceiptAttempts != 2 {
		t.Fatalf("unexpected sync defaults: %+v", cfg)
	}
	if cfg.SafetyMargin != 5*time.Minute {
		t.Fatalf("expected 5 minute safety margin, got %s", cfg.SafetyMargin)
	}
}

func TestLoadSyncAggregateDefaults(t *testing.T) {
	t.Setenv("SYNC_AGGREGATES", "")
	t.Setenv("SYNC_LOW_STOCK_THRESHOLD", "")
	t.Setenv("SYNC_CRITICAL_STOCK_THRESHOLD", "0")

	cfg := LoadSync()
	if !cfg.AggregatesEnabled || cfg.LowStockThreshold != 10 || cfg.CriticalStockThreshold != 3 {
		t.Fatalf("unexpected aggregate settings: %+v", cfg)
	}
	if cfg.SummaryDays != 30 || cfg.TopSellerDays != 7 || cfg.Timezone != "Africa/Lagos" {
		t.Fatalf("unexpected aggregate windows: %+v", cfg)
	}

	t.Setenv("SYNC_AGGREGATES", "false")
	if LoadSync().AggregatesEnabled {
		t.Fatalf("expected SYNC_AGGREGATES=false to disable aggregates")
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("RETURN_WINDOW_DAYS", "soon")
	t.Setenv("SYNC_BATCH_SIZE", "-4")

	if got := Load().ReturnWindowDays; got != 7 {
		t.Fatalf("expected default return window 7, got %d", got)
	}
	if got := LoadSync().BatchSize; got != 50 {
		t.Fatalf("expected default batch size 50, got %d", got)
	}
	if got := Load().ReturnWindow(); got != 7*24*time.Hour {
		t.Fatalf("expected 168h window, got %s", got)
	}
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("REPORTING_PORT=9191\nLOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("REPORTING_PORT", "")
	os.Unsetenv("REPORTING_PORT")

	LoadDotEnv(path, filepath.Join(dir, "missing.env"))
	t.Cleanup(func() { os.Unsetenv("REPORTING_PORT") })

	cfg := LoadReporting()
	if cfg.Port != "9191" {
		t.Fatalf("expected port from .env, got %q", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected environment to win over .env, got %q", cfg.LogLevel)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	if got := NewLogger("loud").GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", got)
	}
	if got := NewLogger("debug").GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", got)
	}
}
