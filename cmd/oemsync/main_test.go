package main

import (
	"testing"

	"mystore/backend/internal/config"
	"mystore/backend/internal/oemsync"
)

func validSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		APIBaseURL:    "http://127.0.0.1:8090",
		APIUsername:   "oem-sync",
		APIPassword:   "from-env",
		WatermarkPath: ".last_sync_time.txt",
		ErrorLogPath:  "sync_errors.log",
	}
}

func TestValidateSyncConfigRequiresCredentials(t *testing.T) {
	cfg := validSyncConfig()
	cfg.APIPassword = ""
	if err := validateSyncConfig(cfg); err == nil {
		t.Fatalf("expected missing password to be rejected")
	}
	if err := validateSyncConfig(validSyncConfig()); err != nil {
		t.Fatalf("expected complete config to pass, got %v", err)
	}
}

func TestResolveMode(t *testing.T) {
	cases := []struct {
		raw         string
		incremental bool
		full        bool
		want        oemsync.Mode
		wantErr     bool
	}{
		{raw: "standard", want: oemsync.ModeStandard},
		{raw: "standard", incremental: true, want: oemsync.ModeIncremental},
		{raw: "standard", full: true, want: oemsync.ModeFull},
		{raw: "full", want: oemsync.ModeFull},
		{raw: "standard", incremental: true, full: true, wantErr: true},
		{raw: "hourly", wantErr: true},
	}
	for _, tc := range cases {
		got, err := resolveMode(tc.raw, tc.incremental, tc.full)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("resolveMode(%q, %v, %v): expected error", tc.raw, tc.incremental, tc.full)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("resolveMode(%q, %v, %v) = %q, %v; want %q", tc.raw, tc.incremental, tc.full, got, err, tc.want)
		}
	}
}
