package main

import (
	"testing"

	"mystore/backend/internal/config"
)

func TestValidateReportingConfigRejectsShortSecret(t *testing.T) {
	err := validateReportingConfig(config.ReportingConfig{JWTSecret: "short", APIUsername: "oem-sync", APIPassword: "x"})
	if err == nil {
		t.Fatalf("expected short jwt secret to be rejected")
	}
}

func TestValidateReportingConfigRequiresCredential(t *testing.T) {
	err := validateReportingConfig(config.ReportingConfig{JWTSecret: "0123456789abcdef0123456789abcdef"})
	if err == nil {
		t.Fatalf("expected missing sync credential to be rejected")
	}
}

func TestValidateReportingConfigAcceptsStrongValues(t *testing.T) {
	err := validateReportingConfig(config.ReportingConfig{
		JWTSecret:   "0123456789abcdef0123456789abcdef",
		APIUsername: "oem-sync",
		APIPassword: "from-env",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
