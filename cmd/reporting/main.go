package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"mystore/backend/internal/config"
	"mystore/backend/internal/reporting"
)

func main() {
	config.LoadDotEnv()
	cfg := config.LoadReporting()
	logger := config.NewLogger(cfg.LogLevel)

	if err := validateReportingConfig(cfg); err != nil {
		logger.Fatalf("invalid reporting configuration: %v", err)
	}

	hash, err := reporting.HashPassword(cfg.APIPassword, bcrypt.DefaultCost)
	if err != nil {
		logger.Fatalf("hash sync password: %v", err)
	}
	tokens, err := reporting.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL, cfg.APIUsername, hash)
	if err != nil {
		logger.Fatalf("token issuer: %v", err)
	}

	var store reporting.Store
	closers := make([]func() error, 0, 1)
	if cfg.DatabaseURL != "" {
		gormStore, err := reporting.OpenGorm(cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("reporting database unavailable: %v", err)
		}
		store = gormStore
		closers = append(closers, gormStore.Close)
		logger.Info("reporting store: postgres")
	} else {
		store = reporting.NewMemoryStore()
		logger.Warn("reporting store: in-memory (REPORTING_DATABASE_URL not set)")
	}

	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr: cfg.Address(),
		Handler: reporting.NewServer(store, tokens, reporting.Options{
			AllowedOrigin: cfg.AllowedOrigin,
			Logger:        logrus.NewEntry(logger),
		}).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("reporting API listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "main", "main", "shutdown", nil, err)
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			config.LogError(logger, "main", "main", "close", nil, err)
		}
	}
	logger.Info("reporting API stopped")
}

func validateReportingConfig(cfg config.ReportingConfig) error {
	if len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("REPORTING_JWT_SECRET must be set and at least 32 characters")
	}
	if cfg.APIUsername == "" || cfg.APIPassword == "" {
		return fmt.Errorf("REPORTING_API_USERNAME and REPORTING_API_PASSWORD must be set")
	}
	return nil
}
